package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/bus"
	"github.com/vietddude/recoverer/internal/infra/storage"
	"github.com/vietddude/recoverer/internal/recovery/metrics"
)

// ErrUnknownMessage is returned when a retry is requested for a message id
// that does not exist at all. Unlike normal concurrent-progress conditions,
// this indicates a data-integrity bug and is surfaced to the transport's
// failure handling instead of being swallowed.
var ErrUnknownMessage = errors.New("failed message does not exist")

// Issuer handles direct per-message retries that bypass grouping.
type Issuer struct {
	records   storage.FailureRecordRepository
	sender    bus.Sender
	publisher bus.Publisher
}

// NewIssuer creates a direct retry issuer.
func NewIssuer(
	records storage.FailureRecordRepository,
	sender bus.Sender,
	publisher bus.Publisher,
) *Issuer {
	return &Issuer{records: records, sender: sender, publisher: publisher}
}

// HandleRetryMessages processes a RetryMessagesByID command.
func (i *Issuer) HandleRetryMessages(ctx context.Context, cmd domain.RetryMessagesByID) error {
	for _, id := range cmd.MessageIDs {
		if err := i.retryOne(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (i *Issuer) retryOne(ctx context.Context, id string) error {
	record, err := i.records.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	if err != nil {
		return fmt.Errorf("failed to load record %s: %w", id, err)
	}

	switch record.Status {
	case domain.StatusResolved, domain.StatusArchived:
		slog.Info("Retry skipped, record no longer actionable", "id", id, "status", record.Status)
		return nil
	}

	if err := i.sender.Send(ctx, domain.KindSubmitRetry, domain.SubmitRetry{
		FailedMessageID: id,
	}); err != nil {
		return fmt.Errorf("failed to issue retry for %s: %w", id, err)
	}

	record.MarkRetryIssued()
	err = i.records.Save(ctx, record)
	if errors.Is(err, storage.ErrVersionConflict) {
		// Someone else touched the record; the retry command is already out
		// and duplicates are tolerated downstream.
		slog.Debug("Retry status update lost write race", "id", id)
	} else if err != nil {
		return fmt.Errorf("failed to save record %s: %w", id, err)
	}

	metrics.RetriesIssued.Inc()
	return i.publisher.Publish(ctx, domain.KindMessageSubmittedForRetry,
		domain.MessageSubmittedForRetry{FailedMessageID: id})
}
