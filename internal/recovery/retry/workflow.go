package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/bus"
	"github.com/vietddude/recoverer/internal/infra/storage"
	"github.com/vietddude/recoverer/internal/recovery/metrics"
)

const (
	// DefaultPageSize is the number of retryable messages fetched per cycle.
	DefaultPageSize = 1000

	// DefaultDelay is the pause between retry cycles.
	DefaultDelay = 30 * time.Second

	// DefaultStallThreshold is the number of consecutive no-change cycles
	// after which a run terminates without completion. Retries are
	// asynchronous and may re-enter the retryable set; without this bound
	// the workflow would spin forever chasing a shrinking-then-refilling
	// count.
	DefaultStallThreshold = 4
)

// Workflow is the per-group bulk retry state machine. At most one run is
// active per group, enforced by the mutually-exclusive create of
// BulkRetryState. Cycles are connected by durable scheduled continuations.
type Workflow struct {
	states    storage.BulkRetryRepository
	records   storage.FailureRecordRepository
	sender    bus.Sender
	publisher bus.Publisher
	scheduler bus.Scheduler

	pageSize       int
	delay          time.Duration
	stallThreshold int
	now            func() time.Time
}

// NewWorkflow creates a bulk retry workflow with default tuning.
func NewWorkflow(
	states storage.BulkRetryRepository,
	records storage.FailureRecordRepository,
	sender bus.Sender,
	publisher bus.Publisher,
	scheduler bus.Scheduler,
) *Workflow {
	return &Workflow{
		states:         states,
		records:        records,
		sender:         sender,
		publisher:      publisher,
		scheduler:      scheduler,
		pageSize:       DefaultPageSize,
		delay:          DefaultDelay,
		stallThreshold: DefaultStallThreshold,
		now:            time.Now,
	}
}

// SetTuning overrides page size, continuation delay, and stall threshold.
func (w *Workflow) SetTuning(pageSize int, delay time.Duration, stallThreshold int) {
	if pageSize > 0 {
		w.pageSize = pageSize
	}
	if delay > 0 {
		w.delay = delay
	}
	if stallThreshold > 0 {
		w.stallThreshold = stallThreshold
	}
}

// HandleRetryGroup processes a RetryGroup command. A second trigger while a
// run is active for the group is a silent no-op.
func (w *Workflow) HandleRetryGroup(ctx context.Context, cmd domain.RetryGroup) error {
	startedAt := cmd.StartedAt
	if startedAt.IsZero() {
		startedAt = w.now().UTC()
	}

	state := &domain.BulkRetryState{GroupID: cmd.GroupID, StartedAt: startedAt}
	created, err := w.states.Create(ctx, state)
	if err != nil {
		return fmt.Errorf("failed to create retry state: %w", err)
	}
	if !created {
		slog.Info("Bulk retry already in progress", "group", cmd.GroupID)
		return nil
	}

	slog.Info("Bulk retry started", "group", cmd.GroupID, "started_at", startedAt)

	// The time bound keeps newly-arriving failures from blocking completion.
	page, err := w.records.QueryRetryable(ctx, cmd.GroupID, startedAt, w.pageSize)
	if err != nil {
		return fmt.Errorf("failed to query retryable messages: %w", err)
	}

	if err := w.issue(ctx, page.MessageIDs); err != nil {
		return err
	}
	if err := w.publisher.Publish(ctx, domain.KindGroupRetried, domain.GroupRetried{
		GroupID: cmd.GroupID,
	}); err != nil {
		return err
	}

	if page.Total == 0 {
		return w.complete(ctx, state, true)
	}

	return w.scheduler.Schedule(ctx, domain.KindBulkRetryContinue, domain.BulkRetryContinuation{
		GroupID:       cmd.GroupID,
		PreviousTotal: page.Total,
	}, w.delay)
}

// HandleContinuation processes one delayed retry cycle.
func (w *Workflow) HandleContinuation(ctx context.Context, c domain.BulkRetryContinuation) error {
	state, err := w.states.Get(ctx, c.GroupID)
	if err != nil {
		return fmt.Errorf("failed to load retry state: %w", err)
	}
	if state == nil {
		// Run was terminated elsewhere; a stale continuation is harmless.
		slog.Debug("Continuation for inactive run", "group", c.GroupID)
		return nil
	}

	page, err := w.records.QueryRetryable(ctx, c.GroupID, state.StartedAt, w.pageSize)
	if err != nil {
		return fmt.Errorf("failed to query retryable messages: %w", err)
	}

	if page.Total != c.PreviousTotal {
		// Messages are leaving the retryable set; work is being made.
		state.UpdatesWithoutChange = 0
		if err := w.issue(ctx, page.MessageIDs); err != nil {
			return err
		}
	} else {
		state.UpdatesWithoutChange++
	}

	if page.Total == 0 {
		return w.complete(ctx, state, true)
	}
	if state.UpdatesWithoutChange >= w.stallThreshold {
		slog.Warn("Bulk retry stalled",
			"group", c.GroupID, "remaining", page.Total, "cycles", state.UpdatesWithoutChange)
		return w.complete(ctx, state, false)
	}

	err = w.states.Update(ctx, state)
	if errors.Is(err, storage.ErrVersionConflict) {
		slog.Debug("Retry state advanced elsewhere, yielding", "group", c.GroupID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to persist retry state: %w", err)
	}

	return w.scheduler.Schedule(ctx, domain.KindBulkRetryContinue, domain.BulkRetryContinuation{
		GroupID:       c.GroupID,
		PreviousTotal: page.Total,
	}, w.delay)
}

// issue sends one retry command per message. Issuance is idempotent at the
// message level; a duplicate for a message already in flight is tolerated
// downstream.
func (w *Workflow) issue(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		if err := w.sender.Send(ctx, domain.KindSubmitRetry, domain.SubmitRetry{
			FailedMessageID: id,
		}); err != nil {
			return fmt.Errorf("failed to issue retry for %s: %w", id, err)
		}
		if err := w.publisher.Publish(ctx, domain.KindMessageSubmittedForRetry,
			domain.MessageSubmittedForRetry{FailedMessageID: id}); err != nil {
			return err
		}
	}

	if err := w.records.MarkRetryIssued(ctx, ids); err != nil {
		return fmt.Errorf("failed to mark retries issued: %w", err)
	}

	metrics.RetriesIssued.Add(float64(len(ids)))
	return nil
}

// complete clears the run state and reports the outcome.
func (w *Workflow) complete(ctx context.Context, state *domain.BulkRetryState, ranToCompletion bool) error {
	if err := w.states.Delete(ctx, state.GroupID); err != nil {
		return fmt.Errorf("failed to clear retry state: %w", err)
	}

	outcome := "completed"
	if !ranToCompletion {
		outcome = "stalled"
	}
	metrics.BulkRetryRunsCompleted.WithLabelValues(outcome).Inc()
	slog.Info("Bulk retry terminated", "group", state.GroupID, "outcome", outcome)

	return w.publisher.Publish(ctx, domain.KindBulkRetryCompleted, domain.BulkRetryCompleted{
		GroupID:         state.GroupID,
		RanToCompletion: ranToCompletion,
	})
}
