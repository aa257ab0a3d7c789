package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/bus"
	"github.com/vietddude/recoverer/internal/infra/storage"
	"github.com/vietddude/recoverer/internal/recovery/metrics"
)

// DefaultBatchSize is the number of documents per archive batch.
const DefaultBatchSize = 1000

// Orchestrator splits an archive scope into fixed-size batches, persists
// batch progress, and drives batches to completion. Runs are resumable: a
// later trigger for the same scope picks up at the persisted batch index.
type Orchestrator struct {
	ops       storage.ArchiveOperationRepository
	batches   storage.ArchiveBatchRepository
	records   storage.FailureRecordRepository
	retries   storage.BulkRetryRepository
	publisher bus.Publisher
	batchSize int
	now       func() time.Time
}

// NewOrchestrator creates an archive orchestrator.
func NewOrchestrator(
	ops storage.ArchiveOperationRepository,
	batches storage.ArchiveBatchRepository,
	records storage.FailureRecordRepository,
	retries storage.BulkRetryRepository,
	publisher bus.Publisher,
) *Orchestrator {
	return &Orchestrator{
		ops:       ops,
		batches:   batches,
		records:   records,
		retries:   retries,
		publisher: publisher,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
}

// SetBatchSize overrides the batch size.
func (o *Orchestrator) SetBatchSize(n int) {
	if n > 0 {
		o.batchSize = n
	}
}

// HandleArchiveGroup processes an ArchiveGroup command: start a new run or
// resume the in-flight one for the group.
func (o *Orchestrator) HandleArchiveGroup(ctx context.Context, cmd domain.ArchiveGroup) error {
	// Archiving and bulk-retrying the same group concurrently is refused.
	active, err := o.retries.Get(ctx, cmd.GroupID)
	if err != nil {
		return fmt.Errorf("failed to check retry state: %w", err)
	}
	if active != nil {
		slog.Info("Archive refused, bulk retry in progress", "group", cmd.GroupID)
		return nil
	}

	return o.run(ctx, domain.ArchiveFailureGroup, cmd.GroupID, cmd.CutoffTime)
}

// HandleArchiveTimeRange archives every eligible message that failed at or
// before the cutoff, regardless of group.
func (o *Orchestrator) HandleArchiveTimeRange(ctx context.Context, cutoff time.Time) error {
	return o.run(ctx, domain.ArchiveTimeRange, "", cutoff)
}

func (o *Orchestrator) run(
	ctx context.Context,
	archiveType domain.ArchiveType,
	groupID string,
	cutoff time.Time,
) error {
	scopeKey := groupID
	if archiveType == domain.ArchiveTimeRange {
		scopeKey = cutoff.UTC().Format(time.RFC3339)
	}
	opID := domain.ArchiveOperationID(scopeKey, archiveType)

	op, err := o.ops.Get(ctx, opID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		op, err = o.split(ctx, opID, archiveType, groupID, cutoff)
		if err != nil {
			return err
		}
		if op == nil {
			// Nothing to archive.
			return nil
		}
	case err != nil:
		return fmt.Errorf("failed to load archive operation: %w", err)
	default:
		slog.Info("Resuming archive operation",
			"operation", op.ID, "batch", op.CurrentBatch, "of", op.NumberOfBatches)
	}

	return o.drive(ctx, op)
}

// split counts the eligible set, cuts it into batches, and persists the
// operation record. Persisting the operation is the durable commit point: a
// concurrent trigger that loses the create race resumes the winner's split
// instead of re-splitting.
func (o *Orchestrator) split(
	ctx context.Context,
	opID string,
	archiveType domain.ArchiveType,
	groupID string,
	cutoff time.Time,
) (*domain.ArchiveOperation, error) {
	total, err := o.records.CountEligible(ctx, groupID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to count eligible messages: %w", err)
	}
	if total == 0 {
		slog.Info("No messages to archive", "group", groupID, "cutoff", cutoff)
		return nil, nil
	}

	numBatches := (total + o.batchSize - 1) / o.batchSize
	op := &domain.ArchiveOperation{
		ID:              opID,
		RequestID:       uuid.New().String(),
		ArchiveType:     archiveType,
		GroupID:         groupID,
		GroupName:       groupID,
		TotalMessages:   total,
		NumberOfBatches: numBatches,
		CutoffTime:      cutoff,
		StartedAt:       o.now().UTC(),
	}

	batches := make([]*domain.ArchiveBatch, 0, numBatches)
	for idx := 0; idx < numBatches; idx++ {
		ids, err := o.records.EligibleIDs(ctx, groupID, cutoff, idx*o.batchSize, o.batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to page eligible messages: %w", err)
		}
		batches = append(batches, &domain.ArchiveBatch{
			ID:          domain.ArchiveBatchID(opID, idx),
			OperationID: opID,
			Index:       idx,
			DocumentIDs: ids,
		})
	}
	if err := o.batches.CreateBatches(ctx, batches); err != nil {
		return nil, fmt.Errorf("failed to persist batches: %w", err)
	}

	err = o.ops.Create(ctx, op)
	if errors.Is(err, storage.ErrVersionConflict) {
		// Another instance won the split; resume its operation.
		existing, getErr := o.ops.Get(ctx, opID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load winning split: %w", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist archive operation: %w", err)
	}

	slog.Info("Archive operation started",
		"operation", op.ID, "total", total, "batches", numBatches)
	return op, nil
}

// drive consumes batches strictly in index order until the operation
// completes or yields.
func (o *Orchestrator) drive(ctx context.Context, op *domain.ArchiveOperation) error {
	for !op.Done() {
		batch, err := o.batches.Get(ctx, op.ID, op.CurrentBatch)
		if errors.Is(err, storage.ErrNotFound) {
			// Backing index not yet consistent. Yield; a later trigger
			// resumes from this same index.
			slog.Info("Archive batch not yet visible, yielding",
				"operation", op.ID, "batch", op.CurrentBatch)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to fetch batch %d: %w", op.CurrentBatch, err)
		}

		archived := 0
		if len(batch.DocumentIDs) > 0 {
			archived, err = o.records.MarkArchived(ctx, batch.DocumentIDs)
			if err != nil {
				return fmt.Errorf("failed to archive batch %d: %w", op.CurrentBatch, err)
			}
		}

		// An empty batch still advances the index; the loop must not stall
		// on pages that matched zero live documents.
		op.MessagesArchived += archived
		op.CurrentBatch++

		err = o.ops.Update(ctx, op)
		if errors.Is(err, storage.ErrVersionConflict) {
			slog.Debug("Archive operation advanced elsewhere, yielding", "operation", op.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to persist progress: %w", err)
		}

		metrics.ArchiveBatchesProcessed.Inc()
		metrics.MessagesArchived.Add(float64(archived))
		slog.Debug("Archive batch consumed",
			"operation", op.ID, "batch", op.CurrentBatch-1, "archived", archived)
	}

	if err := o.batches.DeleteForOperation(ctx, op.ID); err != nil {
		return fmt.Errorf("failed to delete batches: %w", err)
	}
	if err := o.ops.Delete(ctx, op.ID); err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}

	metrics.ArchiveRunsCompleted.Inc()
	slog.Info("Archive operation completed",
		"operation", op.ID, "archived", op.MessagesArchived)

	return o.publisher.Publish(ctx, domain.KindGroupArchived, domain.GroupArchived{
		GroupID:      op.GroupID,
		GroupName:    op.GroupName,
		MessageCount: op.MessagesArchived,
	})
}
