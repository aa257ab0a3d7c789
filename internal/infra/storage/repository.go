package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/recoverer/internal/core/domain"
)

var (
	// ErrNotFound is returned when an entity doesn't exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when a versioned write loses an
	// optimistic-concurrency race. Callers treat it as "someone else is
	// progressing this" and stop, rather than retrying immediately.
	ErrVersionConflict = errors.New("version conflict")
)

// RetryablePage is one page of retryable message ids plus the total count of
// the full retryable set observed by the same query.
type RetryablePage struct {
	MessageIDs []string
	Total      int
}

// FailureRecordRepository handles failure record storage.
type FailureRecordRepository interface {
	// Load retrieves a failure record by unique message id.
	Load(ctx context.Context, id string) (*domain.FailureRecord, error)

	// Save persists a record under optimistic concurrency. The record's
	// version must match the stored one; on success the version is bumped.
	Save(ctx context.Context, record *domain.FailureRecord) error

	// PatchGroups replaces only the group membership field, conflict
	// detecting against the version the caller read.
	PatchGroups(ctx context.Context, id string, groups []domain.FailureGroup, expectedVersion int64) error

	// CountEligible counts unresolved messages in a group that failed at or
	// before the cutoff. An empty groupID matches every group (time-range
	// archive scope).
	CountEligible(ctx context.Context, groupID string, cutoff time.Time) (int, error)

	// EligibleIDs pages through eligible message ids in a stable order.
	EligibleIDs(ctx context.Context, groupID string, cutoff time.Time, offset, limit int) ([]string, error)

	// QueryRetryable returns up to limit retryable (unresolved) message ids
	// in the group with lastFailureTime <= before, plus the total remaining
	// count from the same query.
	QueryRetryable(ctx context.Context, groupID string, before time.Time, limit int) (RetryablePage, error)

	// MarkRetryIssued flips unresolved records to retry-issued.
	MarkRetryIssued(ctx context.Context, ids []string) error

	// MarkArchived marks the given records archived in a single unit of work
	// and returns how many live records were actually archived.
	MarkArchived(ctx context.Context, ids []string) (int, error)

	// UnresolvedPage returns unresolved records ordered by id, starting
	// after afterID. Used to stream the full unresolved set in pages.
	UnresolvedPage(ctx context.Context, afterID string, limit int) ([]*domain.FailureRecord, error)
}

// ArchiveOperationRepository handles archive progress records.
type ArchiveOperationRepository interface {
	// Get retrieves an operation by id. ErrNotFound when absent.
	Get(ctx context.Context, id string) (*domain.ArchiveOperation, error)

	// Create persists a new operation. ErrVersionConflict when one already
	// exists for the id (the caller lost the split race).
	Create(ctx context.Context, op *domain.ArchiveOperation) error

	// Update persists progress under optimistic concurrency.
	Update(ctx context.Context, op *domain.ArchiveOperation) error

	// Delete removes a completed operation.
	Delete(ctx context.Context, id string) error

	// Count returns the number of in-flight operations.
	Count(ctx context.Context) (int, error)
}

// ArchiveBatchRepository handles the immutable batches of an archive run.
type ArchiveBatchRepository interface {
	// CreateBatches persists every batch of a split. Idempotent: batches
	// already present are left untouched.
	CreateBatches(ctx context.Context, batches []*domain.ArchiveBatch) error

	// Get retrieves one batch by operation id and index. ErrNotFound when
	// the backing index hasn't caught up yet.
	Get(ctx context.Context, operationID string, index int) (*domain.ArchiveBatch, error)

	// DeleteForOperation removes every batch of a completed operation.
	DeleteForOperation(ctx context.Context, operationID string) error
}

// BulkRetryRepository handles bulk retry run state.
type BulkRetryRepository interface {
	// Create persists a new run state. Returns false without error when a
	// run is already active for the group (mutually exclusive create).
	Create(ctx context.Context, state *domain.BulkRetryState) (bool, error)

	// Get retrieves the active run for a group, or nil when none.
	Get(ctx context.Context, groupID string) (*domain.BulkRetryState, error)

	// Update persists the stall counter under optimistic concurrency.
	Update(ctx context.Context, state *domain.BulkRetryState) error

	// Delete clears a terminated run.
	Delete(ctx context.Context, groupID string) error

	// Count returns the number of active runs.
	Count(ctx context.Context) (int, error)
}

// Continuation is a durable, time-delayed re-invocation of a workflow step.
type Continuation struct {
	ID      string
	Kind    string
	Payload []byte
	DueAt   time.Time
}

// ContinuationRepository makes scheduled continuations durable so a process
// restart resumes pending workflow cycles.
type ContinuationRepository interface {
	// Schedule persists a continuation for later delivery.
	Schedule(ctx context.Context, c *Continuation) error

	// Due returns continuations due at or before now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*Continuation, error)

	// Delete removes a delivered continuation.
	Delete(ctx context.Context, id string) error

	// Count returns the scheduled backlog size.
	Count(ctx context.Context) (int, error)
}

// MarkerRepository persists one-shot flags such as "reclassification done".
type MarkerRepository interface {
	// IsSet reports whether the named marker has been set.
	IsSet(ctx context.Context, name string) (bool, error)

	// Set sets the named marker. Idempotent.
	Set(ctx context.Context, name string) error
}
