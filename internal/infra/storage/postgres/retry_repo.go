package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/storage"
)

// BulkRetryRepo implements storage.BulkRetryRepository using PostgreSQL. The
// group-id primary key makes Create mutually exclusive: only one run per
// group can be in flight.
type BulkRetryRepo struct {
	db *DB
}

// NewBulkRetryRepo creates a new PostgreSQL bulk retry repository.
func NewBulkRetryRepo(db *DB) *BulkRetryRepo {
	return &BulkRetryRepo{db: db}
}

type bulkRetryRow struct {
	GroupID              string    `db:"group_id"`
	StartedAt            time.Time `db:"started_at"`
	UpdatesWithoutChange int       `db:"updates_without_change"`
	Version              int64     `db:"version"`
}

// Create persists a new run state. Returns false when a run already exists.
func (r *BulkRetryRepo) Create(ctx context.Context, state *domain.BulkRetryState) (bool, error) {
	query := `
		INSERT INTO bulk_retries (group_id, started_at, updates_without_change, version)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (group_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		state.GroupID, state.StartedAt, state.UpdatesWithoutChange)
	if err != nil {
		return false, fmt.Errorf("failed to create retry state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	state.Version = 1
	return true, nil
}

// Get retrieves the active run for a group, or nil when none.
func (r *BulkRetryRepo) Get(ctx context.Context, groupID string) (*domain.BulkRetryState, error) {
	query := `
		SELECT group_id, started_at, updates_without_change, version
		FROM bulk_retries
		WHERE group_id = $1
	`
	var row bulkRetryRow
	err := r.db.GetContext(ctx, &row, query, groupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load retry state: %w", err)
	}
	return &domain.BulkRetryState{
		GroupID:              row.GroupID,
		StartedAt:            row.StartedAt,
		UpdatesWithoutChange: row.UpdatesWithoutChange,
		Version:              row.Version,
	}, nil
}

// Update persists the stall counter under optimistic concurrency.
func (r *BulkRetryRepo) Update(ctx context.Context, state *domain.BulkRetryState) error {
	query := `
		UPDATE bulk_retries
		SET updates_without_change = $2, version = version + 1
		WHERE group_id = $1 AND version = $3
	`
	res, err := r.db.ExecContext(ctx, query,
		state.GroupID, state.UpdatesWithoutChange, state.Version)
	if err != nil {
		return fmt.Errorf("failed to update retry state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrVersionConflict
	}
	state.Version++
	return nil
}

// Delete clears a terminated run.
func (r *BulkRetryRepo) Delete(ctx context.Context, groupID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bulk_retries WHERE group_id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete retry state: %w", err)
	}
	return nil
}

// Count returns the number of active runs.
func (r *BulkRetryRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM bulk_retries`); err != nil {
		return 0, fmt.Errorf("failed to count retry states: %w", err)
	}
	return count, nil
}
