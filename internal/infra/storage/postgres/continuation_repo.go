package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/recoverer/internal/infra/storage"
)

// ContinuationRepo implements storage.ContinuationRepository using
// PostgreSQL, making scheduled continuations survive process restarts.
type ContinuationRepo struct {
	db *DB
}

// NewContinuationRepo creates a new PostgreSQL continuation repository.
func NewContinuationRepo(db *DB) *ContinuationRepo {
	return &ContinuationRepo{db: db}
}

// Schedule persists a continuation for later delivery.
func (r *ContinuationRepo) Schedule(ctx context.Context, c *storage.Continuation) error {
	query := `
		INSERT INTO scheduled_continuations (id, kind, payload, due_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.Kind, c.Payload, c.DueAt); err != nil {
		return fmt.Errorf("failed to schedule continuation: %w", err)
	}
	return nil
}

// Due returns continuations due at or before now, oldest first.
func (r *ContinuationRepo) Due(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*storage.Continuation, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, payload, due_at
		FROM scheduled_continuations
		WHERE due_at <= $1
		ORDER BY due_at
		LIMIT %d
	`, limit)

	var rows []struct {
		ID      string    `db:"id"`
		Kind    string    `db:"kind"`
		Payload []byte    `db:"payload"`
		DueAt   time.Time `db:"due_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, fmt.Errorf("failed to load due continuations: %w", err)
	}

	due := make([]*storage.Continuation, 0, len(rows))
	for _, row := range rows {
		due = append(due, &storage.Continuation{
			ID:      row.ID,
			Kind:    row.Kind,
			Payload: row.Payload,
			DueAt:   row.DueAt,
		})
	}
	return due, nil
}

// Delete removes a delivered continuation.
func (r *ContinuationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_continuations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete continuation: %w", err)
	}
	return nil
}

// Count returns the scheduled backlog size.
func (r *ContinuationRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM scheduled_continuations`); err != nil {
		return 0, fmt.Errorf("failed to count continuations: %w", err)
	}
	return count, nil
}

// MarkerRepo implements storage.MarkerRepository using PostgreSQL.
type MarkerRepo struct {
	db *DB
}

// NewMarkerRepo creates a new PostgreSQL marker repository.
func NewMarkerRepo(db *DB) *MarkerRepo {
	return &MarkerRepo{db: db}
}

// IsSet reports whether the named marker has been set.
func (r *MarkerRepo) IsSet(ctx context.Context, name string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM markers WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("failed to check marker: %w", err)
	}
	return count > 0, nil
}

// Set sets the named marker. Idempotent.
func (r *MarkerRepo) Set(ctx context.Context, name string) error {
	query := `INSERT INTO markers (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to set marker: %w", err)
	}
	return nil
}
