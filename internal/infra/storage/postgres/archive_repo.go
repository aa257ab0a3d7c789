package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/storage"
)

// ArchiveOperationRepo implements storage.ArchiveOperationRepository using
// PostgreSQL.
type ArchiveOperationRepo struct {
	db *DB
}

// NewArchiveOperationRepo creates a new PostgreSQL archive operation
// repository.
func NewArchiveOperationRepo(db *DB) *ArchiveOperationRepo {
	return &ArchiveOperationRepo{db: db}
}

type archiveOpRow struct {
	ID               string    `db:"id"`
	RequestID        string    `db:"request_id"`
	ArchiveType      string    `db:"archive_type"`
	GroupID          string    `db:"group_id"`
	GroupName        string    `db:"group_name"`
	TotalMessages    int       `db:"total_messages"`
	MessagesArchived int       `db:"messages_archived"`
	NumberOfBatches  int       `db:"number_of_batches"`
	CurrentBatch     int       `db:"current_batch"`
	CutoffTime       time.Time `db:"cutoff_time"`
	StartedAt        time.Time `db:"started_at"`
	Version          int64     `db:"version"`
}

func (row *archiveOpRow) toDomain() *domain.ArchiveOperation {
	return &domain.ArchiveOperation{
		ID:               row.ID,
		RequestID:        row.RequestID,
		ArchiveType:      domain.ArchiveType(row.ArchiveType),
		GroupID:          row.GroupID,
		GroupName:        row.GroupName,
		TotalMessages:    row.TotalMessages,
		MessagesArchived: row.MessagesArchived,
		NumberOfBatches:  row.NumberOfBatches,
		CurrentBatch:     row.CurrentBatch,
		CutoffTime:       row.CutoffTime,
		StartedAt:        row.StartedAt,
		Version:          row.Version,
	}
}

// Get retrieves an operation by id.
func (r *ArchiveOperationRepo) Get(ctx context.Context, id string) (*domain.ArchiveOperation, error) {
	query := `
		SELECT id, request_id, archive_type, group_id, group_name, total_messages,
		       messages_archived, number_of_batches, current_batch, cutoff_time,
		       started_at, version
		FROM archive_operations
		WHERE id = $1
	`
	var row archiveOpRow
	err := r.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load archive operation: %w", err)
	}
	return row.toDomain(), nil
}

// Create persists a new operation; losing the create race yields
// ErrVersionConflict.
func (r *ArchiveOperationRepo) Create(ctx context.Context, op *domain.ArchiveOperation) error {
	query := `
		INSERT INTO archive_operations
			(id, request_id, archive_type, group_id, group_name, total_messages,
			 messages_archived, number_of_batches, current_batch, cutoff_time,
			 started_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		op.ID, op.RequestID, string(op.ArchiveType), op.GroupID, op.GroupName,
		op.TotalMessages, op.MessagesArchived, op.NumberOfBatches,
		op.CurrentBatch, op.CutoffTime, op.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create archive operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrVersionConflict
	}
	op.Version = 1
	return nil
}

// Update persists progress under optimistic concurrency.
func (r *ArchiveOperationRepo) Update(ctx context.Context, op *domain.ArchiveOperation) error {
	query := `
		UPDATE archive_operations
		SET messages_archived = $2, current_batch = $3, version = version + 1
		WHERE id = $1 AND version = $4
	`
	res, err := r.db.ExecContext(ctx, query,
		op.ID, op.MessagesArchived, op.CurrentBatch, op.Version)
	if err != nil {
		return fmt.Errorf("failed to update archive operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrVersionConflict
	}
	op.Version++
	return nil
}

// Delete removes a completed operation.
func (r *ArchiveOperationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM archive_operations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete archive operation: %w", err)
	}
	return nil
}

// Count returns the number of in-flight operations.
func (r *ArchiveOperationRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM archive_operations`); err != nil {
		return 0, fmt.Errorf("failed to count archive operations: %w", err)
	}
	return count, nil
}

// ArchiveBatchRepo implements storage.ArchiveBatchRepository using
// PostgreSQL.
type ArchiveBatchRepo struct {
	db *DB
}

// NewArchiveBatchRepo creates a new PostgreSQL archive batch repository.
func NewArchiveBatchRepo(db *DB) *ArchiveBatchRepo {
	return &ArchiveBatchRepo{db: db}
}

// CreateBatches persists every batch of a split inside one transaction.
// Batches already present are left untouched, so a replayed split is
// harmless.
func (r *ArchiveBatchRepo) CreateBatches(ctx context.Context, batches []*domain.ArchiveBatch) error {
	return r.db.withTx(ctx, func(tx txRunner) error {
		query := `
			INSERT INTO archive_batches (id, operation_id, batch_index, document_ids)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`
		for _, b := range batches {
			if _, err := tx.ExecContext(ctx, query,
				b.ID, b.OperationID, b.Index, pq.Array(b.DocumentIDs)); err != nil {
				return fmt.Errorf("failed to insert batch %d: %w", b.Index, err)
			}
		}
		return nil
	})
}

// Get retrieves one batch by operation id and index.
func (r *ArchiveBatchRepo) Get(
	ctx context.Context,
	operationID string,
	index int,
) (*domain.ArchiveBatch, error) {
	query := `
		SELECT id, operation_id, batch_index, document_ids
		FROM archive_batches
		WHERE operation_id = $1 AND batch_index = $2
	`
	var row struct {
		ID          string         `db:"id"`
		OperationID string         `db:"operation_id"`
		BatchIndex  int            `db:"batch_index"`
		DocumentIDs pq.StringArray `db:"document_ids"`
	}
	err := r.db.GetContext(ctx, &row, query, operationID, index)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load archive batch: %w", err)
	}
	return &domain.ArchiveBatch{
		ID:          row.ID,
		OperationID: row.OperationID,
		Index:       row.BatchIndex,
		DocumentIDs: row.DocumentIDs,
	}, nil
}

// DeleteForOperation removes every batch of a completed operation.
func (r *ArchiveBatchRepo) DeleteForOperation(ctx context.Context, operationID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM archive_batches WHERE operation_id = $1`, operationID)
	if err != nil {
		return fmt.Errorf("failed to delete archive batches: %w", err)
	}
	return nil
}
