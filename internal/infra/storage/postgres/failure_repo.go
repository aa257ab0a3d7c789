package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/storage"
	"github.com/vietddude/recoverer/internal/recovery/metrics"
)

// FailureRecordRepo implements storage.FailureRecordRepository using
// PostgreSQL. Group membership lives in a JSONB column indexed for
// containment, so group scoping is a @> predicate.
type FailureRecordRepo struct {
	db *DB
}

// NewFailureRecordRepo creates a new PostgreSQL failure record repository.
func NewFailureRecordRepo(db *DB) *FailureRecordRepo {
	return &FailureRecordRepo{db: db}
}

type failureRow struct {
	ID            string    `db:"id"`
	Status        string    `db:"status"`
	Attempts      []byte    `db:"attempts"`
	FailureGroups []byte    `db:"failure_groups"`
	LastFailureAt time.Time `db:"last_failure_at"`
	Version       int64     `db:"version"`
}

func (row *failureRow) toDomain() (*domain.FailureRecord, error) {
	rec := &domain.FailureRecord{
		ID:      row.ID,
		Status:  domain.FailureStatus(row.Status),
		Version: row.Version,
	}
	if err := json.Unmarshal(row.Attempts, &rec.Attempts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attempts: %w", err)
	}
	if err := json.Unmarshal(row.FailureGroups, &rec.Groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal groups: %w", err)
	}
	return rec, nil
}

// groupMatch builds the JSONB containment parameter for a group id.
func groupMatch(groupID string) (string, error) {
	b, err := json.Marshal([]map[string]string{{"id": groupID}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal group predicate: %w", err)
	}
	return string(b), nil
}

// Load retrieves a failure record by unique message id.
func (r *FailureRecordRepo) Load(ctx context.Context, id string) (*domain.FailureRecord, error) {
	query := `
		SELECT id, status, attempts, failure_groups, last_failure_at, version
		FROM failure_records
		WHERE id = $1
	`
	var row failureRow
	err := r.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load failure record: %w", err)
	}
	return row.toDomain()
}

// Save persists a record under optimistic concurrency.
func (r *FailureRecordRepo) Save(ctx context.Context, record *domain.FailureRecord) error {
	attempts, err := json.Marshal(record.Attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}
	groups, err := json.Marshal(record.Groups)
	if err != nil {
		return fmt.Errorf("failed to marshal groups: %w", err)
	}
	lastFailure := record.LastFailureAt()
	if lastFailure.IsZero() {
		lastFailure = time.Unix(0, 0).UTC()
	}

	if record.Version == 0 {
		query := `
			INSERT INTO failure_records (id, status, attempts, failure_groups, last_failure_at, version)
			VALUES ($1, $2, $3, $4, $5, 1)
			ON CONFLICT (id) DO NOTHING
		`
		res, err := r.db.ExecContext(ctx, query,
			record.ID, string(record.Status), attempts, groups, lastFailure)
		if err != nil {
			return fmt.Errorf("failed to insert failure record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.ErrVersionConflict
		}
		record.Version = 1
		return nil
	}

	query := `
		UPDATE failure_records
		SET status = $2, attempts = $3, failure_groups = $4, last_failure_at = $5,
		    version = version + 1
		WHERE id = $1 AND version = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		record.ID, string(record.Status), attempts, groups, lastFailure, record.Version)
	if err != nil {
		return fmt.Errorf("failed to update failure record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrVersionConflict
	}
	record.Version++
	return nil
}

// PatchGroups replaces only the group membership field, conflict detecting
// against the version the caller read. Narrower than Save: the contention
// window covers a single field.
func (r *FailureRecordRepo) PatchGroups(
	ctx context.Context,
	id string,
	groups []domain.FailureGroup,
	expectedVersion int64,
) error {
	body, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("failed to marshal groups: %w", err)
	}
	query := `
		UPDATE failure_records
		SET failure_groups = $2, version = version + 1
		WHERE id = $1 AND version = $3
	`
	res, err := r.db.ExecContext(ctx, query, id, body, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to patch groups: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

func eligibleWhere(groupID string) (string, []interface{}, error) {
	where := `status = 'unresolved' AND last_failure_at <= $1`
	args := []interface{}{}
	if groupID != "" {
		match, err := groupMatch(groupID)
		if err != nil {
			return "", nil, err
		}
		where += ` AND failure_groups @> $2`
		args = append(args, match)
	}
	return where, args, nil
}

// CountEligible counts unresolved messages in scope that failed at or before
// the cutoff.
func (r *FailureRecordRepo) CountEligible(
	ctx context.Context,
	groupID string,
	cutoff time.Time,
) (int, error) {
	where, extra, err := eligibleWhere(groupID)
	if err != nil {
		return 0, err
	}
	query := `SELECT COUNT(*) FROM failure_records WHERE ` + where
	args := append([]interface{}{cutoff}, extra...)

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count eligible messages: %w", err)
	}
	return count, nil
}

// EligibleIDs pages through eligible message ids in stable id order.
func (r *FailureRecordRepo) EligibleIDs(
	ctx context.Context,
	groupID string,
	cutoff time.Time,
	offset, limit int,
) ([]string, error) {
	where, extra, err := eligibleWhere(groupID)
	if err != nil {
		return nil, err
	}
	args := append([]interface{}{cutoff}, extra...)
	query := fmt.Sprintf(`
		SELECT id FROM failure_records
		WHERE %s
		ORDER BY id
		OFFSET %d LIMIT %d
	`, where, offset, limit)

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to page eligible messages: %w", err)
	}
	return ids, nil
}

// QueryRetryable returns one page of retryable ids plus the total remaining
// count, both from the same transaction so they describe one snapshot.
func (r *FailureRecordRepo) QueryRetryable(
	ctx context.Context,
	groupID string,
	before time.Time,
	limit int,
) (storage.RetryablePage, error) {
	where, extra, err := eligibleWhere(groupID)
	if err != nil {
		return storage.RetryablePage{}, err
	}
	args := append([]interface{}{before}, extra...)

	var page storage.RetryablePage
	err = r.db.withTx(ctx, func(tx txRunner) error {
		countQuery := `SELECT COUNT(*) FROM failure_records WHERE ` + where
		if err := tx.GetContext(ctx, &page.Total, countQuery, args...); err != nil {
			return fmt.Errorf("failed to count retryable messages: %w", err)
		}

		pageQuery := fmt.Sprintf(`
			SELECT id FROM failure_records
			WHERE %s
			ORDER BY last_failure_at, id
			LIMIT %d
		`, where, limit)
		if err := tx.SelectContext(ctx, &page.MessageIDs, pageQuery, args...); err != nil {
			return fmt.Errorf("failed to page retryable messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.RetryablePage{}, err
	}
	return page, nil
}

// MarkRetryIssued flips unresolved records to retry-issued.
func (r *FailureRecordRepo) MarkRetryIssued(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE failure_records
		SET status = 'retry_issued', version = version + 1
		WHERE id = ANY($1) AND status = 'unresolved'
	`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to mark retries issued: %w", err)
	}
	return nil
}

// MarkArchived marks records archived in one transaction and returns the
// number of live records actually archived.
func (r *FailureRecordRepo) MarkArchived(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	metrics.DBBatchSize.WithLabelValues("mark_archived").Observe(float64(len(ids)))

	var archived int64
	err := r.db.withTx(ctx, func(tx txRunner) error {
		query := `
			UPDATE failure_records
			SET status = 'archived', version = version + 1
			WHERE id = ANY($1) AND status <> 'archived'
		`
		res, err := tx.ExecContext(ctx, query, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("failed to mark archived: %w", err)
		}
		archived, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(archived), nil
}

// UnresolvedPage returns unresolved records ordered by id, after afterID.
func (r *FailureRecordRepo) UnresolvedPage(
	ctx context.Context,
	afterID string,
	limit int,
) ([]*domain.FailureRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, status, attempts, failure_groups, last_failure_at, version
		FROM failure_records
		WHERE status = 'unresolved' AND id > $1
		ORDER BY id
		LIMIT %d
	`, limit)

	var rows []failureRow
	if err := r.db.SelectContext(ctx, &rows, query, afterID); err != nil {
		return nil, fmt.Errorf("failed to page unresolved records: %w", err)
	}

	records := make([]*domain.FailureRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
