package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/storage"
)

// MemoryStorage keeps every repository in process memory with the same
// version-token semantics as the PostgreSQL backend. Used for tests and for
// running without a database URL.
type MemoryStorage struct {
	mu            sync.RWMutex
	records       map[string]*domain.FailureRecord
	operations    map[string]*domain.ArchiveOperation
	batches       map[string]*domain.ArchiveBatch
	retries       map[string]*domain.BulkRetryState
	continuations map[string]*storage.Continuation
	markers       map[string]bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records:       make(map[string]*domain.FailureRecord),
		operations:    make(map[string]*domain.ArchiveOperation),
		batches:       make(map[string]*domain.ArchiveBatch),
		retries:       make(map[string]*domain.BulkRetryState),
		continuations: make(map[string]*storage.Continuation),
		markers:       make(map[string]bool),
	}
}

func cloneRecord(r *domain.FailureRecord) *domain.FailureRecord {
	c := *r
	c.Attempts = append([]domain.ProcessingAttempt(nil), r.Attempts...)
	c.Groups = append([]domain.FailureGroup(nil), r.Groups...)
	return &c
}

// -----------------------------------------------------------------------------
// Failure Record Repository
// -----------------------------------------------------------------------------

type FailureRecordRepo struct {
	store *MemoryStorage
}

func NewFailureRecordRepo(store *MemoryStorage) *FailureRecordRepo {
	return &FailureRecordRepo{store: store}
}

func (r *FailureRecordRepo) Load(ctx context.Context, id string) (*domain.FailureRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r *FailureRecordRepo) Save(ctx context.Context, record *domain.FailureRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.records[record.ID]
	if ok && existing.Version != record.Version {
		return storage.ErrVersionConflict
	}
	stored := cloneRecord(record)
	stored.Version++
	r.store.records[record.ID] = stored
	record.Version = stored.Version
	return nil
}

func (r *FailureRecordRepo) PatchGroups(
	ctx context.Context,
	id string,
	groups []domain.FailureGroup,
	expectedVersion int64,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	if rec.Version != expectedVersion {
		return storage.ErrVersionConflict
	}
	rec.Groups = append([]domain.FailureGroup(nil), groups...)
	rec.Version++
	return nil
}

func (r *FailureRecordRepo) eligible(groupID string, cutoff time.Time) []string {
	var ids []string
	for id, rec := range r.store.records {
		if rec.Status != domain.StatusUnresolved {
			continue
		}
		if groupID != "" && !rec.HasGroup(groupID) {
			continue
		}
		if rec.LastFailureAt().After(cutoff) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *FailureRecordRepo) CountEligible(
	ctx context.Context,
	groupID string,
	cutoff time.Time,
) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.eligible(groupID, cutoff)), nil
}

func (r *FailureRecordRepo) EligibleIDs(
	ctx context.Context,
	groupID string,
	cutoff time.Time,
	offset, limit int,
) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ids := r.eligible(groupID, cutoff)
	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return append([]string(nil), ids[offset:end]...), nil
}

func (r *FailureRecordRepo) QueryRetryable(
	ctx context.Context,
	groupID string,
	before time.Time,
	limit int,
) (storage.RetryablePage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ids := r.eligible(groupID, before)
	page := ids
	if len(page) > limit {
		page = page[:limit]
	}
	return storage.RetryablePage{
		MessageIDs: append([]string(nil), page...),
		Total:      len(ids),
	}, nil
}

func (r *FailureRecordRepo) MarkRetryIssued(ctx context.Context, ids []string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, id := range ids {
		if rec, ok := r.store.records[id]; ok {
			rec.MarkRetryIssued()
			rec.Version++
		}
	}
	return nil
}

func (r *FailureRecordRepo) MarkArchived(ctx context.Context, ids []string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	archived := 0
	for _, id := range ids {
		rec, ok := r.store.records[id]
		if !ok || rec.Status == domain.StatusArchived {
			continue
		}
		rec.MarkArchived()
		rec.Version++
		archived++
	}
	return archived, nil
}

func (r *FailureRecordRepo) UnresolvedPage(
	ctx context.Context,
	afterID string,
	limit int,
) ([]*domain.FailureRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var ids []string
	for id, rec := range r.store.records {
		if rec.Status == domain.StatusUnresolved && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	page := make([]*domain.FailureRecord, 0, len(ids))
	for _, id := range ids {
		page = append(page, cloneRecord(r.store.records[id]))
	}
	return page, nil
}

// -----------------------------------------------------------------------------
// Archive Operation Repository
// -----------------------------------------------------------------------------

type ArchiveOperationRepo struct {
	store *MemoryStorage
}

func NewArchiveOperationRepo(store *MemoryStorage) *ArchiveOperationRepo {
	return &ArchiveOperationRepo{store: store}
}

func (r *ArchiveOperationRepo) Get(ctx context.Context, id string) (*domain.ArchiveOperation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	op, ok := r.store.operations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *op
	return &c, nil
}

func (r *ArchiveOperationRepo) Create(ctx context.Context, op *domain.ArchiveOperation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.operations[op.ID]; ok {
		return storage.ErrVersionConflict
	}
	c := *op
	c.Version = 1
	r.store.operations[op.ID] = &c
	op.Version = 1
	return nil
}

func (r *ArchiveOperationRepo) Update(ctx context.Context, op *domain.ArchiveOperation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.operations[op.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if existing.Version != op.Version {
		return storage.ErrVersionConflict
	}
	c := *op
	c.Version++
	r.store.operations[op.ID] = &c
	op.Version = c.Version
	return nil
}

func (r *ArchiveOperationRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.operations, id)
	return nil
}

func (r *ArchiveOperationRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.operations), nil
}

// -----------------------------------------------------------------------------
// Archive Batch Repository
// -----------------------------------------------------------------------------

type ArchiveBatchRepo struct {
	store *MemoryStorage
}

func NewArchiveBatchRepo(store *MemoryStorage) *ArchiveBatchRepo {
	return &ArchiveBatchRepo{store: store}
}

func (r *ArchiveBatchRepo) CreateBatches(ctx context.Context, batches []*domain.ArchiveBatch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, b := range batches {
		if _, ok := r.store.batches[b.ID]; ok {
			continue
		}
		c := *b
		c.DocumentIDs = append([]string(nil), b.DocumentIDs...)
		r.store.batches[b.ID] = &c
	}
	return nil
}

func (r *ArchiveBatchRepo) Get(
	ctx context.Context,
	operationID string,
	index int,
) (*domain.ArchiveBatch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.batches[domain.ArchiveBatchID(operationID, index)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *b
	c.DocumentIDs = append([]string(nil), b.DocumentIDs...)
	return &c, nil
}

func (r *ArchiveBatchRepo) DeleteForOperation(ctx context.Context, operationID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, b := range r.store.batches {
		if b.OperationID == operationID {
			delete(r.store.batches, id)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Bulk Retry Repository
// -----------------------------------------------------------------------------

type BulkRetryRepo struct {
	store *MemoryStorage
}

func NewBulkRetryRepo(store *MemoryStorage) *BulkRetryRepo {
	return &BulkRetryRepo{store: store}
}

func (r *BulkRetryRepo) Create(ctx context.Context, state *domain.BulkRetryState) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.retries[state.GroupID]; ok {
		return false, nil
	}
	c := *state
	c.Version = 1
	r.store.retries[state.GroupID] = &c
	state.Version = 1
	return true, nil
}

func (r *BulkRetryRepo) Get(ctx context.Context, groupID string) (*domain.BulkRetryState, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	st, ok := r.store.retries[groupID]
	if !ok {
		return nil, nil
	}
	c := *st
	return &c, nil
}

func (r *BulkRetryRepo) Update(ctx context.Context, state *domain.BulkRetryState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.retries[state.GroupID]
	if !ok {
		return storage.ErrNotFound
	}
	if existing.Version != state.Version {
		return storage.ErrVersionConflict
	}
	c := *state
	c.Version++
	r.store.retries[state.GroupID] = &c
	state.Version = c.Version
	return nil
}

func (r *BulkRetryRepo) Delete(ctx context.Context, groupID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.retries, groupID)
	return nil
}

func (r *BulkRetryRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.retries), nil
}

// -----------------------------------------------------------------------------
// Continuation Repository
// -----------------------------------------------------------------------------

type ContinuationRepo struct {
	store *MemoryStorage
}

func NewContinuationRepo(store *MemoryStorage) *ContinuationRepo {
	return &ContinuationRepo{store: store}
}

func (r *ContinuationRepo) Schedule(ctx context.Context, c *storage.Continuation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *c
	cp.Payload = append([]byte(nil), c.Payload...)
	r.store.continuations[c.ID] = &cp
	return nil
}

func (r *ContinuationRepo) Due(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*storage.Continuation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var due []*storage.Continuation
	for _, c := range r.store.continuations {
		if !c.DueAt.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *ContinuationRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.continuations, id)
	return nil
}

func (r *ContinuationRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.continuations), nil
}

// -----------------------------------------------------------------------------
// Marker Repository
// -----------------------------------------------------------------------------

type MarkerRepo struct {
	store *MemoryStorage
}

func NewMarkerRepo(store *MemoryStorage) *MarkerRepo {
	return &MarkerRepo{store: store}
}

func (r *MarkerRepo) IsSet(ctx context.Context, name string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.markers[name], nil
}

func (r *MarkerRepo) Set(ctx context.Context, name string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.markers[name] = true
	return nil
}
