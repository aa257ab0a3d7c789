package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/storage"
	"github.com/vietddude/recoverer/internal/infra/storage/memory"
)

type capturePublisher struct {
	mu     sync.Mutex
	kinds  []string
	events []any
}

func (p *capturePublisher) Publish(ctx context.Context, kind string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	p.events = append(p.events, payload)
	return nil
}

type testEnv struct {
	store     *memory.MemoryStorage
	ops       *memory.ArchiveOperationRepo
	batches   *memory.ArchiveBatchRepo
	records   *memory.FailureRecordRepo
	retries   *memory.BulkRetryRepo
	publisher *capturePublisher
}

func newTestEnv() *testEnv {
	store := memory.NewMemoryStorage()
	return &testEnv{
		store:     store,
		ops:       memory.NewArchiveOperationRepo(store),
		batches:   memory.NewArchiveBatchRepo(store),
		records:   memory.NewFailureRecordRepo(store),
		retries:   memory.NewBulkRetryRepo(store),
		publisher: &capturePublisher{},
	}
}

func (e *testEnv) orchestrator() *Orchestrator {
	return NewOrchestrator(e.ops, e.batches, e.records, e.retries, e.publisher)
}

func (e *testEnv) seedRecords(t *testing.T, n int, groupID string, failedAt time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		record := &domain.FailureRecord{
			ID:     fmt.Sprintf("%s-msg-%05d", groupID, i),
			Status: domain.StatusUnresolved,
			Attempts: []domain.ProcessingAttempt{{
				AttemptedAt: failedAt,
				Failure:     domain.FailureDetails{ExceptionType: "Boom", FailedAt: failedAt},
			}},
			Groups: []domain.FailureGroup{{ID: groupID, Type: "exception-type"}},
		}
		if err := e.records.Save(context.Background(), record); err != nil {
			t.Fatalf("seed record %d: %v", i, err)
		}
	}
}

func TestOrchestrator_ArchivesGroupCompletely(t *testing.T) {
	env := newTestEnv()
	cutoff := time.Now().UTC()
	env.seedRecords(t, 2500, "grp-a", cutoff.Add(-time.Hour))

	o := env.orchestrator()
	o.SetBatchSize(1000)

	err := o.HandleArchiveGroup(context.Background(), domain.ArchiveGroup{
		GroupID:    "grp-a",
		CutoffTime: cutoff,
	})
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	remaining, err := env.records.CountEligible(context.Background(), "grp-a", cutoff)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected every record archived, %d still eligible", remaining)
	}

	// Run state must be cleaned up once complete.
	if n, _ := env.ops.Count(context.Background()); n != 0 {
		t.Errorf("expected operation deleted, %d remain", n)
	}
	opID := domain.ArchiveOperationID("grp-a", domain.ArchiveFailureGroup)
	if _, err := env.batches.Get(context.Background(), opID, 0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected batches deleted, got %v", err)
	}

	if len(env.publisher.kinds) != 1 || env.publisher.kinds[0] != domain.KindGroupArchived {
		t.Fatalf("expected one GroupArchived event, got %v", env.publisher.kinds)
	}
	ev := env.publisher.events[0].(domain.GroupArchived)
	if ev.MessageCount != 2500 {
		t.Errorf("expected 2500 archived in event, got %d", ev.MessageCount)
	}
}

func TestOrchestrator_CutoffExcludesNewerFailures(t *testing.T) {
	env := newTestEnv()
	cutoff := time.Now().UTC()
	env.seedRecords(t, 3, "grp-a", cutoff.Add(-time.Hour))
	env.seedRecords(t, 2, "grp-b", cutoff.Add(time.Hour))

	o := env.orchestrator()
	if err := o.HandleArchiveTimeRange(context.Background(), cutoff); err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	newer, err := env.records.CountEligible(context.Background(), "grp-b", cutoff.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if newer != 2 {
		t.Errorf("records failing after the cutoff must survive, %d eligible", newer)
	}

	ev := env.publisher.events[0].(domain.GroupArchived)
	if ev.MessageCount != 3 {
		t.Errorf("expected 3 archived, got %d", ev.MessageCount)
	}
}

func TestOrchestrator_NothingEligibleIsNoOp(t *testing.T) {
	env := newTestEnv()

	o := env.orchestrator()
	err := o.HandleArchiveGroup(context.Background(), domain.ArchiveGroup{
		GroupID:    "grp-a",
		CutoffTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	if n, _ := env.ops.Count(context.Background()); n != 0 {
		t.Errorf("empty scope must not create an operation, %d exist", n)
	}
	if len(env.publisher.kinds) != 0 {
		t.Errorf("empty scope must not publish, got %v", env.publisher.kinds)
	}
}

func TestOrchestrator_RefusedWhileBulkRetryActive(t *testing.T) {
	env := newTestEnv()
	cutoff := time.Now().UTC()
	env.seedRecords(t, 10, "grp-a", cutoff.Add(-time.Hour))

	_, err := env.retries.Create(context.Background(), &domain.BulkRetryState{
		GroupID:   "grp-a",
		StartedAt: cutoff,
	})
	if err != nil {
		t.Fatalf("seed retry state: %v", err)
	}

	o := env.orchestrator()
	err = o.HandleArchiveGroup(context.Background(), domain.ArchiveGroup{
		GroupID:    "grp-a",
		CutoffTime: cutoff,
	})
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	if n, _ := env.records.CountEligible(context.Background(), "grp-a", cutoff); n != 10 {
		t.Errorf("archive must be refused during a bulk retry, %d eligible remain", n)
	}
	if n, _ := env.ops.Count(context.Background()); n != 0 {
		t.Errorf("refused archive must not create an operation, %d exist", n)
	}
}

func TestOrchestrator_EmptyBatchAdvances(t *testing.T) {
	env := newTestEnv()
	cutoff := time.Now().UTC()
	env.seedRecords(t, 2, "grp-a", cutoff.Add(-time.Hour))

	opID := domain.ArchiveOperationID("grp-a", domain.ArchiveFailureGroup)
	op := &domain.ArchiveOperation{
		ID:              opID,
		RequestID:       "req-1",
		ArchiveType:     domain.ArchiveFailureGroup,
		GroupID:         "grp-a",
		GroupName:       "grp-a",
		TotalMessages:   2,
		NumberOfBatches: 3,
		CutoffTime:      cutoff,
		StartedAt:       cutoff,
	}
	batches := []*domain.ArchiveBatch{
		{ID: domain.ArchiveBatchID(opID, 0), OperationID: opID, Index: 0},
		{ID: domain.ArchiveBatchID(opID, 1), OperationID: opID, Index: 1, DocumentIDs: []string{"grp-a-msg-00000"}},
		{ID: domain.ArchiveBatchID(opID, 2), OperationID: opID, Index: 2, DocumentIDs: []string{"grp-a-msg-00001"}},
	}
	if err := env.batches.CreateBatches(context.Background(), batches); err != nil {
		t.Fatalf("seed batches: %v", err)
	}
	if err := env.ops.Create(context.Background(), op); err != nil {
		t.Fatalf("seed operation: %v", err)
	}

	o := env.orchestrator()
	err := o.HandleArchiveGroup(context.Background(), domain.ArchiveGroup{
		GroupID:    "grp-a",
		CutoffTime: cutoff,
	})
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	if n, _ := env.ops.Count(context.Background()); n != 0 {
		t.Error("operation with a leading empty batch must still run to completion")
	}
	ev := env.publisher.events[0].(domain.GroupArchived)
	if ev.MessageCount != 2 {
		t.Errorf("expected 2 archived, got %d", ev.MessageCount)
	}
}

func TestOrchestrator_MissingBatchYieldsThenResumes(t *testing.T) {
	env := newTestEnv()
	cutoff := time.Now().UTC()
	env.seedRecords(t, 2, "grp-a", cutoff.Add(-time.Hour))

	opID := domain.ArchiveOperationID("grp-a", domain.ArchiveFailureGroup)
	op := &domain.ArchiveOperation{
		ID:              opID,
		RequestID:       "req-1",
		ArchiveType:     domain.ArchiveFailureGroup,
		GroupID:         "grp-a",
		GroupName:       "grp-a",
		TotalMessages:   2,
		NumberOfBatches: 2,
		CutoffTime:      cutoff,
		StartedAt:       cutoff,
	}
	first := []*domain.ArchiveBatch{
		{ID: domain.ArchiveBatchID(opID, 0), OperationID: opID, Index: 0, DocumentIDs: []string{"grp-a-msg-00000"}},
	}
	if err := env.batches.CreateBatches(context.Background(), first); err != nil {
		t.Fatalf("seed batches: %v", err)
	}
	if err := env.ops.Create(context.Background(), op); err != nil {
		t.Fatalf("seed operation: %v", err)
	}

	o := env.orchestrator()
	cmd := domain.ArchiveGroup{GroupID: "grp-a", CutoffTime: cutoff}

	// First trigger consumes batch 0 and yields at the missing batch 1.
	if err := o.HandleArchiveGroup(context.Background(), cmd); err != nil {
		t.Fatalf("first trigger failed: %v", err)
	}
	persisted, err := env.ops.Get(context.Background(), opID)
	if err != nil {
		t.Fatalf("operation must survive a yield: %v", err)
	}
	if persisted.CurrentBatch != 1 {
		t.Fatalf("expected progress persisted at batch 1, got %d", persisted.CurrentBatch)
	}
	if len(env.publisher.kinds) != 0 {
		t.Fatalf("yielded operation must not publish completion, got %v", env.publisher.kinds)
	}

	// The late batch lands; a second trigger resumes at the persisted index.
	second := []*domain.ArchiveBatch{
		{ID: domain.ArchiveBatchID(opID, 1), OperationID: opID, Index: 1, DocumentIDs: []string{"grp-a-msg-00001"}},
	}
	if err := env.batches.CreateBatches(context.Background(), second); err != nil {
		t.Fatalf("seed late batch: %v", err)
	}
	if err := o.HandleArchiveGroup(context.Background(), cmd); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	if n, _ := env.ops.Count(context.Background()); n != 0 {
		t.Error("resumed operation must complete and clean up")
	}
	ev := env.publisher.events[0].(domain.GroupArchived)
	if ev.MessageCount != 2 {
		t.Errorf("expected 2 archived across both triggers, got %d", ev.MessageCount)
	}
}

// conflictingOps forces a version conflict on the first Update to model a
// concurrent instance advancing the same operation.
type conflictingOps struct {
	storage.ArchiveOperationRepository
	conflicts int
}

func (r *conflictingOps) Update(ctx context.Context, op *domain.ArchiveOperation) error {
	if r.conflicts > 0 {
		r.conflicts--
		return storage.ErrVersionConflict
	}
	return r.ArchiveOperationRepository.Update(ctx, op)
}

func TestOrchestrator_ConcurrentProgressYields(t *testing.T) {
	env := newTestEnv()
	cutoff := time.Now().UTC()
	env.seedRecords(t, 5, "grp-a", cutoff.Add(-time.Hour))

	ops := &conflictingOps{ArchiveOperationRepository: env.ops, conflicts: 1}
	o := NewOrchestrator(ops, env.batches, env.records, env.retries, env.publisher)
	o.SetBatchSize(2)

	err := o.HandleArchiveGroup(context.Background(), domain.ArchiveGroup{
		GroupID:    "grp-a",
		CutoffTime: cutoff,
	})
	if err != nil {
		t.Fatalf("losing a progress race must not be an error: %v", err)
	}
	if len(env.publisher.kinds) != 0 {
		t.Errorf("yielded run must not publish completion, got %v", env.publisher.kinds)
	}
}
