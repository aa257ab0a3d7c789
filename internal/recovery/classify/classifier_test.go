package classify

import (
	"testing"
	"time"

	"github.com/vietddude/recoverer/internal/core/domain"
)

func testRecord(exceptionType, messageType, endpoint string) *domain.FailureRecord {
	return &domain.FailureRecord{
		ID:     "msg-1",
		Status: domain.StatusUnresolved,
		Attempts: []domain.ProcessingAttempt{{
			MessageType: messageType,
			Endpoint:    endpoint,
			AttemptedAt: time.Now(),
			Failure: domain.FailureDetails{
				ExceptionType: exceptionType,
				Message:       "boom",
				FailedAt:      time.Now(),
			},
		}},
	}
}

func TestPipeline_AssignsAllMatchingGroups(t *testing.T) {
	record := testRecord("TimeoutException", "OrderPlaced", "http://billing/process")

	changed := DefaultPipeline().Classify(record)

	if len(changed) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(changed))
	}
	if len(record.Groups) != 3 {
		t.Fatalf("expected 3 memberships on record, got %d", len(record.Groups))
	}
	types := map[string]bool{}
	for _, g := range record.Groups {
		types[g.Type] = true
	}
	for _, want := range []string{"exception-type", "message-type", "failed-endpoint"} {
		if !types[want] {
			t.Errorf("missing group of type %q", want)
		}
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	record := testRecord("TimeoutException", "OrderPlaced", "")
	pipeline := DefaultPipeline()

	first := pipeline.Classify(record)
	second := pipeline.Classify(record)

	if len(first) != 2 {
		t.Fatalf("expected 2 groups on first run, got %d", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second run changed %d groups, want 0", len(second))
	}
	if len(record.Groups) != 2 {
		t.Errorf("memberships duplicated: %d", len(record.Groups))
	}
}

func TestPipeline_SkipsEmptyFields(t *testing.T) {
	record := testRecord("", "", "")

	changed := DefaultPipeline().Classify(record)

	if len(changed) != 0 {
		t.Errorf("expected no groups for empty attempt fields, got %d", len(changed))
	}
}

func TestPipeline_NoAttempts(t *testing.T) {
	record := &domain.FailureRecord{ID: "msg-1", Status: domain.StatusUnresolved}

	if changed := DefaultPipeline().Classify(record); changed != nil {
		t.Errorf("expected nil for record without attempts, got %v", changed)
	}
}

func TestPipeline_FillsEmptyTitle(t *testing.T) {
	record := testRecord("TimeoutException", "", "")
	id := GroupID("exception-type", "TimeoutException")
	record.Groups = []domain.FailureGroup{{ID: id, Title: "", Type: "exception-type"}}

	changed := DefaultPipeline().Classify(record)

	if len(changed) != 1 {
		t.Fatalf("expected the retitled group to be reported, got %d", len(changed))
	}
	if record.Groups[0].Title != "TimeoutException" {
		t.Errorf("empty title not filled, got %q", record.Groups[0].Title)
	}
}
