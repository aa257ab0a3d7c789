package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/storage/memory"
)

func seedRecord(t *testing.T, records *memory.FailureRecordRepo, id string, status domain.FailureStatus) {
	t.Helper()
	record := &domain.FailureRecord{
		ID:     id,
		Status: status,
		Attempts: []domain.ProcessingAttempt{{
			AttemptedAt: time.Now(),
			Failure:     domain.FailureDetails{ExceptionType: "Boom", FailedAt: time.Now()},
		}},
	}
	if err := records.Save(context.Background(), record); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestIssuer_IssuesRetryAndFlagsRecord(t *testing.T) {
	store := memory.NewMemoryStorage()
	records := memory.NewFailureRecordRepo(store)
	bus := &captureBus{}
	issuer := NewIssuer(records, bus, bus)
	seedRecord(t, records, "m1", domain.StatusUnresolved)

	err := issuer.HandleRetryMessages(context.Background(), domain.RetryMessagesByID{
		MessageIDs: []string{"m1"},
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if len(bus.sent) != 1 || bus.sent[0] != "m1" {
		t.Errorf("expected one retry command for m1, got %v", bus.sent)
	}
	stored, err := records.Load(context.Background(), "m1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if stored.Status != domain.StatusRetryIssued {
		t.Errorf("expected status retry_issued, got %s", stored.Status)
	}
}

func TestIssuer_UnknownMessageFails(t *testing.T) {
	store := memory.NewMemoryStorage()
	records := memory.NewFailureRecordRepo(store)
	bus := &captureBus{}
	issuer := NewIssuer(records, bus, bus)

	err := issuer.HandleRetryMessages(context.Background(), domain.RetryMessagesByID{
		MessageIDs: []string{"ghost"},
	})
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if len(bus.sent) != 0 {
		t.Errorf("no retry may be issued for an unknown id, got %v", bus.sent)
	}
}

func TestIssuer_SkipsTerminalRecords(t *testing.T) {
	store := memory.NewMemoryStorage()
	records := memory.NewFailureRecordRepo(store)
	bus := &captureBus{}
	issuer := NewIssuer(records, bus, bus)
	seedRecord(t, records, "resolved", domain.StatusResolved)
	seedRecord(t, records, "archived", domain.StatusArchived)
	seedRecord(t, records, "live", domain.StatusUnresolved)

	err := issuer.HandleRetryMessages(context.Background(), domain.RetryMessagesByID{
		MessageIDs: []string{"resolved", "archived", "live"},
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if len(bus.sent) != 1 || bus.sent[0] != "live" {
		t.Errorf("only the live record may be retried, got %v", bus.sent)
	}
}
