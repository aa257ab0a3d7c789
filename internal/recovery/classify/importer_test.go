package classify

import (
	"context"
	"sync"
	"testing"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/storage/memory"
	"github.com/vietddude/recoverer/internal/recovery/groups"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturePublisher) Publish(ctx context.Context, kind string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, kind)
	return nil
}

func TestImporter_ClassifiesAndAnnounces(t *testing.T) {
	store := memory.NewMemoryStorage()
	records := memory.NewFailureRecordRepo(store)
	pub := &capturePublisher{}
	importer := NewImporter(records, DefaultPipeline(), groups.NewRegistry(pub, nil))

	record := testRecord("TimeoutException", "OrderPlaced", "")
	if err := records.Save(context.Background(), record); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err := importer.HandleImport(context.Background(), domain.ImportFailedMessage{
		UniqueMessageID: record.ID,
	})
	if err != nil {
		t.Fatalf("HandleImport failed: %v", err)
	}

	stored, err := records.Load(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(stored.Groups) != 2 {
		t.Errorf("expected 2 persisted memberships, got %d", len(stored.Groups))
	}
	if len(pub.events) != 2 {
		t.Errorf("expected 2 group announcements, got %d", len(pub.events))
	}
	for _, kind := range pub.events {
		if kind != domain.KindNewFailureGroupDetected {
			t.Errorf("unexpected event kind %q", kind)
		}
	}
}

func TestImporter_MissingRecordIsNoOp(t *testing.T) {
	store := memory.NewMemoryStorage()
	records := memory.NewFailureRecordRepo(store)
	pub := &capturePublisher{}
	importer := NewImporter(records, DefaultPipeline(), groups.NewRegistry(pub, nil))

	err := importer.HandleImport(context.Background(), domain.ImportFailedMessage{
		UniqueMessageID: "no-such-message",
	})
	if err != nil {
		t.Fatalf("expected missing record to be tolerated, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("expected no announcements, got %d", len(pub.events))
	}
}

func TestImporter_SecondImportAnnouncesNothing(t *testing.T) {
	store := memory.NewMemoryStorage()
	records := memory.NewFailureRecordRepo(store)
	pub := &capturePublisher{}
	importer := NewImporter(records, DefaultPipeline(), groups.NewRegistry(pub, nil))

	record := testRecord("TimeoutException", "OrderPlaced", "")
	if err := records.Save(context.Background(), record); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	cmd := domain.ImportFailedMessage{UniqueMessageID: record.ID}
	if err := importer.HandleImport(context.Background(), cmd); err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	if err := importer.HandleImport(context.Background(), cmd); err != nil {
		t.Fatalf("second import failed: %v", err)
	}

	if len(pub.events) != 2 {
		t.Errorf("expected announcements only from the first import, got %d", len(pub.events))
	}
}
