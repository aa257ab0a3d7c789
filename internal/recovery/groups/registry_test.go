package groups

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vietddude/recoverer/internal/core/domain"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.NewFailureGroupDetected
}

func (p *capturePublisher) Publish(ctx context.Context, kind string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := payload.(domain.NewFailureGroupDetected); ok {
		p.events = append(p.events, ev)
	}
	return nil
}

type fakeSharedSet struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (s *fakeSharedSet) Register(ctx context.Context, groupID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[groupID] {
		return false, nil
	}
	s.seen[groupID] = true
	return true, nil
}

func TestRegistry_AnnouncesFirstSightingOnce(t *testing.T) {
	pub := &capturePublisher{}
	registry := NewRegistry(pub, nil)
	group := domain.FailureGroup{ID: "exception_type.abc", Title: "TimeoutException", Type: "exception-type"}

	for i := 0; i < 3; i++ {
		if err := registry.Announce(context.Background(), group); err != nil {
			t.Fatalf("announce %d failed: %v", i, err)
		}
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected exactly one announcement, got %d", len(pub.events))
	}
	if pub.events[0].GroupID != group.ID || pub.events[0].GroupName != group.Title {
		t.Errorf("unexpected event %+v", pub.events[0])
	}
}

func TestRegistry_SharedSetSuppressesCrossInstanceDuplicate(t *testing.T) {
	shared := &fakeSharedSet{seen: map[string]bool{"exception_type.abc": true}}
	pub := &capturePublisher{}
	registry := NewRegistry(pub, shared)

	err := registry.Announce(context.Background(), domain.FailureGroup{ID: "exception_type.abc"})
	if err != nil {
		t.Fatalf("announce failed: %v", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("group known to another instance should not announce, got %d events", len(pub.events))
	}
}

func TestRegistry_SharedSetFailureDegradesToLocal(t *testing.T) {
	shared := &fakeSharedSet{err: errors.New("connection refused")}
	pub := &capturePublisher{}
	registry := NewRegistry(pub, shared)

	err := registry.Announce(context.Background(), domain.FailureGroup{ID: "exception_type.abc"})
	if err != nil {
		t.Fatalf("announce failed: %v", err)
	}
	if len(pub.events) != 1 {
		t.Errorf("unavailable shared set should still announce, got %d events", len(pub.events))
	}
}

func TestRegistry_ConcurrentAnnouncesDeduplicate(t *testing.T) {
	pub := &capturePublisher{}
	registry := NewRegistry(pub, &fakeSharedSet{})
	group := domain.FailureGroup{ID: "message_type.def", Type: "message-type"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = registry.Announce(context.Background(), group)
		}()
	}
	wg.Wait()

	if len(pub.events) != 1 {
		t.Errorf("expected one announcement across concurrent callers, got %d", len(pub.events))
	}
}
