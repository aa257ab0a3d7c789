package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/recoverer/internal/infra/storage"
)

// Envelope wraps a command or event on the bus. Kind routes it to a handler;
// Payload is the JSON body.
type Envelope struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope around a payload.
func NewEnvelope(kind string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Envelope{
		ID:         uuid.New().String(),
		Kind:       kind,
		Source:     "recoverer",
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	}, nil
}

// Sender delivers commands, at least once.
type Sender interface {
	Send(ctx context.Context, kind string, payload any) error
}

// Publisher delivers events, at least once.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload any) error
}

// Scheduler delivers a command back to the engine after a delay. The schedule
// must survive a process restart.
type Scheduler interface {
	Schedule(ctx context.Context, kind string, payload any, delay time.Duration) error
}

// DurableScheduler persists continuations through the storage layer; the
// control plane polls and redelivers them when due.
type DurableScheduler struct {
	repo storage.ContinuationRepository
	now  func() time.Time
}

// NewDurableScheduler creates a storage-backed scheduler.
func NewDurableScheduler(repo storage.ContinuationRepository) *DurableScheduler {
	return &DurableScheduler{repo: repo, now: time.Now}
}

// Schedule implements Scheduler.
func (s *DurableScheduler) Schedule(
	ctx context.Context,
	kind string,
	payload any,
	delay time.Duration,
) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal continuation: %w", err)
	}
	return s.repo.Schedule(ctx, &storage.Continuation{
		ID:      uuid.New().String(),
		Kind:    kind,
		Payload: body,
		DueAt:   s.now().Add(delay),
	})
}

// LogPublisher logs events instead of delivering them. Used when no broker is
// configured.
type LogPublisher struct{}

// Send implements Sender.
func (LogPublisher) Send(ctx context.Context, kind string, payload any) error {
	slog.Info("bus send (no broker)", "kind", kind)
	return nil
}

// Publish implements Publisher.
func (LogPublisher) Publish(ctx context.Context, kind string, payload any) error {
	slog.Info("bus publish (no broker)", "kind", kind)
	return nil
}
