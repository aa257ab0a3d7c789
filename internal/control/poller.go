package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/recoverer/internal/infra/bus"
	"github.com/vietddude/recoverer/internal/infra/storage"
)

const pollBatchLimit = 100

// Poller redelivers due scheduled continuations to the dispatcher. Delivery
// is at-least-once: a continuation is deleted only after its handler
// succeeds.
type Poller struct {
	repo       storage.ContinuationRepository
	dispatcher *Dispatcher
	interval   time.Duration
}

// NewPoller creates a continuation poller.
func NewPoller(repo storage.ContinuationRepository, dispatcher *Dispatcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{repo: repo, dispatcher: dispatcher, interval: interval}
}

// Run polls until the context ends.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.deliverDue(ctx)
		}
	}
}

func (p *Poller) deliverDue(ctx context.Context) {
	due, err := p.repo.Due(ctx, time.Now().UTC(), pollBatchLimit)
	if err != nil {
		slog.Error("Failed to fetch due continuations", "error", err)
		return
	}

	for _, c := range due {
		env := bus.Envelope{
			ID:      c.ID,
			Kind:    c.Kind,
			Source:  "recoverer",
			Payload: c.Payload,
		}
		if err := p.dispatcher.Dispatch(ctx, env); err != nil {
			// Keep it; the next tick retries.
			slog.Error("Continuation delivery failed", "kind", c.Kind, "id", c.ID, "error", err)
			continue
		}
		if err := p.repo.Delete(ctx, c.ID); err != nil {
			slog.Warn("Failed to delete delivered continuation", "id", c.ID, "error", err)
		}
	}
}
