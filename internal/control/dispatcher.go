package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/bus"
	"github.com/vietddude/recoverer/internal/recovery/archive"
	"github.com/vietddude/recoverer/internal/recovery/classify"
	"github.com/vietddude/recoverer/internal/recovery/retry"
)

// HandlerFunc processes one decoded command envelope.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Dispatcher routes inbound envelopes to the engine's command handlers by
// kind. Unknown kinds are logged and acknowledged so they don't wedge the
// stream.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher wires the command handlers.
func NewDispatcher(
	importer *classify.Importer,
	orchestrator *archive.Orchestrator,
	workflow *retry.Workflow,
	issuer *retry.Issuer,
) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]HandlerFunc)}

	d.handlers[domain.KindImportFailedMessage] = func(ctx context.Context, payload json.RawMessage) error {
		var cmd domain.ImportFailedMessage
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("failed to decode import command: %w", err)
		}
		return importer.HandleImport(ctx, cmd)
	}

	d.handlers[domain.KindArchiveGroup] = func(ctx context.Context, payload json.RawMessage) error {
		var cmd domain.ArchiveGroup
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("failed to decode archive command: %w", err)
		}
		if cmd.GroupID == "" {
			return orchestrator.HandleArchiveTimeRange(ctx, cmd.CutoffTime)
		}
		return orchestrator.HandleArchiveGroup(ctx, cmd)
	}

	d.handlers[domain.KindRetryGroup] = func(ctx context.Context, payload json.RawMessage) error {
		var cmd domain.RetryGroup
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("failed to decode retry command: %w", err)
		}
		return workflow.HandleRetryGroup(ctx, cmd)
	}

	d.handlers[domain.KindBulkRetryContinue] = func(ctx context.Context, payload json.RawMessage) error {
		var cmd domain.BulkRetryContinuation
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("failed to decode continuation: %w", err)
		}
		return workflow.HandleContinuation(ctx, cmd)
	}

	d.handlers[domain.KindRetryMessagesByID] = func(ctx context.Context, payload json.RawMessage) error {
		var cmd domain.RetryMessagesByID
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("failed to decode retry-by-id command: %w", err)
		}
		return issuer.HandleRetryMessages(ctx, cmd)
	}

	return d
}

// Dispatch routes one envelope to its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, env bus.Envelope) error {
	handler, ok := d.handlers[env.Kind]
	if !ok {
		slog.Warn("Unknown command kind, dropping", "kind", env.Kind, "id", env.ID)
		return nil
	}
	return handler(ctx, env.Payload)
}
