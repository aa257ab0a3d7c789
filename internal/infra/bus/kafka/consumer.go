package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/vietddude/recoverer/internal/infra/bus"
)

// EnvelopeHandler processes one inbound envelope. A returned error leaves the
// message uncommitted so the broker redelivers it (at-least-once).
type EnvelopeHandler func(ctx context.Context, env bus.Envelope) error

// Consumer reads command envelopes from a topic within a consumer group.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a consumer for the given topic and group.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Consume fetches, dispatches, and commits messages until the context ends.
func (c *Consumer) Consume(ctx context.Context, handler EnvelopeHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("Failed to fetch message", "error", err)
				continue
			}

			var env bus.Envelope
			if err := json.Unmarshal(msg.Value, &env); err != nil {
				// Poison message; commit so it doesn't block the partition.
				slog.Error("Failed to unmarshal envelope", "error", err)
				_ = c.reader.CommitMessages(ctx, msg)
				continue
			}

			if err := handler(ctx, env); err != nil {
				slog.Error("Failed to process message",
					"kind", env.Kind, "id", env.ID, "error", err)
				// Don't commit; the broker will redeliver.
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				slog.Error("Failed to commit message", "id", env.ID, "error", err)
			}
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
