package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vietddude/recoverer/internal/infra/bus"
)

// Producer writes envelopes to one Kafka topic. It serves as both the command
// sender and the event publisher depending on the topic it is bound to.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer bound to a topic.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer}
}

func (p *Producer) write(ctx context.Context, kind string, payload any) error {
	env, err := bus.NewEnvelope(kind, payload)
	if err != nil {
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(env.ID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(kind)},
			{Key: "source", Value: []byte(env.Source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("Failed to write message", "kind", kind, "id", env.ID, "error", err)
		return err
	}

	slog.Debug("Message written", "kind", kind, "id", env.ID, "topic", p.writer.Topic)
	return nil
}

// Send implements bus.Sender.
func (p *Producer) Send(ctx context.Context, kind string, payload any) error {
	return p.write(ctx, kind, payload)
}

// Publish implements bus.Publisher.
func (p *Producer) Publish(ctx context.Context, kind string, payload any) error {
	return p.write(ctx, kind, payload)
}

// Close closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
