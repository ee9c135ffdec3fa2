// Package eventbus publishes SendEvent actions to a message broker.
//
// Every event is wrapped in an Envelope and handed to a Sender, which owns
// the broker connection. The subject is the configured prefix followed by
// the event type.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/liamcoop/ruleengine/rules"
)

// Envelope is the wire form of a published event.
type Envelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEnvelope wraps event data with a fresh id and the current time.
func NewEnvelope(eventType string, data map[string]rules.Value) Envelope {
	return Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      rules.ToNativeMap(data),
		Timestamp: time.Now().UTC(),
	}
}

// Sender delivers an encoded envelope to one broker.
type Sender interface {
	Send(ctx context.Context, subject string, payload []byte) error
	Close() error
}

// Publisher implements rules.EventPublisher on top of a Sender.
type Publisher struct {
	sender Sender
	prefix string
	logger *slog.Logger
}

// NewPublisher creates a Publisher. Subjects are prefix+eventType.
func NewPublisher(sender Sender, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sender: sender, prefix: prefix, logger: logger}
}

func (p *Publisher) Subject(eventType string) string {
	return p.prefix + eventType
}

func (p *Publisher) Publish(ctx context.Context, eventType string, data map[string]rules.Value) error {
	envelope := NewEnvelope(eventType, data)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.Subject(eventType)
	if err := p.sender.Send(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	p.logger.Debug("event published", "event_id", envelope.ID, "event_type", eventType, "subject", subject)
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	return p.sender.Close()
}

// LogSender writes events to a logger instead of a broker.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, subject string, payload []byte) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event", "subject", subject, "payload", string(payload))
	return nil
}

func (LogSender) Close() error { return nil }
