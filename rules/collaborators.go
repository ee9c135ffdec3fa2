package rules

import (
	"context"
	"log/slog"
)

// ServiceResponse is the success signal of an external service call.
// The engine only records a marker; Body is kept for callers that want it.
type ServiceResponse struct {
	StatusCode int
	Body       Value
}

// ServiceCaller invokes an external service.
type ServiceCaller interface {
	Call(ctx context.Context, endpoint string, payload map[string]Value) (ServiceResponse, error)
}

// EventPublisher publishes an event to a bus.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data map[string]Value) error
}

// Logger receives Log action messages and run notices.
type Logger interface {
	Log(message string)
}

// Collaborators is the typed registry of external capabilities available to
// actions. It is resolved once when a RuleContext is built.
type Collaborators struct {
	Services ServiceCaller
	Events   EventPublisher
	Logger   Logger
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Services == nil {
		c.Services = StubServiceCaller{}
	}
	if c.Events == nil {
		c.Events = DiscardPublisher{}
	}
	if c.Logger == nil {
		c.Logger = NewSlogLogger(slog.Default())
	}
	return c
}

// StubServiceCaller reports success for every call without doing any I/O.
type StubServiceCaller struct{}

func (StubServiceCaller) Call(context.Context, string, map[string]Value) (ServiceResponse, error) {
	return ServiceResponse{StatusCode: 200, Body: Null{}}, nil
}

// DiscardPublisher accepts and drops every event.
type DiscardPublisher struct{}

func (DiscardPublisher) Publish(context.Context, string, map[string]Value) error { return nil }

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l; a nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l.With("component", "rule-engine")}
}

func (s *SlogLogger) Log(message string) {
	s.logger.Info(message)
}

// notice logs a structured run notice when the logger supports it.
func notice(l Logger, msg string, args ...any) {
	if sl, ok := l.(*SlogLogger); ok {
		sl.logger.Info(msg, args...)
		return
	}
	l.Log(msg)
}
