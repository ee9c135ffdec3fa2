package rules

import (
	"context"
	"errors"
	"sync"
)

// recordingLogger captures every message passed to Log.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Log(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
}

func (l *recordingLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

type serviceCall struct {
	Endpoint string
	Payload  map[string]Value
}

// recordingCaller records calls and fails for endpoints listed in fail.
type recordingCaller struct {
	mu    sync.Mutex
	calls []serviceCall
	fail  map[string]bool
}

var errServiceDown = errors.New("service unavailable")

func (c *recordingCaller) Call(_ context.Context, endpoint string, payload map[string]Value) (ServiceResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, serviceCall{Endpoint: endpoint, Payload: payload})
	if c.fail[endpoint] {
		return ServiceResponse{}, errServiceDown
	}
	return ServiceResponse{StatusCode: 200, Body: Null{}}, nil
}

type publishedEvent struct {
	EventType string
	Data      map[string]Value
}

// recordingPublisher records events and returns err for every publish when set.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, data map[string]Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{EventType: eventType, Data: data})
	return nil
}

// fraudFacts are the facts of the high-risk transaction scenario.
func fraudFacts() map[string]Value {
	return map[string]Value{
		"amount":   Int(15000),
		"currency": String("USD"),
		"country":  String("high-risk-1"),
		"category": String("clothing"),
	}
}

// highRiskCondition matches large USD transactions from high-risk countries.
func highRiskCondition() Condition {
	return And{
		GreaterThan{Field: "amount", Value: Int(10000)},
		Equals{Field: "currency", Value: String("USD")},
		Or{
			Equals{Field: "country", Value: String("high-risk-1")},
			Equals{Field: "country", Value: String("high-risk-2")},
		},
	}
}
