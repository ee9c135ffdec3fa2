// Package httpcall implements rules.ServiceCaller over HTTP.
package httpcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/liamcoop/ruleengine/rules"
)

// Config holds the settings for a Caller.
type Config struct {
	BaseURL         string            `yaml:"base_url"`
	Timeout         time.Duration     `yaml:"timeout"`
	MaxRetries      uint64            `yaml:"max_retries"`
	InitialInterval time.Duration     `yaml:"initial_interval"`
	MaxInterval     time.Duration     `yaml:"max_interval"`
	Headers         map[string]string `yaml:"headers"`
}

// DefaultConfig returns a config with conservative retry settings.
func DefaultConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Caller POSTs the action payload as a JSON object to BaseURL+endpoint.
// Transport errors and 5xx responses are retried with exponential backoff;
// 4xx responses fail immediately.
type Caller struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Caller. A nil client uses one with config.Timeout.
func New(config Config, client *http.Client, logger *slog.Logger) *Caller {
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{config: config, client: client, logger: logger}
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s returned status %d", e.Endpoint, e.StatusCode)
}

func (c *Caller) url(endpoint string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func (c *Caller) Call(ctx context.Context, endpoint string, payload map[string]rules.Value) (rules.ServiceResponse, error) {
	body, err := json.Marshal(rules.ToNativeMap(payload))
	if err != nil {
		return rules.ServiceResponse{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	var response rules.ServiceResponse
	attempt := 0
	operation := func() error {
		attempt++
		resp, err := c.post(ctx, endpoint, body)
		if err != nil {
			c.logger.Warn("service call failed", "endpoint", endpoint, "attempt", attempt, "error", err)
			return err
		}
		response = resp
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if c.config.InitialInterval > 0 {
		b.InitialInterval = c.config.InitialInterval
	}
	if c.config.MaxInterval > 0 {
		b.MaxInterval = c.config.MaxInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.config.MaxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return rules.ServiceResponse{}, err
	}
	return response, nil
}

func (c *Caller) post(ctx context.Context, endpoint string, body []byte) (rules.ServiceResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(endpoint), bytes.NewReader(body))
	if err != nil {
		return rules.ServiceResponse{}, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return rules.ServiceResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return rules.ServiceResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return rules.ServiceResponse{}, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 300:
		return rules.ServiceResponse{}, backoff.Permanent(&StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode})
	}

	return rules.ServiceResponse{StatusCode: resp.StatusCode, Body: decodeBody(raw)}, nil
}

// decodeBody keeps a JSON response as a Value and anything else as a String.
func decodeBody(raw []byte) rules.Value {
	if len(bytes.TrimSpace(raw)) == 0 {
		return rules.Null{}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var native any
	if err := dec.Decode(&native); err == nil && !dec.More() {
		if v, err := rules.FromNative(native); err == nil {
			return v
		}
	}
	return rules.String(string(raw))
}
