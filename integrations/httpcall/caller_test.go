package httpcall

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liamcoop/ruleengine/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:         url,
		Timeout:         time.Second,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Headers:         map[string]string{"X-Api-Key": "secret"},
	}
}

// TestCallPostsPayload verifies the payload is sent as a plain JSON object
func TestCallPostsPayload(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fraud-detection", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"score": 7}`))
	}))
	defer server.Close()

	caller := New(testConfig(server.URL+"/"), nil, nil)
	resp, err := caller.Call(context.Background(), "/fraud-detection", map[string]rules.Value{
		"amount":   rules.Int(15000),
		"currency": rules.String("USD"),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, rules.Equal(rules.Map{"score": rules.Int(7)}, resp.Body))
	assert.Equal(t, map[string]any{"amount": float64(15000), "currency": "USD"}, got)
}

// TestCallRetriesServerErrors verifies 5xx responses are retried until success
func TestCallRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	resp, err := New(testConfig(server.URL), nil, nil).Call(context.Background(), "check", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, rules.String("ok"), resp.Body)
}

func TestCallGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(testConfig(server.URL), nil, nil).Call(context.Background(), "check", nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

// TestCallClientErrorIsPermanent verifies 4xx responses are not retried
func TestCallClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := New(testConfig(server.URL), nil, nil).Call(context.Background(), "check", nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

// TestCallerInEngine verifies a failing service surfaces as an ActionFailed run error
func TestCallerInEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	engine := rules.NewEngine(rules.WithServiceCaller(New(testConfig(server.URL), nil, nil)))
	engine.Add(rules.NewRuleBuilder("r1", "Call").
		Action(rules.CallExternalService{Endpoint: "/missing"}).
		Build())

	_, err := engine.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, rules.ErrActionFailed)
}

func TestDecodeBody(t *testing.T) {
	assert.Equal(t, rules.Null{}, decodeBody(nil))
	assert.Equal(t, rules.Bool(true), decodeBody([]byte("true")))
	assert.Equal(t, rules.String("plain text"), decodeBody([]byte("plain text")))
	assert.Equal(t, rules.String("1 2"), decodeBody([]byte("1 2")))
}

// TestDecodeBodyNumbers verifies integer literals stay Int and decimals stay Float
func TestDecodeBodyNumbers(t *testing.T) {
	got := decodeBody([]byte(`{"count": 3, "rate": 5.0, "scores": [1.0, 2.5]}`))
	assert.True(t, rules.Equal(rules.Map{
		"count":  rules.Int(3),
		"rate":   rules.Float(5),
		"scores": rules.List{rules.Float(1), rules.Float(2.5)},
	}, got))
}
