package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/ruleengine/rules"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestObserveRun verifies success and failure runs land in the right series
func TestObserveRun(t *testing.T) {
	m := New()

	m.ObserveRun("acme", &rules.RunResult{Fired: []string{"r1", "r2"}, Skipped: 1}, time.Millisecond, nil)
	m.ObserveRun("acme", &rules.RunResult{Fired: []string{"r1"}}, time.Millisecond,
		&rules.Error{Kind: rules.KindEvaluation, Message: "field not found: amount"})
	m.ObserveRun("acme", nil, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.executionsTotal.WithLabelValues("acme", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.executionsTotal.WithLabelValues("acme", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rulesFiredTotal.WithLabelValues("acme", "r1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rulesSkippedTotal.WithLabelValues("acme")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("acme", string(rules.KindEvaluation))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("acme", "other")))
}

func TestActiveRules(t *testing.T) {
	m := New()
	m.SetActiveRules("acme", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeRules.WithLabelValues("acme")))

	m.DeleteTenant("acme")
	assert.Equal(t, 0, testutil.CollectAndCount(m.activeRules))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("acme", &rules.RunResult{}, time.Millisecond, nil)
		m.SetActiveRules("acme", 1)
		m.DeleteTenant("acme")
	})
}

// TestHandler verifies the exposition includes engine and logger series
func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRun("acme", &rules.RunResult{}, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"ruleengine_executions_total",
		"ruleengine_execution_duration_seconds",
		"ruleengine_log_errors_total",
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(body, name), name)
	}
}
