// Package metrics exposes rule execution metrics in Prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/liamcoop/ruleengine/internal/logger"
	"github.com/liamcoop/ruleengine/rules"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ruleengine"

// Metrics holds the collectors for rule runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	rulesFiredTotal   *prometheus.CounterVec
	rulesSkippedTotal *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	activeRules       *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry, together with Go runtime
// collectors and gauges mirroring the logger's counters.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Rule set executions by outcome",
		}, []string{"tenant", "result"}),

		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Time spent running a tenant's rule set",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"tenant"}),

		rulesFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_fired_total",
			Help:      "Rules whose condition held",
		}, []string{"tenant", "rule_id"}),

		rulesSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_skipped_total",
			Help:      "Disabled rules passed over during runs",
		}, []string{"tenant"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed runs by error kind",
		}, []string{"tenant", "kind"}),

		activeRules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rules",
			Help:      "Rules loaded per tenant",
		}, []string{"tenant"}),
	}

	m.registry.MustRegister(
		m.executionsTotal,
		m.executionDuration,
		m.rulesFiredTotal,
		m.rulesSkippedTotal,
		m.errorsTotal,
		m.activeRules,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		counterFunc("log_errors_total", "Errors logged, before sampling", logger.TotalErrors.Load),
		counterFunc("log_warnings_total", "Warnings logged, before sampling", logger.TotalWarnings.Load),
		counterFunc("http_5xx_total", "HTTP responses with a 5xx status", logger.Total5xxErrors.Load),
		counterFunc("http_4xx_total", "HTTP responses with a 4xx status", logger.Total4xxErrors.Load),
		counterFunc("http_slow_requests_total", "Requests over the slow threshold", logger.SlowRequests.Load),
	)
	return m
}

func counterFunc(name, help string, load func() int64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(load()) })
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun records one run. result may be partial when err is set.
func (m *Metrics) ObserveRun(tenant string, result *rules.RunResult, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	m.executionDuration.WithLabelValues(tenant).Observe(elapsed.Seconds())
	if result != nil {
		for _, id := range result.Fired {
			m.rulesFiredTotal.WithLabelValues(tenant, id).Inc()
		}
		if result.Skipped > 0 {
			m.rulesSkippedTotal.WithLabelValues(tenant).Add(float64(result.Skipped))
		}
	}

	if err != nil {
		m.executionsTotal.WithLabelValues(tenant, "error").Inc()
		m.errorsTotal.WithLabelValues(tenant, errorKind(err)).Inc()
		return
	}
	m.executionsTotal.WithLabelValues(tenant, "success").Inc()
}

// SetActiveRules records how many rules a tenant has loaded.
func (m *Metrics) SetActiveRules(tenant string, n int) {
	if m == nil {
		return
	}
	m.activeRules.WithLabelValues(tenant).Set(float64(n))
}

// DeleteTenant drops the per-tenant gauge.
func (m *Metrics) DeleteTenant(tenant string) {
	if m == nil {
		return
	}
	m.activeRules.DeleteLabelValues(tenant)
}

func errorKind(err error) string {
	var e *rules.Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return "other"
}
