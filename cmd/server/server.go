package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/ruleengine/internal/config"
	"github.com/liamcoop/ruleengine/internal/logger"
	"github.com/liamcoop/ruleengine/internal/metrics"
	"github.com/liamcoop/ruleengine/multitenantengine"
	"github.com/liamcoop/ruleengine/rules"
)

type Server struct {
	db            *sql.DB // nil when running in memory
	engineManager *multitenantengine.MultiTenantEngineManager
	metrics       *metrics.Metrics
	config        config.ServerConfig
	router        *chi.Mux
}

// NewServer wires the HTTP API. db may be nil; m may be nil to disable
// the /metrics endpoint.
func NewServer(db *sql.DB, engineManager *multitenantengine.MultiTenantEngineManager, m *metrics.Metrics, cfg config.ServerConfig) *Server {
	s := &Server{
		db:            db,
		engineManager: engineManager,
		metrics:       m,
		config:        cfg,
	}
	for _, tenantID := range engineManager.ListTenants() {
		s.refreshRuleGauge(tenantID)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	r.Get("/api/v1/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Post("/api/v1/validate", s.handleValidate)
	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleCreateTenant)

		r.Route("/{tenantId}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteTenant)

			r.Post("/schema", s.handleUpdateSchema)
			r.Put("/schema", s.handleUpdateSchema)
			r.Get("/schema", s.handleGetSchema)

			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules", s.handleListRules)
			r.Get("/rules/{ruleId}", s.handleGetRule)
			r.Put("/rules/{ruleId}", s.handleUpdateRule)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)

			r.Post("/execute", s.handleExecute)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request and feeds the logger's HTTP counters.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.RecordStatus(status)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request failed", attrs...)
		case s.config.SlowRequestThreshold > 0 && elapsed > s.config.SlowRequestThreshold:
			logger.WarnSlowRequest()
			logger.Logger.Warn("slow request", attrs...)
		default:
			logger.Debug("request", attrs...)
		}
	})
}

func (s *Server) refreshRuleGauge(tenantID string) {
	if engine, err := s.engineManager.GetEngine(tenantID); err == nil {
		s.metrics.SetActiveRules(tenantID, engine.Len())
	}
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, multitenantengine.ErrTenantNotFound),
		errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists):
		return http.StatusConflict
	case errors.Is(err, multitenantengine.ErrInvalidFacts),
		errors.Is(err, rules.ErrParse),
		errors.Is(err, rules.ErrInvalidRuleFormat):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrEvaluation),
		errors.Is(err, rules.ErrTypeMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rules.ErrActionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(message string, err error) ErrorResponse {
	body := ErrorResponse{Error: message}
	if err != nil {
		body.Details = err.Error()
		body.Kind = string(rules.KindOf(err))
	}
	return body
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	respondJSON(w, status, errorBody(message, err))
}

// respondDomainError picks the status from err.
func respondDomainError(w http.ResponseWriter, message string, err error) {
	respondError(w, statusFor(err), message, err)
}
