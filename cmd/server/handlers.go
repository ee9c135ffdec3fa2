package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/liamcoop/ruleengine/internal/logger"
	"github.com/liamcoop/ruleengine/multitenantengine"
	"github.com/liamcoop/ruleengine/rules"
)

const maxBodyBytes = 1 << 20

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// decodeNumbers decodes JSON keeping numbers as json.Number so large
// integers survive until the tenant schema types them.
func decodeNumbers(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Storage:       "memory",
		TenantsLoaded: len(s.engineManager.ListTenants()),
	}
	if s.db != nil {
		resp.Storage = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	loaded := s.engineManager.ListTenants()
	tenants := make([]TenantResponse, 0, len(loaded))

	names := map[string]TenantResponse{}
	if s.db != nil {
		rows, err := s.db.QueryContext(r.Context(), `SELECT id, name, created_at FROM tenants`)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var t TenantResponse
			var created time.Time
			if err := rows.Scan(&t.ID, &t.Name, &created); err != nil {
				respondError(w, http.StatusInternalServerError, "failed to scan tenant", err)
				return
			}
			t.CreatedAt = &created
			names[t.ID] = t
		}
		if err := rows.Err(); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
			return
		}
	}

	for _, id := range loaded {
		t, ok := names[id]
		if !ok {
			t = TenantResponse{ID: id}
		}
		if engine, err := s.engineManager.GetEngine(id); err == nil {
			t.Rules = engine.Len()
		}
		tenants = append(tenants, t)
	}

	respondJSON(w, http.StatusOK, TenantsListResponse{Tenants: tenants})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if err := multitenantengine.ValidateTenantConfig(req.TenantConfig); err != nil {
		respondError(w, http.StatusBadRequest, "invalid schema", err)
		return
	}

	tenantID, err := s.insertTenant(r.Context(), req.Name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create tenant", err)
		return
	}

	if err := s.engineManager.UpdateTenantSchema(tenantID, req.TenantConfig); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create tenant engine", err)
		return
	}
	s.refreshRuleGauge(tenantID)

	respondJSON(w, http.StatusCreated, TenantResponse{ID: tenantID, Name: req.Name})
}

// insertTenant persists the tenant row when a database is configured and
// returns the tenant's id.
func (s *Server) insertTenant(ctx context.Context, name string) (string, error) {
	if s.db == nil {
		return uuid.New().String(), nil
	}
	var tenantID string
	err := s.db.QueryRowContext(ctx, `INSERT INTO tenants (name) VALUES ($1) RETURNING id`, name).Scan(&tenantID)
	return tenantID, err
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	if _, err := s.engineManager.GetTenant(tenantID); err != nil {
		respondDomainError(w, "tenant not found", err)
		return
	}
	if s.db != nil {
		if _, err := s.db.ExecContext(r.Context(), `DELETE FROM tenants WHERE id = $1`, tenantID); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to delete tenant", err)
			return
		}
	}
	if err := s.engineManager.DeleteTenant(tenantID); err != nil {
		respondDomainError(w, "tenant not found", err)
		return
	}
	s.metrics.DeleteTenant(tenantID)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	if _, err := s.engineManager.GetTenant(tenantID); err != nil {
		respondDomainError(w, "tenant not found", err)
		return
	}

	var config multitenantengine.TenantConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := multitenantengine.ValidateTenantConfig(config); err != nil {
		respondError(w, http.StatusBadRequest, "invalid schema", err)
		return
	}

	if err := s.engineManager.UpdateTenantSchema(tenantID, config); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update schema", err)
		return
	}
	s.writeSchema(w, r, tenantID)
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	s.writeSchema(w, r, chi.URLParam(r, "tenantId"))
}

func (s *Server) writeSchema(w http.ResponseWriter, r *http.Request, tenantID string) {
	te, err := s.engineManager.GetTenant(tenantID)
	if err != nil {
		respondDomainError(w, "tenant not found", err)
		return
	}
	version, err := s.engineManager.SchemaVersion(tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get schema", err)
		return
	}

	respondJSON(w, http.StatusOK, SchemaResponse{
		Version:      version,
		Status:       "active",
		Rules:        te.Engine.Len(),
		TenantConfig: te.Config,
	})
}

// decodeRule reads a rule in the exchange format.
func decodeRule(r *http.Request) (rules.Rule, error) {
	body, err := readBody(r)
	if err != nil {
		return rules.Rule{}, err
	}
	return rules.ParseRule(body)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	rule, err := decodeRule(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule", err)
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if err := s.engineManager.AddRule(tenantID, rule); err != nil {
		respondDomainError(w, "failed to add rule", err)
		return
	}
	s.refreshRuleGauge(tenantID)

	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	list, err := s.engineManager.ListRules(tenantID)
	if err != nil {
		respondDomainError(w, "failed to list rules", err)
		return
	}
	if list == nil {
		list = []rules.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.engineManager.GetRule(tenantID, ruleID)
	if err != nil {
		respondDomainError(w, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := decodeRule(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule", err)
		return
	}
	if rule.ID != "" && rule.ID != ruleID {
		respondError(w, http.StatusBadRequest, "rule id does not match path", nil)
		return
	}
	rule.ID = ruleID

	if err := s.engineManager.UpdateRule(tenantID, rule); err != nil {
		respondDomainError(w, "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	if err := s.engineManager.DeleteRule(tenantID, ruleID); err != nil {
		respondDomainError(w, "failed to delete rule", err)
		return
	}
	s.refreshRuleGauge(tenantID)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeNumbers(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	s.execute(w, r, chi.URLParam(r, "tenantId"), req.Facts)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeNumbers(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "tenantId is required", nil)
		return
	}
	s.execute(w, r, req.TenantID, req.Facts)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, tenantID string, facts map[string]any) {
	if facts == nil {
		respondError(w, http.StatusBadRequest, "facts are required", nil)
		return
	}

	start := time.Now()
	result, err := s.engineManager.Execute(r.Context(), tenantID, facts)
	elapsed := time.Since(start)

	if result == nil {
		respondDomainError(w, "execution failed", err)
		return
	}
	s.metrics.ObserveRun(tenantID, result, elapsed, err)

	resp := ExecuteResponse{
		Outputs:       rules.ToNativeMap(result.Outputs),
		Fired:         result.Fired,
		Skipped:       result.Skipped,
		ExecutionTime: elapsed.String(),
	}
	if resp.Fired == nil {
		resp.Fired = []string{}
	}
	if err != nil {
		logger.RuleRunFailed(tenantID, err)
		body := errorBody("execution failed", err)
		resp.Error = &body
		respondJSON(w, statusFor(err), resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleValidate checks a rule set without storing it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	set, err := rules.ParseRules(body)
	if err == nil {
		err = rules.ValidateAll(set)
	}
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ValidateResponse{Valid: false, Rules: len(set), Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, ValidateResponse{Valid: true, Rules: len(set)})
}
