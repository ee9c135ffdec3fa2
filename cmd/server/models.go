package main

import (
	"time"

	"github.com/liamcoop/ruleengine/multitenantengine"
	"github.com/liamcoop/ruleengine/rules"
)

// API request and response bodies.

// CreateTenantRequest names a tenant and gives its first schema version.
type CreateTenantRequest struct {
	Name string `json:"name"`
	multitenantengine.TenantConfig
}

type TenantResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Rules     int        `json:"rules"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type TenantsListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
}

// SchemaResponse is the tenant's active schema.
type SchemaResponse struct {
	Version int    `json:"version"`
	Status  string `json:"status"`
	Rules   int    `json:"rules"`
	multitenantengine.TenantConfig
}

type RulesListResponse struct {
	Rules []rules.Rule `json:"rules"`
}

// ExecuteRequest carries raw facts. Declared schema fields are coerced to
// their type; other numbers become Int when integral.
type ExecuteRequest struct {
	Facts map[string]any `json:"facts"`
}

// EvaluateRequest is ExecuteRequest with the tenant in the body.
type EvaluateRequest struct {
	TenantID string         `json:"tenantId"`
	Facts    map[string]any `json:"facts"`
}

// ExecuteResponse reports a run. On failure Outputs holds what the rules
// before the failing one produced.
type ExecuteResponse struct {
	Outputs       map[string]any `json:"outputs"`
	Fired         []string       `json:"fired"`
	Skipped       int            `json:"skipped"`
	ExecutionTime string         `json:"executionTime"`
	Error         *ErrorResponse `json:"error,omitempty"`
}

// ValidateResponse reports whether a rule set passed validation.
type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Rules int    `json:"rules"`
	Error string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	Storage       string `json:"storage"`
	TenantsLoaded int    `json:"tenantsLoaded"`
	Error         string `json:"error,omitempty"`
}
