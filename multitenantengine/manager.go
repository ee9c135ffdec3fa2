package multitenantengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/liamcoop/ruleengine/facts"
	"github.com/liamcoop/ruleengine/rules"
)

var (
	// ErrTenantNotFound is returned for operations on an unknown tenant.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidFacts is returned when a payload does not match the tenant schema.
	ErrInvalidFacts = errors.New("invalid facts")
)

// TenantConfig describes how a tenant's facts are typed and enriched.
// It is persisted as the definition of the tenant's active schema version.
type TenantConfig struct {
	Schema  facts.Schema         `json:"schema"`
	Derived []facts.DerivedField `json:"derived,omitempty"`
}

// TenantEngine is one tenant's engine with the store it was loaded from.
type TenantEngine struct {
	TenantID string
	Config   TenantConfig
	Engine   *rules.Engine
	Store    rules.RuleStore
	Deriver  *facts.Deriver
}

// Facts converts a raw JSON payload into the tenant's typed, derived facts.
func (te *TenantEngine) Facts(raw map[string]any) (rules.Map, error) {
	converted, err := facts.Convert(raw, te.Config.Schema)
	if err != nil {
		return nil, err
	}
	return te.Deriver.Derive(converted)
}

// StoreFactory returns the rule store for a tenant.
type StoreFactory func(tenantID string) rules.RuleStore

// ManagerOption configures a MultiTenantEngineManager.
type ManagerOption func(*MultiTenantEngineManager)

// WithStoreFactory overrides where tenant rules are persisted.
func WithStoreFactory(f StoreFactory) ManagerOption {
	return func(m *MultiTenantEngineManager) { m.newStore = f }
}

// WithEngineOptions applies opts to every tenant engine, for example to
// plug in real service and event collaborators.
func WithEngineOptions(opts ...rules.Option) ManagerOption {
	return func(m *MultiTenantEngineManager) { m.engineOpts = append(m.engineOpts, opts...) }
}

// WithLogger sets the logger used for tenant lifecycle events.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *MultiTenantEngineManager) { m.logger = l }
}

// MultiTenantEngineManager manages engines for all tenants
type MultiTenantEngineManager struct {
	engines    map[string]*TenantEngine
	db         *sql.DB
	newStore   StoreFactory
	engineOpts []rules.Option
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewMultiTenantEngineManager creates a new manager instance.
// With a nil db, tenants and rules live in memory only.
func NewMultiTenantEngineManager(db *sql.DB, opts ...ManagerOption) *MultiTenantEngineManager {
	m := &MultiTenantEngineManager{
		engines: make(map[string]*TenantEngine),
		db:      db,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.newStore == nil {
		if db != nil {
			m.newStore = func(tenantID string) rules.RuleStore {
				return rules.NewPostgresRuleStore(db, tenantID)
			}
		} else {
			m.newStore = func(string) rules.RuleStore {
				return rules.NewInMemoryRuleStore()
			}
		}
	}
	return m
}

// LoadAllTenants loads all tenants from the database and initializes their engines
func (m *MultiTenantEngineManager) LoadAllTenants() error {
	if m.db == nil {
		return nil
	}

	rows, err := m.db.Query(`
		SELECT t.id, s.definition
		FROM tenants t
		JOIN schemas s ON s.tenant_id = t.id
		WHERE s.active = true
	`)
	if err != nil {
		return fmt.Errorf("failed to fetch tenants: %w", err)
	}
	defer rows.Close()

	type loaded struct {
		id     string
		config TenantConfig
	}
	var tenants []loaded
	for rows.Next() {
		var tenantID string
		var definition []byte
		if err := rows.Scan(&tenantID, &definition); err != nil {
			return fmt.Errorf("failed to scan tenant row: %w", err)
		}

		var config TenantConfig
		if err := json.Unmarshal(definition, &config); err != nil {
			return fmt.Errorf("invalid schema for tenant %s: %w", tenantID, err)
		}
		tenants = append(tenants, loaded{id: tenantID, config: config})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tenant rows: %w", err)
	}

	for _, t := range tenants {
		if err := m.CreateTenant(t.id, t.config); err != nil {
			return fmt.Errorf("failed to initialize tenant %s: %w", t.id, err)
		}
	}

	m.logger.Info("tenants loaded", "count", len(tenants))
	return nil
}

// buildTenant compiles config and loads the tenant's rules into a fresh
// engine. A nil store asks the store factory for one.
func (m *MultiTenantEngineManager) buildTenant(tenantID string, config TenantConfig, store rules.RuleStore) (*TenantEngine, error) {
	if err := ValidateTenantConfig(config); err != nil {
		return nil, err
	}

	deriver, err := facts.NewDeriver(config.Schema, config.Derived)
	if err != nil {
		return nil, fmt.Errorf("failed to compile derived fields: %w", err)
	}

	if store == nil {
		store = m.newStore(tenantID)
	}
	engine := rules.NewEngine(m.engineOpts...)
	if err := engine.LoadFrom(store); err != nil {
		return nil, err
	}

	return &TenantEngine{
		TenantID: tenantID,
		Config:   config,
		Engine:   engine,
		Store:    store,
		Deriver:  deriver,
	}, nil
}

// CreateTenant creates a tenant engine with the given config, loading any
// rules its store already holds. An existing engine for the tenant is replaced.
func (m *MultiTenantEngineManager) CreateTenant(tenantID string, config TenantConfig) error {
	if err := ValidateTenantID(tenantID); err != nil {
		return err
	}

	te, err := m.buildTenant(tenantID, config, nil)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	m.mu.Lock()
	m.engines[tenantID] = te
	m.mu.Unlock()

	m.logger.Info("tenant engine ready", "tenant_id", tenantID, "rules", te.Engine.Len(), "derived_fields", te.Deriver.Len())
	return nil
}

// GetTenant retrieves a tenant's engine and config.
func (m *MultiTenantEngineManager) GetTenant(tenantID string) (*TenantEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	te, exists := m.engines[tenantID]
	if !exists {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}
	return te, nil
}

// GetEngine retrieves the engine for a specific tenant
func (m *MultiTenantEngineManager) GetEngine(tenantID string) (*rules.Engine, error) {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return te.Engine, nil
}

// UpdateTenantSchema stores a new schema version and swaps in an engine
// built from it. In-flight runs finish on the old engine. An unknown tenant
// is created with config as its first version.
func (m *MultiTenantEngineManager) UpdateTenantSchema(tenantID string, config TenantConfig) error {
	if err := ValidateTenantID(tenantID); err != nil {
		return err
	}

	var store rules.RuleStore
	if existing, err := m.GetTenant(tenantID); err == nil {
		store = existing.Store
	}

	// Build first so an invalid config never reaches the database.
	te, err := m.buildTenant(tenantID, config, store)
	if err != nil {
		return fmt.Errorf("failed to build new engine: %w", err)
	}

	if m.db != nil {
		version, err := m.saveSchema(tenantID, config)
		if err != nil {
			return err
		}
		m.logger.Info("tenant schema saved", "tenant_id", tenantID, "version", version)
	}

	m.mu.Lock()
	m.engines[tenantID] = te
	m.mu.Unlock()

	m.logger.Info("tenant engine swapped", "tenant_id", tenantID, "rules", te.Engine.Len())
	return nil
}

// SchemaVersion returns the version number of the tenant's active schema,
// or 0 when schemas are not persisted.
func (m *MultiTenantEngineManager) SchemaVersion(tenantID string) (int, error) {
	if _, err := m.GetTenant(tenantID); err != nil {
		return 0, err
	}
	if m.db == nil {
		return 0, nil
	}

	var version int
	err := m.db.QueryRow(`SELECT version FROM schemas WHERE tenant_id = $1 AND active = true`, tenantID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (m *MultiTenantEngineManager) saveSchema(tenantID string, config TenantConfig) (int, error) {
	definition, err := json.Marshal(config)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal schema: %w", err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE schemas SET active = false WHERE tenant_id = $1`, tenantID); err != nil {
		return 0, fmt.Errorf("failed to deactivate old schemas: %w", err)
	}

	var version int
	err = tx.QueryRow(`
		INSERT INTO schemas (tenant_id, version, definition, active, created_at)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, true, NOW()
		FROM schemas
		WHERE tenant_id = $1
		RETURNING version
	`, tenantID, definition).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to save new schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit schema: %w", err)
	}
	return version, nil
}

// ListTenants returns all loaded tenant IDs, sorted
func (m *MultiTenantEngineManager) ListTenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenants := make([]string, 0, len(m.engines))
	for tenantID := range m.engines {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants
}

// DeleteTenant removes a tenant's engine from the cache
// Note: This does not delete the tenant from the database
func (m *MultiTenantEngineManager) DeleteTenant(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[tenantID]; !exists {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}

	delete(m.engines, tenantID)
	return nil
}

// AddRule validates rule, persists it and adds it to the tenant's engine.
func (m *MultiTenantEngineManager) AddRule(tenantID string, rule rules.Rule) error {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return err
	}
	if err := rules.Validate(rule); err != nil {
		return err
	}
	if err := te.Store.Add(rule); err != nil {
		return err
	}
	te.Engine.Add(rule)
	return nil
}

// UpdateRule validates and replaces an existing rule.
func (m *MultiTenantEngineManager) UpdateRule(tenantID string, rule rules.Rule) error {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return err
	}
	if err := rules.Validate(rule); err != nil {
		return err
	}
	if err := te.Store.Update(rule); err != nil {
		return err
	}
	te.Engine.Update(rule)
	return nil
}

// DeleteRule removes a rule from the store and the engine.
func (m *MultiTenantEngineManager) DeleteRule(tenantID, ruleID string) error {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return err
	}
	if err := te.Store.Delete(ruleID); err != nil {
		return err
	}
	te.Engine.Remove(ruleID)
	return nil
}

// GetRule returns one of the tenant's rules.
func (m *MultiTenantEngineManager) GetRule(tenantID, ruleID string) (rules.Rule, error) {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return rules.Rule{}, err
	}
	return te.Store.Get(ruleID)
}

// ListRules returns the tenant's rules in storage order.
func (m *MultiTenantEngineManager) ListRules(tenantID string) ([]rules.Rule, error) {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return te.Engine.Rules(), nil
}

// Execute converts raw facts with the tenant's schema, adds derived fields
// and runs the tenant's rules. On a run error the partial result is returned
// alongside it.
func (m *MultiTenantEngineManager) Execute(ctx context.Context, tenantID string, raw map[string]any) (*rules.RunResult, error) {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}

	input, err := te.Facts(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFacts, err)
	}
	return te.Engine.Run(ctx, input)
}
