//go:build integration

package multitenantengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/ruleengine/rules"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start postgres container")

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, err, "database never became ready")

	// Glob returns the files in lexical order, which is migration order.
	migrationFiles, err := filepath.Glob(filepath.Join("..", "migrations", "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, migrationFiles, "no migration files found")
	for _, file := range migrationFiles {
		migrationSQL, err := os.ReadFile(file)
		require.NoError(t, err, "failed to read migration file")
		_, err = db.Exec(string(migrationSQL))
		require.NoError(t, err, "failed to run migration %s", file)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}
	return db, cleanup
}

// createTenantWithSchema inserts a tenant and its first active schema version
func createTenantWithSchema(t *testing.T, db *sql.DB, name string, config TenantConfig) string {
	t.Helper()
	tenantID := uuid.New().String()

	_, err := db.Exec(`INSERT INTO tenants (id, name) VALUES ($1, $2)`, tenantID, name)
	require.NoError(t, err, "failed to create tenant")

	definition, err := json.Marshal(config)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO schemas (tenant_id, version, definition, active)
		VALUES ($1, 1, $2, true)
	`, tenantID, definition)
	require.NoError(t, err, "failed to create schema")

	return tenantID
}

func TestLoadAllTenants(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	first := createTenantWithSchema(t, db, "first", txnConfig)
	second := createTenantWithSchema(t, db, "second", txnConfig)
	require.NoError(t, rules.NewPostgresRuleStore(db, first).Add(flagRule("r1")))

	m := NewMultiTenantEngineManager(db)
	require.NoError(t, m.LoadAllTenants())

	assert.ElementsMatch(t, []string{first, second}, m.ListTenants())

	engine, err := m.GetEngine(first)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Len())

	engine, err = m.GetEngine(second)
	require.NoError(t, err)
	assert.Equal(t, 0, engine.Len())
}

// TestLoadAllTenantsIgnoresInactiveSchemas verifies only the active version is loaded
func TestLoadAllTenantsIgnoresInactiveSchemas(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	tenantID := createTenantWithSchema(t, db, "versioned", txnConfig)
	_, err := db.Exec(`UPDATE schemas SET active = false WHERE tenant_id = $1`, tenantID)
	require.NoError(t, err)

	m := NewMultiTenantEngineManager(db)
	require.NoError(t, m.LoadAllTenants())
	assert.Empty(t, m.ListTenants())
}

// TestRulesPersistAcrossManagers verifies rules added through one manager are loaded by the next
func TestRulesPersistAcrossManagers(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	tenantID := createTenantWithSchema(t, db, "persisted", txnConfig)

	m := NewMultiTenantEngineManager(db)
	require.NoError(t, m.LoadAllTenants())
	require.NoError(t, m.AddRule(tenantID, flagRule("r1")))
	require.NoError(t, m.AddRule(tenantID, flagRule("r2")))
	require.NoError(t, m.DeleteRule(tenantID, "r2"))

	reloaded := NewMultiTenantEngineManager(db)
	require.NoError(t, reloaded.LoadAllTenants())

	listed, err := reloaded.ListRules(tenantID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, rules.EqualRule(flagRule("r1"), listed[0]))

	result, err := reloaded.Execute(context.Background(), tenantID, map[string]any{
		"amount": float64(15000), "currency": "USD", "country": "high-risk-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, result.Fired)
}

// TestUpdateTenantSchemaVersions verifies each update stores a new active version
func TestUpdateTenantSchemaVersions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	tenantID := createTenantWithSchema(t, db, "evolving", txnConfig)

	m := NewMultiTenantEngineManager(db)
	require.NoError(t, m.LoadAllTenants())
	require.NoError(t, m.AddRule(tenantID, flagRule("r1")))

	require.NoError(t, m.UpdateTenantSchema(tenantID, txnConfig))
	require.NoError(t, m.UpdateTenantSchema(tenantID, txnConfig))

	var active, total int
	require.NoError(t, db.QueryRow(`SELECT version FROM schemas WHERE tenant_id = $1 AND active`, tenantID).Scan(&active))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schemas WHERE tenant_id = $1`, tenantID).Scan(&total))
	assert.Equal(t, 3, active)
	assert.Equal(t, 3, total)

	version, err := m.SchemaVersion(tenantID)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	engine, err := m.GetEngine(tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Len())
}

func TestGetEngineNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	m := NewMultiTenantEngineManager(db)
	require.NoError(t, m.LoadAllTenants())

	_, err := m.GetEngine(uuid.New().String())
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

// TestConcurrentExecution verifies tenants can be executed in parallel against Postgres-backed engines
func TestConcurrentExecution(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	tenants := []string{
		createTenantWithSchema(t, db, "c1", txnConfig),
		createTenantWithSchema(t, db, "c2", txnConfig),
	}
	m := NewMultiTenantEngineManager(db)
	require.NoError(t, m.LoadAllTenants())
	for _, tenantID := range tenants {
		require.NoError(t, m.AddRule(tenantID, flagRule("r1")))
	}

	var wg sync.WaitGroup
	for _, tenantID := range tenants {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(tenantID string) {
				defer wg.Done()
				result, err := m.Execute(context.Background(), tenantID, map[string]any{
					"amount": float64(15000), "currency": "USD", "country": "high-risk-1",
				})
				if err != nil {
					t.Errorf("Execute(%s) failed: %v", tenantID, err)
					return
				}
				if len(result.Fired) != 1 {
					t.Errorf("Execute(%s) fired %v, want [r1]", tenantID, result.Fired)
				}
			}(tenantID)
		}
	}
	wg.Wait()
}
