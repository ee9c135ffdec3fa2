package rules

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
// Each rule row keeps the exchange-format JSON in a JSONB definition column
// next to the columns the API filters on.
type PostgresRuleStore struct {
	db       *sql.DB
	tenantID string
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore for a specific tenant
func NewPostgresRuleStore(db *sql.DB, tenantID string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:       db,
		tenantID: tenantID,
	}
}

// Add inserts a new rule into the database
func (s *PostgresRuleStore) Add(rule Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1 AND tenant_id = $2)
	`, rule.ID, s.tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
	}

	definition, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO rules (id, tenant_id, name, priority, enabled, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, rule.ID, s.tenantID, rule.Name, int64(rule.Priority), rule.Enabled, definition)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (Rule, error) {
	var definition []byte
	err := s.db.QueryRow(`
		SELECT definition
		FROM rules
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID).Scan(&definition)

	if errors.Is(err, sql.ErrNoRows) {
		return Rule{}, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return Rule{}, fmt.Errorf("failed to get rule: %w", err)
	}

	return ParseRule(definition)
}

// List returns all rules for the tenant in write order. An updated rule
// sorts after every rule written before the update.
func (s *PostgresRuleStore) List() ([]Rule, error) {
	rows, err := s.db.Query(`
		SELECT definition
		FROM rules
		WHERE tenant_id = $1
		ORDER BY seq ASC
	`, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []Rule
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule, err := ParseRule(definition)
		if err != nil {
			return nil, err
		}
		rulesList = append(rulesList, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule
func (s *PostgresRuleStore) Update(rule Rule) error {
	definition, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}

	result, err := s.db.Exec(`
		UPDATE rules
		SET name = $1, priority = $2, enabled = $3, definition = $4, updated_at = NOW(),
		    seq = nextval(pg_get_serial_sequence('rules', 'seq'))
		WHERE id = $5 AND tenant_id = $6
	`, rule.Name, int64(rule.Priority), rule.Enabled, definition, rule.ID, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}

	return nil
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM rules
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}

	return nil
}
