package rules

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rules (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	priority   INTEGER NOT NULL,
	enabled    INTEGER NOT NULL,
	definition TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// SQLiteRuleStore implements RuleStore on a local SQLite file. It backs the
// rulectl command line tool.
type SQLiteRuleStore struct {
	db *sql.DB
}

// OpenSQLiteRuleStore creates or opens the database at path and applies the
// schema. Use ":memory:" for a throwaway store.
func OpenSQLiteRuleStore(path string) (*SQLiteRuleStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteRuleStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteRuleStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteRuleStore) Add(rule Rule) error {
	definition, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM rules WHERE id = ?)`, rule.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
	}

	_, err = s.db.Exec(`
		INSERT INTO rules (id, name, priority, enabled, definition)
		VALUES (?, ?, ?, ?, ?)
	`, rule.ID, rule.Name, int64(rule.Priority), rule.Enabled, string(definition))
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func (s *SQLiteRuleStore) Get(id string) (Rule, error) {
	var definition string
	err := s.db.QueryRow(`SELECT definition FROM rules WHERE id = ?`, id).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return Rule{}, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return Rule{}, fmt.Errorf("failed to get rule: %w", err)
	}
	return ParseRule([]byte(definition))
}

func (s *SQLiteRuleStore) List() ([]Rule, error) {
	rows, err := s.db.Query(`SELECT definition FROM rules ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule, err := ParseRule([]byte(definition))
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}

func (s *SQLiteRuleStore) Update(rule Rule) error {
	definition, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Re-inserting takes a fresh seq so the rule lists last, as Engine.Update does.
	result, err := tx.Exec(`DELETE FROM rules WHERE id = ?`, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}

	_, err = tx.Exec(`
		INSERT INTO rules (id, name, priority, enabled, definition)
		VALUES (?, ?, ?, ?, ?)
	`, rule.ID, rule.Name, int64(rule.Priority), rule.Enabled, string(definition))
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return nil
}
