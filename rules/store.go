package rules

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrRuleNotFound is returned by stores for an unknown rule ID.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned by RuleStore.Add for a duplicate rule ID.
	ErrRuleExists = errors.New("rule already exists")
)

// RuleStore persists rule definitions. Engines load from a store; they never
// write back to it.
type RuleStore interface {
	// Add a new rule
	Add(rule Rule) error

	// Get a rule by ID
	Get(id string) (Rule, error)

	// List all rules, enabled or not, in write order
	List() ([]Rule, error)

	// Update an existing rule and move it to the end of List
	Update(rule Rule) error

	// Delete a rule
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore in memory.
// Safe for concurrent use.
type InMemoryRuleStore struct {
	rules map[string]Rule
	order []string
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]Rule),
	}
}

// Add adds a new rule to the store
func (s *InMemoryRuleStore) Add(rule Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
	}

	s.rules[rule.ID] = rule
	s.order = append(s.order, rule.ID)
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return Rule{}, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return rule, nil
}

// List returns all rules in insertion order
func (s *InMemoryRuleStore) List() ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Rule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rules[id])
	}
	return out, nil
}

// Update replaces an existing rule and moves it to the end of the list,
// the same place Engine.Update puts it
func (s *InMemoryRuleStore) Update(rule Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; !exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}

	s.rules[rule.ID] = rule
	s.order = slices.DeleteFunc(s.order, func(existing string) bool { return existing == rule.ID })
	s.order = append(s.order, rule.ID)
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}

	delete(s.rules, id)
	s.order = slices.DeleteFunc(s.order, func(existing string) bool { return existing == id })
	return nil
}
