package rules

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Engine stores rules and runs them against facts.
// The rule list is the canonical store and fixes tie order; the index gives
// O(1) lookup by ID. Every mutation updates both and invalidates the
// ordered snapshot. Safe for concurrent use: runs read a snapshot taken at
// start, mutations are serialized.
type Engine struct {
	rules         []Rule
	index         map[string]Rule
	cache         RulesCache
	cacheConfig   CacheConfig
	collaborators Collaborators
	mu            sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithCollaborators sets the capabilities handed to every run.
func WithCollaborators(c Collaborators) Option {
	return func(en *Engine) { en.collaborators = c }
}

// WithServiceCaller sets the external service collaborator.
func WithServiceCaller(s ServiceCaller) Option {
	return func(en *Engine) { en.collaborators.Services = s }
}

// WithEventPublisher sets the event collaborator.
func WithEventPublisher(p EventPublisher) Option {
	return func(en *Engine) { en.collaborators.Events = p }
}

// WithLogger sets the logging collaborator.
func WithLogger(l Logger) Option {
	return func(en *Engine) { en.collaborators.Logger = l }
}

// WithCache replaces the snapshot cache.
func WithCache(cache RulesCache, config CacheConfig) Option {
	return func(en *Engine) {
		en.cache = cache
		en.cacheConfig = config
	}
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	en := &Engine{
		index:       make(map[string]Rule),
		cacheConfig: DefaultCacheConfig(),
	}
	for _, opt := range opts {
		opt(en)
	}
	if en.cache == nil {
		en.cache = NewInMemoryRulesCache(en.cacheConfig)
	}
	en.collaborators = en.collaborators.withDefaults()
	return en
}

// Add stores rule. A rule with the same ID is replaced (last write wins).
// No validation happens here; malformed trees fail when evaluated.
func (en *Engine) Add(rule Rule) {
	en.mu.Lock()
	defer en.mu.Unlock()

	en.removeLocked(rule.ID)
	en.addLocked(rule)
	en.invalidateLocked()
}

// AddMany stores rules in order.
func (en *Engine) AddMany(rules []Rule) {
	en.mu.Lock()
	defer en.mu.Unlock()

	for _, rule := range rules {
		en.removeLocked(rule.ID)
		en.addLocked(rule)
	}
	en.invalidateLocked()
}

// Remove deletes the rule with id from both the list and the index.
// It reports whether a rule was removed.
func (en *Engine) Remove(id string) bool {
	en.mu.Lock()
	defer en.mu.Unlock()

	removed := en.removeLocked(id)
	if removed {
		en.invalidateLocked()
	}
	return removed
}

// Update replaces the rule with the same ID: remove, then add.
// An unknown ID is simply added.
func (en *Engine) Update(rule Rule) {
	en.mu.Lock()
	defer en.mu.Unlock()

	en.removeLocked(rule.ID)
	en.addLocked(rule)
	en.invalidateLocked()
}

// Get returns the rule stored under id.
func (en *Engine) Get(id string) (Rule, bool) {
	en.mu.RLock()
	defer en.mu.RUnlock()

	rule, ok := en.index[id]
	return rule, ok
}

// Rules returns the stored rules in storage order.
func (en *Engine) Rules() []Rule {
	en.mu.RLock()
	defer en.mu.RUnlock()

	return slices.Clone(en.rules)
}

// Len returns the number of stored rules.
func (en *Engine) Len() int {
	en.mu.RLock()
	defer en.mu.RUnlock()

	return len(en.rules)
}

// LoadFrom adds every rule held by store, in store order.
func (en *Engine) LoadFrom(store RuleStore) error {
	stored, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	en.AddMany(stored)
	return nil
}

func (en *Engine) addLocked(rule Rule) {
	en.rules = append(en.rules, rule)
	en.index[rule.ID] = rule
}

func (en *Engine) removeLocked(id string) bool {
	if _, ok := en.index[id]; !ok {
		return false
	}
	delete(en.index, id)
	en.rules = slices.DeleteFunc(en.rules, func(r Rule) bool { return r.ID == id })
	return true
}

func (en *Engine) invalidateLocked() {
	en.cache.Invalidate()
	if en.cacheConfig.RefreshOnInvalidate {
		en.cache.Set(en.orderLocked())
	}
}

// orderLocked sorts a copy of the rules by descending priority.
// The sort is stable so equal priorities keep storage order.
func (en *Engine) orderLocked() []Rule {
	ordered := slices.Clone(en.rules)
	if ordered == nil {
		ordered = []Rule{}
	}
	slices.SortStableFunc(ordered, func(a, b Rule) int {
		switch {
		case a.Priority > b.Priority:
			return -1
		case a.Priority < b.Priority:
			return 1
		default:
			return 0
		}
	})
	return ordered
}

func (en *Engine) snapshot() []Rule {
	en.mu.RLock()
	defer en.mu.RUnlock()

	if cached := en.cache.Get(); cached != nil {
		return cached
	}
	ordered := en.orderLocked()
	en.cache.Set(ordered)
	return ordered
}

// Execute runs every enabled rule against facts and returns the outputs.
//
// Rules run in descending priority. Conditions always see the facts passed
// in, never the outputs of earlier rules. The first evaluation or action
// error aborts the run; the outputs produced before it are returned with
// the error.
func (en *Engine) Execute(ctx context.Context, facts map[string]Value) (Map, error) {
	result, err := en.Run(ctx, facts)
	return result.Outputs, err
}

// Run is Execute with a report of which rules fired.
func (en *Engine) Run(ctx context.Context, facts map[string]Value) (*RunResult, error) {
	start := time.Now()
	rc := NewRuleContext(facts, en.collaborators)
	result := &RunResult{Outputs: rc.Outputs}

	for _, rule := range en.snapshot() {
		if !rule.Enabled {
			result.Skipped++
			continue
		}

		matched, err := Evaluate(rule.Condition, rc.Facts)
		if err != nil {
			result.Duration = time.Since(start)
			return result, withRule(err, rule.ID)
		}
		if !matched {
			continue
		}

		notice(rc.Collaborators.Logger,
			fmt.Sprintf("rule triggered: %s (%s)", rule.Name, rule.ID),
			"rule_id", rule.ID, "rule_name", rule.Name, "priority", rule.Priority)
		result.Fired = append(result.Fired, rule.ID)

		for _, action := range rule.Actions {
			if err := ExecuteAction(ctx, action, rc); err != nil {
				result.Duration = time.Since(start)
				return result, withRule(err, rule.ID)
			}
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}
