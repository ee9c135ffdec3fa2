package rules

import (
	"sync"
	"time"
)

// InMemoryRulesCache keeps one ordered snapshot in memory.
// Safe for concurrent use.
type InMemoryRulesCache struct {
	rules    []Rule
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryRulesCache creates an empty cache.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

// Get returns a copy of the snapshot, or nil if it is invalid or expired.
func (c *InMemoryRulesCache) Get() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		return nil
	}

	snapshot := make([]Rule, len(c.rules))
	copy(snapshot, c.rules)
	return snapshot
}

// Set replaces the snapshot with a copy of rules.
func (c *InMemoryRulesCache) Set(rules []Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]Rule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate drops the snapshot.
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.rules = nil
}

// IsValid reports whether Get would hit.
func (c *InMemoryRulesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validLocked()
}

func (c *InMemoryRulesCache) validLocked() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
