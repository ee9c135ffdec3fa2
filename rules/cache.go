package rules

import "time"

// RulesCache holds the priority-ordered rule snapshot used by Engine runs.
// The engine invalidates it on every mutation.
type RulesCache interface {
	// Get returns the cached snapshot, or nil on a miss or expiry
	Get() []Rule

	// Set stores a snapshot
	Set(rules []Rule)

	// Invalidate drops the snapshot
	Invalidate()

	// IsValid reports whether Get would hit
	IsValid() bool
}

// CacheConfig controls snapshot caching.
type CacheConfig struct {
	// TTL bounds the snapshot lifetime; 0 keeps it until the next mutation.
	TTL time.Duration

	// RefreshOnInvalidate rebuilds the snapshot right after a mutation
	// instead of on the next run.
	RefreshOnInvalidate bool
}

// DefaultCacheConfig only invalidates on mutations.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:                 0,
		RefreshOnInvalidate: false,
	}
}
