package validation

import "time"

// RuleSetCache holds the compiled, ordered, active rule set per
// (tenant, entity type) pair. Snapshots handed out by Get are immutable;
// invalidation replaces the entry, it never mutates one in place, so
// in-flight validations finish against the snapshot they started with.
type RuleSetCache interface {
	// Get returns the cached snapshot, or false on a miss.
	Get(tenantID, entityType string) ([]*CompiledRule, bool)

	// Set stores a freshly compiled snapshot.
	Set(tenantID, entityType string, set []*CompiledRule)

	// Invalidate drops one (tenant, entity type) entry. The host layer
	// must call this after every successful rule mutation.
	Invalidate(tenantID, entityType string)

	// InvalidateTenant drops every entry for a tenant.
	InvalidateTenant(tenantID string)
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero means no expiration: entries live until invalidated.
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for rule set caching.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
