package validation

import (
	"sync"
	"time"
)

type cacheKey struct {
	tenantID   string
	entityType string
}

type cacheEntry struct {
	set      []*CompiledRule
	cachedAt time.Time
}

// InMemoryRuleSetCache is the default RuleSetCache. Reads share an RWMutex
// read lock and never copy: the stored snapshots are immutable, a writer
// only ever swaps whole map entries.
type InMemoryRuleSetCache struct {
	entries map[cacheKey]*cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

// NewInMemoryRuleSetCache creates a new in-memory rule set cache.
func NewInMemoryRuleSetCache(config CacheConfig) *InMemoryRuleSetCache {
	return &InMemoryRuleSetCache{
		entries: make(map[cacheKey]*cacheEntry),
		config:  config,
	}
}

// Get retrieves a cached snapshot. Returns false on a miss or when the
// entry has outlived the configured TTL.
func (c *InMemoryRuleSetCache) Get(tenantID, entityType string) ([]*CompiledRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey{tenantID, entityType}]
	if !ok {
		return nil, false
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil, false
	}
	return entry.set, true
}

// Set stores a snapshot, replacing any previous entry for the key.
func (c *InMemoryRuleSetCache) Set(tenantID, entityType string, set []*CompiledRule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey{tenantID, entityType}] = &cacheEntry{
		set:      set,
		cachedAt: time.Now(),
	}
}

// Invalidate drops one entry.
func (c *InMemoryRuleSetCache) Invalidate(tenantID, entityType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, cacheKey{tenantID, entityType})
}

// InvalidateTenant drops all entries for a tenant.
func (c *InMemoryRuleSetCache) InvalidateTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.tenantID == tenantID {
			delete(c.entries, key)
		}
	}
}
