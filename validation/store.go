package validation

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrRuleNotFound = errors.New("validation rule not found")
	ErrRuleExists   = errors.New("validation rule already exists")
)

// RuleStore manages rule persistence and retrieval. The engine itself only
// calls FetchActive; the remaining methods serve the admin layer that
// authors rules.
type RuleStore interface {
	// FetchActive returns the active rules for one tenant and entity type.
	FetchActive(tenantID, entityType string) ([]*Rule, error)

	// List returns all rules, active or not, for administration.
	List(tenantID, entityType string) ([]*Rule, error)

	// Get a rule by ID, scoped to the tenant.
	Get(tenantID, id string) (*Rule, error)

	// Add a new rule.
	Add(rule *Rule) error

	// Update an existing rule.
	Update(rule *Rule) error

	// Delete a rule.
	Delete(tenantID, id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// FetchActive returns active rules for the tenant and entity type.
func (s *InMemoryRuleStore) FetchActive(tenantID, entityType string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, rule := range s.rules {
		if rule.TenantID == tenantID && rule.EntityType == entityType && rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}

// List returns every rule for the tenant and entity type.
func (s *InMemoryRuleStore) List(tenantID, entityType string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, rule := range s.rules {
		if rule.TenantID == tenantID && rule.EntityType == entityType {
			out = append(out, rule)
		}
	}
	return out, nil
}

// Get retrieves a rule by ID.
func (s *InMemoryRuleStore) Get(tenantID, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists || rule.TenantID != tenantID {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return rule, nil
}

// Add adds a new rule, setting CreatedAt and UpdatedAt.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule
	return nil
}

// Update replaces an existing rule, preserving CreatedAt.
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists || existing.TenantID != rule.TenantID {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule
	return nil
}

// Delete removes a rule.
func (s *InMemoryRuleStore) Delete(tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists || rule.TenantID != tenantID {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}

	delete(s.rules, id)
	return nil
}
