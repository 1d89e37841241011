package validation

import (
	"fmt"
	"log/slog"
	"sort"
)

// CompileFailureSink receives rules whose persisted expression failed to
// compile at cache-build time. The rule is excluded from the usable set; the
// sink exists so bad data is visible to operators without crashing callers.
type CompileFailureSink func(ruleID string, err error)

func logCompileFailure(ruleID string, err error) {
	slog.Error("validation rule failed to compile", "ruleId", ruleID, "error", err)
}

// Engine is the validation entry point. It is stateless per call: all
// shared state lives in the rule set cache, and every operation is a pure
// function of the rule set and the entity data. Rules are never mutated.
type Engine struct {
	store RuleStore
	cache RuleSetCache
	sink  CompileFailureSink
}

// NewEngine creates an engine with the default in-memory cache and a sink
// that logs compile failures.
func NewEngine(store RuleStore) *Engine {
	return NewEngineWithCache(store, NewInMemoryRuleSetCache(DefaultCacheConfig()), nil)
}

// NewEngineWithCache creates an engine with a custom cache and compile
// failure sink. A nil sink falls back to logging.
func NewEngineWithCache(store RuleStore, cache RuleSetCache, sink CompileFailureSink) *Engine {
	if sink == nil {
		sink = logCompileFailure
	}
	return &Engine{store: store, cache: cache, sink: sink}
}

// Validate runs every applicable rule for the entity type against the
// entity data and aggregates the outcome. The only hard error is a store
// failure on a cache miss; individual rule failures become issues.
func (e *Engine) Validate(entityType string, entityData map[string]any, tenantID string) (*Result, error) {
	set, err := e.loadRuleSet(tenantID, entityType)
	if err != nil {
		return nil, err
	}

	data := toValues(entityData)
	result := newResult()
	for _, cr := range set {
		e.applyRule(result, cr, data)
	}
	return result, nil
}

// ValidateField validates a single field for live feedback. Only rules
// bound to the field, plus entity-level rules, run; the supplied value
// overrides whatever entityData holds for the field so cross-field
// references see the pending edit.
func (e *Engine) ValidateField(entityType, fieldName string, fieldValue any, entityData map[string]any, tenantID string) (*Result, error) {
	set, err := e.loadRuleSet(tenantID, entityType)
	if err != nil {
		return nil, err
	}

	data := toValues(entityData)
	data[fieldName] = ValueOf(fieldValue)

	result := newResult()
	for _, cr := range set {
		if cr.Rule.FieldName != fieldName && cr.Rule.FieldName != "" {
			continue
		}
		e.applyRule(result, cr, data)
	}
	return result, nil
}

// TestRule compiles and evaluates one ad-hoc rule against caller-supplied
// data, without touching the cache or the store. Rule authors use it to
// preview behavior before activating a rule; conditions are compiled (so
// authors see their errors) but not applied, matching the preview's intent
// of showing the rule's own outcome.
func (e *Engine) TestRule(rule *Rule, testData map[string]any) *Result {
	result := newResult()

	cr, err := compileRule(rule)
	if err != nil {
		result.add(Issue{
			RuleID:    rule.ID,
			FieldName: issueField(rule),
			Severity:  SeverityError,
			Message:   fmt.Sprintf("rule does not compile: %v", err),
		})
		return result
	}

	data := toValues(testData)
	e.evalRule(result, cr, data)
	return result
}

// GetRulesForEntity returns the active rules for an entity type in
// evaluation order. Read-through: no compilation, no caching.
func (e *Engine) GetRulesForEntity(entityType, tenantID string) ([]*Rule, error) {
	rules, err := e.store.FetchActive(tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("load validation rules: %w", err)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return ruleLess(rules[i], rules[j])
	})
	return rules, nil
}

// ValidateExpression reports whether an expression parses under the given
// rule type's grammar. Never panics; used by the admin layer to reject bad
// expressions before they are persisted.
func (e *Engine) ValidateExpression(ruleType RuleType, expression string) bool {
	return ValidateExpression(ruleType, expression)
}

// Invalidate drops the cached rule set for one tenant and entity type.
// The host layer must call this after every successful rule mutation.
func (e *Engine) Invalidate(tenantID, entityType string) {
	e.cache.Invalidate(tenantID, entityType)
}

// InvalidateTenant drops every cached rule set for a tenant.
func (e *Engine) InvalidateTenant(tenantID string) {
	e.cache.InvalidateTenant(tenantID)
}

// applyRule runs one compiled rule against the entity snapshot and records
// the outcome. Evaluation errors degrade to a diagnostic Error issue so one
// broken rule cannot abort validation of the rest.
func (e *Engine) applyRule(result *Result, cr *CompiledRule, data map[string]Value) {
	if !isApplicable(cr, data) {
		return
	}
	e.evalRule(result, cr, data)
}

// evalRule evaluates the rule's expression and records the outcome, without
// the applicability gate. TestRule calls it directly so a preview always
// shows the rule's own result.
func (e *Engine) evalRule(result *Result, cr *CompiledRule, data map[string]Value) {
	target := lookup(data, cr.Rule.FieldName)
	ok, err := evalNode(cr.Expr, target, data)
	if err != nil {
		result.add(Issue{
			RuleID:    cr.Rule.ID,
			FieldName: issueField(cr.Rule),
			Severity:  SeverityError,
			Message:   fmt.Sprintf("validation error: %v", err),
		})
		return
	}
	if !ok {
		result.add(Issue{
			RuleID:    cr.Rule.ID,
			FieldName: issueField(cr.Rule),
			Severity:  cr.Rule.Severity,
			Message:   renderMessage(cr.Rule, cr.Expr, target),
		})
	}
}

// loadRuleSet returns the compiled snapshot for the key, building and
// caching it on a miss. Rules that fail to compile are reported to the sink
// and excluded; they never block the rest of the set.
func (e *Engine) loadRuleSet(tenantID, entityType string) ([]*CompiledRule, error) {
	if set, ok := e.cache.Get(tenantID, entityType); ok {
		return set, nil
	}

	rules, err := e.store.FetchActive(tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("load validation rules: %w", err)
	}

	set := make([]*CompiledRule, 0, len(rules))
	for _, rule := range rules {
		cr, err := compileRule(rule)
		if err != nil {
			e.sink(rule.ID, err)
			continue
		}
		set = append(set, cr)
	}

	sort.SliceStable(set, func(i, j int) bool {
		return ruleLess(set[i].Rule, set[j].Rule)
	})

	e.cache.Set(tenantID, entityType, set)
	return set, nil
}

// compileRule builds the immutable CompiledRule for a persisted rule.
func compileRule(rule *Rule) (*CompiledRule, error) {
	expr, err := Compile(rule.RuleType, rule.Expression)
	if err != nil {
		return nil, fmt.Errorf("expression: %w", err)
	}
	conditions, err := CompileConditions(rule.Conditions)
	if err != nil {
		return nil, fmt.Errorf("conditions: %w", err)
	}
	return &CompiledRule{Rule: rule, Expr: expr, Conditions: conditions}, nil
}

// ruleLess is the deterministic evaluation order: execution order first,
// ties broken by field name, then ID.
func ruleLess(a, b *Rule) bool {
	if a.ExecutionOrder != b.ExecutionOrder {
		return a.ExecutionOrder < b.ExecutionOrder
	}
	if a.FieldName != b.FieldName {
		return a.FieldName < b.FieldName
	}
	return a.ID < b.ID
}

func issueField(rule *Rule) string {
	if rule.FieldName != "" {
		return rule.FieldName
	}
	return rule.EntityType
}
