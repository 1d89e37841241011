package validation

import (
	"fmt"
	"time"
)

// RuleType selects the grammar a rule's expression is compiled with.
type RuleType string

const (
	RuleTypeRequired   RuleType = "Required"
	RuleTypeRange      RuleType = "Range"
	RuleTypeRegex      RuleType = "Regex"
	RuleTypeComparison RuleType = "Comparison"
	RuleTypeCrossField RuleType = "CrossField"
	RuleTypeExpression RuleType = "Expression"
)

// Severity controls how a failing rule affects the overall result.
// Only Error makes a Result invalid; Warning and Info are advisory.
type Severity string

const (
	SeverityError   Severity = "Error"
	SeverityWarning Severity = "Warning"
	SeverityInfo    Severity = "Info"
)

// Rule is a tenant-scoped, persisted validation rule. The engine only ever
// reads rules; all mutation happens through the admin layer and the store.
type Rule struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	EntityType string `json:"entityType"`

	// FieldName is empty for entity-level rules.
	FieldName string `json:"fieldName,omitempty"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	RuleType       RuleType `json:"ruleType"`
	Severity       Severity `json:"severity"`
	Expression     string   `json:"expression"`
	Conditions     string   `json:"conditions,omitempty"`
	ErrorMessage   string   `json:"errorMessage"`
	ExecutionOrder int      `json:"executionOrder"`
	Active         bool     `json:"active"`
	Metadata       string   `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// CompiledRule pairs a rule with its compiled ASTs. Instances are immutable
// once built and shared between concurrent validations.
type CompiledRule struct {
	Rule *Rule
	Expr Node

	// Conditions is nil when the rule applies unconditionally.
	Conditions Node
}

// Issue is one failing rule's contribution to a Result.
type Issue struct {
	RuleID    string   `json:"ruleId"`
	FieldName string   `json:"fieldName"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}

// Result aggregates the issues from every applicable rule. Valid is false
// exactly when at least one issue has severity Error.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

func newResult() *Result {
	return &Result{Valid: true, Issues: []Issue{}}
}

func (r *Result) add(issue Issue) {
	if issue.Severity == SeverityError {
		r.Valid = false
	}
	r.Issues = append(r.Issues, issue)
}

// CompileError describes why an expression was rejected at authoring time.
// Pos is a zero-based byte offset into the expression text.
type CompileError struct {
	Pos int
	Msg string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

func compileErrorf(pos int, format string, args ...any) *CompileError {
	return &CompileError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
