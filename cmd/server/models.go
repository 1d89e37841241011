package main

import "github.com/myscheduling/validation/validation"

// API request and response models.

// ValidateRequest asks for whole-entity validation.
type ValidateRequest struct {
	TenantID   string         `json:"tenantId" example:"123e4567-e89b-12d3-a456-426614174000"`
	EntityType string         `json:"entityType" example:"Assignment"`
	Data       map[string]any `json:"data"`
}

// ValidateFieldRequest asks for single-field validation, used for live
// feedback while a user edits a form.
type ValidateFieldRequest struct {
	TenantID   string         `json:"tenantId" example:"123e4567-e89b-12d3-a456-426614174000"`
	EntityType string         `json:"entityType" example:"Assignment"`
	FieldName  string         `json:"fieldName" example:"StartDate"`
	FieldValue any            `json:"fieldValue"`
	Data       map[string]any `json:"data"`
}

// TestRuleRequest previews an ad-hoc rule against sample data without
// persisting it.
type TestRuleRequest struct {
	Rule     RuleBody       `json:"rule"`
	TestData map[string]any `json:"testData"`
}

// ValidateExpressionRequest checks whether an expression parses for a rule
// type.
type ValidateExpressionRequest struct {
	RuleType   validation.RuleType `json:"ruleType" example:"Range"`
	Expression string              `json:"expression" example:"18..65"`
}

// ValidateExpressionResponse reports the authoring-time check outcome.
type ValidateExpressionResponse struct {
	Valid bool `json:"valid"`
}

// RuleBody is the writable part of a validation rule.
type RuleBody struct {
	EntityType     string              `json:"entityType" example:"Assignment"`
	FieldName      string              `json:"fieldName,omitempty" example:"AllocationPct"`
	Name           string              `json:"name" example:"Allocation within limits"`
	Description    string              `json:"description,omitempty"`
	RuleType       validation.RuleType `json:"ruleType" example:"Range"`
	Severity       validation.Severity `json:"severity" example:"Error"`
	Expression     string              `json:"expression" example:"0..200"`
	Conditions     string              `json:"conditions,omitempty" example:"Status == Active"`
	ErrorMessage   string              `json:"errorMessage" example:"{field} must be between {min} and {max}, got {value}"`
	ExecutionOrder int                 `json:"executionOrder" example:"10"`
	Active         bool                `json:"active" example:"true"`
	Metadata       string              `json:"metadata,omitempty"`
}

// RulesListResponse wraps the rules list.
type RulesListResponse struct {
	Rules []*validation.Rule `json:"rules"`
}

// ErrorResponse is the error envelope for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid rule expression"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

func (b RuleBody) toRule(tenantID, id string) *validation.Rule {
	severity := b.Severity
	if severity == "" {
		severity = validation.SeverityError
	}
	return &validation.Rule{
		ID:             id,
		TenantID:       tenantID,
		EntityType:     b.EntityType,
		FieldName:      b.FieldName,
		Name:           b.Name,
		Description:    b.Description,
		RuleType:       b.RuleType,
		Severity:       severity,
		Expression:     b.Expression,
		Conditions:     b.Conditions,
		ErrorMessage:   b.ErrorMessage,
		ExecutionOrder: b.ExecutionOrder,
		Active:         b.Active,
		Metadata:       b.Metadata,
	}
}
