package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/myscheduling/validation/internal/config"
	"github.com/myscheduling/validation/validation"
)

const testTenant = "tenant-1"

func newTestServer() *Server {
	return NewServerWithStore(validation.NewInMemoryRuleStore(), &config.Config{
		RequestTimeout: 60 * time.Second,
	})
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return out
}

func createRule(t *testing.T, server *Server, body RuleBody) validation.Rule {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/api/v1/tenants/"+testTenant+"/rules/", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[validation.Rule](t, rec)
}

func ageRuleBody() RuleBody {
	return RuleBody{
		EntityType:   "Employee",
		FieldName:    "Age",
		Name:         "age-range",
		RuleType:     validation.RuleTypeRange,
		Severity:     validation.SeverityError,
		Expression:   "18..65",
		ErrorMessage: "{field} must be between {min} and {max}",
		Active:       true,
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer()
	rec := doJSON(t, server, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	if resp := decode[HealthResponse](t, rec); resp.Status != "healthy" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestValidateEndpoint(t *testing.T) {
	server := newTestServer()
	createRule(t, server, ageRuleBody())

	rec := doJSON(t, server, http.MethodPost, "/api/v1/validate", ValidateRequest{
		TenantID:   testTenant,
		EntityType: "Employee",
		Data:       map[string]any{"Age": 17},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: status %d, body %s", rec.Code, rec.Body.String())
	}
	result := decode[validation.Result](t, rec)
	if result.Valid {
		t.Error("expected an invalid result")
	}
	if len(result.Issues) != 1 || result.Issues[0].Message != "Age must be between 18 and 65" {
		t.Errorf("unexpected issues %v", result.Issues)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/validate", ValidateRequest{
		TenantID:   testTenant,
		EntityType: "Employee",
		Data:       map[string]any{"Age": 30},
	})
	result = decode[validation.Result](t, rec)
	if !result.Valid || len(result.Issues) != 0 {
		t.Errorf("expected a clean result, got %v", result.Issues)
	}
}

func TestValidateEndpointRejectsBadRequests(t *testing.T) {
	server := newTestServer()

	testCases := []struct {
		name string
		body ValidateRequest
	}{
		{"missing tenant", ValidateRequest{EntityType: "Employee", Data: map[string]any{}}},
		{"missing entity type", ValidateRequest{TenantID: testTenant, Data: map[string]any{}}},
		{"missing data", ValidateRequest{TenantID: testTenant, EntityType: "Employee"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, server, http.MethodPost, "/api/v1/validate", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400", rec.Code)
			}
		})
	}
}

func TestValidateFieldEndpoint(t *testing.T) {
	server := newTestServer()
	createRule(t, server, ageRuleBody())
	nameRule := ageRuleBody()
	nameRule.FieldName = "Name"
	nameRule.RuleType = validation.RuleTypeRequired
	nameRule.Expression = ""
	nameRule.ErrorMessage = "{field} is required"
	createRule(t, server, nameRule)

	// Only the Age rule may run, and the pending value wins over the data.
	rec := doJSON(t, server, http.MethodPost, "/api/v1/validate-field", ValidateFieldRequest{
		TenantID:   testTenant,
		EntityType: "Employee",
		FieldName:  "Age",
		FieldValue: 17,
		Data:       map[string]any{"Age": 30, "Name": ""},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate-field: status %d, body %s", rec.Code, rec.Body.String())
	}
	result := decode[validation.Result](t, rec)
	if result.Valid {
		t.Error("pending value should fail the range rule")
	}
	if len(result.Issues) != 1 || result.Issues[0].FieldName != "Age" {
		t.Errorf("only the Age rule should have run, got %v", result.Issues)
	}
}

func TestTestRuleEndpoint(t *testing.T) {
	server := newTestServer()

	rec := doJSON(t, server, http.MethodPost, "/api/v1/rules/test", TestRuleRequest{
		Rule:     ageRuleBody(),
		TestData: map[string]any{"Age": 17},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rules/test: status %d, body %s", rec.Code, rec.Body.String())
	}
	result := decode[validation.Result](t, rec)
	if result.Valid {
		t.Error("preview should fail for an out-of-range value")
	}

	// Previews never persist anything.
	rec = doJSON(t, server, http.MethodGet,
		"/api/v1/tenants/"+testTenant+"/rules/?entityType=Employee", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if list := decode[RulesListResponse](t, rec); len(list.Rules) != 0 {
		t.Errorf("preview must not persist rules, got %v", list.Rules)
	}
}

func TestValidateExpressionEndpoint(t *testing.T) {
	server := newTestServer()

	rec := doJSON(t, server, http.MethodPost, "/api/v1/expression/validate", ValidateExpressionRequest{
		RuleType:   validation.RuleTypeRange,
		Expression: "18..65",
	})
	if resp := decode[ValidateExpressionResponse](t, rec); !resp.Valid {
		t.Error("valid expression reported invalid")
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/expression/validate", ValidateExpressionRequest{
		RuleType:   validation.RuleTypeRange,
		Expression: "65..18",
	})
	if resp := decode[ValidateExpressionResponse](t, rec); resp.Valid {
		t.Error("invalid expression reported valid")
	}
}

func TestRuleCRUDEndpoints(t *testing.T) {
	server := newTestServer()
	created := createRule(t, server, ageRuleBody())
	base := "/api/v1/tenants/" + testTenant + "/rules/"

	rec := doJSON(t, server, http.MethodGet, base+created.ID+"/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	if got := decode[validation.Rule](t, rec); got.Name != "age-range" {
		t.Errorf("unexpected rule %+v", got)
	}

	update := ageRuleBody()
	update.Expression = "21..70"
	rec = doJSON(t, server, http.MethodPut, base+created.ID+"/", update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[validation.Rule](t, rec); got.Expression != "21..70" {
		t.Errorf("update not applied: %+v", got)
	}

	rec = doJSON(t, server, http.MethodDelete, base+created.ID+"/", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, base+created.ID+"/", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestCreateRuleRejectsBadBodies(t *testing.T) {
	server := newTestServer()

	mutate := func(f func(*RuleBody)) RuleBody {
		body := ageRuleBody()
		f(&body)
		return body
	}

	testCases := []struct {
		name string
		body RuleBody
	}{
		{"missing entity type", mutate(func(b *RuleBody) { b.EntityType = "" })},
		{"missing rule type", mutate(func(b *RuleBody) { b.RuleType = "" })},
		{"bad field name", mutate(func(b *RuleBody) { b.FieldName = "has space" })},
		{"bad severity", mutate(func(b *RuleBody) { b.Severity = "Fatal" })},
		{"bad expression", mutate(func(b *RuleBody) { b.Expression = "65..18" })},
		{"bad conditions", mutate(func(b *RuleBody) { b.Conditions = "Status ==" })},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, server, http.MethodPost, "/api/v1/tenants/"+testTenant+"/rules/", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestActivateEndpointInvalidatesCache(t *testing.T) {
	server := newTestServer()
	created := createRule(t, server, ageRuleBody())

	validate := func() validation.Result {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/validate", ValidateRequest{
			TenantID:   testTenant,
			EntityType: "Employee",
			Data:       map[string]any{"Age": 17},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("validate: status %d", rec.Code)
		}
		return decode[validation.Result](t, rec)
	}

	if result := validate(); result.Valid {
		t.Fatal("rule should fail while active")
	}

	rec := doJSON(t, server, http.MethodPost,
		"/api/v1/tenants/"+testTenant+"/rules/"+created.ID+"/activate",
		map[string]any{"active": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: status %d, body %s", rec.Code, rec.Body.String())
	}

	if result := validate(); !result.Valid {
		t.Error("deactivating a rule must take effect on the next validation")
	}
}

func TestRuleEndpointsTenantScoping(t *testing.T) {
	server := newTestServer()
	created := createRule(t, server, ageRuleBody())

	rec := doJSON(t, server, http.MethodGet, "/api/v1/tenants/other-tenant/rules/"+created.ID+"/", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-tenant get: status %d, want 404", rec.Code)
	}
	rec = doJSON(t, server, http.MethodDelete, "/api/v1/tenants/other-tenant/rules/"+created.ID+"/", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-tenant delete: status %d, want 404", rec.Code)
	}
}
