package validation

import (
	"strings"
	"testing"
)

// TestCompileAcceptsValidExpressions covers every grammar with expressions
// that must compile.
func TestCompileAcceptsValidExpressions(t *testing.T) {
	testCases := []struct {
		name       string
		ruleType   RuleType
		expression string
	}{
		{"Required empty", RuleTypeRequired, ""},
		{"Required text ignored", RuleTypeRequired, "anything goes here"},
		{"Range closed", RuleTypeRange, "18..65"},
		{"Range open max", RuleTypeRange, "18.."},
		{"Range open min", RuleTypeRange, "..65"},
		{"Range decimals", RuleTypeRange, "0.5..99.9"},
		{"Range negative", RuleTypeRange, "-10..10"},
		{"Range dates", RuleTypeRange, "2024-01-01..2024-12-31"},
		{"Regex simple", RuleTypeRegex, `^[A-Z]{3}-\d{4}$`},
		{"Regex anchored email", RuleTypeRegex, `^[^@\s]+@[^@\s]+$`},
		{"Comparison number", RuleTypeComparison, ">= 18"},
		{"Comparison negative", RuleTypeComparison, "> -5"},
		{"Comparison string", RuleTypeComparison, `== "Approved"`},
		{"Comparison bareword", RuleTypeComparison, "== Approved"},
		{"Comparison date", RuleTypeComparison, "<= 2030-01-01"},
		{"Comparison bool", RuleTypeComparison, "== true"},
		{"Comparison null", RuleTypeComparison, "!= null"},
		{"CrossField", RuleTypeCrossField, "<= field:EndDate"},
		{"CrossField spaces", RuleTypeCrossField, "  !=   field:ManagerId "},
		{"Expression comparison", RuleTypeExpression, "AllocationPct <= 200"},
		{"Expression and", RuleTypeExpression, "StartDate <= field:EndDate AND AllocationPct <= 200"},
		{"Expression or not", RuleTypeExpression, "Status == Active OR NOT Archived == true"},
		{"Expression parens", RuleTypeExpression, "(Status == Active OR Status == Draft) AND Hours > 0"},
		{"Expression matches", RuleTypeExpression, `Code MATCHES "^[A-Z]{3}-\d{4}$"`},
		{"Expression in range", RuleTypeExpression, "Age IN 18..65"},
		{"Expression in open range", RuleTypeExpression, "Age IN 18.."},
		{"Expression null check", RuleTypeExpression, "ManagerId != null"},
		{"Expression explicit field ref", RuleTypeExpression, "field:StartDate <= field:EndDate"},
		{"Expression lowercase keywords", RuleTypeExpression, "Status == Active and Hours > 0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			node, err := Compile(tc.ruleType, tc.expression)
			if err != nil {
				t.Fatalf("Compile(%s, %q) failed: %v", tc.ruleType, tc.expression, err)
			}
			if node == nil {
				t.Fatalf("Compile(%s, %q) returned nil node", tc.ruleType, tc.expression)
			}
		})
	}
}

// TestCompileRejectsInvalidExpressions verifies malformed input is rejected
// at authoring time with a descriptive error.
func TestCompileRejectsInvalidExpressions(t *testing.T) {
	testCases := []struct {
		name       string
		ruleType   RuleType
		expression string
	}{
		{"Range no bounds", RuleTypeRange, ".."},
		{"Range missing dots", RuleTypeRange, "18 65"},
		{"Range string bound", RuleTypeRange, `"a".."z"`},
		{"Range mixed kinds", RuleTypeRange, "18..2024-01-01"},
		{"Range inverted", RuleTypeRange, "65..18"},
		{"Range trailing garbage", RuleTypeRange, "18..65 extra"},
		{"Regex empty", RuleTypeRegex, "   "},
		{"Regex unclosed class", RuleTypeRegex, "[a-z"},
		{"Comparison missing operand", RuleTypeComparison, ">="},
		{"Comparison missing operator", RuleTypeComparison, "18"},
		{"Comparison single equals", RuleTypeComparison, "= 18"},
		{"Comparison trailing garbage", RuleTypeComparison, ">= 18 19"},
		{"CrossField literal", RuleTypeCrossField, "<= 18"},
		{"CrossField missing colon", RuleTypeCrossField, "<= field EndDate"},
		{"CrossField missing name", RuleTypeCrossField, "<= field:"},
		{"Expression dangling and", RuleTypeExpression, "Status == Active AND"},
		{"Expression unclosed paren", RuleTypeExpression, "(Status == Active"},
		{"Expression bare field", RuleTypeExpression, "Status"},
		{"Expression matches unquoted", RuleTypeExpression, "Code MATCHES abc"},
		{"Expression matches bad regex", RuleTypeExpression, `Code MATCHES "["`},
		{"Expression literal lhs", RuleTypeExpression, `18 <= Age`},
		{"Unknown rule type", RuleType("External"), "{}"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.ruleType, tc.expression)
			if err == nil {
				t.Fatalf("Compile(%s, %q) should fail", tc.ruleType, tc.expression)
			}
			if err.Error() == "" {
				t.Error("error message should be descriptive")
			}
		})
	}
}

// TestValidateExpressionMatchesCompile verifies the authoring-time check
// and the compiler agree on every input, valid or not.
func TestValidateExpressionMatchesCompile(t *testing.T) {
	testCases := []struct {
		ruleType   RuleType
		expression string
	}{
		{RuleTypeRequired, ""},
		{RuleTypeRange, "18..65"},
		{RuleTypeRange, "65..18"},
		{RuleTypeRegex, `^\d+$`},
		{RuleTypeRegex, "["},
		{RuleTypeComparison, ">= 18"},
		{RuleTypeComparison, ">="},
		{RuleTypeCrossField, "<= field:EndDate"},
		{RuleTypeCrossField, "<="},
		{RuleTypeExpression, "Status == Active AND Hours > 0"},
		{RuleTypeExpression, "Status =="},
		{RuleType("Unknown"), "true"},
	}

	for _, tc := range testCases {
		_, err := Compile(tc.ruleType, tc.expression)
		valid := ValidateExpression(tc.ruleType, tc.expression)
		if valid != (err == nil) {
			t.Errorf("ValidateExpression(%s, %q) = %v, but Compile error = %v",
				tc.ruleType, tc.expression, valid, err)
		}
	}
}

// TestStringLiteralEscapes verifies quoted strings keep regex escape
// sequences intact: only quotes and the backslash itself are escapes, so
// \d, \s and friends reach the compiled pattern unchanged.
func TestStringLiteralEscapes(t *testing.T) {
	node, err := Compile(RuleTypeExpression, `Code MATCHES "^\d+$"`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	match, ok := node.(MatchNode)
	if !ok {
		t.Fatalf("expected a MatchNode, got %T", node)
	}
	if match.Pattern != `^\d+$` {
		t.Fatalf("pattern corrupted: got %q, want %q", match.Pattern, `^\d+$`)
	}

	got, err := evalNode(node, Null(), toValues(map[string]any{"Code": "12345"}))
	if err != nil {
		t.Fatalf("evalNode failed: %v", err)
	}
	if !got {
		t.Error(`"12345" should match ^\d+$`)
	}
	got, err = evalNode(node, Null(), toValues(map[string]any{"Code": "ddd"}))
	if err != nil {
		t.Fatalf("evalNode failed: %v", err)
	}
	if got {
		t.Error(`"ddd" must not match ^\d+$`)
	}

	node, err = Compile(RuleTypeComparison, `== "say \"hi\""`)
	if err != nil {
		t.Fatalf("escaped quote should compile: %v", err)
	}
	cmp, ok := node.(CompareNode)
	if !ok || cmp.Lit == nil {
		t.Fatalf("expected a CompareNode with a literal, got %T", node)
	}
	if cmp.Lit.text() != `say "hi"` {
		t.Errorf("escaped quote mishandled: got %q", cmp.Lit.text())
	}

	node, err = Compile(RuleTypeComparison, `== "a\\b"`)
	if err != nil {
		t.Fatalf("escaped backslash should compile: %v", err)
	}
	if lit := node.(CompareNode).Lit.text(); lit != `a\b` {
		t.Errorf("escaped backslash mishandled: got %q", lit)
	}
}

// TestCompileErrorPosition verifies parse errors carry a position.
func TestCompileErrorPosition(t *testing.T) {
	_, err := Compile(RuleTypeExpression, "Status == Active ??")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.Contains(err.Error(), "position") {
		t.Errorf("error should mention a position, got %q", err.Error())
	}
}

// TestCompileConditions verifies conditions always use the Expression
// grammar and that empty conditions compile to nil.
func TestCompileConditions(t *testing.T) {
	node, err := CompileConditions("Status == Active")
	if err != nil {
		t.Fatalf("CompileConditions failed: %v", err)
	}
	if node == nil {
		t.Fatal("expected a compiled conditions node")
	}

	node, err = CompileConditions("   ")
	if err != nil {
		t.Fatalf("blank conditions should compile: %v", err)
	}
	if node != nil {
		t.Error("blank conditions should compile to nil")
	}

	if _, err := CompileConditions("Status =="); err == nil {
		t.Error("malformed conditions should fail to compile")
	}
}

// TestValidFieldName verifies the identifier rules used by rule authoring.
func TestValidFieldName(t *testing.T) {
	valid := []string{"StartDate", "_private", "a", "Field2", "snake_case"}
	invalid := []string{"", "2field", "has space", "has-dash", "a.b", strings.Repeat("x", 101)}

	for _, name := range valid {
		if !ValidFieldName(name) {
			t.Errorf("ValidFieldName(%q) = false, want true", name)
		}
	}
	for _, name := range invalid {
		if ValidFieldName(name) {
			t.Errorf("ValidFieldName(%q) = true, want false", name)
		}
	}
}
