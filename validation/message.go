package validation

import "strings"

// renderMessage fills in a rule's error message template. {field} and
// {value} are always available; {min}, {max}, {pattern} and {other} come
// from the compiled expression when the rule type defines them.
func renderMessage(rule *Rule, expr Node, value Value) string {
	template := rule.ErrorMessage
	if template == "" {
		template = "Validation failed for {field}"
	}

	field := rule.FieldName
	if field == "" {
		field = rule.EntityType
	}
	pairs := []string{
		"{field}", field,
		"{value}", value.text(),
	}

	switch n := expr.(type) {
	case RangeNode:
		pairs = append(pairs, rangePairs(n)...)
	case InRangeNode:
		pairs = append(pairs, rangePairs(n.Range)...)
	case RegexNode:
		pairs = append(pairs, "{pattern}", n.Pattern)
	case MatchNode:
		pairs = append(pairs, "{pattern}", n.Pattern)
	case CompareNode:
		if n.OtherField != "" {
			pairs = append(pairs, "{other}", n.OtherField)
		} else if n.Lit != nil {
			pairs = append(pairs, "{other}", n.Lit.text())
		}
	}

	return strings.NewReplacer(pairs...).Replace(template)
}

func rangePairs(rng RangeNode) []string {
	var pairs []string
	if rng.Min != nil {
		pairs = append(pairs, "{min}", rng.Min.text())
	}
	if rng.Max != nil {
		pairs = append(pairs, "{max}", rng.Max.text())
	}
	return pairs
}
