package validation

import (
	"fmt"
	"strings"
)

// evalNode walks a compiled AST against the entity snapshot. target is the
// value of the rule's own field (Null for entity-level rules); predicates in
// the Expression grammar name their fields explicitly and ignore it.
//
// Evaluation never panics: anything that cannot be decided (an unresolvable
// coercion, an unknown node) comes back as an error for the caller to turn
// into a diagnostic issue.
func evalNode(n Node, target Value, data map[string]Value) (bool, error) {
	switch n := n.(type) {
	case RequiredNode:
		if target.IsNull() {
			return false, nil
		}
		if target.Kind() == KindString {
			return strings.TrimSpace(target.s) != "", nil
		}
		return true, nil

	case RangeNode:
		// Null passes: range rules only constrain present values, a
		// Required rule is the null check.
		if target.IsNull() {
			return true, nil
		}
		return checkRange(n, target)

	case RegexNode:
		if target.IsNull() {
			return true, nil
		}
		s := target.text()
		if s == "" {
			return true, nil
		}
		return n.re.MatchString(s), nil

	case CompareNode:
		left := target
		if n.Field != "" {
			left = lookup(data, n.Field)
		}
		var right Value
		if n.OtherField != "" {
			right = lookup(data, n.OtherField)
		} else {
			right = *n.Lit
		}
		return compareValues(n.Op, left, right)

	case MatchNode:
		v := lookup(data, n.Field)
		if v.IsNull() {
			return false, nil
		}
		return n.re.MatchString(v.text()), nil

	case InRangeNode:
		v := lookup(data, n.Field)
		if v.IsNull() {
			return false, nil
		}
		return checkRange(n.Range, v)

	case AndNode:
		left, err := evalNode(n.Left, target, data)
		if err != nil || !left {
			return false, err
		}
		return evalNode(n.Right, target, data)

	case OrNode:
		left, err := evalNode(n.Left, target, data)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return evalNode(n.Right, target, data)

	case NotNode:
		inner, err := evalNode(n.Expr, target, data)
		if err != nil {
			return false, err
		}
		return !inner, nil
	}
	return false, fmt.Errorf("unknown expression node %T", n)
}

// checkRange tests inclusive bounds after coercing the value to the kind of
// the bounds.
func checkRange(rng RangeNode, v Value) (bool, error) {
	if rng.Min != nil {
		ok, err := compareValues(OpGe, v, *rng.Min)
		if err != nil || !ok {
			return false, err
		}
	}
	if rng.Max != nil {
		ok, err := compareValues(OpLe, v, *rng.Max)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// isApplicable evaluates a rule's conditions against the entity snapshot.
// No conditions means the rule always applies. A condition that fails to
// evaluate makes the rule NOT applicable: a broken precondition must not
// force-apply a rule, and skipping it never crashes the caller.
func isApplicable(cr *CompiledRule, data map[string]Value) bool {
	if cr.Conditions == nil {
		return true
	}
	ok, err := evalNode(cr.Conditions, Null(), data)
	if err != nil {
		return false
	}
	return ok
}
