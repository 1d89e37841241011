package validation

import "regexp"

// CompareOp is one of the six comparison operators shared by the
// Comparison, CrossField and Expression grammars.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Node is a compiled expression. The set of implementations is closed;
// the evaluator matches on every variant, so adding a rule type means
// adding a node here and a case there.
type Node interface {
	node()
}

// RequiredNode fails on Null and on strings that are empty after trimming.
type RequiredNode struct{}

// RangeNode checks inclusive bounds. A nil bound is open.
type RangeNode struct {
	Min *Value
	Max *Value
}

// RegexNode matches the target field's string form. The pattern is compiled
// at parse time so malformed patterns never reach evaluation.
type RegexNode struct {
	Pattern string
	re      *regexp.Regexp
}

// CompareNode covers three shapes:
//   - Comparison rules:  Field == "", Lit set        (`>= 18`)
//   - CrossField rules:  Field == "", OtherField set (`<= field:EndDate`)
//   - Expression predicates: Field names the left-hand side explicitly.
//
// Exactly one of Lit and OtherField is set.
type CompareNode struct {
	Op         CompareOp
	Field      string
	Lit        *Value
	OtherField string
}

// MatchNode is the Expression-grammar regex predicate: `Code MATCHES "..."`.
type MatchNode struct {
	Field   string
	Pattern string
	re      *regexp.Regexp
}

// InRangeNode is the Expression-grammar range predicate: `Age IN 18..65`.
type InRangeNode struct {
	Field string
	Range RangeNode
}

// AndNode and OrNode short-circuit left-to-right.
type AndNode struct{ Left, Right Node }
type OrNode struct{ Left, Right Node }
type NotNode struct{ Expr Node }

func (RequiredNode) node() {}
func (RangeNode) node()    {}
func (RegexNode) node()    {}
func (CompareNode) node()  {}
func (MatchNode) node()    {}
func (InRangeNode) node()  {}
func (AndNode) node()      {}
func (OrNode) node()       {}
func (NotNode) node()      {}
