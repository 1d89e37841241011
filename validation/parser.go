package validation

import (
	"regexp"
	"strings"
)

// identPattern is what a field reference must look like. Rule authoring
// rejects anything else before it can reach an expression.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const maxIdentLen = 100

// ValidFieldName reports whether name is usable as a field reference.
func ValidFieldName(name string) bool {
	return len(name) > 0 && len(name) <= maxIdentLen && identPattern.MatchString(name)
}

// Compile parses expression text under the grammar selected by ruleType and
// returns the typed AST. Compilation happens once per rule, at cache-build
// or authoring time; evaluation only ever sees a compiled Node.
func Compile(ruleType RuleType, expression string) (Node, error) {
	switch ruleType {
	case RuleTypeRequired:
		// Semantics are fixed; the stored expression is ignored.
		return RequiredNode{}, nil
	case RuleTypeRange:
		return compileRange(expression)
	case RuleTypeRegex:
		return compileRegex(expression)
	case RuleTypeComparison:
		return compileComparison(expression)
	case RuleTypeCrossField:
		return compileCrossField(expression)
	case RuleTypeExpression:
		return compileBoolExpr(expression)
	}
	return nil, compileErrorf(0, "unknown rule type %q", ruleType)
}

// CompileConditions compiles a rule's applicability conditions. Conditions
// always use the Expression grammar, whatever the rule's own type.
func CompileConditions(conditions string) (Node, error) {
	if strings.TrimSpace(conditions) == "" {
		return nil, nil
	}
	return compileBoolExpr(conditions)
}

// ValidateExpression is the authoring-time entry point: it reports whether
// Compile would accept the pair, and never panics. The admin layer calls it
// before persisting a rule so unparsable expressions are rejected with a
// client error instead of being stored.
func ValidateExpression(ruleType RuleType, expression string) bool {
	_, err := Compile(ruleType, expression)
	return err == nil
}

func compileRegex(expression string) (Node, error) {
	pattern := strings.TrimSpace(expression)
	if pattern == "" {
		return nil, compileErrorf(0, "regex pattern is empty")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, compileErrorf(0, "invalid regex: %v", err)
	}
	return RegexNode{Pattern: pattern, re: re}, nil
}

func compileRange(expression string) (Node, error) {
	p, err := newParser(expression)
	if err != nil {
		return nil, err
	}
	rng, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return rng, nil
}

func compileComparison(expression string) (Node, error) {
	p, err := newParser(expression)
	if err != nil {
		return nil, err
	}
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return CompareNode{Op: op, Lit: &lit}, nil
}

func compileCrossField(expression string) (Node, error) {
	p, err := newParser(expression)
	if err != nil {
		return nil, err
	}
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	other, err := p.parseFieldRef()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return CompareNode{Op: op, OtherField: other}, nil
}

func compileBoolExpr(expression string) (Node, error) {
	p, err := newParser(expression)
	if err != nil {
		return nil, err
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return node, nil
}

// parser is a recursive-descent parser with one token of lookahead.
type parser struct {
	lex *lexer
	tok token
}

func newParser(src string) (*parser, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) expectEOF() error {
	if p.tok.kind != tokEOF {
		return compileErrorf(p.tok.pos, "unexpected %q after end of expression", p.tok.text)
	}
	return nil
}

// keyword matches the current token against a grammar keyword,
// case-insensitively.
func (p *parser) keyword(word string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, word)
}

func (p *parser) parseOp() (CompareOp, error) {
	if p.tok.kind != tokOp {
		return "", compileErrorf(p.tok.pos, "expected comparison operator, got %q", p.tok.text)
	}
	op := CompareOp(p.tok.text)
	if err := p.advance(); err != nil {
		return "", err
	}
	return op, nil
}

// parseLiteral accepts a number, quoted string, date, true/false, null, or
// a bare identifier, which is shorthand for a string literal.
func (p *parser) parseLiteral() (Value, error) {
	tok := p.tok
	var v Value
	switch tok.kind {
	case tokNumber:
		v = NumberValue(tok.num)
	case tokString:
		v = StringValue(tok.text)
	case tokDate:
		v = DateValue(tok.date)
	case tokIdent:
		switch strings.ToLower(tok.text) {
		case "true":
			v = BoolValue(true)
		case "false":
			v = BoolValue(false)
		case "null":
			v = Null()
		default:
			v = StringValue(tok.text)
		}
	default:
		return Value{}, compileErrorf(tok.pos, "expected a literal, got %q", tok.text)
	}
	if err := p.advance(); err != nil {
		return Value{}, err
	}
	return v, nil
}

// parseFieldRef parses `field:<name>`.
func (p *parser) parseFieldRef() (string, error) {
	if !p.keyword("field") {
		return "", compileErrorf(p.tok.pos, "expected field reference (field:<name>), got %q", p.tok.text)
	}
	if err := p.advance(); err != nil {
		return "", err
	}
	if p.tok.kind != tokColon {
		return "", compileErrorf(p.tok.pos, "expected ':' after \"field\"")
	}
	if err := p.advance(); err != nil {
		return "", err
	}
	if p.tok.kind != tokIdent {
		return "", compileErrorf(p.tok.pos, "expected field name after \"field:\"")
	}
	name := p.tok.text
	if !ValidFieldName(name) {
		return "", compileErrorf(p.tok.pos, "invalid field name %q", name)
	}
	if err := p.advance(); err != nil {
		return "", err
	}
	return name, nil
}

// parseRange parses `min..max`, `min..` or `..max` with numeric or date
// bounds.
func (p *parser) parseRange() (RangeNode, error) {
	var rng RangeNode
	if p.tok.kind == tokNumber || p.tok.kind == tokDate {
		lit, err := p.parseLiteral()
		if err != nil {
			return rng, err
		}
		rng.Min = &lit
	}
	if p.tok.kind != tokDotDot {
		return rng, compileErrorf(p.tok.pos, "expected \"..\" in range")
	}
	if err := p.advance(); err != nil {
		return rng, err
	}
	if p.tok.kind == tokNumber || p.tok.kind == tokDate {
		lit, err := p.parseLiteral()
		if err != nil {
			return rng, err
		}
		rng.Max = &lit
	}
	if rng.Min == nil && rng.Max == nil {
		return rng, compileErrorf(0, "range needs at least one bound")
	}
	if rng.Min != nil && rng.Max != nil {
		if rng.Min.Kind() != rng.Max.Kind() {
			return rng, compileErrorf(0, "range bounds must be the same kind (%s vs %s)", rng.Min.Kind(), rng.Max.Kind())
		}
		ok, err := compareValues(OpLe, *rng.Min, *rng.Max)
		if err != nil || !ok {
			return rng, compileErrorf(0, "range minimum exceeds maximum")
		}
	}
	return rng, nil
}

// Expression grammar, lowest precedence first:
//
//	or      := and { OR and }
//	and     := unary { AND unary }
//	unary   := NOT unary | "(" or ")" | predicate
//	predicate := fieldref (op operand | MATCHES string | IN range)
//	fieldref  := IDENT | "field" ":" IDENT
//	operand   := literal | "field" ":" IDENT
//
// A bare identifier on the right-hand side of an operator is a string
// literal, so `Status == Active` compares against the string "Active";
// use `field:Other` to compare against another field's value.
func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = OrNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = AndNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.keyword("not") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return NotNode{Expr: expr}, nil
	}
	if p.tok.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, compileErrorf(p.tok.pos, "expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (Node, error) {
	field, err := p.parseLeftField()
	if err != nil {
		return nil, err
	}

	switch {
	case p.tok.kind == tokOp:
		op, err := p.parseOp()
		if err != nil {
			return nil, err
		}
		if p.keyword("field") {
			other, err := p.parseFieldRef()
			if err != nil {
				return nil, err
			}
			return CompareNode{Op: op, Field: field, OtherField: other}, nil
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return CompareNode{Op: op, Field: field, Lit: &lit}, nil

	case p.keyword("matches"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokString {
			return nil, compileErrorf(p.tok.pos, "MATCHES needs a quoted pattern")
		}
		re, err := regexp.Compile(p.tok.text)
		if err != nil {
			return nil, compileErrorf(p.tok.pos, "invalid regex: %v", err)
		}
		node := MatchNode{Field: field, Pattern: p.tok.text, re: re}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil

	case p.keyword("in"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		rng, err := p.parseRange()
		if err != nil {
			return nil, err
		}
		return InRangeNode{Field: field, Range: rng}, nil
	}
	return nil, compileErrorf(p.tok.pos, "expected an operator, MATCHES or IN after %q", field)
}

// parseLeftField parses the left-hand side of a predicate, which must be a
// field reference: either a bare identifier or the explicit field:<name>
// form.
func (p *parser) parseLeftField() (string, error) {
	if p.tok.kind != tokIdent {
		return "", compileErrorf(p.tok.pos, "expected a field name, got %q", p.tok.text)
	}
	if p.keyword("field") {
		// Peek past "field": only the explicit form uses a colon.
		save := *p.lex
		tok := p.tok
		if err := p.advance(); err != nil {
			return "", err
		}
		if p.tok.kind == tokColon {
			*p.lex = save
			p.tok = tok
			return p.parseFieldRef()
		}
		*p.lex = save
		p.tok = tok
	}
	name := p.tok.text
	if !ValidFieldName(name) {
		return "", compileErrorf(p.tok.pos, "invalid field name %q", name)
	}
	if err := p.advance(); err != nil {
		return "", err
	}
	return name, nil
}
