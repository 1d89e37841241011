package validation

import (
	"strconv"
	"time"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokDate
	tokOp
	tokDotDot
	tokLParen
	tokRParen
	tokColon
)

type token struct {
	kind tokenKind
	text string
	num  float64
	date time.Time
	pos  int
}

// lexer produces tokens for every rule grammar. It is deliberately small:
// identifiers, quoted strings, numbers, ISO-8601 date literals, the six
// comparison operators, parentheses, ':' and '..'.
type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == ':':
		l.pos++
		return token{kind: tokColon, text: ":", pos: start}, nil
	case c == '.':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '.' {
			l.pos += 2
			return token{kind: tokDotDot, text: "..", pos: start}, nil
		}
		return token{}, compileErrorf(start, "unexpected character %q", c)
	case c == '=':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokOp, text: "==", pos: start}, nil
		}
		return token{}, compileErrorf(start, "unexpected character %q (did you mean \"==\"?)", c)
	case c == '!':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokOp, text: "!=", pos: start}, nil
		}
		return token{}, compileErrorf(start, "unexpected character %q (did you mean \"!=\"?)", c)
	case c == '<' || c == '>':
		op := string(c)
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			op += "="
			l.pos++
		}
		return token{kind: tokOp, text: op, pos: start}, nil
	case c == '\'' || c == '"':
		return l.lexString(c)
	case isDigit(c) || (c == '-' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		return l.lexNumberOrDate()
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	}
	return token{}, compileErrorf(start, "unexpected character %q", c)
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var out []byte
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			// Only quotes and the backslash itself are escapes. Anything
			// else passes through intact so regex sequences like \d and \s
			// survive into the pattern.
			next := l.src[l.pos+1]
			if next == quote || next == '\\' || next == '\'' || next == '"' {
				out = append(out, next)
			} else {
				out = append(out, c, next)
			}
			l.pos += 2
			continue
		}
		if c == quote {
			l.pos++
			return token{kind: tokString, text: string(out), pos: start}, nil
		}
		out = append(out, c)
		l.pos++
	}
	return token{}, compileErrorf(start, "unterminated string literal")
}

// lexNumberOrDate disambiguates numbers from ISO-8601 dates. A date starts
// as four digits followed by "-dd-dd"; everything else is a number. The
// time part is only consumed after a literal 'T' so that "..": stays a
// range separator after a plain date.
func (l *lexer) lexNumberOrDate() (token, error) {
	start := l.pos
	if l.looksLikeDate() {
		return l.lexDate()
	}
	if l.src[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	text := l.src[start:l.pos]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, compileErrorf(start, "invalid number %q", text)
	}
	return token{kind: tokNumber, text: text, num: n, pos: start}, nil
}

func (l *lexer) looksLikeDate() bool {
	rest := l.src[l.pos:]
	if len(rest) < 10 {
		return false
	}
	for i, c := range []byte(rest[:10]) {
		if i == 4 || i == 7 {
			if c != '-' {
				return false
			}
		} else if !isDigit(c) {
			return false
		}
	}
	return true
}

func (l *lexer) lexDate() (token, error) {
	start := l.pos
	l.pos += 10 // yyyy-mm-dd
	if l.pos < len(l.src) && l.src[l.pos] == 'T' {
		l.pos++
		for l.pos < len(l.src) {
			c := l.src[l.pos]
			switch {
			case isDigit(c) || c == ':' || c == 'Z':
				l.pos++
			case (c == '.' || c == '+' || c == '-') && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
				l.pos++
			default:
				goto done
			}
		}
	}
done:
	text := l.src[start:l.pos]
	t, err := parseDate(text)
	if err != nil {
		return token{}, compileErrorf(start, "invalid date literal %q", text)
	}
	return token{kind: tokDate, text: text, date: t, pos: start}, nil
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
