package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the runtime type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindDate
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Value is the loosely-typed scalar used for entity field values and
// expression literals. The union is closed: every coercion between kinds is
// enumerated in coerce, nothing falls back to reflection.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	t    time.Time
	l    []Value
}

func Null() Value                 { return Value{kind: KindNull} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }
func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }
func StringValue(s string) Value  { return Value{kind: KindString, s: s} }
func DateValue(t time.Time) Value { return Value{kind: KindDate, t: t} }
func ListValue(l []Value) Value   { return Value{kind: KindList, l: l} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// ValueOf converts a caller-supplied entity field value into a Value.
// Strings in ISO-8601 date or date-time form become dates so that range and
// cross-field comparisons work on JSON payloads, where dates always arrive
// as strings. Nested objects are not addressable and map to Null.
func ValueOf(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		return BoolValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case time.Time:
		return DateValue(x)
	case string:
		if t, err := parseDate(x); err == nil {
			return DateValue(t)
		}
		return StringValue(x)
	case []any:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			items = append(items, ValueOf(item))
		}
		return ListValue(items)
	default:
		return Null()
	}
}

// parseDate accepts ISO-8601 only: a plain date, or a date-time with or
// without a zone offset. Anything else is not a date.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO-8601 date: %q", s)
}

// text renders the value for error messages and regex matching.
func (v Value) text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	case KindDate:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 {
			return v.t.Format("2006-01-02")
		}
		return v.t.Format(time.RFC3339)
	case KindList:
		parts := make([]string, 0, len(v.l))
		for _, item := range v.l {
			parts = append(parts, item.text())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return ""
}

// coerce converts v to the target kind. Number and date coercions from
// strings are strict: locale-invariant numeric parsing and ISO-8601 dates
// only. Bool never coerces implicitly.
func coerce(v Value, target Kind) (Value, error) {
	if v.kind == target {
		return v, nil
	}
	switch target {
	case KindNumber:
		if v.kind == KindString {
			n, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
			if err != nil {
				return Value{}, fmt.Errorf("cannot convert %q to number", v.s)
			}
			return NumberValue(n), nil
		}
	case KindDate:
		if v.kind == KindString {
			t, err := parseDate(strings.TrimSpace(v.s))
			if err != nil {
				return Value{}, fmt.Errorf("cannot convert %q to date", v.s)
			}
			return DateValue(t), nil
		}
	case KindString:
		switch v.kind {
		case KindNumber, KindDate:
			return StringValue(v.text()), nil
		}
	}
	return Value{}, fmt.Errorf("cannot convert %s to %s", v.kind, target)
}

// commonKind picks the kind both operands of a comparison are coerced to.
func commonKind(a, b Value) (Kind, error) {
	if a.kind == b.kind {
		return a.kind, nil
	}
	switch {
	case a.kind == KindNumber && b.kind == KindString,
		a.kind == KindString && b.kind == KindNumber:
		return KindNumber, nil
	case a.kind == KindDate && b.kind == KindString,
		a.kind == KindString && b.kind == KindDate:
		return KindDate, nil
	}
	return KindNull, fmt.Errorf("cannot compare %s with %s", a.kind, b.kind)
}

// compareValues applies op to a and b after coercing both to a common kind.
// Null operands short-circuit: equality treats two nulls as equal, every
// ordering operator on a null yields false rather than an error.
func compareValues(op CompareOp, a, b Value) (bool, error) {
	if a.IsNull() || b.IsNull() {
		eq := a.IsNull() && b.IsNull()
		switch op {
		case OpEq:
			return eq, nil
		case OpNe:
			return !eq, nil
		default:
			return false, nil
		}
	}

	kind, err := commonKind(a, b)
	if err != nil {
		return false, err
	}
	ca, err := coerce(a, kind)
	if err != nil {
		return false, err
	}
	cb, err := coerce(b, kind)
	if err != nil {
		return false, err
	}

	switch kind {
	case KindNumber:
		return compareOrdered(op, ca.n, cb.n)
	case KindString:
		return compareOrdered(op, ca.s, cb.s)
	case KindDate:
		switch op {
		case OpEq:
			return ca.t.Equal(cb.t), nil
		case OpNe:
			return !ca.t.Equal(cb.t), nil
		case OpLt:
			return ca.t.Before(cb.t), nil
		case OpLe:
			return !ca.t.After(cb.t), nil
		case OpGt:
			return ca.t.After(cb.t), nil
		case OpGe:
			return !ca.t.Before(cb.t), nil
		}
	case KindBool:
		switch op {
		case OpEq:
			return ca.b == cb.b, nil
		case OpNe:
			return ca.b != cb.b, nil
		}
		return false, fmt.Errorf("operator %s is not defined for bool", op)
	case KindList:
		return false, fmt.Errorf("operator %s is not defined for list", op)
	}
	return false, fmt.Errorf("unsupported comparison operator %s", op)
}

func compareOrdered[T float64 | string](op CompareOp, a, b T) (bool, error) {
	switch op {
	case OpEq:
		return a == b, nil
	case OpNe:
		return a != b, nil
	case OpLt:
		return a < b, nil
	case OpLe:
		return a <= b, nil
	case OpGt:
		return a > b, nil
	case OpGe:
		return a >= b, nil
	}
	return false, fmt.Errorf("unsupported comparison operator %s", op)
}

// toValues converts a caller-supplied entity data map into Values once per
// validation call.
func toValues(entityData map[string]any) map[string]Value {
	data := make(map[string]Value, len(entityData))
	for name, raw := range entityData {
		data[name] = ValueOf(raw)
	}
	return data
}

// lookup resolves a field reference. A missing key is Null, never an error.
func lookup(data map[string]Value, name string) Value {
	if v, ok := data[name]; ok {
		return v
	}
	return Null()
}
