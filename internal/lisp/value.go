// Package lisp implements the small homoiconic expression language used to
// compute boot-script text. Expressions are JSON-shaped trees decoded from
// the compose file; evaluation is pure and produces values of the same
// closed set of kinds.
package lisp

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
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
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is one node of an expression tree and, equally, the result of
// evaluating one. The set of kinds is closed; there are no user-defined
// types. Values are immutable after construction.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value

	// explicit marks a string produced by the str form. Explicit strings
	// are always literal text, never symbol references, which matters in
	// console pattern contexts.
	explicit bool
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a string value. Plain strings are resolved against the
// environment during evaluation and fall back to literal text when unbound.
func String(s string) Value { return Value{kind: KindString, str: s} }

// ExplicitString returns a string value exempt from symbol resolution.
func ExplicitString(s string) Value {
	return Value{kind: KindString, str: s, explicit: true}
}

// List returns a list value holding the given items.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Kind reports which variant the value holds.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload. Valid only for KindString.
func (v Value) Str() string { return v.str }

// Num returns the numeric payload. Valid only for KindNumber.
func (v Value) Num() float64 { return v.num }

// Int returns the numeric payload truncated to an int.
func (v Value) Int() int { return int(v.num) }

// IsBool returns the boolean payload. Valid only for KindBool.
func (v Value) IsBool() bool { return v.b }

// Items returns the list payload. Valid only for KindList.
func (v Value) Items() []Value { return v.list }

// Explicit reports whether the value is a str-tagged literal string.
func (v Value) Explicit() bool { return v.explicit }

// Truthy reports whether the value counts as true in conditionals:
// null and false are false, everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	default:
		return true
	}
}

// Equal reports deep structural equality, ignoring the explicit tag.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Text renders the value as plain text, the way str and format see it.
// Numbers drop a trailing ".0"; lists render space-separated in brackets.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(item.Text())
		}
		sb.WriteByte(']')
		return sb.String()
	}
	return ""
}

// FromAny converts a decoded YAML/JSON document into a Value tree. The
// compose loader parses expression trees once; the evaluator never sees
// raw decoder output.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case float32:
		return Number(float64(x)), nil
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, elem := range x {
			v, err := FromAny(elem)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			items = append(items, v)
		}
		return List(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported expression node of type %T", raw)
	}
}
