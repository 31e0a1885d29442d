package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindStruct
)

// String returns the lowercase name used in messages and documents
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
	case KindStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// Field is one name/value pair of a struct value
type Field struct {
	Name  string
	Value Value
}

// F is a convenience function for creating struct fields
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Value is an immutable tagged union. The zero Value is Null.
type Value struct {
	kind   Kind
	b      bool
	n      float64
	s      string
	items  []Value
	fields []Field
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps an integer as a number
func Int(i int64) Value { return Value{kind: KindNumber, n: float64(i)} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// List builds a list value from the given items
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, items: cp}
}

// Struct builds a struct value preserving field order. A later field with the
// same name replaces the earlier one in place.
func Struct(fields ...Field) Value {
	cp := make([]Field, 0, len(fields))
	for _, f := range fields {
		if i := indexOf(cp, f.Name); i >= 0 {
			cp[i].Value = f.Value
			continue
		}
		cp = append(cp, f)
	}
	return Value{kind: KindStruct, fields: cp}
}

// Kind returns the variant of v
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string payload
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// IsInteger reports whether v is a number without a fractional part
func (v Value) IsInteger() bool {
	return v.kind == KindNumber && !math.IsInf(v.n, 0) && v.n == math.Trunc(v.n)
}

// Len returns the number of list items or struct fields
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindStruct:
		return len(v.fields)
	case KindString:
		return len([]rune(v.s))
	}
	return 0
}

// Items returns a copy of the list items
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp
}

// Index returns the i-th list item
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.items) {
		return Value{}, false
	}
	return v.items[i], true
}

// Fields returns a copy of the struct fields in order
func (v Value) Fields() []Field {
	if v.kind != KindStruct {
		return nil
	}
	cp := make([]Field, len(v.fields))
	copy(cp, v.fields)
	return cp
}

// Names returns the struct field names in order
func (v Value) Names() []string {
	if v.kind != KindStruct {
		return nil
	}
	names := make([]string, len(v.fields))
	for i, f := range v.fields {
		names[i] = f.Name
	}
	return names
}

// Get returns the named struct field
func (v Value) Get(name string) (Value, bool) {
	if v.kind != KindStruct {
		return Value{}, false
	}
	if i := indexOf(v.fields, name); i >= 0 {
		return v.fields[i].Value, true
	}
	return Value{}, false
}

// Has reports whether the struct has the named field
func (v Value) Has(name string) bool {
	_, ok := v.Get(name)
	return ok
}

// With returns a copy of the struct with the named field set. New fields are
// appended after existing ones.
func (v Value) With(name string, field Value) Value {
	if v.kind != KindStruct {
		return v
	}
	cp := make([]Field, len(v.fields), len(v.fields)+1)
	copy(cp, v.fields)
	if i := indexOf(cp, name); i >= 0 {
		cp[i].Value = field
	} else {
		cp = append(cp, F(name, field))
	}
	return Value{kind: KindStruct, fields: cp}
}

func indexOf(fields []Field, name string) int {
	for i := range fields {
		if fields[i].Name == name {
			return i
		}
	}
	return -1
}

// Equal reports deep equality. Struct field order is not significant.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindStruct:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for _, f := range a.fields {
			other, ok := b.Get(f.Name)
			if !ok || !Equal(f.Value, other) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders values of the same kind. Values of different kinds order by kind.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return int(a.kind) - int(b.kind)
	}
	switch a.kind {
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindNumber:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(a.s, b.s)
	}
	return strings.Compare(a.String(), b.String())
}

// String renders v in a compact JSON-like form
func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb, false)
	return sb.String()
}

// Canonical renders v with struct fields sorted by name so that equal values
// render identically
func (v Value) Canonical() string {
	var sb strings.Builder
	v.write(&sb, true)
	return sb.String()
}

func (v Value) write(sb *strings.Builder, sorted bool) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		sb.WriteString(formatNumber(v.n))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.write(sb, sorted)
		}
		sb.WriteByte(']')
	case KindStruct:
		fields := v.fields
		if sorted {
			fields = v.Fields()
			sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		}
		sb.WriteByte('{')
		for i, f := range fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(f.Name))
			sb.WriteByte(':')
			f.Value.write(sb, sorted)
		}
		sb.WriteByte('}')
	}
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// GoString makes %#v output readable in test failures
func (v Value) GoString() string {
	return fmt.Sprintf("value.Value(%s)", v.String())
}
