package types

import (
	"fmt"
	"strings"

	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// PredicateOp selects how a conditional predicate tests its sibling field
type PredicateOp string

const (
	PredEquals    PredicateOp = "eq"
	PredNotEquals PredicateOp = "ne"
	PredIn        PredicateOp = "in"
	PredPresent   PredicateOp = "present"
	PredAbsent    PredicateOp = "absent"
)

// Predicate tests a field of the struct value currently being validated
type Predicate struct {
	Field  value.Path
	Op     PredicateOp
	Values []value.Value
}

// Equals builds `field == v`
func Equals(field string, v value.Value) Predicate {
	return Predicate{Field: value.MustParsePath(field), Op: PredEquals, Values: []value.Value{v}}
}

// In builds `field in [vs...]`
func In(field string, vs ...value.Value) Predicate {
	return Predicate{Field: value.MustParsePath(field), Op: PredIn, Values: NormalizeLiterals(vs)}
}

// Present builds `field is present`
func Present(field string) Predicate {
	return Predicate{Field: value.MustParsePath(field), Op: PredPresent}
}

// Holds evaluates the predicate against the enclosing struct value
func (p Predicate) Holds(enclosing value.Value) bool {
	got, ok := value.Lookup(enclosing, p.Field)
	switch p.Op {
	case PredPresent:
		return ok && !got.IsNull()
	case PredAbsent:
		return !ok || got.IsNull()
	case PredEquals, PredIn:
		return ok && containsLiteral(p.Values, got)
	case PredNotEquals:
		return !ok || !containsLiteral(p.Values, got)
	}
	return false
}

// String renders the predicate, e.g. `kind=="a"`
func (p Predicate) String() string {
	field := p.Field.String()
	switch p.Op {
	case PredPresent:
		return field + " present"
	case PredAbsent:
		return field + " absent"
	case PredEquals:
		return fmt.Sprintf("%s==%s", field, joinLiterals(p.Values))
	case PredNotEquals:
		return fmt.Sprintf("%s!=%s", field, joinLiterals(p.Values))
	case PredIn:
		return fmt.Sprintf("%s in [%s]", field, joinLiterals(p.Values))
	}
	return field + " " + string(p.Op)
}

func joinLiterals(vs []value.Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.Canonical()
	}
	return strings.Join(parts, ",")
}
