package types

import (
	"fmt"
	"strings"

	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// Expr is a node of the type expression graph. Nodes are immutable once a
// graph is built and are shared read-only between concurrent evaluations.
type Expr interface {
	isExpr()
	String() string
}

// FieldSpec declares one field of a Struct
type FieldSpec struct {
	Name     string
	Type     Expr
	Required bool
	Default  *value.Value
}

// Struct is an open or closed structural shape
type Struct struct {
	Fields       []FieldSpec
	Closed       bool
	Conditionals []*Conditional
}

// List constrains every element and the item count
type List struct {
	Elem     Expr
	MinItems *int
	MaxItems *int
}

// Union accepts a value satisfying at least one alternative
type Union struct {
	Alternatives []Expr
}

// Ref points at a named definition, possibly in another package. Refs are
// resolved through the graph, never inlined, so drift tracking keeps identity.
type Ref struct {
	Package string
	Name    string
}

// Conditional applies Then to the enclosing struct when When holds for the
// value under evaluation
type Conditional struct {
	When Predicate
	Then Expr
}

// Composite is an unevaluated unification of Left and Right. When Close is
// set the unified result is closed, which is how entities are declared.
type Composite struct {
	Left  Expr
	Right Expr
	Close bool
}

func (*Atom) isExpr()        {}
func (*Struct) isExpr()      {}
func (*List) isExpr()        {}
func (*Union) isExpr()       {}
func (*Ref) isExpr()         {}
func (*Conditional) isExpr() {}
func (*Composite) isExpr()   {}

func (a *Atom) String() string        { return Canonical(a) }
func (s *Struct) String() string      { return Canonical(s) }
func (l *List) String() string        { return Canonical(l) }
func (u *Union) String() string       { return Canonical(u) }
func (c *Conditional) String() string { return Canonical(c) }
func (c *Composite) String() string   { return Canonical(c) }

// String renders the qualified name
func (r *Ref) String() string { return r.QualifiedName() }

// QualifiedName returns "pkg.Name", or "Name" for an unqualified ref
func (r *Ref) QualifiedName() string {
	if r.Package == "" {
		return r.Name
	}
	return r.Package + "." + r.Name
}

// ParseRef splits "pkg.Name" into a Ref. An unqualified name yields an empty package.
func ParseRef(s string) (*Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty reference")
	}
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		return &Ref{Name: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid reference %q", s)
		}
		return &Ref{Package: parts[0], Name: parts[1]}, nil
	}
	return nil, fmt.Errorf("invalid reference %q: expected 'Name' or 'package.Name'", s)
}

// Field returns the named field spec
func (s *Struct) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldNames returns declared field names in declaration order
func (s *Struct) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// NewStruct builds a struct from field specs
func NewStruct(closed bool, fields ...FieldSpec) *Struct {
	cp := make([]FieldSpec, len(fields))
	copy(cp, fields)
	return &Struct{Fields: cp, Closed: closed}
}

// Required declares a required field
func Required(name string, t Expr) FieldSpec {
	return FieldSpec{Name: name, Type: t, Required: true}
}

// Optional declares an optional field
func Optional(name string, t Expr) FieldSpec {
	return FieldSpec{Name: name, Type: t}
}

// WithDefault declares an optional field that is filled with def when absent
func WithDefault(name string, t Expr, def value.Value) FieldSpec {
	return FieldSpec{Name: name, Type: t, Default: &def}
}

// NewList builds a list type; negative bounds mean unbounded
func NewList(elem Expr, minItems, maxItems int) *List {
	l := &List{Elem: elem}
	if minItems >= 0 {
		l.MinItems = &minItems
	}
	if maxItems >= 0 {
		l.MaxItems = &maxItems
	}
	return l
}

// NewComposite builds an unevaluated unification node
func NewComposite(left, right Expr) *Composite {
	return &Composite{Left: left, Right: right}
}

// AllOf folds exprs into a left-leaning chain of composites
func AllOf(close bool, exprs ...Expr) Expr {
	switch len(exprs) {
	case 0:
		return &Struct{Closed: close}
	case 1:
		if !close {
			return exprs[0]
		}
		return &Composite{Left: exprs[0], Right: &Struct{}, Close: true}
	}
	acc := exprs[0]
	for i, e := range exprs[1:] {
		acc = &Composite{Left: acc, Right: e, Close: close && i == len(exprs)-2}
	}
	return acc
}

// When builds a conditional
func When(p Predicate, then Expr) *Conditional {
	return &Conditional{When: p, Then: then}
}

// NewUnion flattens nested unions, removes duplicates, and merges literal-only
// atoms of the same kind into one atom with a literal set. It returns the
// single remaining alternative when only one is left.
func NewUnion(alts ...Expr) Expr {
	var flat []Expr
	var walk func(e Expr)
	walk = func(e Expr) {
		if u, ok := e.(*Union); ok {
			for _, a := range u.Alternatives {
				walk(a)
			}
			return
		}
		flat = append(flat, e)
	}
	for _, a := range alts {
		walk(a)
	}

	merged := make([]Expr, 0, len(flat))
	literalIdx := map[Kind]int{}
	seen := map[string]bool{}
	for _, e := range flat {
		if a, ok := e.(*Atom); ok && a.isLiteralOnly() {
			if i, ok := literalIdx[a.Kind]; ok {
				prev := merged[i].(*Atom)
				merged[i] = &Atom{Kind: prev.Kind, Literals: unionLiterals(prev.Literals, a.Literals)}
				continue
			}
			literalIdx[a.Kind] = len(merged)
			merged = append(merged, a)
			continue
		}
		key := Canonical(e)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, e)
	}

	if len(merged) == 1 {
		return merged[0]
	}
	return &Union{Alternatives: merged}
}

// Enum builds a union of literal values
func Enum(literals ...value.Value) Expr {
	alts := make([]Expr, 0, len(literals))
	for _, lit := range literals {
		alts = append(alts, Literal(lit))
	}
	return NewUnion(alts...)
}

// Location names the definition an error belongs to
type Location struct {
	Package    string `json:"package,omitempty" yaml:"package,omitempty"`
	Definition string `json:"definition,omitempty" yaml:"definition,omitempty"`
}

// String renders "pkg.Definition"
func (l Location) String() string {
	switch {
	case l.Package == "":
		return l.Definition
	case l.Definition == "":
		return l.Package
	}
	return l.Package + "." + l.Definition
}

// IsZero reports whether no location is set
func (l Location) IsZero() bool {
	return l.Package == "" && l.Definition == ""
}
