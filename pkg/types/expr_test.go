package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbaird/ontology-sub000/pkg/value"
)

func TestNewUnionCollapsesLiterals(t *testing.T) {
	u := Enum(value.String("b"), value.String("a"), value.String("b"))

	atom, ok := u.(*Atom)
	require.True(t, ok, "literal-only union of one kind should collapse to an atom")
	assert.Equal(t, KindString, atom.Kind)
	assert.Equal(t, `string(enum=["a","b"])`, Canonical(atom))
}

func TestNewUnionKeepsMixedKinds(t *testing.T) {
	u := NewUnion(Literal(value.String("a")), NewAtom(KindNull), Literal(value.String("b")))

	union, ok := u.(*Union)
	require.True(t, ok)
	assert.Len(t, union.Alternatives, 2)
	assert.Equal(t, `(null | string(enum=["a","b"]))`, Canonical(union))
}

func TestNewUnionFlattensAndDedups(t *testing.T) {
	inner := &Union{Alternatives: []Expr{Int(), NewAtom(KindBool)}}
	u := NewUnion(inner, Int(), NewAtom(KindString))

	union, ok := u.(*Union)
	require.True(t, ok)
	assert.Len(t, union.Alternatives, 3)
}

func TestCanonicalIgnoresFieldOrder(t *testing.T) {
	a := NewStruct(true, Required("x", Int()), Optional("y", NewAtom(KindString)))
	b := NewStruct(true, Optional("y", NewAtom(KindString)), Required("x", Int()))

	assert.True(t, Equal(a, b))
	assert.Equal(t, `close{x!: int, y?: string}`, Canonical(a))
}

func TestCanonicalDistinguishesRefinements(t *testing.T) {
	assert.False(t, Equal(Int().AtLeast(0), Int().AtLeast(1)))
	assert.False(t, Equal(Int(), NewAtom(KindNumber)))
	assert.Equal(t, `int(>=0,<=10)`, Canonical(Int().AtLeast(0).AtMost(10)))
}

func TestCanonicalConditionalMatchesStruct(t *testing.T) {
	c := When(Equals("kind", value.String("a")), NewStruct(false, Required("extra", NewAtom(KindString))))
	s := &Struct{Conditionals: []*Conditional{c}}

	assert.Equal(t, Canonical(s), Canonical(c))
	assert.Equal(t, `{if kind=="a" then {extra!: string}}`, Canonical(c))
}

func TestFingerprintStable(t *testing.T) {
	a := NewStruct(false, Required("amount", Int()))
	b := NewStruct(false, Required("amount", Int()))

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(NewStruct(true, Required("amount", Int()))))
}

func TestAtomCheck(t *testing.T) {
	money := NewAtom(KindString).Matching("^[A-Z]{3}$")
	money.MinLength = intPtr(3)

	tests := []struct {
		name  string
		atom  *Atom
		input value.Value
		rules []string
	}{
		{"kind mismatch only reports type", Int().AtLeast(0), value.String("x"), []string{RuleType}},
		{"below range", Int().AtLeast(0), value.Int(-5), []string{RuleRange}},
		{"not integer and out of range", Int().AtLeast(0), value.Number(-0.5), []string{RuleInteger, RuleRange}},
		{"exclusive bound", &Atom{Kind: KindNumber, Max: &Bound{Value: 5, Exclusive: true}}, value.Int(5), []string{RuleRange}},
		{"pattern and length", money, value.String("US"), []string{RuleLength, RulePattern}},
		{"passes", money, value.String("USD"), nil},
		{"literal set", Literal(value.String("a")), value.String("b"), []string{RuleEnum}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rules []string
			for _, f := range tt.atom.Check(tt.input) {
				rules = append(rules, f.Rule)
			}
			assert.Equal(t, tt.rules, rules)
		})
	}
}

func TestPredicateHolds(t *testing.T) {
	doc := value.Struct(value.F("kind", value.String("a")), value.F("note", value.Null()))

	assert.True(t, Equals("kind", value.String("a")).Holds(doc))
	assert.False(t, Equals("kind", value.String("b")).Holds(doc))
	assert.True(t, In("kind", value.String("b"), value.String("a")).Holds(doc))
	assert.True(t, Present("kind").Holds(doc))
	assert.False(t, Present("note").Holds(doc))
	assert.True(t, Predicate{Field: value.MustParsePath("missing"), Op: PredAbsent}.Holds(doc))
	assert.True(t, Predicate{Field: value.MustParsePath("kind"), Op: PredNotEquals, Values: []value.Value{value.String("b")}}.Holds(doc))
}

func TestParseRef(t *testing.T) {
	r, err := ParseRef("billing.Money")
	require.NoError(t, err)
	assert.Equal(t, &Ref{Package: "billing", Name: "Money"}, r)

	r, err = ParseRef("Money")
	require.NoError(t, err)
	assert.Equal(t, "Money", r.QualifiedName())

	_, err = ParseRef("a.b.c")
	assert.Error(t, err)
	_, err = ParseRef(".x")
	assert.Error(t, err)
}

func TestAllOfClosesLastComposite(t *testing.T) {
	e := AllOf(true, &Ref{Name: "A"}, &Ref{Name: "B"}, &Ref{Name: "C"})

	outer, ok := e.(*Composite)
	require.True(t, ok)
	assert.True(t, outer.Close)
	inner, ok := outer.Left.(*Composite)
	require.True(t, ok)
	assert.False(t, inner.Close)
}

func TestRefsWalk(t *testing.T) {
	e := NewStruct(false,
		Required("money", &Ref{Package: "base", Name: "Money"}),
		Optional("tags", NewList(&Ref{Name: "Tag"}, -1, -1)),
	)

	refs := Refs(e)
	require.Len(t, refs, 2)
	assert.Equal(t, "base.Money", refs[0].QualifiedName())
	assert.Equal(t, "Tag", refs[1].QualifiedName())

	var sites []string
	Walk(e, func(n Expr, site string) bool {
		if _, ok := n.(*Ref); ok {
			sites = append(sites, site)
		}
		return true
	})
	assert.Equal(t, []string{"money", "tags[]"}, sites)
}
