package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbaird/ontology-sub000/internal/schema"
	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/unify"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

const baseDoc = `apiVersion: v1
kind: Package
name: base
definitions:
  Money:
    closed: true
    fields:
      amount: {type: int, required: true}
      currency: {type: string, required: true}
`

func parse(t *testing.T, doc string) *schema.Package {
	t.Helper()
	pkg, err := schema.ParseBytes([]byte(doc))
	require.NoError(t, err)
	return pkg
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name       string
		docs       []string
		kind       ErrorKind
		location   types.Location
		message    string
		suggestion string
	}{
		{
			name:     "duplicate package",
			docs:     []string{baseDoc, baseDoc},
			kind:     KindDuplicatePackage,
			location: types.Location{Package: "base"},
			message:  "package base is already defined in <memory>",
		},
		{
			name: "unknown import",
			docs: []string{baseDoc, `apiVersion: v1
kind: Package
name: billing
imports: [bse]
definitions:
  Total: {fields: {amount: int}}
`},
			kind:       KindUnknownImport,
			location:   types.Location{Package: "billing"},
			message:    "imported package bse is not loaded",
			suggestion: "did you mean 'base'?",
		},
		{
			name: "import cycle",
			docs: []string{
				"apiVersion: v1\nkind: Package\nname: a\nimports: [b]\n",
				"apiVersion: v1\nkind: Package\nname: b\nimports: [a]\n",
			},
			kind:     KindImportCycle,
			location: types.Location{Package: "a"},
			message:  "a -> b -> a",
		},
		{
			name: "unresolved qualified reference",
			docs: []string{baseDoc, `apiVersion: v1
kind: Package
name: billing
imports: [base]
definitions:
  Payment: base.Mony
`},
			kind:       KindUnresolved,
			location:   types.Location{Package: "billing", Definition: "Payment"},
			message:    "Mony is not defined in package base",
			suggestion: "did you mean 'Money'?",
		},
		{
			name: "unqualified reference to an imported definition",
			docs: []string{baseDoc, `apiVersion: v1
kind: Package
name: billing
imports: [base]
definitions:
  Payment: {fields: {total: Money}}
`},
			kind:       KindUnresolved,
			location:   types.Location{Package: "billing", Definition: "Payment"},
			message:    "Money is not defined in package billing",
			suggestion: "use 'base.Money'",
		},
		{
			name: "reference into a package that is not imported",
			docs: []string{baseDoc, `apiVersion: v1
kind: Package
name: billing
definitions:
  Payment: base.Money
`},
			kind:       KindNotImported,
			location:   types.Location{Package: "billing", Definition: "Payment"},
			message:    "reference base.Money points into package base, which billing does not import",
			suggestion: "add 'base' to imports",
		},
		{
			name: "alias cycle",
			docs: []string{`apiVersion: v1
kind: Package
name: loop
definitions:
  A: B
  B: {one_of: [A, null]}
`},
			kind:     KindAliasCycle,
			location: types.Location{Package: "loop", Definition: "A"},
			message:  "definitions refer to each other without adding structure: loop.A -> loop.B -> loop.A",
		},
		{
			name: "predicate field lost after composition",
			docs: []string{`apiVersion: v1
kind: Package
name: cards
definitions:
  Base: {fields: {kind: string}}
  Card:
    all_of:
      - Base
      - fields: {number: string}
        when: {field: knd, equals: card, then: {fields: {number: {type: string, required: true}}}}
`},
			kind:       KindPredicateField,
			location:   types.Location{Package: "cards", Definition: "Card"},
			message:    `condition knd=="card" tests field knd, which the struct at the root does not declare`,
			suggestion: "did you mean 'kind'?",
		},
		{
			name: "composition conflict",
			docs: []string{`apiVersion: v1
kind: Package
name: sizes
definitions:
  Small: {type: int, max: 5}
  Big: {all_of: [Small, {type: int, min: 10}]}
  Bigger: {all_of: [Big, {type: int, max: 100}]}
`},
			kind:     KindConflict,
			location: types.Location{Package: "sizes", Definition: "Big"},
		},
		{
			name: "machine bound to a missing imported entity",
			docs: []string{baseDoc, `apiVersion: v1
kind: Package
name: billing
imports: [base]
machines:
  Flow:
    entity: base.Invoice
    field: status
    transitions: {open: []}
`},
			kind:     KindLint,
			location: types.Location{Package: "billing", Definition: "Flow"},
			message:  "entity base.Invoice is not defined",
		},
		{
			name: "machine field missing from a composed entity",
			docs: []string{baseDoc, `apiVersion: v1
kind: Package
name: billing
imports: [base]
definitions:
  Payment: {all_of: [base.Money, {fields: {note: string}}]}
machines:
  Flow:
    entity: Payment
    field: status
    transitions: {open: []}
`},
			kind:     KindLint,
			location: types.Location{Package: "billing", Definition: "Flow"},
			message:  "entity billing.Payment has no field status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkgs := make([]*schema.Package, len(tt.docs))
			for i, doc := range tt.docs {
				pkgs[i] = parse(t, doc)
			}

			g, err := Build(pkgs...)
			assert.Nil(t, g)
			errs := LoadErrors(err)
			require.Len(t, errs, 1, "errors: %v", err)

			le := errs[0]
			assert.Equal(t, tt.kind, le.Kind)
			assert.Equal(t, tt.location, le.Location)
			if tt.message != "" {
				assert.Equal(t, tt.message, le.Message)
			}
			assert.Equal(t, tt.suggestion, le.Suggestion)
		})
	}
}

func TestBuildCollectsIndependentErrors(t *testing.T) {
	_, err := Build(parse(t, `apiVersion: v1
kind: Package
name: shop
definitions:
  Order: {fields: {total: Prce, sku: Sku}}
  Price: {type: int, min: 0}
  Cart: {fields: {owner: people.User}}
`))

	errs := LoadErrors(err)
	require.Len(t, errs, 3)
	assert.Equal(t, KindUnresolved, errs[0].Kind)
	assert.Equal(t, "did you mean 'Price'?", errs[0].Suggestion)
	assert.Equal(t, KindUnresolved, errs[1].Kind)
	assert.Equal(t, KindNotImported, errs[2].Kind)
	assert.Contains(t, err.Error(), "found 3 load errors")
}

func TestBuildRecursiveDefinitions(t *testing.T) {
	g, err := Build(parse(t, `apiVersion: v1
kind: Package
name: tree
definitions:
  Node:
    fields:
      label: {type: string, required: true}
      children: {items: Node}
  Expr:
    one_of:
      - {type: number}
      - fields: {left: Expr, right: Expr}
`))
	require.NoError(t, err)

	node, ok := g.Effective("tree.Node")
	require.True(t, ok)
	assert.Equal(t, "{children?: [ref(tree.Node)], label!: string}", types.Canonical(node))

	r, err := g.Ref("Expr")
	require.NoError(t, err)
	e, err := unify.New(g).Resolve(r)
	require.NoError(t, err)
	_, isUnion := e.(*types.Union)
	assert.True(t, isUnion)
}

func TestGraphResolver(t *testing.T) {
	other := `apiVersion: v1
kind: Package
name: ledger
definitions:
  Money: {type: int}
`
	g, err := Build(parse(t, baseDoc), parse(t, other))
	require.NoError(t, err)

	_, err = g.Qualify("Money")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous: base.Money, ledger.Money")

	q, err := g.Qualify("ledger.Money")
	require.NoError(t, err)
	assert.Equal(t, "ledger.Money", q)

	_, err = g.Qualify("Mony")
	assert.ErrorContains(t, err, "did you mean Money?")

	_, ok := g.Lookup(&types.Ref{Name: "Money"})
	assert.False(t, ok)
	e, ok := g.Lookup(&types.Ref{Package: "ledger", Name: "Money"})
	require.True(t, ok)
	assert.True(t, e.(*types.Atom).Accepts(value.Int(3)))
}

func TestDependencyOrdering(t *testing.T) {
	tests := []struct {
		name     string
		edges    map[string][]string
		expected []string
		cycle    []string
	}{
		{
			name:     "import before importer",
			edges:    map[string][]string{"billing": {"base"}, "base": nil},
			expected: []string{"base", "billing"},
		},
		{
			name:     "diamond",
			edges:    map[string][]string{"app": {"billing", "people"}, "billing": {"base"}, "people": {"base"}, "base": nil},
			expected: []string{"base", "billing", "people", "app"},
		},
		{
			name:  "circular dependency",
			edges: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			cycle: []string{"a", "b", "c", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewDependencyGraph()
			for name := range tt.edges {
				g.AddNode(name)
			}
			for name, deps := range tt.edges {
				for _, d := range deps {
					g.AddEdge(name, d)
				}
			}

			sorted, err := g.TopologicalSort()
			if tt.cycle != nil {
				var ce *CycleError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, tt.cycle, ce.Path)
				has, msg := g.HasCircularDependency()
				assert.True(t, has)
				assert.Equal(t, "import cycle: a -> b -> c -> a", msg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sorted)
		})
	}
}
