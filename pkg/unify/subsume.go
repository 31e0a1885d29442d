package unify

import (
	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// Subsumes reports whether every value accepted by specific is accepted by
// general. Both sides are expanded and compared structurally, one union
// alternative at a time; when that is inconclusive the meet general ⊓
// specific is compared with specific.
func Subsumes(r Resolver, general, specific types.Expr) (bool, error) {
	u := New(r)
	s, err := u.Expand(specific)
	if err != nil {
		return false, err
	}
	g, err := u.Expand(general)
	if err != nil {
		return false, err
	}
	if within(g, s, false) {
		return true, nil
	}

	m, err := u.Unify(g, s)
	if err != nil {
		if IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	m, err = u.Expand(m)
	if err != nil {
		return false, err
	}
	return types.Equal(m, s), nil
}

// absorb drops union alternatives another alternative already covers. Of
// two alternatives covering each other the first is kept. Alternatives are
// only dropped when evaluation through the survivor fills the same defaults.
func absorb(alts []types.Expr) []types.Expr {
	out := make([]types.Expr, 0, len(alts))
	for i, a := range alts {
		covered := false
		for j, b := range alts {
			if i == j || !within(b, a, true) {
				continue
			}
			if j < i || !within(a, b, true) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, a)
		}
	}
	return out
}

// within reports whether s admits no value g rejects. It answers false when
// it cannot tell. With fills set, s must also not fill a default g would not.
func within(g, s types.Expr, fills bool) bool {
	if types.Equal(g, s) {
		return true
	}

	if us, ok := s.(*types.Union); ok {
		for _, alt := range us.Alternatives {
			if !within(g, alt, fills) {
				return false
			}
		}
		return true
	}
	if ug, ok := g.(*types.Union); ok {
		for _, alt := range ug.Alternatives {
			if within(alt, s, fills) {
				return true
			}
		}
		return false
	}

	switch tg := g.(type) {
	case *types.Atom:
		if ts, ok := s.(*types.Atom); ok {
			return atomWithin(tg, ts)
		}
	case *types.Struct:
		if ts, ok := s.(*types.Struct); ok {
			return structWithin(tg, ts, fills)
		}
	case *types.List:
		if ts, ok := s.(*types.List); ok {
			return listWithin(tg, ts, fills)
		}
	}
	return false
}

func atomWithin(g, s *types.Atom) bool {
	if g.Kind != s.Kind || !dynamicWithin(g.Dynamic, s.Dynamic) {
		return false
	}
	if s.Literals != nil {
		for _, l := range s.Literals {
			if !g.Accepts(l) {
				return false
			}
		}
		return true
	}
	if g.Literals != nil || (g.Integer && !s.Integer) {
		return false
	}
	if !lowerWithin(g.Min, s.Min) || !upperWithin(g.Max, s.Max) {
		return false
	}
	if g.MinLength != nil && (s.MinLength == nil || *s.MinLength < *g.MinLength) {
		return false
	}
	if g.MaxLength != nil && (s.MaxLength == nil || *s.MaxLength > *g.MaxLength) {
		return false
	}
	for _, p := range g.Patterns {
		if !containsString(s.Patterns, p) {
			return false
		}
	}
	return true
}

func lowerWithin(g, s *types.Bound) bool {
	switch {
	case g == nil:
		return true
	case s == nil:
		return false
	case s.Value != g.Value:
		return s.Value > g.Value
	}
	return s.Exclusive || !g.Exclusive
}

func upperWithin(g, s *types.Bound) bool {
	switch {
	case g == nil:
		return true
	case s == nil:
		return false
	case s.Value != g.Value:
		return s.Value < g.Value
	}
	return s.Exclusive || !g.Exclusive
}

func dynamicWithin(g, s []types.DynamicBound) bool {
	for _, d := range g {
		found := false
		for _, e := range s {
			if e.Op == d.Op && e.Field.String() == d.Field.String() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func structWithin(g, s *types.Struct, fills bool) bool {
	if g.Closed {
		if !s.Closed {
			return false
		}
		for _, sf := range s.Fields {
			if _, ok := g.Field(sf.Name); !ok {
				return false
			}
		}
	}

	for _, gf := range g.Fields {
		sf, ok := s.Field(gf.Name)
		if !ok {
			// an open s admits the field with any value
			if mandatory(gf) || !s.Closed {
				return false
			}
			continue
		}
		if mandatory(gf) && !mandatory(sf) {
			return false
		}
		if fills && !sameDefault(gf.Default, sf.Default) {
			return false
		}
		if !within(gf.Type, sf.Type, fills) {
			return false
		}
	}
	if fills {
		for _, sf := range s.Fields {
			if _, ok := g.Field(sf.Name); !ok && sf.Default != nil {
				return false
			}
		}
	}

	if !conditionalsWithin(g.Conditionals, s.Conditionals) {
		return false
	}
	return !fills || conditionalsWithin(s.Conditionals, g.Conditionals)
}

// mandatory reports whether a value missing the field is rejected
func mandatory(f types.FieldSpec) bool {
	return f.Required && f.Default == nil
}

func sameDefault(a, b *value.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return value.Equal(*a, *b)
}

func conditionalsWithin(g, s []*types.Conditional) bool {
	for _, c := range g {
		key := types.Canonical(c)
		found := false
		for _, d := range s {
			if types.Canonical(d) == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func listWithin(g, s *types.List, fills bool) bool {
	if g.MinItems != nil && (s.MinItems == nil || *s.MinItems < *g.MinItems) {
		return false
	}
	if g.MaxItems != nil && (s.MaxItems == nil || *s.MaxItems > *g.MaxItems) {
		return false
	}
	return within(g.Elem, s.Elem, fills)
}
