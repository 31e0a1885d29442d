// Package unify computes the meet of two type expressions. The result admits
// exactly the values both operands admit; an empty meet is a *ConflictError.
package unify

import (
	"fmt"
	"math"

	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// maxDepth bounds structural recursion through non-reference nodes
const maxDepth = 512

// Resolver looks up named definitions
type Resolver interface {
	Lookup(ref *types.Ref) (types.Expr, bool)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(ref *types.Ref) (types.Expr, bool)

// Lookup calls f
func (f ResolverFunc) Lookup(ref *types.Ref) (types.Expr, bool) { return f(ref) }

// Definitions is a Resolver over a fixed map keyed by qualified name
type Definitions map[string]types.Expr

// Lookup implements Resolver
func (d Definitions) Lookup(ref *types.Ref) (types.Expr, bool) {
	e, ok := d[ref.QualifiedName()]
	return e, ok
}

type memoEntry struct {
	expr types.Expr
	err  error
}

// Unifier computes greatest lower bounds of type expressions. A Unifier
// memoizes composite results by node identity and is not safe for concurrent
// use; create one per evaluation.
type Unifier struct {
	resolver   Resolver
	location   types.Location
	memo       map[*types.Composite]memoEntry
	inProgress map[string]bool
	depth      int
}

// New creates a unifier over r. A nil resolver fails every reference.
func New(r Resolver) *Unifier {
	if r == nil {
		r = Definitions(nil)
	}
	return &Unifier{
		resolver:   r,
		memo:       make(map[*types.Composite]memoEntry),
		inProgress: make(map[string]bool),
	}
}

// At sets the location reported in errors
func (u *Unifier) At(loc types.Location) *Unifier {
	u.location = loc
	return u
}

// Unify is a convenience wrapper creating a fresh Unifier
func Unify(r Resolver, a, b types.Expr) (types.Expr, error) {
	return New(r).Unify(a, b)
}

// Unify returns the most general expression satisfying both a and b, or a
// *ConflictError when no value can satisfy both
func (u *Unifier) Unify(a, b types.Expr) (types.Expr, error) {
	return u.unify(a, b, "")
}

// Fold unifies exprs left to right. An empty list yields an open empty struct.
func (u *Unifier) Fold(exprs ...types.Expr) (types.Expr, error) {
	if len(exprs) == 0 {
		return &types.Struct{}, nil
	}
	acc := exprs[0]
	for _, e := range exprs[1:] {
		var err error
		if acc, err = u.Unify(acc, e); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Resolve forces the head of e: references are looked up and composites are
// unified until the result is an atom, struct, list, union, or conditional
func (u *Unifier) Resolve(e types.Expr) (types.Expr, error) {
	seen := map[string]bool{}
	for {
		switch t := e.(type) {
		case *types.Ref:
			name := t.QualifiedName()
			if seen[name] {
				return nil, &ConflictError{Location: u.location, Reason: fmt.Sprintf("reference cycle through %s", name)}
			}
			seen[name] = true
			next, err := u.lookup(t)
			if err != nil {
				return nil, err
			}
			e = next
		case *types.Composite:
			next, err := u.composite(t, "")
			if err != nil {
				return nil, err
			}
			if next == e {
				return e, nil
			}
			e = next
		default:
			return e, nil
		}
	}
}

func (u *Unifier) lookup(ref *types.Ref) (types.Expr, error) {
	e, ok := u.resolver.Lookup(ref)
	if !ok {
		return nil, &UnresolvedError{Location: u.location, Ref: ref.QualifiedName()}
	}
	return e, nil
}

func (u *Unifier) conflict(path, format string, args ...any) error {
	return &ConflictError{Location: u.location, Path: path, Reason: fmt.Sprintf(format, args...)}
}

func identity(e types.Expr) string {
	if r, ok := e.(*types.Ref); ok {
		return "ref:" + r.QualifiedName()
	}
	return fmt.Sprintf("%p", e)
}

func (u *Unifier) unify(a, b types.Expr, path string) (types.Expr, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if a == b {
		return a, nil
	}

	u.depth++
	defer func() { u.depth-- }()
	if u.depth > maxDepth {
		return nil, u.conflict(path, "expression nesting exceeds %d levels", maxDepth)
	}

	// References and composites are forced one hop at a time. A pair that is
	// already being unified further up the stack is a recursive type; its
	// result is left as an unevaluated composite.
	if needsForce(a) || needsForce(b) {
		ra, aRef := a.(*types.Ref)
		rb, bRef := b.(*types.Ref)
		if aRef && bRef && ra.QualifiedName() == rb.QualifiedName() {
			return a, nil
		}
		key := identity(a) + "&" + identity(b)
		if u.inProgress[key] {
			return &types.Composite{Left: a, Right: b}, nil
		}
		u.inProgress[key] = true
		defer delete(u.inProgress, key)

		fa, err := u.force(a, path)
		if err != nil {
			return nil, err
		}
		fb, err := u.force(b, path)
		if err != nil {
			return nil, err
		}
		return u.unify(fa, fb, path)
	}

	if c, ok := a.(*types.Conditional); ok {
		a = &types.Struct{Conditionals: []*types.Conditional{c}}
	}
	if c, ok := b.(*types.Conditional); ok {
		b = &types.Struct{Conditionals: []*types.Conditional{c}}
	}

	if ua, ok := a.(*types.Union); ok {
		return u.distribute(ua, b, path)
	}
	if ub, ok := b.(*types.Union); ok {
		return u.distribute(ub, a, path)
	}

	switch ta := a.(type) {
	case *types.Atom:
		if tb, ok := b.(*types.Atom); ok {
			return u.atoms(ta, tb, path)
		}
	case *types.Struct:
		if tb, ok := b.(*types.Struct); ok {
			return u.structs(ta, tb, path)
		}
	case *types.List:
		if tb, ok := b.(*types.List); ok {
			return u.lists(ta, tb, path)
		}
	}
	return nil, u.conflict(path, "cannot unify %s with %s", describe(a), describe(b))
}

func needsForce(e types.Expr) bool {
	switch e.(type) {
	case *types.Ref, *types.Composite:
		return true
	}
	return false
}

func (u *Unifier) force(e types.Expr, path string) (types.Expr, error) {
	switch t := e.(type) {
	case *types.Ref:
		return u.lookup(t)
	case *types.Composite:
		return u.composite(t, path)
	}
	return e, nil
}

func (u *Unifier) composite(c *types.Composite, path string) (types.Expr, error) {
	if m, ok := u.memo[c]; ok {
		return m.expr, m.err
	}
	r, err := u.unify(c.Left, c.Right, path)
	if err == nil && c.Close {
		r = Close(r)
	}
	u.memo[c] = memoEntry{expr: r, err: err}
	return r, err
}

// Close returns e with every struct at its head marked closed
func Close(e types.Expr) types.Expr {
	switch t := e.(type) {
	case *types.Struct:
		if t.Closed {
			return t
		}
		cp := *t
		cp.Closed = true
		return &cp
	case *types.Union:
		alts := make([]types.Expr, len(t.Alternatives))
		for i, a := range t.Alternatives {
			alts[i] = Close(a)
		}
		return &types.Union{Alternatives: alts}
	case *types.Conditional:
		return &types.Struct{Closed: true, Conditionals: []*types.Conditional{t}}
	case *types.Composite:
		cp := *t
		cp.Close = true
		return &cp
	case *types.Ref:
		return &types.Composite{Left: t, Right: &types.Struct{}, Close: true}
	}
	return e
}

func (u *Unifier) distribute(un *types.Union, other types.Expr, path string) (types.Expr, error) {
	var results []types.Expr
	var firstConflict error
	for _, alt := range un.Alternatives {
		r, err := u.unify(alt, other, path)
		if err != nil {
			if !IsConflict(err) {
				return nil, err
			}
			if firstConflict == nil {
				firstConflict = err
			}
			continue
		}
		results = append(results, r)
	}
	if len(results) == 0 {
		return nil, u.conflict(path, "no alternative of %s is compatible with %s (%v)", describe(un), describe(other), firstConflict)
	}
	r := types.NewUnion(results...)
	merged, ok := r.(*types.Union)
	if !ok {
		return r, nil
	}
	return types.NewUnion(absorb(merged.Alternatives)...), nil
}

func (u *Unifier) atoms(a, b *types.Atom, path string) (types.Expr, error) {
	if a.Kind != b.Kind {
		return nil, u.conflict(path, "kind mismatch: %s vs %s", a.TypeName(), b.TypeName())
	}

	r := &types.Atom{
		Kind:     a.Kind,
		Integer:  a.Integer || b.Integer,
		Min:      tighterLower(a.Min, b.Min),
		Max:      tighterUpper(a.Max, b.Max),
		Patterns: types.NormalizePatterns(append(append([]string(nil), a.Patterns...), b.Patterns...)),
		Dynamic:  types.NormalizeDynamic(append(append([]types.DynamicBound(nil), a.Dynamic...), b.Dynamic...)),
	}
	if emptyRange(r) {
		return nil, u.conflict(path, "empty range: %s and %s have no common value", a, b)
	}

	r.MinLength = maxIntPtr(a.MinLength, b.MinLength)
	r.MaxLength = minIntPtr(a.MaxLength, b.MaxLength)
	if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
		return nil, u.conflict(path, "empty length range: min %d > max %d", *r.MinLength, *r.MaxLength)
	}

	var lits []value.Value
	switch {
	case a.Literals != nil && b.Literals != nil:
		lits = []value.Value{}
		for _, l := range a.Literals {
			if b.Accepts(l) {
				lits = append(lits, l)
			}
		}
	case a.Literals != nil:
		lits = a.Literals
	case b.Literals != nil:
		lits = b.Literals
	}
	if lits != nil {
		kept := []value.Value{}
		for _, l := range lits {
			if r.Accepts(l) {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			return nil, u.conflict(path, "no literal satisfies both %s and %s", a, b)
		}
		r.Literals = types.NormalizeLiterals(kept)
	}
	return r, nil
}

func tighterLower(a, b *types.Bound) *types.Bound {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.Value > b.Value:
		return a
	case b.Value > a.Value:
		return b
	}
	return &types.Bound{Value: a.Value, Exclusive: a.Exclusive || b.Exclusive}
}

func tighterUpper(a, b *types.Bound) *types.Bound {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.Value < b.Value:
		return a
	case b.Value < a.Value:
		return b
	}
	return &types.Bound{Value: a.Value, Exclusive: a.Exclusive || b.Exclusive}
}

func emptyRange(a *types.Atom) bool {
	if a.Min == nil || a.Max == nil {
		return false
	}
	lo, hi := a.Min.Value, a.Max.Value
	if a.Integer {
		l := math.Ceil(lo)
		if a.Min.Exclusive && l == lo {
			l++
		}
		h := math.Floor(hi)
		if a.Max.Exclusive && h == hi {
			h--
		}
		return l > h
	}
	if lo > hi {
		return true
	}
	return lo == hi && (a.Min.Exclusive || a.Max.Exclusive)
}

func maxIntPtr(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	}
	return b
}

func minIntPtr(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a <= *b:
		return a
	}
	return b
}

func (u *Unifier) structs(a, b *types.Struct, path string) (types.Expr, error) {
	r := &types.Struct{Closed: a.Closed || b.Closed}

	for _, fa := range a.Fields {
		fp := joinPath(path, fa.Name)
		fb, inB := b.Field(fa.Name)
		if !inB {
			if b.Closed {
				if fa.Required {
					return nil, u.conflict(fp, "required field %q is not allowed by a closed struct", fa.Name)
				}
				continue
			}
			r.Fields = append(r.Fields, fa)
			continue
		}
		t, err := u.unify(fa.Type, fb.Type, fp)
		if err != nil {
			return nil, err
		}
		def, err := mergeDefaults(fa.Default, fb.Default)
		if err != nil {
			return nil, u.conflict(fp, "%v", err)
		}
		r.Fields = append(r.Fields, types.FieldSpec{
			Name:     fa.Name,
			Type:     t,
			Required: fa.Required || fb.Required,
			Default:  def,
		})
	}
	for _, fb := range b.Fields {
		if _, inA := a.Field(fb.Name); inA {
			continue
		}
		if a.Closed {
			if fb.Required {
				return nil, u.conflict(joinPath(path, fb.Name), "required field %q is not allowed by a closed struct", fb.Name)
			}
			continue
		}
		r.Fields = append(r.Fields, fb)
	}

	seen := map[string]bool{}
	for _, c := range append(append([]*types.Conditional(nil), a.Conditionals...), b.Conditionals...) {
		key := types.Canonical(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		r.Conditionals = append(r.Conditionals, c)
	}
	return r, nil
}

func mergeDefaults(a, b *value.Value) (*value.Value, error) {
	switch {
	case a == nil:
		return b, nil
	case b == nil:
		return a, nil
	case value.Equal(*a, *b):
		return a, nil
	}
	return nil, fmt.Errorf("conflicting defaults %s and %s", a, b)
}

func (u *Unifier) lists(a, b *types.List, path string) (types.Expr, error) {
	elem, err := u.unify(a.Elem, b.Elem, path+"[]")
	if err != nil {
		return nil, err
	}
	r := &types.List{
		Elem:     elem,
		MinItems: maxIntPtr(a.MinItems, b.MinItems),
		MaxItems: minIntPtr(a.MaxItems, b.MaxItems),
	}
	if r.MinItems != nil && r.MaxItems != nil && *r.MinItems > *r.MaxItems {
		return nil, u.conflict(path, "empty item count range: min %d > max %d", *r.MinItems, *r.MaxItems)
	}
	return r, nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func describe(e types.Expr) string {
	switch t := e.(type) {
	case *types.Atom:
		return t.TypeName()
	case *types.Struct:
		if t.Closed {
			return "closed struct"
		}
		return "struct"
	case *types.List:
		return "list"
	case *types.Union:
		return "union"
	case *types.Ref:
		return t.QualifiedName()
	}
	return types.Canonical(e)
}
