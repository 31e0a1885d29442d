package unify

import (
	"github.com/mattbaird/ontology-sub000/pkg/types"
)

// Expand resolves every reference and composite in e into a concrete tree.
// A reference reached again while it is being expanded stays a reference, so
// recursive types expand to a finite tree.
func (u *Unifier) Expand(e types.Expr) (types.Expr, error) {
	return u.expand(e, map[string]bool{})
}

func (u *Unifier) expand(e types.Expr, active map[string]bool) (types.Expr, error) {
	switch t := e.(type) {
	case nil:
		return nil, nil
	case *types.Atom:
		return t, nil
	case *types.Ref:
		name := t.QualifiedName()
		if active[name] {
			return t, nil
		}
		def, err := u.lookup(t)
		if err != nil {
			return nil, err
		}
		active[name] = true
		defer delete(active, name)
		return u.expand(def, active)
	case *types.Composite:
		key := identity(t.Left) + "&" + identity(t.Right)
		if active[key] {
			return t, nil
		}
		r, err := u.composite(t, "")
		if err != nil {
			return nil, err
		}
		if r == types.Expr(t) {
			return t, nil
		}
		active[key] = true
		defer delete(active, key)
		return u.expand(r, active)
	case *types.Struct:
		r := &types.Struct{Closed: t.Closed}
		for _, f := range t.Fields {
			ft, err := u.expand(f.Type, active)
			if err != nil {
				return nil, err
			}
			f.Type = ft
			r.Fields = append(r.Fields, f)
		}
		for _, c := range t.Conditionals {
			then, err := u.expand(c.Then, active)
			if err != nil {
				return nil, err
			}
			r.Conditionals = append(r.Conditionals, &types.Conditional{When: c.When, Then: then})
		}
		return r, nil
	case *types.List:
		elem, err := u.expand(t.Elem, active)
		if err != nil {
			return nil, err
		}
		return &types.List{Elem: elem, MinItems: t.MinItems, MaxItems: t.MaxItems}, nil
	case *types.Union:
		alts := make([]types.Expr, 0, len(t.Alternatives))
		for _, a := range t.Alternatives {
			x, err := u.expand(a, active)
			if err != nil {
				return nil, err
			}
			alts = append(alts, x)
		}
		return types.NewUnion(alts...), nil
	case *types.Conditional:
		then, err := u.expand(t.Then, active)
		if err != nil {
			return nil, err
		}
		return &types.Conditional{When: t.When, Then: then}, nil
	}
	return e, nil
}
