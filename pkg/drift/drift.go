// Package drift detects when a base package changes in a way that breaks the
// packages depending on it.
//
// Every reference from one package into another is checked at the site it
// is used, together with whatever the dependent composes it with. The old
// effective constraint must still hold against the new base: if every value
// the dependent accepted before is still accepted the reference is unchanged
// or widened, otherwise it is narrowed_incompatible.
package drift

import (
	"errors"
	"fmt"

	"github.com/mattbaird/ontology-sub000/pkg/resolver"
	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/unify"
)

// Class is the compatibility verdict for one reference
type Class string

const (
	Unchanged            Class = "unchanged"
	Widened              Class = "widened"
	NarrowedIncompatible Class = "narrowed_incompatible"
)

// Report describes one cross-package reference of a dependent definition
type Report struct {
	Package    string   `json:"package" yaml:"package"`
	Definition string   `json:"definition" yaml:"definition"`
	Reference  string   `json:"reference" yaml:"reference"`
	Site       string   `json:"site,omitempty" yaml:"site,omitempty"`
	Class      Class    `json:"class" yaml:"class"`
	Reason     string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Changes    []Change `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// Location names the dependent definition holding the reference
func (r Report) Location() types.Location {
	return types.Location{Package: r.Package, Definition: r.Definition}
}

func (r Report) String() string {
	at := r.Location().String()
	if r.Site != "" {
		at += "." + r.Site
	}
	msg := fmt.Sprintf("%s: %s via %s", r.Class, at, r.Reference)
	if r.Reason != "" {
		msg += ": " + r.Reason
	}
	return msg
}

// Incompatible filters reports down to narrowed references
func Incompatible(reports []Report) []Report {
	var out []Report
	for _, r := range reports {
		if r.Class == NarrowedIncompatible {
			out = append(out, r)
		}
	}
	return out
}

// usage is one cross-package reference and the expression it is composed in
type usage struct {
	ref  *types.Ref
	site string
	expr types.Expr
}

// usages lists references out of pkg in declaration order. A reference
// inside a chain of composites is checked together with the whole chain.
func usages(e types.Expr, pkg string) []usage {
	var out []usage
	seen := make(map[string]bool)
	var walk func(e types.Expr, site string, chain types.Expr)
	walk = func(e types.Expr, site string, chain types.Expr) {
		switch t := e.(type) {
		case *types.Ref:
			if t.Package == pkg || t.Package == "" {
				return
			}
			expr := chain
			if expr == nil {
				expr = t
			}
			key := t.QualifiedName() + "@" + site
			if !seen[key] {
				seen[key] = true
				out = append(out, usage{ref: t, site: site, expr: expr})
			}
		case *types.Composite:
			if chain == nil {
				chain = t
			}
			walk(t.Left, site, chain)
			walk(t.Right, site, chain)
		case *types.Struct:
			for _, f := range t.Fields {
				walk(f.Type, joinSite(site, f.Name), nil)
			}
			for _, c := range t.Conditionals {
				walk(c.Then, site, nil)
			}
		case *types.Conditional:
			walk(t.Then, site, nil)
		case *types.List:
			walk(t.Elem, site+"[]", nil)
		case *types.Union:
			for _, a := range t.Alternatives {
				walk(a, site, nil)
			}
		}
	}
	walk(e, "", nil)
	return out
}

func joinSite(site, name string) string {
	if site == "" {
		return name
	}
	return site + "." + name
}

// mixed resolves the dependent's own package against the old graph and every
// other package against the new one
type mixed struct {
	dependent string
	old, new  *resolver.Graph
}

func (m mixed) Lookup(ref *types.Ref) (types.Expr, bool) {
	if ref.Package == m.dependent {
		return m.old.Lookup(ref)
	}
	return m.new.Lookup(ref)
}

// Check compares every cross-package reference of old against the bases in
// next. Dependents are taken as they were in old; definitions that no longer
// exist in next are ignored.
func Check(old, next *resolver.Graph) []Report {
	var reports []Report
	for _, pkg := range old.Packages() {
		p, _ := old.Package(pkg)
		if _, still := next.Package(pkg); !still {
			continue
		}
		for _, d := range p.Definitions {
			q := pkg + "." + d.Name
			decl, ok := old.Definition(q)
			if !ok {
				continue
			}
			if _, still := next.Definition(q); !still {
				continue
			}
			for _, u := range usages(decl, pkg) {
				r := classify(old, next, mixed{dependent: pkg, old: old, new: next}, u)
				r.Package, r.Definition = pkg, d.Name
				reports = append(reports, r)
			}
		}
	}
	return reports
}

func classify(old, next *resolver.Graph, after unify.Resolver, u usage) Report {
	r := Report{Reference: u.ref.QualifiedName(), Site: u.site, Class: Unchanged}

	if sameBases(old, next, u.expr) {
		return r
	}

	before, err := unify.New(old).Expand(u.expr)
	if err != nil {
		// the old graph loaded, so its compositions cannot fail
		r.Class = NarrowedIncompatible
		r.Reason = err.Error()
		return r
	}

	oldBase, _ := old.Effective(r.Reference)
	newBase, ok := next.Effective(r.Reference)
	if !ok {
		r.Class = NarrowedIncompatible
		r.Reason = fmt.Sprintf("%s no longer exists", r.Reference)
		return r
	}
	r.Changes = Diff(oldBase, newBase)

	now, err := unify.New(after).Expand(u.expr)
	if err != nil {
		r.Class = NarrowedIncompatible
		var ce *unify.ConflictError
		if errors.As(err, &ce) {
			r.Reason = ce.Reason
			if ce.Path != "" {
				r.Reason = ce.Path + ": " + ce.Reason
			}
		} else {
			r.Reason = err.Error()
		}
		return r
	}

	if types.Equal(before, now) {
		r.Changes = nil
		return r
	}
	subsumed, err := unify.Subsumes(after, now, before)
	switch {
	case err != nil:
		r.Class = NarrowedIncompatible
		r.Reason = err.Error()
	case subsumed:
		r.Class = Widened
	default:
		r.Class = NarrowedIncompatible
		r.Reason = fmt.Sprintf("%s no longer accepts every value of %s", r.Reference, types.Canonical(before))
	}
	return r
}

// sameBases reports whether every cross-package definition reached from e
// has the same fingerprint in both graphs
func sameBases(old, next *resolver.Graph, e types.Expr) bool {
	for _, ref := range types.Refs(e) {
		a, okA := old.Fingerprint(ref.QualifiedName())
		b, okB := next.Fingerprint(ref.QualifiedName())
		if okA != okB || a != b {
			return false
		}
	}
	return true
}
