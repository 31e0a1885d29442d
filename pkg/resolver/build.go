package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/mattbaird/ontology-sub000/internal/schema"
	"github.com/mattbaird/ontology-sub000/pkg/statemachine"
	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/unify"
)

// Build links parsed packages into a Graph. Every problem found is reported;
// the returned error aggregates *LoadError values.
func Build(pkgs ...*schema.Package) (*Graph, error) {
	b := &builder{
		g: &Graph{
			packages:     make(map[string]*schema.Package),
			defs:         make(map[string]types.Expr),
			effective:    make(map[string]types.Expr),
			fingerprints: make(map[string]digest.Digest),
			sites:        make(map[string]site),
			machines:     make(map[string]*statemachine.Machine),
			entities:     make(map[string]string),
		},
		broken: make(map[string]bool),
	}

	b.index(pkgs)
	b.link()
	b.lint()
	b.qualifyAll()
	b.aliasCycles()
	b.expandAll()
	b.predicates()
	b.bindMachines()

	if b.errs.len() > 0 {
		return nil, b.errs.err()
	}
	b.seal()
	return b.g, nil
}

type builder struct {
	g      *Graph
	errs   errorList
	broken map[string]bool // definitions whose own expression failed to link
}

func sourceName(p *schema.Package) string {
	if p.Source == "" {
		return "<memory>"
	}
	return p.Source
}

func (b *builder) index(pkgs []*schema.Package) {
	for _, p := range pkgs {
		if prev, dup := b.g.packages[p.Name]; dup {
			b.errs.add(&LoadError{
				Location: types.Location{Package: p.Name},
				Kind:     KindDuplicatePackage,
				Message:  fmt.Sprintf("package %s is already defined in %s", p.Name, sourceName(prev)),
				Source:   p.Source,
				Line:     p.LineMap["name"],
			})
			continue
		}
		b.g.packages[p.Name] = p
	}
}

// link checks imports and orders packages
func (b *builder) link() {
	names := make([]string, 0, len(b.g.packages))
	for name := range b.g.packages {
		names = append(names, name)
	}
	sort.Strings(names)

	dg := NewDependencyGraph()
	for _, name := range names {
		dg.AddNode(name)
	}
	for _, name := range names {
		p := b.g.packages[name]
		for i, imp := range p.Imports {
			if _, ok := b.g.packages[imp]; !ok {
				b.errs.add(&LoadError{
					Location:   types.Location{Package: name},
					Kind:       KindUnknownImport,
					Message:    fmt.Sprintf("imported package %s is not loaded", imp),
					Suggestion: didYouMean(imp, names),
					Source:     p.Source,
					Line:       p.LineMap[fmt.Sprintf("imports.%d", i)],
				})
				continue
			}
			dg.AddEdge(name, imp)
		}
	}

	order, err := dg.TopologicalSort()
	var cycle *CycleError
	if errors.As(err, &cycle) {
		p := b.g.packages[cycle.Path[0]]
		b.errs.add(&LoadError{
			Location: types.Location{Package: p.Name},
			Kind:     KindImportCycle,
			Message:  strings.Join(cycle.Path, " -> "),
			Source:   p.Source,
			Line:     p.LineMap["imports"],
		})
		order = names
	}
	b.g.order = order
}

// lint runs the document lint pipeline; its errors fail the load and the
// rest is kept on the graph
func (b *builder) lint() {
	for _, name := range b.g.order {
		p := b.g.packages[name]
		result, err := schema.Lint(p)
		if err != nil {
			b.errs.add(&LoadError{Location: types.Location{Package: name}, Kind: KindLint, Message: err.Error(), Source: p.Source})
			continue
		}
		for _, le := range fromValidation(p.Source, result.Errors, KindLint, name) {
			b.errs.add(le)
		}
		for _, w := range result.Warnings {
			b.g.warnings = append(b.g.warnings, Warning{Package: name, Source: p.Source, Severity: "warning", ValidationError: w})
		}
		for _, i := range result.Infos {
			b.g.warnings = append(b.g.warnings, Warning{Package: name, Source: p.Source, Severity: "info", ValidationError: i})
		}
	}
}

// qualifyAll rewrites every reference to its qualified form
func (b *builder) qualifyAll() {
	for _, name := range b.g.order {
		p := b.g.packages[name]
		for _, d := range p.Definitions {
			q := name + "." + d.Name
			loc := types.Location{Package: name, Definition: d.Name}
			if _, dup := b.g.defs[q]; dup {
				b.errs.add(&LoadError{
					Location: loc,
					Kind:     KindDuplicateDefinition,
					Message:  fmt.Sprintf("definition %s is declared twice", d.Name),
					Source:   p.Source,
					Line:     d.Line,
				})
				continue
			}
			b.g.sites[q] = site{location: loc, source: p.Source, line: d.Line}
			expr, ok := b.qualify(p, d)
			b.g.defs[q] = expr
			if !ok {
				b.broken[q] = true
			}
		}
	}
}

func (b *builder) qualify(p *schema.Package, d schema.Definition) (types.Expr, bool) {
	ok := true
	fail := func(kind ErrorKind, suggestion, format string, args ...any) {
		ok = false
		b.errs.add(&LoadError{
			Location:   types.Location{Package: p.Name, Definition: d.Name},
			Kind:       kind,
			Message:    fmt.Sprintf(format, args...),
			Suggestion: suggestion,
			Source:     p.Source,
			Line:       d.Line,
		})
	}

	expr := mapRefs(d.Expr, func(r *types.Ref) *types.Ref {
		target := r.Package
		if target == "" {
			target = p.Name
		}
		if target != p.Name && !contains(p.Imports, target) {
			fail(KindNotImported, fmt.Sprintf("add '%s' to imports", target),
				"reference %s points into package %s, which %s does not import", r.QualifiedName(), target, p.Name)
			return r
		}
		tp, exists := b.g.packages[target]
		if !exists {
			// reported as an unknown import
			ok = false
			return r
		}
		if _, found := tp.Definition(r.Name); found {
			return &types.Ref{Package: target, Name: r.Name}
		}

		suggestion := didYouMean(r.Name, definitionNames(tp))
		if r.Package == "" && suggestion == "" {
			for _, imp := range p.Imports {
				if ip, ok := b.g.packages[imp]; ok {
					if _, found := ip.Definition(r.Name); found {
						suggestion = fmt.Sprintf("use '%s.%s'", imp, r.Name)
						break
					}
				}
			}
		}
		fail(KindUnresolved, suggestion, "%s is not defined in package %s", r.Name, target)
		return r
	})
	return expr, ok
}

// headRefs lists references reached without passing through a struct, list,
// or conditional
func headRefs(e types.Expr) []string {
	switch t := e.(type) {
	case *types.Ref:
		return []string{t.QualifiedName()}
	case *types.Composite:
		return append(headRefs(t.Left), headRefs(t.Right)...)
	case *types.Union:
		var out []string
		for _, a := range t.Alternatives {
			out = append(out, headRefs(a)...)
		}
		return out
	}
	return nil
}

// aliasCycles rejects definitions that only refer to each other
func (b *builder) aliasCycles() {
	dg := NewDependencyGraph()
	qs := b.qualifiedNames()
	for _, q := range qs {
		dg.AddNode(q)
	}
	for _, q := range qs {
		for _, h := range headRefs(b.g.defs[q]) {
			if _, known := b.g.defs[h]; known {
				dg.AddEdge(q, h)
			}
		}
	}

	for {
		_, err := dg.TopologicalSort()
		var cycle *CycleError
		if !errors.As(err, &cycle) {
			return
		}
		first := cycle.Path[0]
		s := b.g.sites[first]
		b.errs.add(&LoadError{
			Location:   s.location,
			Kind:       KindAliasCycle,
			Message:    "definitions refer to each other without adding structure: " + strings.Join(cycle.Path, " -> "),
			Suggestion: "give one of them fields, items, or refinements",
			Source:     s.source,
			Line:       s.line,
		})
		for _, q := range cycle.Path {
			b.broken[q] = true
			dg.dropEdges(q)
		}
	}
}

// expandAll unifies every composition. A conflict is reported at the
// definition that introduces it, not at every definition using it.
func (b *builder) expandAll() {
	const (
		pending = iota
		active
		done
		failed
	)
	state := make(map[string]int)
	resolver := unify.Definitions(b.g.defs)

	var visit func(q string) bool
	visit = func(q string) bool {
		switch state[q] {
		case active, done:
			return true
		case failed:
			return false
		}
		state[q] = active

		depsOK := true
		for _, r := range types.Refs(b.g.defs[q]) {
			if _, known := b.g.defs[r.QualifiedName()]; known && !visit(r.QualifiedName()) {
				depsOK = false
			}
		}
		if b.broken[q] {
			state[q] = failed
			return false
		}

		s := b.g.sites[q]
		ref := &types.Ref{Package: s.location.Package, Name: s.location.Definition}
		expanded, err := unify.New(resolver).At(s.location).Expand(ref)
		if err != nil {
			state[q] = failed
			if depsOK {
				le := &LoadError{Location: s.location, Kind: KindConflict, Message: err.Error(), Source: s.source, Line: s.line}
				var ce *unify.ConflictError
				if errors.As(err, &ce) {
					le.Message = ce.Reason
					if ce.Path != "" {
						le.Message = ce.Path + ": " + ce.Reason
					}
				} else {
					le.Kind = KindUnresolved
				}
				b.errs.add(le)
			}
			return false
		}
		b.g.effective[q] = expanded
		state[q] = done
		return true
	}

	for _, q := range b.qualifiedNames() {
		visit(q)
	}
}

// predicates checks that every condition tests a field its struct declares
// once compositions are applied
func (b *builder) predicates() {
	for _, q := range b.qualifiedNames() {
		e, ok := b.g.effective[q]
		if !ok {
			continue
		}
		s := b.g.sites[q]
		handled := make(map[*types.Struct]bool)
		types.Walk(e, func(n types.Expr, at string) bool {
			st, ok := n.(*types.Struct)
			if !ok || handled[st] || len(st.Fields) == 0 {
				return true
			}
			declared := make(map[string]bool)
			var conds []*types.Conditional
			collectBranches(st, declared, &conds, handled)
			for _, c := range conds {
				head, _ := c.When.Field.Head()
				if declared[head] {
					continue
				}
				names := make([]string, 0, len(declared))
				for n := range declared {
					names = append(names, n)
				}
				sort.Strings(names)
				where := "at the root"
				if at != "" {
					where = "at " + at
				}
				b.errs.add(&LoadError{
					Location:   s.location,
					Kind:       KindPredicateField,
					Message:    fmt.Sprintf("condition %s tests field %s, which the struct %s does not declare", c.When, head, where),
					Suggestion: didYouMean(head, names),
					Source:     s.source,
					Line:       s.line,
				})
			}
			return true
		})
	}
}

// collectBranches gathers the fields and conditions of a struct together with
// everything its conditionals may add
func collectBranches(s *types.Struct, declared map[string]bool, conds *[]*types.Conditional, handled map[*types.Struct]bool) {
	handled[s] = true
	for _, f := range s.Fields {
		declared[f.Name] = true
	}
	for _, c := range s.Conditionals {
		*conds = append(*conds, c)
		if then, ok := c.Then.(*types.Struct); ok {
			collectBranches(then, declared, conds, handled)
		}
	}
}

// bindMachines builds machines and checks the entities they are bound to
func (b *builder) bindMachines() {
	for _, name := range b.g.order {
		p := b.g.packages[name]
		for _, m := range p.Machines {
			q := name + "." + m.Name
			fail := func(format string, args ...any) {
				b.errs.add(&LoadError{
					Location: types.Location{Package: name, Definition: m.Name},
					Kind:     KindLint,
					Message:  fmt.Sprintf(format, args...),
					Source:   p.Source,
					Line:     m.Line,
				})
			}

			built, err := m.Build()
			if err != nil {
				fail("%v", err)
				continue
			}
			b.g.machines[q] = built
			if m.Entity == "" {
				continue
			}

			ref, err := types.ParseRef(m.Entity)
			if err != nil {
				fail("invalid entity %s: %v", m.Entity, err)
				continue
			}
			if ref.Package == "" {
				ref.Package = name
			} else if ref.Package != name && !contains(p.Imports, ref.Package) {
				fail("entity %s is in package %s, which %s does not import", m.Entity, ref.Package, name)
				continue
			}
			entity := ref.QualifiedName()
			declared, ok := b.g.defs[entity]
			if !ok {
				if ref.Package != name {
					fail("entity %s is not defined", entity)
				}
				continue
			}
			b.g.entities[q] = entity
			if _, literal := declared.(*types.Struct); literal && ref.Package == name {
				continue
			}

			eff, ok := b.g.effective[entity]
			if !ok || m.Field == "" {
				continue
			}
			if st, isStruct := eff.(*types.Struct); isStruct {
				if _, has := st.Field(m.Field); !has {
					fail("entity %s has no field %s", entity, m.Field)
				}
			}
		}
	}
}

func (b *builder) seal() {
	qs := b.qualifiedNames()
	lines := make([]string, 0, len(qs))
	for _, q := range qs {
		fp := types.Fingerprint(b.g.effective[q])
		b.g.fingerprints[q] = fp
		lines = append(lines, q+"="+fp.String())
	}
	b.g.digest = digest.FromString(strings.Join(lines, "\n"))
}

func (b *builder) qualifiedNames() []string {
	out := make([]string, 0, len(b.g.defs))
	for q := range b.g.defs {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// mapRefs copies e with every reference replaced by f(ref). Atoms are shared.
func mapRefs(e types.Expr, f func(*types.Ref) *types.Ref) types.Expr {
	switch t := e.(type) {
	case *types.Ref:
		return f(t)
	case *types.Struct:
		cp := &types.Struct{Closed: t.Closed}
		for _, fs := range t.Fields {
			fs.Type = mapRefs(fs.Type, f)
			cp.Fields = append(cp.Fields, fs)
		}
		for _, c := range t.Conditionals {
			cp.Conditionals = append(cp.Conditionals, &types.Conditional{When: c.When, Then: mapRefs(c.Then, f)})
		}
		return cp
	case *types.Conditional:
		return &types.Conditional{When: t.When, Then: mapRefs(t.Then, f)}
	case *types.List:
		return &types.List{Elem: mapRefs(t.Elem, f), MinItems: t.MinItems, MaxItems: t.MaxItems}
	case *types.Union:
		alts := make([]types.Expr, len(t.Alternatives))
		for i, a := range t.Alternatives {
			alts[i] = mapRefs(a, f)
		}
		return &types.Union{Alternatives: alts}
	case *types.Composite:
		return &types.Composite{Left: mapRefs(t.Left, f), Right: mapRefs(t.Right, f), Close: t.Close}
	}
	return e
}

func definitionNames(p *schema.Package) []string {
	names := make([]string, len(p.Definitions))
	for i, d := range p.Definitions {
		names[i] = d.Name
	}
	return names
}

func didYouMean(name string, candidates []string) string {
	if c := schema.Closest(name, candidates); c != "" {
		return fmt.Sprintf("did you mean '%s'?", c)
	}
	return ""
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
