package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/mattbaird/ontology-sub000/internal/schema"
	"github.com/mattbaird/ontology-sub000/pkg/statemachine"
	"github.com/mattbaird/ontology-sub000/pkg/types"
)

// Graph is a linked set of packages. It is immutable once built and safe for
// concurrent readers; reloads build a new Graph.
type Graph struct {
	packages     map[string]*schema.Package
	order        []string
	defs         map[string]types.Expr // qualified name -> expression with qualified refs
	effective    map[string]types.Expr // qualified name -> fully expanded expression
	fingerprints map[string]digest.Digest
	sites        map[string]site
	machines     map[string]*statemachine.Machine
	entities     map[string]string // qualified machine -> qualified entity
	warnings     []Warning
	digest       digest.Digest
}

// site is where a definition was declared
type site struct {
	location types.Location
	source   string
	line     int
}

// Warning is a non-fatal lint finding carried by a graph
type Warning struct {
	Package  string
	Source   string
	Severity string // "warning" or "info"
	schema.ValidationError
}

func (w Warning) String() string {
	prefix := w.Package
	if w.Source != "" {
		prefix = w.Source
	}
	return fmt.Sprintf("%s: %s: %s", prefix, w.Severity, w.ValidationError.Error())
}

// Lookup implements unify.Resolver. Unqualified references resolve when
// exactly one package defines the name.
func (g *Graph) Lookup(ref *types.Ref) (types.Expr, bool) {
	if ref.Package == "" {
		q, err := g.Qualify(ref.Name)
		if err != nil {
			return nil, false
		}
		return g.defs[q], true
	}
	e, ok := g.defs[ref.QualifiedName()]
	return e, ok
}

// Qualify turns "Name" or "pkg.Name" into the qualified name of an existing
// definition
func (g *Graph) Qualify(name string) (string, error) {
	ref, err := types.ParseRef(name)
	if err != nil {
		return "", err
	}
	if ref.Package != "" {
		if _, ok := g.defs[ref.QualifiedName()]; !ok {
			return "", fmt.Errorf("unknown definition %s%s", name, suggestionSuffix(name, g.Definitions()))
		}
		return ref.QualifiedName(), nil
	}
	var matches []string
	for _, p := range g.order {
		if _, ok := g.defs[p+"."+name]; ok {
			matches = append(matches, p+"."+name)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("unknown definition %s%s", name, suggestionSuffix(name, g.shortNames()))
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("definition %s is ambiguous: %s", name, strings.Join(matches, ", "))
}

// Ref returns a qualified reference for name
func (g *Graph) Ref(name string) (*types.Ref, error) {
	q, err := g.Qualify(name)
	if err != nil {
		return nil, err
	}
	return types.ParseRef(q)
}

// Definition returns the declared expression of a qualified definition
func (g *Graph) Definition(qualified string) (types.Expr, bool) {
	e, ok := g.defs[qualified]
	return e, ok
}

// Effective returns the fully expanded expression of a qualified definition
func (g *Graph) Effective(qualified string) (types.Expr, bool) {
	e, ok := g.effective[qualified]
	return e, ok
}

// Fingerprint returns the digest of a definition's effective constraint
func (g *Graph) Fingerprint(qualified string) (digest.Digest, bool) {
	d, ok := g.fingerprints[qualified]
	return d, ok
}

// Location returns where a qualified definition was declared
func (g *Graph) Location(qualified string) (types.Location, string, int) {
	s := g.sites[qualified]
	return s.location, s.source, s.line
}

// Definitions lists qualified definition names in package order
func (g *Graph) Definitions() []string {
	out := make([]string, 0, len(g.defs))
	for _, p := range g.order {
		for _, d := range g.packages[p].Definitions {
			out = append(out, p+"."+d.Name)
		}
	}
	return out
}

func (g *Graph) shortNames() []string {
	var out []string
	for _, q := range g.Definitions() {
		out = append(out, q[strings.IndexByte(q, '.')+1:])
	}
	return out
}

// Packages lists package names with imports before importers
func (g *Graph) Packages() []string {
	return append([]string(nil), g.order...)
}

// Package returns a parsed package by name
func (g *Graph) Package(name string) (*schema.Package, bool) {
	p, ok := g.packages[name]
	return p, ok
}

// Machines lists qualified machine names
func (g *Graph) Machines() []string {
	out := make([]string, 0, len(g.machines))
	for q := range g.machines {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// Machine returns a machine by qualified or unambiguous short name
func (g *Graph) Machine(name string) (*statemachine.Machine, error) {
	if m, ok := g.machines[name]; ok {
		return m, nil
	}
	var matches []string
	for q := range g.machines {
		if strings.HasSuffix(q, "."+name) {
			matches = append(matches, q)
		}
	}
	switch len(matches) {
	case 0:
		short := make([]string, 0, len(g.machines))
		for _, q := range g.Machines() {
			short = append(short, q[strings.IndexByte(q, '.')+1:])
		}
		return nil, fmt.Errorf("unknown machine %s%s", name, suggestionSuffix(name, short))
	case 1:
		return g.machines[matches[0]], nil
	}
	sort.Strings(matches)
	return nil, fmt.Errorf("machine %s is ambiguous: %s", name, strings.Join(matches, ", "))
}

// Entity returns the qualified definition a machine is bound to, if any
func (g *Graph) Entity(machine string) (string, bool) {
	m, err := g.Machine(machine)
	if err != nil {
		return "", false
	}
	for q, mm := range g.machines {
		if mm == m {
			e, ok := g.entities[q]
			return e, ok
		}
	}
	return "", false
}

// Warnings returns lint findings that did not fail the load
func (g *Graph) Warnings() []Warning {
	return append([]Warning(nil), g.warnings...)
}

// Digest identifies the whole graph by the fingerprints of its definitions
func (g *Graph) Digest() digest.Digest {
	return g.digest
}

func suggestionSuffix(name string, candidates []string) string {
	if c := schema.Closest(name, candidates); c != "" {
		return fmt.Sprintf(" (did you mean %s?)", c)
	}
	return ""
}
