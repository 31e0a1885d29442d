// Package ontology loads constraint packages and evaluates values against
// them.
//
// A package document declares named type expressions built from atoms,
// structs, lists, unions, conditionals, and compositions. Loading links every
// document into an immutable Graph; evaluation walks a value and a type
// together and reports every violation with its path, never only the first.
// State machines declared next to the types gate transitions of entity
// fields, and drift checking tells whether a new version of a base package
// still accepts everything its dependents relied on.
//
//	g, err := ontology.LoadPackages(ctx, "schemas/")
//	res, err := ontology.Validate(ctx, g, "billing.Invoice", v)
//	if !res.Accepted() { ... res.Violations ... }
package ontology

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattbaird/ontology-sub000/internal/schema"
	"github.com/mattbaird/ontology-sub000/pkg/drift"
	"github.com/mattbaird/ontology-sub000/pkg/eval"
	"github.com/mattbaird/ontology-sub000/pkg/resolver"
	"github.com/mattbaird/ontology-sub000/pkg/statemachine"
	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/unify"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

type (
	Graph     = resolver.Graph
	Result    = eval.Result
	Violation = eval.Violation
	Matrix    = statemachine.Matrix
)

// LoadPackages loads package documents from files, directories, and globs
func LoadPackages(ctx context.Context, paths ...string) (*Graph, error) {
	return resolver.NewLoader().Load(ctx, paths...)
}

// Validate checks v against the definition typeRef ("Name" or "pkg.Name").
// The error is non-nil only when typeRef names nothing; rejected values are
// reported in the result.
func Validate(ctx context.Context, g *Graph, typeRef string, v value.Value) (Result, error) {
	ref, err := g.Ref(typeRef)
	if err != nil {
		return Result{}, err
	}
	return eval.New(g).Validate(ctx, ref, v), nil
}

// ParseExpr parses an inline expression in the document syntax and checks
// that its references exist in g
func ParseExpr(g *Graph, src string) (types.Expr, error) {
	expr, err := schema.ParseExpr([]byte(src))
	if err != nil {
		return nil, err
	}
	var errs []string
	for _, ref := range types.Refs(expr) {
		q, err := g.Qualify(ref.QualifiedName())
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		qualified, _ := types.ParseRef(q)
		ref.Package, ref.Name = qualified.Package, qualified.Name
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid expression: %s", errs[0])
	}
	return expr, nil
}

// ValidateExpr checks v against an inline expression
func ValidateExpr(ctx context.Context, g *Graph, src string, v value.Value) (Result, error) {
	expr, err := ParseExpr(g, src)
	if err != nil {
		return Result{}, err
	}
	return eval.New(g).Validate(ctx, expr, v), nil
}

// Unify composes two definitions and returns the expanded result. A
// contradiction is returned as *ConflictError located at a.
func Unify(g *Graph, a, b string) (types.Expr, error) {
	ra, err := g.Ref(a)
	if err != nil {
		return nil, err
	}
	rb, err := g.Ref(b)
	if err != nil {
		return nil, err
	}
	loc, _, _ := g.Location(ra.QualifiedName())
	u := unify.New(g).At(loc)
	joined, err := u.Unify(ra, rb)
	if err != nil {
		return nil, err
	}
	return u.Expand(joined)
}

// Transitions lists the states reachable from state in one step
func Transitions(g *Graph, machine, state string) ([]string, error) {
	m, err := g.Machine(machine)
	if err != nil {
		return nil, err
	}
	return m.ValidTargets(state)
}

// EnumerateTransitionMatrix classifies every ordered pair of states
func EnumerateTransitionMatrix(g *Graph, machine string) (Matrix, error) {
	m, err := g.Machine(machine)
	if err != nil {
		return Matrix{}, err
	}
	return m.EnumerateAll(), nil
}

// ValidateTransition validates after against the machine's entity and checks
// that its state field moved along a declared transition from before
func ValidateTransition(ctx context.Context, g *Graph, machine string, before, after value.Value) (Result, error) {
	m, err := g.Machine(machine)
	if err != nil {
		return Result{}, err
	}
	entity, ok := g.Entity(machine)
	if !ok {
		return Result{}, fmt.Errorf("machine %s is not bound to an entity", m.Name)
	}
	res, err := Validate(ctx, g, entity, after)
	if err != nil {
		return Result{}, err
	}
	res.Violations = append(res.Violations, m.CheckTransition(before, after)...)
	return res, nil
}

// CheckDrift classifies every cross-package reference of old against the
// base packages of next. When any reference narrowed, the reports are
// returned together with a *DriftError.
func CheckDrift(old, next *Graph) ([]drift.Report, error) {
	reports := drift.Check(old, next)
	if narrowed := drift.Incompatible(reports); len(narrowed) > 0 {
		return reports, &DriftError{Reports: narrowed}
	}
	return reports, nil
}

// IsConflict reports whether err carries a *ConflictError
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
