package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/unify"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

const (
	// DefaultCheckInterval is how many nodes are visited between deadline checks
	DefaultCheckInterval = 256

	// maxConditionalRounds bounds the conditional fixpoint per struct
	maxConditionalRounds = 64
)

// Evaluator validates values against type expressions. It holds no mutable
// state and is safe for concurrent use; memo caches live in each call.
type Evaluator struct {
	resolver      unify.Resolver
	checkInterval int
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithCheckInterval sets how often the deadline is checked, in visited nodes
func WithCheckInterval(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.checkInterval = n
		}
	}
}

// New creates an evaluator resolving references through r
func New(r unify.Resolver, opts ...Option) *Evaluator {
	e := &Evaluator{resolver: r, checkInterval: DefaultCheckInterval}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate walks expr and v together and returns the value with defaults
// filled plus every violation found. Evaluation never stops at the first
// failure; it stops early only when ctx expires, which adds one timeout
// violation.
func (e *Evaluator) Validate(ctx context.Context, expr types.Expr, v value.Value) Result {
	r := &run{
		ctx:           ctx,
		unifier:       unify.New(e.resolver),
		checkInterval: e.checkInterval,
	}
	if err := ctx.Err(); err != nil {
		r.expire(err)
	}

	filled := v
	if !r.expired {
		filled = r.eval(expr, v, nil, value.Null())
	}
	if r.expired {
		r.violations = append(r.violations, Violation{
			Rule:     RuleTimeout,
			Message:  fmt.Sprintf("evaluation stopped after %d nodes: %v", r.nodes, r.cause),
			Severity: SeverityTimeout,
		})
	}
	return Result{Filled: filled, Violations: r.violations}
}

// run is the per-call state of one validation
type run struct {
	ctx           context.Context
	unifier       *unify.Unifier
	checkInterval int
	nodes         int
	expired       bool
	cause         error
	violations    []Violation
}

func (r *run) expire(err error) {
	r.expired = true
	r.cause = err
}

func (r *run) tick() bool {
	r.nodes++
	if r.nodes%r.checkInterval == 0 {
		if err := r.ctx.Err(); err != nil {
			r.expire(err)
		}
	}
	return !r.expired
}

func (r *run) add(path value.Path, rule, msg string, sev Severity) {
	r.violations = append(r.violations, Violation{Path: path.String(), Rule: rule, Message: msg, Severity: sev})
}

func (r *run) data(path value.Path, rule, format string, args ...any) {
	r.add(path, rule, fmt.Sprintf(format, args...), SeverityData)
}

func (r *run) schemaError(path value.Path, err error) {
	var ue *unify.UnresolvedError
	if errors.As(err, &ue) {
		r.add(path, RuleUnresolved, err.Error(), SeveritySchema)
		return
	}
	r.add(path, RuleConflict, err.Error(), SeveritySchema)
}

// eval validates v against expr at path. enclosing is the struct value that
// holds v, used by dynamic bounds.
func (r *run) eval(expr types.Expr, v value.Value, path value.Path, enclosing value.Value) value.Value {
	if expr == nil || !r.tick() {
		return v
	}

	forced, err := r.unifier.Resolve(expr)
	if err != nil {
		r.schemaError(path, err)
		return v
	}

	switch t := forced.(type) {
	case *types.Atom:
		r.atom(t, v, path, enclosing)
		return v
	case *types.Struct:
		return r.structure(t, v, path)
	case *types.Conditional:
		return r.structure(&types.Struct{Conditionals: []*types.Conditional{t}}, v, path)
	case *types.List:
		return r.list(t, v, path)
	case *types.Union:
		return r.union(t, v, path, enclosing)
	}
	r.add(path, RuleConflict, fmt.Sprintf("unsupported expression %T", forced), SeveritySchema)
	return v
}

func (r *run) atom(a *types.Atom, v value.Value, path value.Path, enclosing value.Value) {
	failures := a.Check(v)
	for _, f := range failures {
		r.data(path, f.Rule, "%s", f.Message)
	}
	if len(failures) > 0 && failures[0].Rule == RuleType {
		return
	}

	n, ok := v.AsNumber()
	if !ok {
		return
	}
	for _, d := range a.Dynamic {
		other, found := value.Lookup(enclosing, d.Field)
		if !found {
			continue
		}
		o, isNum := other.AsNumber()
		if !isNum {
			continue
		}
		if !d.Holds(n, o) {
			r.data(path, RuleRange, "%s must be %s %s (%s)", v, d.Op, d.Field, other)
		}
	}
}

func (r *run) structure(s *types.Struct, v value.Value, path value.Path) value.Value {
	if v.Kind() != value.KindStruct {
		r.data(path, RuleType, "expected struct, got %s", v.Kind())
		return v
	}

	s, ok := r.applyConditionals(s, v, path)
	if !ok {
		return v
	}

	// Sibling references see defaults, so fill them before recursing
	current := fillDefaults(s, v)
	out := current
	for _, f := range s.Fields {
		fv, present := v.Get(f.Name)
		if !present {
			if f.Default == nil && f.Required {
				r.data(path.Field(f.Name), RuleRequired, "required field %q is missing", f.Name)
			}
			continue
		}
		filled := r.eval(f.Type, fv, path.Field(f.Name), current)
		out = out.With(f.Name, filled)
		if r.expired {
			return out
		}
	}

	if s.Closed {
		for _, name := range v.Names() {
			if _, declared := s.Field(name); !declared {
				r.data(path.Field(name), RuleUnexpectedField, "field %q is not allowed", name)
			}
		}
	}
	return out
}

// applyConditionals unifies the then-branch of every conditional whose
// predicate holds for v into s, repeating until no new conditional fires.
// A struct admits the fields its own conditionals declare, so the merge is
// done on an open copy and closedness is restored afterwards.
func (r *run) applyConditionals(s *types.Struct, v value.Value, path value.Path) (*types.Struct, bool) {
	if len(s.Conditionals) == 0 {
		return s, true
	}
	applied := map[string]bool{}
	for round := 0; round < maxConditionalRounds; round++ {
		current := fillDefaults(s, v)
		var fire *types.Conditional
		for _, c := range s.Conditionals {
			key := types.Canonical(c)
			if !applied[key] && c.When.Holds(current) {
				applied[key] = true
				fire = c
				break
			}
		}
		if fire == nil {
			return s, true
		}

		open := *s
		open.Closed = false
		merged, err := r.unifier.Unify(&open, fire.Then)
		if err != nil {
			r.schemaError(path, fmt.Errorf("applying conditional %s: %w", fire.When, err))
			return nil, false
		}
		next, err := r.unifier.Resolve(merged)
		if err != nil {
			r.schemaError(path, err)
			return nil, false
		}
		ns, ok := next.(*types.Struct)
		if !ok {
			r.add(path, RuleConflict, fmt.Sprintf("conditional %s does not yield a struct", fire.When), SeveritySchema)
			return nil, false
		}
		cp := *ns
		cp.Closed = s.Closed || ns.Closed
		s = &cp
	}
	r.add(path, RuleConflict, fmt.Sprintf("conditionals did not settle after %d rounds", maxConditionalRounds), SeveritySchema)
	return nil, false
}

func fillDefaults(s *types.Struct, v value.Value) value.Value {
	out := v
	for _, f := range s.Fields {
		if f.Default != nil && !v.Has(f.Name) {
			out = out.With(f.Name, *f.Default)
		}
	}
	return out
}

func (r *run) list(l *types.List, v value.Value, path value.Path) value.Value {
	if v.Kind() != value.KindList {
		r.data(path, RuleType, "expected list, got %s", v.Kind())
		return v
	}

	n := v.Len()
	if l.MinItems != nil && n < *l.MinItems {
		r.data(path, RuleItems, "list has %d items, need at least %d", n, *l.MinItems)
	}
	if l.MaxItems != nil && n > *l.MaxItems {
		r.data(path, RuleItems, "list has %d items, allowed at most %d", n, *l.MaxItems)
	}

	items := v.Items()
	for i, item := range items {
		items[i] = r.eval(l.Elem, item, path.Item(i), value.Null())
		if r.expired {
			break
		}
	}
	return value.List(items...)
}

// union accepts v when any alternative reports no violations. Failing
// alternatives are folded into one violation naming the closest one. Schema
// violations are kept as they are, and no union violation is added when an
// alternative failed on schema violations alone.
func (r *run) union(u *types.Union, v value.Value, path value.Path, enclosing value.Value) value.Value {
	saved := r.violations
	defer func() { r.violations = saved }()

	var closest, schema []Violation
	seen := map[string]bool{}
	schemaOnly := false
	for _, alt := range u.Alternatives {
		r.violations = nil
		filled := r.eval(alt, v, path, enclosing)
		if r.expired {
			return v
		}
		if len(r.violations) == 0 {
			return filled
		}

		var data []Violation
		for _, viol := range r.violations {
			if viol.Severity != SeveritySchema {
				data = append(data, viol)
				continue
			}
			if key := viol.String(); !seen[key] {
				seen[key] = true
				schema = append(schema, viol)
			}
		}
		if len(data) == 0 {
			schemaOnly = true
			continue
		}
		if closest == nil || len(data) < len(closest) {
			closest = data
		}
	}

	saved = append(saved, schema...)
	if schemaOnly {
		return v
	}
	msg := fmt.Sprintf("%s matches none of %d alternatives", v.Kind(), len(u.Alternatives))
	if len(closest) > 0 {
		msg += "; closest: " + closest[0].String()
	}
	saved = append(saved, Violation{Path: path.String(), Rule: RuleUnion, Message: msg, Severity: SeverityData})
	return v
}
