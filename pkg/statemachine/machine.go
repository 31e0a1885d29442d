// Package statemachine answers transition queries over a named transition
// table: which moves are legal, which targets a state has, and the full
// valid/invalid partition used to generate transition tests.
package statemachine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattbaird/ontology-sub000/pkg/eval"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// ErrUnknownState is returned for a state missing from the table
var ErrUnknownState = errors.New("unknown state")

// Transition lists the legal targets of one source state
type Transition struct {
	From string
	To   []string
}

// Machine is an immutable transition table. States keep declaration order.
type Machine struct {
	Name          string
	Field         string // Entity field holding the state, empty when unbound
	AllowSelfLoop bool

	states  []string
	targets map[string][]string
}

// Option configures a Machine
type Option func(*Machine)

// WithSelfLoops makes from==to a valid no-op for every known state
func WithSelfLoops(allow bool) Option {
	return func(m *Machine) { m.AllowSelfLoop = allow }
}

// BoundTo binds the machine to the entity field that holds the state
func BoundTo(field string) Option {
	return func(m *Machine) { m.Field = field }
}

// New builds a machine. Every target must itself appear as a source state so
// terminal states are declared explicitly with an empty target list.
func New(name string, table []Transition, opts ...Option) (*Machine, error) {
	m := &Machine{Name: name, targets: make(map[string][]string, len(table))}
	for _, opt := range opts {
		opt(m)
	}

	for _, t := range table {
		if t.From == "" {
			return nil, fmt.Errorf("machine %s: empty state name", name)
		}
		if _, dup := m.targets[t.From]; dup {
			return nil, fmt.Errorf("machine %s: state %q declared twice", name, t.From)
		}
		m.states = append(m.states, t.From)
		m.targets[t.From] = dedup(t.To)
	}

	var undeclared []string
	for _, from := range m.states {
		for _, to := range m.targets[from] {
			if _, ok := m.targets[to]; !ok {
				undeclared = append(undeclared, fmt.Sprintf("%s -> %s", from, to))
			}
		}
	}
	if len(undeclared) > 0 {
		return nil, fmt.Errorf("machine %s: targets are not declared states: %s", name, strings.Join(undeclared, ", "))
	}
	return m, nil
}

func dedup(ss []string) []string {
	out := make([]string, 0, len(ss))
	seen := make(map[string]bool, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// States returns every state in declaration order
func (m *Machine) States() []string {
	return append([]string(nil), m.states...)
}

// Has reports whether state is in the table
func (m *Machine) Has(state string) bool {
	_, ok := m.targets[state]
	return ok
}

// IsValidTransition reports whether from -> to is legal. A from state absent
// from the table is never valid.
func (m *Machine) IsValidTransition(from, to string) bool {
	targets, ok := m.targets[from]
	if !ok {
		return false
	}
	if from == to {
		return m.AllowSelfLoop || contains(targets, to)
	}
	return contains(targets, to)
}

// ValidTargets returns the legal targets of from. A terminal state returns an
// empty, non-nil slice; an unknown state returns ErrUnknownState.
func (m *Machine) ValidTargets(from string) ([]string, error) {
	targets, ok := m.targets[from]
	if !ok {
		return nil, fmt.Errorf("machine %s: %w %q", m.Name, ErrUnknownState, from)
	}
	out := make([]string, 0, len(targets)+1)
	if m.AllowSelfLoop && !contains(targets, from) {
		out = append(out, from)
	}
	return append(out, targets...), nil
}

// Terminal reports whether state is known and has no outgoing transitions
func (m *Machine) Terminal(state string) bool {
	targets, ok := m.targets[state]
	return ok && len(targets) == 0
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Pair is one from -> to combination
type Pair struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

func (p Pair) String() string { return p.From + " -> " + p.To }

// Matrix partitions the full cross product of states
type Matrix struct {
	Valid   []Pair `json:"valid" yaml:"valid"`
	Invalid []Pair `json:"invalid" yaml:"invalid"`
}

// EnumerateAll partitions every (from, to) pair, self-loops included, in
// declaration order of from then to
func (m *Machine) EnumerateAll() Matrix {
	var mx Matrix
	for _, from := range m.states {
		for _, to := range m.states {
			p := Pair{From: from, To: to}
			if m.IsValidTransition(from, to) {
				mx.Valid = append(mx.Valid, p)
			} else {
				mx.Invalid = append(mx.Invalid, p)
			}
		}
	}
	return mx
}

// CheckTransition validates an entity update against the machine's bound
// field. Absent state fields pass. A state kept unchanged is a self-loop and
// follows AllowSelfLoop like any other transition.
func (m *Machine) CheckTransition(before, after value.Value) []eval.Violation {
	if m.Field == "" {
		return nil
	}
	path := value.MustParsePath(m.Field)
	oldV, okOld := value.Lookup(before, path)
	newV, okNew := value.Lookup(after, path)
	if !okOld || !okNew {
		return nil
	}
	from, fromStr := oldV.AsString()
	to, toStr := newV.AsString()
	if !fromStr || !toStr {
		return []eval.Violation{{
			Path:     path.String(),
			Rule:     eval.RuleType,
			Message:  "state field must be a string",
			Severity: eval.SeverityData,
		}}
	}
	if m.IsValidTransition(from, to) {
		return nil
	}

	msg := fmt.Sprintf("%s does not allow %s -> %s", m.Name, from, to)
	switch targets, _ := m.ValidTargets(from); {
	case !m.Has(from):
		msg = fmt.Sprintf("%s has no state %q", m.Name, from)
	case !m.Has(to):
		msg = fmt.Sprintf("%s has no state %q", m.Name, to)
	case len(targets) == 0:
		msg = fmt.Sprintf("%s: %q is terminal", m.Name, from)
	}
	return []eval.Violation{{Path: path.String(), Rule: eval.RuleTransition, Message: msg, Severity: eval.SeverityData}}
}
