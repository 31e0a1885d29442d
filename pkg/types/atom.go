package types

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// Kind is the scalar kind of an Atom
type Kind string

const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindNumber Kind = "number"
	KindString Kind = "string"
)

// Bound is one end of a numeric range
type Bound struct {
	Value     float64
	Exclusive bool
}

// Op is a comparison operator for dynamic bounds
type Op string

const (
	OpGTE Op = ">="
	OpGT  Op = ">"
	OpLTE Op = "<="
	OpLT  Op = "<"
)

// DynamicBound compares the value against a sibling field at evaluation time,
// e.g. "end >= start"
type DynamicBound struct {
	Op    Op
	Field value.Path
}

// Holds reports whether n satisfies the bound against the sibling value other
func (d DynamicBound) Holds(n, other float64) bool {
	switch d.Op {
	case OpGTE:
		return n >= other
	case OpGT:
		return n > other
	case OpLTE:
		return n <= other
	case OpLT:
		return n < other
	}
	return false
}

func (d DynamicBound) String() string {
	return fmt.Sprintf("%s%s", d.Op, d.Field.String())
}

// Atom is a scalar kind with refinements. Every refinement must hold.
// A nil Literals slice means the atom is not restricted to a literal set.
type Atom struct {
	Kind      Kind
	Integer   bool
	Min       *Bound
	Max       *Bound
	MinLength *int
	MaxLength *int
	Patterns  []string
	Literals  []value.Value
	Dynamic   []DynamicBound
}

// NewAtom returns an unrefined atom of kind k
func NewAtom(k Kind) *Atom {
	return &Atom{Kind: k}
}

// Int returns an integer atom
func Int() *Atom {
	return &Atom{Kind: KindNumber, Integer: true}
}

// Literal returns an atom accepting exactly v
func Literal(v value.Value) *Atom {
	return &Atom{Kind: KindOf(v), Literals: []value.Value{v}}
}

// KindOf maps a scalar value to its atom kind. Lists and structs have no atom kind.
func KindOf(v value.Value) Kind {
	switch v.Kind() {
	case value.KindNull:
		return KindNull
	case value.KindBool:
		return KindBool
	case value.KindNumber:
		return KindNumber
	case value.KindString:
		return KindString
	}
	return Kind(v.Kind().String())
}

// AtLeast returns a copy of a with an inclusive lower bound
func (a *Atom) AtLeast(n float64) *Atom {
	cp := a.clone()
	cp.Min = &Bound{Value: n}
	return cp
}

// AtMost returns a copy of a with an inclusive upper bound
func (a *Atom) AtMost(n float64) *Atom {
	cp := a.clone()
	cp.Max = &Bound{Value: n}
	return cp
}

// Matching returns a copy of a with an additional pattern
func (a *Atom) Matching(pattern string) *Atom {
	cp := a.clone()
	cp.Patterns = normalizeStrings(append(cp.Patterns, pattern))
	return cp
}

// Compared returns a copy of a with an additional dynamic bound
func (a *Atom) Compared(op Op, field string) *Atom {
	cp := a.clone()
	cp.Dynamic = normalizeDynamic(append(cp.Dynamic, DynamicBound{Op: op, Field: value.MustParsePath(field)}))
	return cp
}

func (a *Atom) clone() *Atom {
	cp := *a
	cp.Patterns = append([]string(nil), a.Patterns...)
	cp.Dynamic = append([]DynamicBound(nil), a.Dynamic...)
	if a.Literals != nil {
		cp.Literals = append([]value.Value{}, a.Literals...)
	}
	return &cp
}

// TypeName is the kind as written in documents ("int" for integral numbers)
func (a *Atom) TypeName() string {
	if a.Kind == KindNumber && a.Integer {
		return "int"
	}
	return string(a.Kind)
}

func (a *Atom) isLiteralOnly() bool {
	return a.Literals != nil && !a.Integer && a.Min == nil && a.Max == nil &&
		a.MinLength == nil && a.MaxLength == nil && len(a.Patterns) == 0 && len(a.Dynamic) == 0
}

// Failure is one refinement an atom rejected a value for
type Failure struct {
	Rule    string
	Message string
}

// Rule names shared by the unifier and evaluator
const (
	RuleType    = "type"
	RuleRange   = "range"
	RuleInteger = "integer"
	RulePattern = "pattern"
	RuleLength  = "length"
	RuleEnum    = "enum"
)

// Check tests v against the kind and every static refinement. A kind mismatch
// yields a single failure since the refinements are meaningless then.
// Dynamic bounds need sibling data and are checked by the evaluator.
func (a *Atom) Check(v value.Value) []Failure {
	if KindOf(v) != a.Kind {
		return []Failure{{Rule: RuleType, Message: fmt.Sprintf("expected %s, got %s", a.TypeName(), v.Kind())}}
	}

	var failures []Failure
	if n, ok := v.AsNumber(); ok {
		if a.Integer && !v.IsInteger() {
			failures = append(failures, Failure{Rule: RuleInteger, Message: fmt.Sprintf("%s is not an integer", v)})
		}
		if !a.inRange(n) {
			failures = append(failures, Failure{Rule: RuleRange, Message: fmt.Sprintf("%s is outside %s", v, a.rangeString())})
		}
	}
	if s, ok := v.AsString(); ok {
		n := len([]rune(s))
		if (a.MinLength != nil && n < *a.MinLength) || (a.MaxLength != nil && n > *a.MaxLength) {
			failures = append(failures, Failure{Rule: RuleLength, Message: fmt.Sprintf("length %d is outside %s", n, a.lengthString())})
		}
		for _, p := range a.Patterns {
			re, err := CompilePattern(p)
			if err != nil {
				failures = append(failures, Failure{Rule: RulePattern, Message: err.Error()})
				continue
			}
			if !re.MatchString(s) {
				failures = append(failures, Failure{Rule: RulePattern, Message: fmt.Sprintf("%q does not match %q", s, p)})
			}
		}
	}
	if a.Literals != nil && !containsLiteral(a.Literals, v) {
		failures = append(failures, Failure{Rule: RuleEnum, Message: fmt.Sprintf("%s is not one of %s", v, literalsString(a.Literals))})
	}
	return failures
}

// Accepts reports whether v passes Check
func (a *Atom) Accepts(v value.Value) bool {
	return len(a.Check(v)) == 0
}

func (a *Atom) inRange(n float64) bool {
	if a.Min != nil && (n < a.Min.Value || (a.Min.Exclusive && n == a.Min.Value)) {
		return false
	}
	if a.Max != nil && (n > a.Max.Value || (a.Max.Exclusive && n == a.Max.Value)) {
		return false
	}
	return true
}

func (a *Atom) rangeString() string {
	var parts []string
	if a.Min != nil {
		op := ">="
		if a.Min.Exclusive {
			op = ">"
		}
		parts = append(parts, op+value.Number(a.Min.Value).String())
	}
	if a.Max != nil {
		op := "<="
		if a.Max.Exclusive {
			op = "<"
		}
		parts = append(parts, op+value.Number(a.Max.Value).String())
	}
	return strings.Join(parts, ",")
}

func (a *Atom) lengthString() string {
	var parts []string
	if a.MinLength != nil {
		parts = append(parts, fmt.Sprintf("len>=%d", *a.MinLength))
	}
	if a.MaxLength != nil {
		parts = append(parts, fmt.Sprintf("len<=%d", *a.MaxLength))
	}
	return strings.Join(parts, ",")
}

func containsLiteral(lits []value.Value, v value.Value) bool {
	for _, l := range lits {
		if value.Equal(l, v) {
			return true
		}
	}
	return false
}

func literalsString(lits []value.Value) string {
	parts := make([]string, len(lits))
	for i, l := range lits {
		parts[i] = l.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// NormalizeLiterals sorts and deduplicates a literal set
func NormalizeLiterals(lits []value.Value) []value.Value {
	if lits == nil {
		return nil
	}
	out := make([]value.Value, 0, len(lits))
	for _, l := range lits {
		if !containsLiteral(out, l) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return value.Compare(out[i], out[j]) < 0 })
	return out
}

func unionLiterals(a, b []value.Value) []value.Value {
	return NormalizeLiterals(append(append([]value.Value{}, a...), b...))
}

func normalizeStrings(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	cp := append([]string(nil), ss...)
	sort.Strings(cp)
	out := cp[:0]
	for i, s := range cp {
		if i > 0 && s == cp[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// NormalizePatterns sorts and deduplicates a pattern conjunction
func NormalizePatterns(ps []string) []string { return normalizeStrings(ps) }

func normalizeDynamic(ds []DynamicBound) []DynamicBound {
	if len(ds) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]DynamicBound, 0, len(ds))
	for _, d := range ds {
		if seen[d.String()] {
			continue
		}
		seen[d.String()] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// NormalizeDynamic sorts and deduplicates dynamic bounds
func NormalizeDynamic(ds []DynamicBound) []DynamicBound { return normalizeDynamic(ds) }

// patternCache holds compiled patterns. regexp.Regexp is safe for concurrent
// use, so entries are shared by every evaluation.
var patternCache, _ = lru.New[string, *regexp.Regexp](1024)

// CompilePattern compiles p once and caches the result
func CompilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Get(p); ok {
		return re, nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
	}
	patternCache.Add(p, re)
	return re, nil
}
