package eval

import (
	"fmt"

	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// Severity separates broken data from broken schemas and from deadline expiry
type Severity string

const (
	SeverityData    Severity = "data"
	SeveritySchema  Severity = "schema"
	SeverityTimeout Severity = "timeout"
)

// Rule names reported in violations. Scalar refinement rules are shared with
// the types package.
const (
	RuleType            = types.RuleType
	RuleRange           = types.RuleRange
	RuleInteger         = types.RuleInteger
	RulePattern         = types.RulePattern
	RuleLength          = types.RuleLength
	RuleEnum            = types.RuleEnum
	RuleRequired        = "required"
	RuleUnexpectedField = "unexpected_field"
	RuleItems           = "items"
	RuleUnion           = "union"
	RuleConflict        = "conflict"
	RuleUnresolved      = "unresolved_reference"
	RuleTimeout         = "timeout"
	RuleTransition      = "transition"
)

// Violation is one reason a value was rejected
type Violation struct {
	Path     string   `json:"path" yaml:"path"`
	Rule     string   `json:"rule" yaml:"rule"`
	Message  string   `json:"message" yaml:"message"`
	Severity Severity `json:"severity" yaml:"severity"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return fmt.Sprintf("[%s] %s", v.Rule, v.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", v.Path, v.Rule, v.Message)
}

// Result is the outcome of validating one value
type Result struct {
	Filled     value.Value `json:"filled"`
	Violations []Violation `json:"violations"`
}

// Accepted reports whether the value had no violations of any severity
func (r Result) Accepted() bool {
	return len(r.Violations) == 0
}

// HasSeverity reports whether any violation has severity s
func (r Result) HasSeverity(s Severity) bool {
	for _, v := range r.Violations {
		if v.Severity == s {
			return true
		}
	}
	return false
}

// Count returns the number of violations per severity
func (r Result) Count() map[Severity]int {
	counts := map[Severity]int{}
	for _, v := range r.Violations {
		counts[v.Severity]++
	}
	return counts
}
