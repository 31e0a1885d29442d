package ontology

import (
	"fmt"
	"strings"

	"github.com/mattbaird/ontology-sub000/pkg/drift"
	"github.com/mattbaird/ontology-sub000/pkg/resolver"
	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/unify"
)

// Location names a definition inside a package
type Location = types.Location

// LoadError is one problem found while loading packages. A failed load
// returns all of them together; use LoadErrors to unpack.
type LoadError = resolver.LoadError

// ConflictError reports two constraints that admit no common value
type ConflictError = unify.ConflictError

// LoadErrors returns the individual errors of a failed load
func LoadErrors(err error) []*LoadError {
	return resolver.LoadErrors(err)
}

// DriftError gates a change that narrows references of dependent packages
type DriftError struct {
	Reports []drift.Report // narrowed_incompatible reports only
}

// Location is the dependent definition of the first narrowed reference
func (e *DriftError) Location() Location {
	if len(e.Reports) == 0 {
		return Location{}
	}
	return e.Reports[0].Location()
}

func (e *DriftError) Error() string {
	if len(e.Reports) == 1 {
		return "incompatible change: " + e.Reports[0].String()
	}
	lines := make([]string, len(e.Reports))
	for i, r := range e.Reports {
		lines[i] = fmt.Sprintf("  %d. %s", i+1, r)
	}
	return fmt.Sprintf("%d incompatible changes:\n%s", len(e.Reports), strings.Join(lines, "\n"))
}
