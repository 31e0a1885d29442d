package unify

import (
	"errors"
	"fmt"

	"github.com/mattbaird/ontology-sub000/pkg/types"
)

// ConflictError reports that two constraints contradict each other. It is
// surfaced to the schema author and never resolved by picking a side.
type ConflictError struct {
	Location types.Location
	Path     string // Field path inside the unified expression ("" for the root)
	Reason   string
}

// Error returns a formatted error message
func (e *ConflictError) Error() string {
	msg := "conflict"
	if !e.Location.IsZero() {
		msg += " in " + e.Location.String()
	}
	if e.Path != "" {
		msg += " at " + e.Path
	}
	return msg + ": " + e.Reason
}

// UnresolvedError reports a reference the resolver does not know
type UnresolvedError struct {
	Location types.Location
	Ref      string
}

// Error returns a formatted error message
func (e *UnresolvedError) Error() string {
	if e.Location.IsZero() {
		return fmt.Sprintf("unresolved reference %s", e.Ref)
	}
	return fmt.Sprintf("unresolved reference %s in %s", e.Ref, e.Location)
}

// IsConflict reports whether err is (or wraps) a ConflictError
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
