package resolver

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/mattbaird/ontology-sub000/internal/schema"
	"github.com/mattbaird/ontology-sub000/pkg/types"
)

// ErrorKind classifies load failures
type ErrorKind string

const (
	KindSyntax              ErrorKind = "syntax"
	KindDuplicatePackage    ErrorKind = "duplicate_package"
	KindDuplicateDefinition ErrorKind = "duplicate_definition"
	KindUnknownImport       ErrorKind = "unknown_import"
	KindImportCycle         ErrorKind = "import_cycle"
	KindUnresolved          ErrorKind = "unresolved_reference"
	KindNotImported         ErrorKind = "not_imported"
	KindAliasCycle          ErrorKind = "alias_cycle"
	KindPredicateField      ErrorKind = "predicate_field"
	KindConflict            ErrorKind = "conflict"
	KindLint                ErrorKind = "lint"
)

// LoadError is one problem found while building a graph
type LoadError struct {
	Location   types.Location
	Kind       ErrorKind
	Message    string
	Suggestion string
	Source     string // File the package came from, if any
	Line       int
}

// Error returns a formatted error message
func (e *LoadError) Error() string {
	msg := ""
	if e.Source != "" {
		msg = e.Source
		if e.Line > 0 {
			msg += fmt.Sprintf(":%d", e.Line)
		}
		msg += ": "
	}
	msg += string(e.Kind)
	if !e.Location.IsZero() {
		msg += " in " + e.Location.String()
	}
	msg += ": " + e.Message
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return msg
}

// LoadErrors unpacks every *LoadError aggregated in err
func LoadErrors(err error) []*LoadError {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		var le *LoadError
		if errors.As(err, &le) {
			return []*LoadError{le}
		}
		return nil
	}
	var out []*LoadError
	for _, e := range merr.Errors {
		var le *LoadError
		if errors.As(e, &le) {
			out = append(out, le)
		}
	}
	return out
}

// errorList collects load errors in discovery order
type errorList struct {
	merr *multierror.Error
}

func (l *errorList) add(e *LoadError) {
	l.merr = multierror.Append(l.merr, e)
}

func (l *errorList) len() int {
	if l.merr == nil {
		return 0
	}
	return len(l.merr.Errors)
}

func (l *errorList) err() error {
	if l.merr == nil {
		return nil
	}
	l.merr.ErrorFormat = formatErrors
	return l.merr.ErrorOrNil()
}

func formatErrors(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msg := fmt.Sprintf("found %d load errors:\n", len(errs))
	for i, e := range errs {
		msg += fmt.Sprintf("  %d. %s\n", i+1, e)
	}
	return msg
}

// fromValidation converts document errors of one file
func fromValidation(source string, errs schema.ValidationErrors, kind ErrorKind, pkg string) []*LoadError {
	out := make([]*LoadError, 0, len(errs))
	for _, ve := range errs {
		out = append(out, &LoadError{
			Location:   types.Location{Package: pkg},
			Kind:       kind,
			Message:    ve.Field + ": " + ve.Message,
			Suggestion: ve.Suggestion,
			Source:     source,
			Line:       ve.Line,
		})
	}
	return out
}
