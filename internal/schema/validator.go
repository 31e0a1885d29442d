package schema

import (
	"fmt"
	"strings"
)

// ValidatorResult holds validation results categorized by severity
type ValidatorResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
	Infos    []ValidationError
}

// ExtendedValidationResult aggregates results from multiple validators
type ExtendedValidationResult struct {
	Errors   ValidationErrors
	Warnings []ValidationError
	Infos    []ValidationError
}

// HasErrors returns true if any errors are present
func (r *ExtendedValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Empty reports whether no validator reported anything
func (r *ExtendedValidationResult) Empty() bool {
	return len(r.Errors)+len(r.Warnings)+len(r.Infos) == 0
}

// Merge appends other's findings to r
func (r *ExtendedValidationResult) Merge(other *ExtendedValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Infos = append(r.Infos, other.Infos...)
}

// Error implements the error interface with formatted output
func (r *ExtendedValidationResult) Error() string {
	if r.Empty() {
		return "validation completed with no issues"
	}

	var sb strings.Builder

	// Summary line
	if len(r.Errors) > 0 {
		sb.WriteString(fmt.Sprintf("❌ Validation failed with %d error(s)", len(r.Errors)))
		if len(r.Warnings) > 0 {
			sb.WriteString(fmt.Sprintf(", %d warning(s)", len(r.Warnings)))
		}
	} else if len(r.Warnings) > 0 {
		sb.WriteString(fmt.Sprintf("⚠️  Validation completed with %d warning(s)", len(r.Warnings)))
	} else {
		sb.WriteString(fmt.Sprintf("ℹ️  Validation info (%d)", len(r.Infos)))
	}
	sb.WriteString("\n\n")

	for _, err := range r.Errors {
		sb.WriteString("✗ " + err.Error() + "\n")
	}
	for _, warn := range r.Warnings {
		sb.WriteString("⚠ " + warn.Error() + "\n")
	}
	for _, info := range r.Infos {
		sb.WriteString("ℹ " + info.Error() + "\n")
	}

	return sb.String()
}

// Validator is the interface all lint validators must implement
type Validator interface {
	Name() string
	Validate(pkg *Package) (ValidatorResult, error)
}

// ValidationPipeline orchestrates multiple validators
type ValidationPipeline struct {
	validators []Validator
}

// NewValidationPipeline creates a validation pipeline with default validators
func NewValidationPipeline() *ValidationPipeline {
	return &ValidationPipeline{
		validators: []Validator{
			&NamingValidator{},
			&DefaultValidator{},
			&PredicateValidator{},
			&MachineValidator{},
		},
	}
}

// AddValidator adds a custom validator
func (p *ValidationPipeline) AddValidator(v Validator) {
	p.validators = append(p.validators, v)
}

// Validate runs all validators and aggregates results
func (p *ValidationPipeline) Validate(pkg *Package) (*ExtendedValidationResult, error) {
	result := &ExtendedValidationResult{}

	for _, validator := range p.validators {
		vr, err := validator.Validate(pkg)
		if err != nil {
			return nil, fmt.Errorf("validator %s failed: %w", validator.Name(), err)
		}
		result.Errors = append(result.Errors, vr.Errors...)
		result.Warnings = append(result.Warnings, vr.Warnings...)
		result.Infos = append(result.Infos, vr.Infos...)
	}

	return result, nil
}

// Lint runs the default pipeline over pkg
func Lint(pkg *Package) (*ExtendedValidationResult, error) {
	return NewValidationPipeline().Validate(pkg)
}
