package schema

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// sitePath renders a definition-relative site as a document path
func sitePath(def, site string) string {
	if site == "" {
		return "definitions." + def
	}
	return "definitions." + def + "." + site
}

// NamingValidator checks naming conventions
type NamingValidator struct{}

func (v *NamingValidator) Name() string {
	return "NamingValidator"
}

func (v *NamingValidator) Validate(pkg *Package) (ValidatorResult, error) {
	result := ValidatorResult{}

	for _, def := range pkg.Definitions {
		if !isPascalCase(def.Name) {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:      "definitions." + def.Name,
				Message:    fmt.Sprintf("definition name '%s' should be in PascalCase", def.Name),
				Suggestion: fmt.Sprintf("use '%s'", strcase.ToCamel(def.Name)),
				Line:       def.Line,
			})
		}

		types.Walk(def.Expr, func(e types.Expr, site string) bool {
			s, ok := e.(*types.Struct)
			if !ok {
				return true
			}
			for _, f := range s.Fields {
				if snake := strcase.ToSnake(f.Name); snake != f.Name {
					result.Infos = append(result.Infos, ValidationError{
						Field:      sitePath(def.Name, joinSite(site, f.Name)),
						Message:    fmt.Sprintf("field name '%s' is not snake_case", f.Name),
						Suggestion: fmt.Sprintf("use '%s'", snake),
						Line:       getLineNumber(pkg.LineMap, "definitions."+def.Name),
					})
				}
			}
			return true
		})
	}

	for _, m := range pkg.Machines {
		if !isPascalCase(m.Name) {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:      "machines." + m.Name,
				Message:    fmt.Sprintf("machine name '%s' should be in PascalCase", m.Name),
				Suggestion: fmt.Sprintf("use '%s'", strcase.ToCamel(m.Name)),
				Line:       m.Line,
			})
		}
	}

	return result, nil
}

func joinSite(site, name string) string {
	if site == "" {
		return name
	}
	return site + "." + name
}

// DefaultValidator checks field defaults against their declared types
type DefaultValidator struct{}

func (v *DefaultValidator) Name() string {
	return "DefaultValidator"
}

func (v *DefaultValidator) Validate(pkg *Package) (ValidatorResult, error) {
	result := ValidatorResult{}

	for _, def := range pkg.Definitions {
		line := def.Line
		types.Walk(def.Expr, func(e types.Expr, site string) bool {
			s, ok := e.(*types.Struct)
			if !ok {
				return true
			}
			for _, f := range s.Fields {
				if f.Default == nil {
					continue
				}
				path := sitePath(def.Name, joinSite(site, f.Name))
				if f.Required {
					result.Warnings = append(result.Warnings, ValidationError{
						Field:      path,
						Message:    fmt.Sprintf("field '%s' is required and has a default; the default always fills it", f.Name),
						Suggestion: "drop 'required' or the default",
						Line:       line,
					})
				}
				atom, isAtom := f.Type.(*types.Atom)
				if !isAtom {
					continue
				}
				for _, failure := range atom.Check(*f.Default) {
					result.Errors = append(result.Errors, ValidationError{
						Field:   path + ".default",
						Message: fmt.Sprintf("default %s violates its own type: %s", f.Default, failure.Message),
						Line:    line,
					})
				}
			}
			return true
		})
	}

	return result, nil
}

// PredicateValidator checks conditions against the literal struct they guard.
// Fields contributed through composition are checked again after resolution.
type PredicateValidator struct{}

func (v *PredicateValidator) Name() string {
	return "PredicateValidator"
}

func (v *PredicateValidator) Validate(pkg *Package) (ValidatorResult, error) {
	result := ValidatorResult{}

	for _, def := range pkg.Definitions {
		types.Walk(def.Expr, func(e types.Expr, site string) bool {
			s, ok := e.(*types.Struct)
			if !ok || len(s.Conditionals) == 0 {
				return true
			}
			for _, c := range s.Conditionals {
				head, _ := c.When.Field.Head()
				f, declared := s.Field(head)
				if !declared {
					result.Warnings = append(result.Warnings, ValidationError{
						Field:      sitePath(def.Name, site) + ".when",
						Message:    fmt.Sprintf("condition tests '%s', which this struct does not declare", head),
						Suggestion: didYouMean(head, s.FieldNames()),
						Line:       def.Line,
					})
					continue
				}
				atom, isAtom := f.Type.(*types.Atom)
				if !isAtom || len(c.When.Values) == 0 || len(c.When.Field) != 1 {
					continue
				}
				possible := false
				for _, lit := range c.When.Values {
					if atom.Accepts(lit) {
						possible = true
						break
					}
				}
				if !possible {
					result.Warnings = append(result.Warnings, ValidationError{
						Field:   sitePath(def.Name, site) + ".when",
						Message: fmt.Sprintf("condition %s can never hold: '%s' is %s", c.When, head, types.Canonical(atom)),
						Line:    def.Line,
					})
				}
			}
			return true
		})
	}

	return result, nil
}

// MachineValidator checks machines against the entities they are bound to
type MachineValidator struct{}

func (v *MachineValidator) Name() string {
	return "MachineValidator"
}

func (v *MachineValidator) Validate(pkg *Package) (ValidatorResult, error) {
	result := ValidatorResult{}

	for _, m := range pkg.Machines {
		path := "machines." + m.Name

		if unreachable := unreachableStates(m); len(unreachable) > 0 {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   path + ".transitions",
				Message: fmt.Sprintf("states not reachable from '%s': %s", m.Transitions[0].From, strings.Join(unreachable, ", ")),
				Line:    m.Line,
			})
		}

		if m.Entity == "" {
			if m.Field != "" {
				result.Infos = append(result.Infos, ValidationError{
					Field:      path + ".field",
					Message:    fmt.Sprintf("machine is bound to field '%s' without an entity", m.Field),
					Suggestion: "add 'entity: <Definition>' to check the field exists",
					Line:       m.Line,
				})
			}
			continue
		}

		if strings.Contains(m.Entity, ".") {
			// imported entities are checked once packages are linked
			continue
		}
		def, ok := pkg.Definition(m.Entity)
		if !ok {
			result.Errors = append(result.Errors, ValidationError{
				Field:      path + ".entity",
				Message:    fmt.Sprintf("entity '%s' is not defined in package '%s'", m.Entity, pkg.Name),
				Suggestion: didYouMean(m.Entity, definitionNames(pkg)),
				Line:       m.Line,
			})
			continue
		}
		if m.Field == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   path + ".field",
				Message: "a machine bound to an entity needs the field holding its state",
				Line:    m.Line,
			})
			continue
		}

		s, isStruct := def.Expr.(*types.Struct)
		if !isStruct {
			continue
		}
		f, declared := s.Field(m.Field)
		if !declared {
			result.Errors = append(result.Errors, ValidationError{
				Field:      path + ".field",
				Message:    fmt.Sprintf("entity '%s' has no field '%s'", m.Entity, m.Field),
				Suggestion: didYouMean(m.Field, s.FieldNames()),
				Line:       m.Line,
			})
			continue
		}
		if atom, ok := f.Type.(*types.Atom); ok && atom.Literals != nil {
			var missing []string
			for _, t := range m.Transitions {
				if !atom.Accepts(value.String(t.From)) {
					missing = append(missing, t.From)
				}
			}
			if len(missing) > 0 {
				result.Warnings = append(result.Warnings, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("states %s are not allowed by %s.%s", strings.Join(missing, ", "), m.Entity, m.Field),
					Line:    m.Line,
				})
			}
		}
	}

	return result, nil
}

func definitionNames(pkg *Package) []string {
	names := make([]string, len(pkg.Definitions))
	for i, d := range pkg.Definitions {
		names[i] = d.Name
	}
	return names
}

// unreachableStates lists states no path from the first declared state reaches
func unreachableStates(m Machine) []string {
	if len(m.Transitions) == 0 {
		return nil
	}
	targets := make(map[string][]string, len(m.Transitions))
	for _, t := range m.Transitions {
		targets[t.From] = t.To
	}
	seen := map[string]bool{m.Transitions[0].From: true}
	queue := []string{m.Transitions[0].From}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, next := range targets[s] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	var out []string
	for _, t := range m.Transitions {
		if !seen[t.From] {
			out = append(out, t.From)
		}
	}
	return out
}
