package schema

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/iancoleman/strcase"
	"gopkg.in/yaml.v3"

	"github.com/mattbaird/ontology-sub000/pkg/statemachine"
	"github.com/mattbaird/ontology-sub000/pkg/types"
)

// Package is a parsed and validated package document
type Package struct {
	APIVersion  string
	Kind        string
	Name        string
	Imports     []string
	Definitions []Definition
	Machines    []Machine

	// Source is the file the package was read from, empty for in-memory input
	Source string
	// LineMap maps dotted document paths to line numbers
	LineMap map[string]int
}

// Definition is one named type expression
type Definition struct {
	Name        string
	Description string
	Expr        types.Expr
	Line        int
}

// Machine is one named transition table
type Machine struct {
	Name        string
	Entity      string // Definition whose Field holds the state, optional
	Field       string
	SelfLoops   bool
	Transitions []statemachine.Transition
	Line        int
}

// Definition returns the named definition
func (p *Package) Definition(name string) (Definition, bool) {
	for _, d := range p.Definitions {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Build constructs the runtime state machine
func (m Machine) Build() (*statemachine.Machine, error) {
	return statemachine.New(m.Name, m.Transitions, statemachine.WithSelfLoops(m.SelfLoops), statemachine.BoundTo(m.Field))
}

// document mirrors the top level of a package file. Definitions and machines
// are polymorphic and decoded from raw nodes.
type document struct {
	APIVersion  string    `yaml:"apiVersion"`
	Kind        string    `yaml:"kind"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Imports     []string  `yaml:"imports,omitempty"`
	Definitions yaml.Node `yaml:"definitions,omitempty"`
	Machines    yaml.Node `yaml:"machines,omitempty"`
}

var packageNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Parse reads and validates a package file
func Parse(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package file: %w", err)
	}

	pkg, err := ParseBytes(data)
	if err != nil {
		return nil, err
	}
	pkg.Source = path
	return pkg, nil
}

// ParseBytes reads and validates a package from bytes
func ParseBytes(data []byte) (*Package, error) {
	// First pass: parse with node API to get line numbers
	var rootNode yaml.Node
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&rootNode); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	lineMap := make(map[string]int)
	extractLineNumbers(&rootNode, "", lineMap)

	// Second pass: strict parsing with KnownFields
	var doc document
	decoder = yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse package (check for unknown/misspelled fields): %w", err)
	}

	pkg := &Package{
		APIVersion: doc.APIVersion,
		Kind:       doc.Kind,
		Name:       doc.Name,
		Imports:    doc.Imports,
		LineMap:    lineMap,
	}

	errs := validateHeader(pkg, lineMap)
	errs = append(errs, parseDefinitions(pkg, &doc.Definitions)...)
	errs = append(errs, parseMachines(pkg, &doc.Machines)...)
	if len(errs) > 0 {
		return nil, errs
	}
	return pkg, nil
}

func validateHeader(pkg *Package, lineMap map[string]int) ValidationErrors {
	var errors ValidationErrors

	if pkg.APIVersion == "" {
		errors = append(errors, ValidationError{
			Field:   "apiVersion",
			Message: "apiVersion is required",
			Line:    getLineNumber(lineMap, "apiVersion"),
		})
	} else if pkg.APIVersion != "v1" {
		errors = append(errors, ValidationError{
			Field:      "apiVersion",
			Message:    fmt.Sprintf("invalid apiVersion '%s'", pkg.APIVersion),
			Suggestion: "use 'v1'",
			Line:       getLineNumber(lineMap, "apiVersion"),
		})
	}

	if pkg.Kind == "" {
		errors = append(errors, ValidationError{
			Field:   "kind",
			Message: "kind is required",
			Line:    getLineNumber(lineMap, "kind"),
		})
	} else if pkg.Kind != "Package" {
		errors = append(errors, ValidationError{
			Field:      "kind",
			Message:    fmt.Sprintf("invalid kind '%s'", pkg.Kind),
			Suggestion: "use 'Package'",
			Line:       getLineNumber(lineMap, "kind"),
		})
	}

	if pkg.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "name",
			Message: "name is required",
			Line:    getLineNumber(lineMap, "name"),
		})
	} else if !packageNamePattern.MatchString(pkg.Name) {
		errors = append(errors, ValidationError{
			Field:      "name",
			Message:    fmt.Sprintf("package name '%s' must be lower snake_case", pkg.Name),
			Suggestion: fmt.Sprintf("use '%s'", strcase.ToSnake(pkg.Name)),
			Line:       getLineNumber(lineMap, "name"),
		})
	}

	seen := make(map[string]int)
	for i, imp := range pkg.Imports {
		path := fmt.Sprintf("imports[%d]", i)
		line := getLineNumber(lineMap, fmt.Sprintf("imports.%d", i))
		switch {
		case imp == "":
			errors = append(errors, ValidationError{Field: path, Message: "import name cannot be empty", Line: line})
		case imp == pkg.Name:
			errors = append(errors, ValidationError{
				Field:      path,
				Message:    fmt.Sprintf("package '%s' imports itself", imp),
				Suggestion: "reference local definitions without an import",
				Line:       line,
			})
		default:
			if first, dup := seen[imp]; dup {
				errors = append(errors, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("duplicate import '%s' (first listed at imports[%d])", imp, first),
					Line:    line,
				})
				continue
			}
			seen[imp] = i
		}
	}
	return errors
}

func parseDefinitions(pkg *Package, node *yaml.Node) ValidationErrors {
	if node.Kind == 0 {
		return nil
	}
	var errors ValidationErrors
	if node.Kind != yaml.MappingNode {
		return append(errors, ValidationError{Field: "definitions", Message: "definitions must be a mapping of name to type", Line: node.Line})
	}

	seen := make(map[string]int)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		name := key.Value
		path := "definitions." + name

		if first, dup := seen[name]; dup {
			errors = append(errors, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("duplicate definition '%s' (first defined on line %d)", name, first),
				Line:    key.Line,
			})
			continue
		}
		seen[name] = key.Line

		if !isIdentifier(name) {
			errors = append(errors, ValidationError{
				Field:      path,
				Message:    fmt.Sprintf("definition name '%s' is not a valid identifier", name),
				Suggestion: fmt.Sprintf("use '%s'", strcase.ToCamel(name)),
				Line:       key.Line,
			})
			continue
		}
		if types.IsBuiltin(name) {
			errors = append(errors, ValidationError{
				Field:      path,
				Message:    fmt.Sprintf("definition name '%s' shadows a built-in type", name),
				Suggestion: fmt.Sprintf("use '%s'", strcase.ToCamel(name)),
				Line:       key.Line,
			})
			continue
		}

		p := &exprParser{}
		expr := p.definition(val, path)
		errors = append(errors, p.errs...)
		if len(p.errs) > 0 {
			continue
		}
		pkg.Definitions = append(pkg.Definitions, Definition{
			Name:        name,
			Description: p.description,
			Expr:        expr,
			Line:        key.Line,
		})
	}
	return errors
}

func parseMachines(pkg *Package, node *yaml.Node) ValidationErrors {
	if node.Kind == 0 {
		return nil
	}
	var errors ValidationErrors
	if node.Kind != yaml.MappingNode {
		return append(errors, ValidationError{Field: "machines", Message: "machines must be a mapping of name to machine", Line: node.Line})
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		path := "machines." + key.Value

		var raw struct {
			Entity        string    `yaml:"entity,omitempty"`
			Field         string    `yaml:"field,omitempty"`
			AllowSelfLoop bool      `yaml:"allow_self_loop,omitempty"`
			Description   string    `yaml:"description,omitempty"`
			Transitions   yaml.Node `yaml:"transitions"`
		}
		if err := decodeStrict(val, &raw); err != nil {
			errors = append(errors, ValidationError{
				Field:      path,
				Message:    err.Error(),
				Suggestion: "machines accept entity, field, allow_self_loop, description, transitions",
				Line:       val.Line,
			})
			continue
		}

		m := Machine{Name: key.Value, Entity: raw.Entity, Field: raw.Field, SelfLoops: raw.AllowSelfLoop, Line: key.Line}
		if raw.Transitions.Kind != yaml.MappingNode {
			errors = append(errors, ValidationError{
				Field:      path + ".transitions",
				Message:    "transitions must map each state to its targets",
				Suggestion: "write 'transitions: {draft: [active], active: []}'",
				Line:       val.Line,
			})
			continue
		}
		for j := 0; j+1 < len(raw.Transitions.Content); j += 2 {
			from, targets := raw.Transitions.Content[j], raw.Transitions.Content[j+1]
			var to []string
			if err := targets.Decode(&to); err != nil {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.transitions.%s", path, from.Value),
					Message: "targets must be a list of state names",
					Line:    targets.Line,
				})
				continue
			}
			m.Transitions = append(m.Transitions, statemachine.Transition{From: from.Value, To: to})
		}
		if _, err := m.Build(); err != nil {
			errors = append(errors, ValidationError{Field: path, Message: err.Error(), Line: key.Line})
			continue
		}
		pkg.Machines = append(pkg.Machines, m)
	}
	return errors
}

// decodeStrict decodes node into out rejecting unknown keys
func decodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// extractLineNumbers walks the YAML node tree and builds a map of field paths to line numbers
func extractLineNumbers(node *yaml.Node, path string, lineMap map[string]int) {
	if node == nil {
		return
	}

	if path != "" {
		lineMap[path] = node.Line
	}

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) > 0 {
			extractLineNumbers(node.Content[0], path, lineMap)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			extractLineNumbers(node.Content[i+1], newPath, lineMap)
		}
	case yaml.SequenceNode:
		for i, child := range node.Content {
			extractLineNumbers(child, fmt.Sprintf("%s.%d", path, i), lineMap)
		}
	}
}

// getLineNumber retrieves the line number for a given path
func getLineNumber(lineMap map[string]int, path string) int {
	if lineMap == nil {
		return 0
	}
	return lineMap[path]
}

// isIdentifier checks for a letter followed by letters, digits, or underscores
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !(c >= '0' && c <= '9') && c != '_' {
			return false
		}
	}
	return true
}

// isPascalCase checks if a string is in PascalCase
func isPascalCase(s string) bool {
	if s == "" {
		return false
	}
	if s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
