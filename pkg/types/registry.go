package types

import (
	"fmt"
	"sort"
)

// KindInfo describes a named scalar kind usable in package documents
type KindInfo struct {
	Atom        Atom   // Template atom; Lookup returns a fresh copy
	Description string // Shown by `ontology kinds`
}

func intPtr(n int) *int { return &n }

// Registry contains all built-in scalar kind names
var Registry = map[string]KindInfo{
	// Primitive kinds
	"null": {
		Atom:        Atom{Kind: KindNull},
		Description: "the null value",
	},
	"bool": {
		Atom:        Atom{Kind: KindBool},
		Description: "true or false",
	},
	"number": {
		Atom:        Atom{Kind: KindNumber},
		Description: "any finite number",
	},
	"float64": {
		Atom:        Atom{Kind: KindNumber},
		Description: "alias of number",
	},
	"int": {
		Atom:        Atom{Kind: KindNumber, Integer: true},
		Description: "a number without fractional part",
	},
	"int64": {
		Atom:        Atom{Kind: KindNumber, Integer: true, Min: &Bound{Value: -9223372036854775808}, Max: &Bound{Value: 9223372036854775807}},
		Description: "a 64-bit integer",
	},
	"string": {
		Atom:        Atom{Kind: KindString},
		Description: "any string",
	},
	"text": {
		Atom:        Atom{Kind: KindString},
		Description: "alias of string for long-form content",
	},

	// Formatted strings
	"uuid": {
		Atom:        Atom{Kind: KindString, Patterns: []string{`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`}},
		Description: "an RFC 4122 UUID in canonical text form",
	},
	"date": {
		Atom:        Atom{Kind: KindString, Patterns: []string{`^\d{4}-\d{2}-\d{2}$`}},
		Description: "a calendar date, YYYY-MM-DD",
	},
	"timestamp": {
		Atom:        Atom{Kind: KindString, Patterns: []string{`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`}},
		Description: "an RFC 3339 timestamp",
	},
	"email": {
		Atom:        Atom{Kind: KindString, Patterns: []string{`^[^@\s]+@[^@\s]+\.[^@\s]+$`}},
		Description: "an email address",
	},
	"decimal": {
		Atom:        Atom{Kind: KindString, Patterns: []string{`^-?\d+(\.\d+)?$`}},
		Description: "a decimal number carried as a string to keep precision",
	},
	"currency_code": {
		Atom:        Atom{Kind: KindString, Patterns: []string{`^[A-Z]{3}$`}, MinLength: intPtr(3), MaxLength: intPtr(3)},
		Description: "an ISO 4217 currency code",
	},
}

// Lookup retrieves a fresh atom for a kind name
func Lookup(name string) (*Atom, bool) {
	info, ok := Registry[name]
	if !ok {
		return nil, false
	}
	return info.Atom.clone(), true
}

// MustLookup is Lookup for names known to be registered
func MustLookup(name string) *Atom {
	a, ok := Lookup(name)
	if !ok {
		panic(fmt.Sprintf("unknown kind: %s", name))
	}
	return a
}

// IsBuiltin reports whether name is a registered kind
func IsBuiltin(name string) bool {
	_, ok := Registry[name]
	return ok
}

// KindNames returns all registered kind names, sorted
func KindNames() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
