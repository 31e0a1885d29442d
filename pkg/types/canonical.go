package types

import (
	_ "crypto/sha256" // registers the digest algorithm
	"fmt"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// Canonical renders e deterministically. Struct fields, union alternatives,
// literal sets, and conditionals are sorted, so two expressions that accept
// the same structure render identically regardless of declaration order.
func Canonical(e Expr) string {
	var sb strings.Builder
	writeCanonical(&sb, e)
	return sb.String()
}

// Equal compares canonical forms
func Equal(a, b Expr) bool {
	return Canonical(a) == Canonical(b)
}

// Fingerprint returns a content digest of the canonical form
func Fingerprint(e Expr) digest.Digest {
	return digest.FromString(Canonical(e))
}

func writeCanonical(sb *strings.Builder, e Expr) {
	switch t := e.(type) {
	case nil:
		sb.WriteString("_")
	case *Atom:
		writeAtom(sb, t)
	case *Struct:
		writeStruct(sb, t)
	case *Conditional:
		writeStruct(sb, &Struct{Conditionals: []*Conditional{t}})
	case *List:
		sb.WriteByte('[')
		writeCanonical(sb, t.Elem)
		sb.WriteByte(']')
		var bounds []string
		if t.MinItems != nil {
			bounds = append(bounds, fmt.Sprintf("min=%d", *t.MinItems))
		}
		if t.MaxItems != nil {
			bounds = append(bounds, fmt.Sprintf("max=%d", *t.MaxItems))
		}
		if len(bounds) > 0 {
			sb.WriteString("(" + strings.Join(bounds, ",") + ")")
		}
	case *Union:
		alts := make([]string, len(t.Alternatives))
		for i, a := range t.Alternatives {
			alts[i] = Canonical(a)
		}
		sort.Strings(alts)
		sb.WriteString("(" + strings.Join(alts, " | ") + ")")
	case *Ref:
		sb.WriteString("ref(" + t.QualifiedName() + ")")
	case *Composite:
		sides := []string{Canonical(t.Left), Canonical(t.Right)}
		sort.Strings(sides)
		if t.Close {
			sb.WriteString("close")
		}
		sb.WriteString("(" + sides[0] + " & " + sides[1] + ")")
	default:
		sb.WriteString(fmt.Sprintf("<%T>", e))
	}
}

func writeAtom(sb *strings.Builder, a *Atom) {
	sb.WriteString(a.TypeName())

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
	if a.MinLength != nil {
		parts = append(parts, fmt.Sprintf("len>=%d", *a.MinLength))
	}
	if a.MaxLength != nil {
		parts = append(parts, fmt.Sprintf("len<=%d", *a.MaxLength))
	}
	for _, p := range NormalizePatterns(a.Patterns) {
		parts = append(parts, fmt.Sprintf("pattern=%q", p))
	}
	if a.Literals != nil {
		lits := NormalizeLiterals(a.Literals)
		strs := make([]string, len(lits))
		for i, l := range lits {
			strs[i] = l.Canonical()
		}
		parts = append(parts, "enum=["+strings.Join(strs, ",")+"]")
	}
	for _, d := range NormalizeDynamic(a.Dynamic) {
		parts = append(parts, d.String())
	}
	if len(parts) > 0 {
		sb.WriteString("(" + strings.Join(parts, ",") + ")")
	}
}

func writeStruct(sb *strings.Builder, s *Struct) {
	fields := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		marker := "?"
		if f.Required {
			marker = "!"
		}
		entry := f.Name + marker + ": " + Canonical(f.Type)
		if f.Default != nil {
			entry += " = " + f.Default.Canonical()
		}
		fields = append(fields, entry)
	}
	sort.Strings(fields)

	conds := make([]string, 0, len(s.Conditionals))
	for _, c := range s.Conditionals {
		conds = append(conds, "if "+c.When.String()+" then "+Canonical(c.Then))
	}
	sort.Strings(conds)

	if s.Closed {
		sb.WriteString("close")
	}
	sb.WriteString("{" + strings.Join(append(fields, conds...), ", ") + "}")
}
