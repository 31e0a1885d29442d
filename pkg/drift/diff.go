package drift

import (
	"sort"
	"strings"

	"github.com/mattbaird/ontology-sub000/pkg/types"
)

// ChangeKind says how a sub-constraint changed
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Removed  ChangeKind = "removed"
	Modified ChangeKind = "modified"
)

// Change is one sub-constraint that differs between two versions of a
// definition
type Change struct {
	Path string     `json:"path" yaml:"path"`
	Kind ChangeKind `json:"kind" yaml:"kind"`
	Old  string     `json:"old,omitempty" yaml:"old,omitempty"`
	New  string     `json:"new,omitempty" yaml:"new,omitempty"`
}

func (c Change) String() string {
	path := c.Path
	if path == "" {
		path = "(root)"
	}
	switch c.Kind {
	case Added:
		return path + ": added " + c.New
	case Removed:
		return path + ": removed " + c.Old
	}
	return path + ": " + c.Old + " -> " + c.New
}

// Diff compares two expanded expressions field by field. Changes are
// ordered by path.
func Diff(old, new types.Expr) []Change {
	var changes []Change
	diff(old, new, "", &changes)
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func diff(a, b types.Expr, path string, out *[]Change) {
	if types.Equal(a, b) {
		return
	}

	sa, aStruct := a.(*types.Struct)
	sb, bStruct := b.(*types.Struct)
	if aStruct && bStruct {
		diffStructs(sa, sb, path, out)
		return
	}

	la, aList := a.(*types.List)
	lb, bList := b.(*types.List)
	if aList && bList {
		if itemBounds(la) != itemBounds(lb) {
			*out = append(*out, Change{Path: joinSite(path, "(items)"), Kind: Modified, Old: itemBounds(la), New: itemBounds(lb)})
		}
		diff(la.Elem, lb.Elem, path+"[]", out)
		return
	}

	*out = append(*out, Change{Path: path, Kind: Modified, Old: types.Canonical(a), New: types.Canonical(b)})
}

func diffStructs(a, b *types.Struct, path string, out *[]Change) {
	if a.Closed != b.Closed {
		*out = append(*out, Change{Path: joinSite(path, "(closed)"), Kind: Modified, Old: closedness(a), New: closedness(b)})
	}

	// 1. Fields added or changed
	for _, nf := range b.Fields {
		fpath := joinSite(path, nf.Name)
		of, existed := a.Field(nf.Name)
		if !existed {
			*out = append(*out, Change{Path: fpath, Kind: Added, New: fieldString(nf)})
			continue
		}
		if of.Required != nf.Required || !sameDefault(of, nf) {
			*out = append(*out, Change{Path: fpath, Kind: Modified, Old: fieldString(of), New: fieldString(nf)})
			continue
		}
		diff(of.Type, nf.Type, fpath, out)
	}

	// 2. Fields removed
	for _, of := range a.Fields {
		if _, still := b.Field(of.Name); !still {
			*out = append(*out, Change{Path: joinSite(path, of.Name), Kind: Removed, Old: fieldString(of)})
		}
	}

	// 3. Conditionals
	oldConds, newConds := conditionals(a), conditionals(b)
	if oldConds != newConds {
		*out = append(*out, Change{Path: joinSite(path, "(when)"), Kind: Modified, Old: oldConds, New: newConds})
	}
}

func fieldString(f types.FieldSpec) string {
	s := "optional "
	if f.Required {
		s = "required "
	}
	s += types.Canonical(f.Type)
	if f.Default != nil {
		s += " = " + f.Default.Canonical()
	}
	return s
}

func sameDefault(a, b types.FieldSpec) bool {
	if a.Default == nil || b.Default == nil {
		return a.Default == nil && b.Default == nil
	}
	return a.Default.Canonical() == b.Default.Canonical()
}

func closedness(s *types.Struct) string {
	if s.Closed {
		return "closed"
	}
	return "open"
}

func itemBounds(l *types.List) string {
	c := types.Canonical(&types.List{Elem: &types.Struct{}, MinItems: l.MinItems, MaxItems: l.MaxItems})
	c = strings.TrimPrefix(c, "[{}]")
	if c == "" {
		return "unbounded"
	}
	return c
}

func conditionals(s *types.Struct) string {
	if len(s.Conditionals) == 0 {
		return ""
	}
	c := types.Canonical(&types.Struct{Conditionals: s.Conditionals})
	return strings.TrimSuffix(strings.TrimPrefix(c, "{"), "}")
}
