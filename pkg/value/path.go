package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a Path: a struct field name or a list index
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Path addresses a nested value, e.g. "tenants[0].name"
type Path []Segment

// ParsePath parses the dotted/indexed notation produced by Path.String
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Path{}, nil
	}

	var p Path
	i := 0
	for i < len(s) {
		switch s[i] {
		case '.':
			if i == 0 || i == len(s)-1 {
				return nil, fmt.Errorf("invalid path %q: misplaced '.'", s)
			}
			i++
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("invalid path %q: unclosed '['", s)
			}
			idx, err := strconv.Atoi(s[i+1 : i+end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid path %q: bad index %q", s, s[i+1:i+end])
			}
			p = append(p, Segment{Index: idx, IsIndex: true})
			i += end + 1
		default:
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			p = append(p, Segment{Name: s[i:j]})
			i = j
		}
	}
	return p, nil
}

// MustParsePath is ParsePath for literals known to be valid
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Field returns a copy of p extended with a struct field step
func (p Path) Field(name string) Path {
	cp := make(Path, len(p), len(p)+1)
	copy(cp, p)
	return append(cp, Segment{Name: name})
}

// Item returns a copy of p extended with a list index step
func (p Path) Item(i int) Path {
	cp := make(Path, len(p), len(p)+1)
	copy(cp, p)
	return append(cp, Segment{Index: i, IsIndex: true})
}

// Head returns the first field name of p, if any
func (p Path) Head() (string, bool) {
	if len(p) == 0 || p[0].IsIndex {
		return "", false
	}
	return p[0].Name, true
}

// String renders p as "a.b[0].c"
func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			sb.WriteString("[" + strconv.Itoa(seg.Index) + "]")
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(seg.Name)
	}
	return sb.String()
}

// Lookup walks v along p. It is the only way conditional predicates and
// dynamic bounds read sibling data.
func Lookup(v Value, p Path) (Value, bool) {
	cur := v
	for _, seg := range p {
		var ok bool
		if seg.IsIndex {
			cur, ok = cur.Index(seg.Index)
		} else {
			cur, ok = cur.Get(seg.Name)
		}
		if !ok {
			return Value{}, false
		}
	}
	return cur, true
}
