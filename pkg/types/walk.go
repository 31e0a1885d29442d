package types

// Visitor is called for every node reached by Walk. site is the dotted field
// path of the node inside the walked expression ("" for the root). Returning
// false stops the descent below that node.
type Visitor func(e Expr, site string) bool

// Walk visits e depth-first in declaration order. Refs are not followed.
func Walk(e Expr, visit Visitor) {
	walk(e, "", visit)
}

func walk(e Expr, site string, visit Visitor) {
	if e == nil || !visit(e, site) {
		return
	}
	switch t := e.(type) {
	case *Struct:
		for _, f := range t.Fields {
			walk(f.Type, joinSite(site, f.Name), visit)
		}
		for _, c := range t.Conditionals {
			walk(c, site, visit)
		}
	case *Conditional:
		walk(t.Then, site, visit)
	case *List:
		walk(t.Elem, site+"[]", visit)
	case *Union:
		for _, a := range t.Alternatives {
			walk(a, site, visit)
		}
	case *Composite:
		walk(t.Left, site, visit)
		walk(t.Right, site, visit)
	}
}

func joinSite(site, name string) string {
	if site == "" {
		return name
	}
	return site + "." + name
}

// Refs collects every Ref reachable from e without following them
func Refs(e Expr) []*Ref {
	var refs []*Ref
	Walk(e, func(n Expr, _ string) bool {
		if r, ok := n.(*Ref); ok {
			refs = append(refs, r)
		}
		return true
	})
	return refs
}
