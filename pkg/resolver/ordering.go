package resolver

import (
	"sort"
	"strings"
)

// DependencyGraph tracks imports between packages
type DependencyGraph struct {
	nodes []string
	edges map[string][]string // package -> packages it imports
}

// NewDependencyGraph creates a new empty graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{edges: make(map[string][]string)}
}

// AddNode registers a package. Adding a node twice is a no-op.
func (g *DependencyGraph) AddNode(name string) {
	if _, ok := g.edges[name]; ok {
		return
	}
	g.nodes = append(g.nodes, name)
	g.edges[name] = []string{}
}

// AddEdge records that from imports to. Both must already be nodes.
func (g *DependencyGraph) AddEdge(from, to string) {
	for _, d := range g.edges[from] {
		if d == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// dropEdges removes every outgoing edge of name
func (g *DependencyGraph) dropEdges(name string) {
	if _, ok := g.edges[name]; ok {
		g.edges[name] = []string{}
	}
}

// Dependencies returns the direct imports of a package
func (g *DependencyGraph) Dependencies(name string) []string {
	if deps, ok := g.edges[name]; ok {
		return deps
	}
	return []string{}
}

// CycleError names the packages of an import cycle in import order,
// starting and ending with the same package
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "import cycle: " + strings.Join(e.Path, " -> ")
}

// TopologicalSort orders packages so that imports come before importers.
// Ties are broken by name so the order is stable across loads.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	var sorted []string
	visited := make(map[string]bool)
	visiting := make(map[string]bool) // For cycle detection
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		if visiting[name] {
			for i, n := range stack {
				if n == name {
					path := append(append([]string(nil), stack[i:]...), name)
					return &CycleError{Path: path}
				}
			}
		}
		if visited[name] {
			return nil
		}

		visiting[name] = true
		stack = append(stack, name)

		deps := append([]string(nil), g.edges[name]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		visiting[name] = false
		visited[name] = true
		sorted = append(sorted, name)
		return nil
	}

	names := append([]string(nil), g.nodes...)
	sort.Strings(names)
	for _, name := range names {
		if !visited[name] {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}

	return sorted, nil
}

// HasCircularDependency checks if the graph contains an import cycle
func (g *DependencyGraph) HasCircularDependency() (bool, string) {
	_, err := g.TopologicalSort()
	if err != nil {
		return true, err.Error()
	}
	return false, ""
}
