// Package hierarchy models class inheritance over a bundle, backed by a
// built-in table of common JDK types.
package hierarchy

import (
	"sort"

	"github.com/zboralski/lattice"

	"deobf/internal/jvm"
)

// Object is the root of every class hierarchy.
const Object = "java/lang/Object"

type node struct {
	super   string
	ifaces  []string
	defined bool // declared in the bundle rather than built in
}

// Graph answers subtype questions. It is immutable once built.
type Graph struct {
	nodes map[string]*node
	cycle map[string]bool
}

// New builds the graph for classes. Bundle classes shadow built-in entries
// of the same name.
func New(classes []*jvm.Class) *Graph {
	g := &Graph{nodes: make(map[string]*node, len(classes)+len(builtin))}
	for name, super := range builtin {
		g.nodes[name] = &node{super: super}
	}
	for _, c := range classes {
		g.nodes[c.Name] = &node{super: c.Super, ifaces: append([]string(nil), c.Interfaces...), defined: true}
	}
	g.cycle = g.findCycles()
	return g
}

// Defined reports whether name is declared in the bundle.
func (g *Graph) Defined(name string) bool {
	n, ok := g.nodes[name]
	return ok && n.defined
}

// Known reports whether the graph has any information about name.
func (g *Graph) Known(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Parents returns the superclass followed by the interfaces of name.
func (g *Graph) Parents(name string) []string {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	var out []string
	if n.super != "" {
		out = append(out, n.super)
	}
	return append(out, n.ifaces...)
}

// IsAssignable reports whether a value of class from may be stored in a
// variable of class to. known is false when the answer depends on a class the
// graph has never seen; ok is then false as well.
func (g *Graph) IsAssignable(to, from string) (ok, known bool) {
	if to == from || to == Object {
		return true, true
	}
	known = true
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true, true
		}
		if cur == Object {
			continue
		}
		if !g.Known(cur) {
			known = false
			continue
		}
		for _, p := range g.Parents(cur) {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false, known
}

// Ancestors lists every known supertype of name, nearest first.
func (g *Graph) Ancestors(name string) []string {
	var out []string
	seen := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range g.Parents(cur) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
				queue = append(queue, p)
			}
		}
	}
	return out
}

// InCycle reports whether name reaches itself through its supertypes.
func (g *Graph) InCycle(name string) bool { return g.cycle[name] }

// Cycles lists every bundle class that reaches itself, sorted.
func (g *Graph) Cycles() []string {
	out := make([]string, 0, len(g.cycle))
	for name := range g.cycle {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (g *Graph) findCycles() map[string]bool {
	out := make(map[string]bool)
	for name, n := range g.nodes {
		if !n.defined {
			continue
		}
		if g.reaches(name) {
			out[name] = true
		}
	}
	return out
}

// reaches reports whether start is among the supertypes reachable from its
// own parents.
func (g *Graph) reaches(start string) bool {
	seen := make(map[string]bool)
	queue := g.Parents(start)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == start {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, g.Parents(cur)...)
	}
	return false
}

// Lattice exports the bundle part of the graph with an edge from every
// class to each of its parents.
func (g *Graph) Lattice() *lattice.Graph {
	names := make([]string, 0, len(g.nodes))
	for name, n := range g.nodes {
		if n.defined {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := &lattice.Graph{Nodes: names}
	for _, name := range names {
		for _, p := range g.Parents(name) {
			out.Edges = append(out.Edges, lattice.Edge{Caller: name, Callee: p})
		}
	}
	out.Dedup()
	return out
}
