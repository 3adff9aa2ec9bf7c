// Package callgraph exports method bodies as lattice graphs for rendering.
package callgraph

import (
	"github.com/zboralski/lattice"

	"deobf/internal/jvm"
)

// MethodInfo holds the data needed to build call graph and CFG for one method.
type MethodInfo struct {
	Name string // owner.name(desc)
	Code *jvm.Code
}

// MethodName is the graph node name of a method.
func MethodName(owner, name, desc string) string { return owner + "." + name + desc }

// FromClasses lists every method with code, in class then declaration order.
func FromClasses(classes []*jvm.Class) []MethodInfo {
	var out []MethodInfo
	for _, c := range classes {
		for _, m := range c.Methods {
			if m.Code == nil {
				continue
			}
			out = append(out, MethodInfo{Name: MethodName(c.Name, m.Name, m.Desc), Code: m.Code})
		}
	}
	return out
}

// callee returns the node name targeted by an invoke, "" for non-calls.
func callee(in jvm.Insn) string {
	switch {
	case in.Op == jvm.INVOKEDYNAMIC:
		return "indy:" + in.Name + in.Desc
	case jvm.IsInvoke(in.Op):
		return MethodName(in.Owner, in.Name, in.Desc)
	}
	return ""
}

// BuildCallGraph constructs a lattice.Graph from method bodies.
// Each method becomes a node. Each invoke becomes an edge; targets outside
// the input set appear only as edge endpoints.
func BuildCallGraph(methods []MethodInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, m := range methods {
		g.Nodes = append(g.Nodes, m.Name)
		if m.Code == nil {
			continue
		}
		for _, in := range m.Code.Insns {
			if c := callee(in); c != "" {
				g.Edges = append(g.Edges, lattice.Edge{Caller: m.Name, Callee: c})
			}
		}
	}
	g.Dedup()
	return g
}
