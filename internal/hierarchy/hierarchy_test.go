package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deobf/internal/jvm"
)

func class(name, super string, ifaces ...string) *jvm.Class {
	return &jvm.Class{Name: name, Super: super, Interfaces: ifaces}
}

func TestIsAssignableThroughBuiltins(t *testing.T) {
	g := New([]*jvm.Class{class("p/MyError", "java/lang/IllegalStateException")})

	ok, known := g.IsAssignable("java/lang/RuntimeException", "p/MyError")
	assert.True(t, ok)
	assert.True(t, known)

	ok, known = g.IsAssignable("java/io/IOException", "p/MyError")
	assert.False(t, ok)
	assert.True(t, known)

	ok, known = g.IsAssignable(Object, "anything/Unknown")
	assert.True(t, ok)
	assert.True(t, known)
}

func TestIsAssignableUnknownAncestor(t *testing.T) {
	g := New([]*jvm.Class{class("p/A", "lib/Base")})

	ok, known := g.IsAssignable("java/lang/Exception", "p/A")
	assert.False(t, ok)
	assert.False(t, known)
}

func TestIsAssignableThroughInterfaces(t *testing.T) {
	g := New([]*jvm.Class{
		class("p/I", Object),
		class("p/J", Object, "p/I"),
		class("p/C", Object, "p/J"),
	})
	ok, known := g.IsAssignable("p/I", "p/C")
	assert.True(t, ok)
	assert.True(t, known)
}

func TestDefinedAndKnown(t *testing.T) {
	g := New([]*jvm.Class{class("p/A", Object)})
	assert.True(t, g.Defined("p/A"))
	assert.False(t, g.Defined("java/lang/Throwable"))
	assert.True(t, g.Known("java/lang/Throwable"))
	assert.False(t, g.Known("p/Missing"))
	assert.Equal(t, []string{"java/lang/Throwable", Object}, g.Ancestors("java/lang/Exception"))
}

func TestCycles(t *testing.T) {
	g := New([]*jvm.Class{
		class("p/A", "p/B"),
		class("p/B", "p/A"),
		class("p/C", "p/A"), // reaches the cycle but is not on it
		class("p/I", Object, "p/I"),
		class("p/D", Object),
	})
	assert.Equal(t, []string{"p/A", "p/B", "p/I"}, g.Cycles())
	assert.True(t, g.InCycle("p/A"))
	assert.False(t, g.InCycle("p/C"))

	// an unknown-terminated cycle walk must still terminate
	ok, known := g.IsAssignable("p/D", "p/C")
	assert.False(t, ok)
	assert.True(t, known)
}

func TestLatticeExport(t *testing.T) {
	g := New([]*jvm.Class{
		class("p/B", Object),
		class("p/A", "p/B", "p/I"),
	})
	lg := g.Lattice()
	require.Equal(t, []string{"p/A", "p/B"}, lg.Nodes)
	var edges []string
	for _, e := range lg.Edges {
		edges = append(edges, e.Caller+"->"+e.Callee)
	}
	assert.ElementsMatch(t, []string{"p/A->p/B", "p/A->p/I", "p/B->" + Object}, edges)
}
