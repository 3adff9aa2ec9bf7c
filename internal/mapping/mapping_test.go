package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deobf/internal/jvm"
)

func TestIdentityRenamesDropped(t *testing.T) {
	m := New()
	m.AddClass("a", "a")
	m.AddField("a", "f", "I", "f")
	m.AddMethod("a", "m", "()V", "m")
	assert.Equal(t, 0, m.Len())
}

func TestDescRewrite(t *testing.T) {
	m := New()
	m.AddClass("a", "com/x/Alpha")
	m.AddClass("b", "com/x/Beta")

	tests := []struct{ in, want string }{
		{"(La;[[Lb;IJ)La;", "(Lcom/x/Alpha;[[Lcom/x/Beta;IJ)Lcom/x/Alpha;"},
		{"I", "I"},
		{"", ""},
		{"Ljava/util/List<La;>;", "Ljava/util/List<Lcom/x/Alpha;>;"},
		{"<T:La;U::Ljava/lang/Comparable<TU;>;>(TT;)Lb;", "<T:Lcom/x/Alpha;U::Ljava/lang/Comparable<TU;>;>(TT;)Lcom/x/Beta;"},
		{"<La:Ljava/lang/Object;>Ljava/lang/Object;", "<La:Ljava/lang/Object;>Ljava/lang/Object;"},
		{"La<TT;>.b;", "Lcom/x/Alpha<TT;>.b;"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Desc(tt.in), tt.in)
	}
}

func enumLike() *jvm.Class {
	clinit := jvm.NewBuilder().
		Type(jvm.NEW, "p/E").
		Op(jvm.DUP).
		LdcString("RED").
		Op(jvm.ICONST_0).
		Invoke(jvm.INVOKESPECIAL, "p/E", "<init>", "(Ljava/lang/String;I)V").
		Field(jvm.PUTSTATIC, "p/E", "a", "Lp/E;").
		Field(jvm.GETSTATIC, "p/E", "a", "Lp/E;").
		Invoke(jvm.INVOKEVIRTUAL, "p/E", "m", "()V").
		Op(jvm.RETURN).
		Build()
	return &jvm.Class{
		Name:  "p/E",
		Super: "java/lang/Enum",
		Fields: []*jvm.Field{
			{Access: jvm.AccStatic | jvm.AccEnum, Name: "a", Desc: "Lp/E;"},
		},
		Methods: []*jvm.Method{
			{Access: jvm.AccStatic, Name: "<clinit>", Desc: "()V", Code: clinit},
			{Name: "m", Desc: "()V", Code: jvm.NewBuilder().Op(jvm.RETURN).Build()},
		},
	}
}

func TestApplyClassRewritesDeclarationsAndReferences(t *testing.T) {
	m := New()
	m.AddField("p/E", "a", "Lp/E;", "RED")
	m.AddMethod("p/E", "m", "()V", "paint")
	m.AddClass("p/E", "p/Color")

	orig := enumLike()
	out := m.ApplyClass(orig)

	assert.Equal(t, "p/Color", out.Name)
	assert.Equal(t, "RED", out.Fields[0].Name)
	assert.Equal(t, "Lp/Color;", out.Fields[0].Desc)
	assert.Equal(t, "paint", out.Methods[1].Name)
	assert.Equal(t, "<clinit>", out.Methods[0].Name)

	insns := out.Methods[0].Code.Insns
	assert.Equal(t, "p/Color", insns[0].Desc)
	assert.Equal(t, "p/Color", insns[4].Owner)
	assert.Equal(t, "<init>", insns[4].Name)
	assert.Equal(t, "RED", insns[5].Name)
	assert.Equal(t, "Lp/Color;", insns[5].Desc)
	assert.Equal(t, "RED", insns[6].Name)
	assert.Equal(t, "paint", insns[7].Name)

	// the input is not modified
	assert.Equal(t, "a", orig.Fields[0].Name)
	assert.Equal(t, "p/E", orig.Methods[0].Code.Insns[0].Desc)
}

func TestApplySwapsNames(t *testing.T) {
	b := jvm.NewBundle(&jvm.Class{Name: "a", Super: "b"}, &jvm.Class{Name: "b"})
	m := New()
	m.AddClass("a", "b")
	m.AddClass("b", "a")
	require.NoError(t, b.Update(func(tx *jvm.Tx) error {
		m.Apply(tx)
		return nil
	}))
	got, ok := b.Get("b")
	require.True(t, ok)
	assert.Equal(t, "a", got.Super)
	_, ok = b.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, b.Len())
}

func TestMergeAndEntries(t *testing.T) {
	a := New()
	a.AddClass("x", "X")
	b := New()
	b.AddField("x", "f", "I", "count")
	b.AddClass("x", "Y")
	a.Merge(b)

	assert.Equal(t, []Entry{
		{Kind: "class", Name: "x", NewName: "Y"},
		{Kind: "field", Owner: "x", Name: "f", Desc: "I", NewName: "count"},
	}, a.Entries())
}
