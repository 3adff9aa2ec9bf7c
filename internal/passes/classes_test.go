package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deobf/internal/jvm"
	"deobf/internal/transform"
	"deobf/internal/value"
)

func getter(name, field string) *jvm.Method {
	return &jvm.Method{Access: jvm.AccPublic | jvm.AccStatic, Name: name, Desc: "()I",
		Code: jvm.NewBuilder().Field(jvm.GETSTATIC, "T", field, "I").Op(jvm.IRETURN).Build()}
}

func staticsClass() *jvm.Class {
	clinitCode := jvm.NewBuilder().
		Int(jvm.BIPUSH, 42).Field(jvm.PUTSTATIC, "T", "Y", "I").
		Invoke(jvm.INVOKESTATIC, "T", "flag", "()Z").Jump(jvm.IFEQ, 1).
		Int(jvm.BIPUSH, 7).Field(jvm.PUTSTATIC, "T", "C", "I").
		Label(1).Op(jvm.RETURN).
		Build()
	cls := class("T",
		getter("x", "X"), getter("y", "Y"), getter("c", "C"), getter("w", "W"), getter("v", "V"),
		&jvm.Method{Access: jvm.AccStatic, Name: clinit, Desc: "()V", Code: clinitCode},
		&jvm.Method{Access: jvm.AccStatic | jvm.AccNative, Name: "flag", Desc: "()Z"},
		&jvm.Method{Access: jvm.AccPublic | jvm.AccStatic, Name: "set", Desc: "()V",
			Code: jvm.NewBuilder().Op(jvm.ICONST_1).Field(jvm.PUTSTATIC, "T", "V", "I").Op(jvm.RETURN).Build()},
	)
	cls.Fields = []*jvm.Field{
		{Access: jvm.AccPublic | jvm.AccStatic | jvm.AccFinal, Name: "X", Desc: "I", Value: &jvm.Constant{Kind: jvm.ConstInt, Int: 5}},
		{Access: jvm.AccPrivate | jvm.AccStatic, Name: "Y", Desc: "I"},
		{Access: jvm.AccPrivate | jvm.AccStatic, Name: "C", Desc: "I"},
		{Access: jvm.AccPublic | jvm.AccStatic, Name: "W", Desc: "I"},
		{Access: jvm.AccPrivate | jvm.AccStatic, Name: "V", Desc: "I"},
	}
	return cls
}

func TestStaticValueCollection(t *testing.T) {
	cls := staticsClass()
	ctx := newContext(cls)
	changed, err := (&StaticValueCollection{}).TransformClass(ctx, cls)
	require.NoError(t, err)
	assert.False(t, changed)

	get := func(name string) (value.Value, bool) {
		return ctx.Statics().Get(transform.FieldRef{Owner: "T", Name: name, Desc: "I"})
	}
	x, ok := get("X")
	require.True(t, ok)
	assert.True(t, value.Equal(value.KnownInt(5), x))

	y, ok := get("Y")
	require.True(t, ok)
	assert.True(t, value.Equal(value.KnownInt(42), y))

	// assigned on one path only, so it may still be zero
	c, ok := get("C")
	require.True(t, ok)
	assert.False(t, c.IsKnown())

	_, ok = get("W")
	assert.False(t, ok, "public non-final fields are never collected")
	_, ok = get("V")
	assert.False(t, ok, "fields assigned outside the initializer are never collected")
}

func TestStaticValueInliningThroughApplier(t *testing.T) {
	b := jvm.NewBundle(staticsClass())
	res := run(t, b, StaticValueInliningName)
	assert.Equal(t, []string{"x()I", "y()I"}, res.Methods["T"])
	require.NoError(t, res.Apply())

	cls, _ := b.Get("T")
	assert.Equal(t, []jvm.Opcode{jvm.ICONST_5, jvm.IRETURN}, ops(cls.Method("x", "()I").Code))
	assert.True(t, cls.Method("y", "()I").Code.Insns[0].Equal(jvm.IntInsn(jvm.BIPUSH, 42)))
	for _, name := range []string{"c", "w", "v"} {
		assert.Equal(t, jvm.GETSTATIC, cls.Method(name, "()I").Code.Insns[0].Op, name)
	}
}

func enumClass(names ...string) *jvm.Class {
	b := jvm.NewBuilder()
	cls := &jvm.Class{
		Access: jvm.AccPublic | jvm.AccFinal | jvm.AccSuper | jvm.AccEnum,
		Name:   "E",
		Super:  "java/lang/Enum",
	}
	for i, n := range names {
		field := string(rune('a' + i))
		cls.Fields = append(cls.Fields, &jvm.Field{
			Access: jvm.AccPublic | jvm.AccStatic | jvm.AccFinal | jvm.AccEnum, Name: field, Desc: "LE;"})
		b.Type(jvm.NEW, "E").Op(jvm.DUP).LdcString(n).Push(int32(i)).
			Invoke(jvm.INVOKESPECIAL, "E", "<init>", "(Ljava/lang/String;I)V").
			Field(jvm.PUTSTATIC, "E", field, "LE;")
	}
	cls.Methods = []*jvm.Method{{Access: jvm.AccStatic, Name: clinit, Desc: "()V", Code: b.Op(jvm.RETURN).Build()}}
	return cls
}

func TestEnumNamesRenamesConstants(t *testing.T) {
	user := class("U", &jvm.Method{Access: jvm.AccPublic | jvm.AccStatic, Name: "m", Desc: "()LE;",
		Code: jvm.NewBuilder().Field(jvm.GETSTATIC, "E", "a", "LE;").Op(jvm.ARETURN).Build()})
	b := jvm.NewBundle(enumClass("RED", "GREEN"), user)

	res := run(t, b, EnumNamesName)
	assert.Empty(t, res.Classes)
	assert.Equal(t, 2, res.Mappings.Len())
	assert.Equal(t, "RED", res.Mappings.Field("E", "a", "LE;"))
	require.NoError(t, res.Apply())

	e, _ := b.Get("E")
	assert.NotNil(t, e.Field("RED", "LE;"))
	assert.NotNil(t, e.Field("GREEN", "LE;"))
	assert.Nil(t, e.Field("a", "LE;"))
	u, _ := b.Get("U")
	assert.Equal(t, "RED", u.Method("m", "()LE;").Code.Insns[0].Name)
}

func TestEnumNamesSkipsUnusableNames(t *testing.T) {
	cls := enumClass("not valid", "class", "a", "OK")
	ctx := newContext(cls)
	_, err := (&EnumNames{}).TransformClass(ctx, cls)
	require.NoError(t, err)
	// a and b carry unusable names and c would clash with field a
	assert.Equal(t, 1, ctx.Mappings().Len())
	assert.Equal(t, "OK", ctx.Mappings().Field("E", "d", "LE;"))
}

func TestValidIdentifier(t *testing.T) {
	for s, want := range map[string]bool{
		"RED": true, "_x": true, "$1": true, "a1": true, "é": true,
		"": false, "1a": false, "a-b": false, "int": false, "null": false, "_": false,
	} {
		assert.Equal(t, want, validIdentifier(s), s)
	}
}

func TestIllegalAttributes(t *testing.T) {
	cls := &jvm.Class{
		Name:        "T",
		Super:       "java/lang/Object",
		Signature:   "Ljava/lang/Object",
		Annotations: []jvm.Annotation{{Desc: "Lok/A;"}, {Desc: "I"}},
		Fields: []*jvm.Field{
			{Name: "n", Desc: "I", Signature: "TT;"},
			{Name: "l", Desc: "Ljava/util/List;", Signature: "Ljava/util/List<Ljava/lang/String;>;"},
		},
		Methods: []*jvm.Method{
			{Name: "v", Desc: "(I)V", Access: jvm.AccVarargs},
			{Name: "w", Desc: "([Ljava/lang/String;)V", Access: jvm.AccVarargs},
			{Name: "p", Desc: "(I)V", ParameterAnnotations: [][]jvm.Annotation{{{Desc: "Lok/A;"}}, {{Desc: "Lok/A;"}}}},
			{Name: "s", Desc: "(I)V", Signature: "(Ljava/lang/String;)V"},
			{Name: "<init>", Desc: "(Ljava/lang/String;ILjava/util/List;)V", Signature: "(Ljava/util/List<TT;>;)V"},
			{Name: "g", Desc: "(Ljava/lang/Object;)Ljava/lang/Object;", Signature: "<T:Ljava/lang/Object;>(TT;)TT;"},
		},
	}
	changed, err := (&IllegalAttributes{}).TransformClass(newContext(cls), cls)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Empty(t, cls.Signature)
	assert.Equal(t, []jvm.Annotation{{Desc: "Lok/A;"}}, cls.Annotations)
	assert.Empty(t, cls.Field("n", "I").Signature)
	assert.NotEmpty(t, cls.Field("l", "Ljava/util/List;").Signature)
	assert.Zero(t, cls.Method("v", "(I)V").Access&jvm.AccVarargs)
	assert.NotZero(t, cls.Method("w", "([Ljava/lang/String;)V").Access&jvm.AccVarargs)
	assert.Nil(t, cls.Method("p", "(I)V").ParameterAnnotations)
	assert.Empty(t, cls.Method("s", "(I)V").Signature)
	assert.NotEmpty(t, cls.Method("<init>", "(Ljava/lang/String;ILjava/util/List;)V").Signature)
	assert.NotEmpty(t, cls.Method("g", "(Ljava/lang/Object;)Ljava/lang/Object;").Signature)

	changed, err = (&IllegalAttributes{}).TransformClass(newContext(cls), cls)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSignatureParsing(t *testing.T) {
	classes := map[string]bool{
		"Ljava/lang/Object;": true,
		"<T:Ljava/lang/Object;>Ljava/lang/Object;Ljava/lang/Comparable<TT;>;": true,
		"<K::Ljava/lang/Comparable<-TK;>;V:Ljava/lang/Object;>Ljava/util/AbstractMap<TK;TV;>;": true,
		"Lp/Outer<Ljava/lang/String;>.Inner<*>;": true,
		"Ljava/lang/Object":                      false,
		"I":                                       false,
		"<>Ljava/lang/Object;":                    false,
		"Ljava/util/List<>;":                      false,
	}
	for s, want := range classes {
		assert.Equal(t, want, parseClassSignature(s) == nil, s)
	}

	params, ret, err := parseMethodSignature("<T:Ljava/lang/Object;>(I[TT;Ljava/util/List<+TT;>;J)TT;^Ljava/io/IOException;")
	require.NoError(t, err)
	assert.Equal(t, []byte{'I', 'L', 'L', 'J'}, params)
	assert.Equal(t, byte('L'), ret)

	_, ret, err = parseMethodSignature("()V")
	require.NoError(t, err)
	assert.Equal(t, byte('V'), ret)

	for _, bad := range []string{"(", "()", "(I", "(V)V", "()V^I", "()VX"} {
		_, _, err := parseMethodSignature(bad)
		assert.ErrorIs(t, err, errSignature, bad)
	}

	assert.NoError(t, parseFieldSignature("[TT;"))
	assert.Error(t, parseFieldSignature("I"))
}
