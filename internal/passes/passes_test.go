package passes

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deobf/internal/disasm"
	"deobf/internal/jvm"
	"deobf/internal/lookup"
	"deobf/internal/transform"
)

func staticMethod(desc string, code *jvm.Code) *jvm.Method {
	return &jvm.Method{Access: jvm.AccPublic | jvm.AccStatic, Name: "m", Desc: desc, Code: code}
}

func class(name string, methods ...*jvm.Method) *jvm.Class {
	return &jvm.Class{Access: jvm.AccPublic | jvm.AccSuper, Name: name, Super: "java/lang/Object", Methods: methods}
}

func newContext(classes ...*jvm.Class) *transform.Context {
	return transform.NewContext(classes, All(), lookup.Default(), 0)
}

// transformOne runs mt over the only method of a fresh class T.
func transformOne(t *testing.T, mt transform.MethodTransformer, desc string, code *jvm.Code) (*jvm.Code, bool) {
	t.Helper()
	m := staticMethod(desc, code)
	cls := class("T", m)
	out, changed, err := mt.TransformMethod(newContext(cls), cls, m)
	require.NoError(t, err)
	if changed {
		require.NotNil(t, out)
	}
	return out, changed
}

// ops lists the opcodes of code without labels and nops.
func ops(code *jvm.Code) []jvm.Opcode {
	var out []jvm.Opcode
	for _, in := range code.Insns {
		if in.Op != jvm.LABEL && in.Op != jvm.NOP {
			out = append(out, in.Op)
		}
	}
	return out
}

func run(t *testing.T, b *jvm.Bundle, names ...string) *transform.Result {
	t.Helper()
	res, err := transform.NewApplier(NewRegistry()).Run(context.Background(), b, names)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	return res
}

func TestFoldAddition(t *testing.T) {
	code := jvm.NewBuilder().Op(jvm.ICONST_1, jvm.ICONST_1, jvm.IADD, jvm.IRETURN).Build()
	out, changed := transformOne(t, &ConstantFolding{}, "()I", code)
	require.True(t, changed)
	assert.Equal(t, "    iconst_2\n    ireturn\n", disasm.Format(out))
}

func TestFoldChainIsIdempotent(t *testing.T) {
	code := jvm.NewBuilder().
		Int(jvm.BIPUSH, 10).Op(jvm.ICONST_3, jvm.IMUL, jvm.ICONST_4, jvm.ISUB, jvm.IRETURN).
		Build()
	out, changed := transformOne(t, &ConstantFolding{}, "()I", code)
	require.True(t, changed)
	want := []jvm.Insn{jvm.IntInsn(jvm.BIPUSH, 26), jvm.Op(jvm.IRETURN)}
	assert.Empty(t, cmp.Diff(want, out.Insns))

	again, changed := transformOne(t, &ConstantFolding{}, "()I", out.Clone())
	assert.False(t, changed)
	assert.Nil(t, again)
}

func TestFoldLibraryCall(t *testing.T) {
	code := jvm.NewBuilder().
		LdcString("abc").
		Invoke(jvm.INVOKEVIRTUAL, "java/lang/String", "length", "()I").
		Op(jvm.IRETURN).
		Build()
	out, changed := transformOne(t, &ConstantFolding{}, "()I", code)
	require.True(t, changed)
	assert.Equal(t, []jvm.Opcode{jvm.ICONST_3, jvm.IRETURN}, ops(out))
}

func TestFoldKeepsDivisionByZero(t *testing.T) {
	code := jvm.NewBuilder().Op(jvm.ICONST_1, jvm.ICONST_0, jvm.IDIV, jvm.IRETURN).Build()
	_, changed := transformOne(t, &ConstantFolding{}, "()I", code)
	assert.False(t, changed)
}

func TestFoldRedundantOperands(t *testing.T) {
	cases := []struct {
		name string
		op   jvm.Opcode
		c    int32
		want []jvm.Opcode
	}{
		{"add zero", jvm.IADD, 0, []jvm.Opcode{jvm.ILOAD, jvm.IRETURN}},
		{"multiply one", jvm.IMUL, 1, []jvm.Opcode{jvm.ILOAD, jvm.IRETURN}},
		{"and minus one", jvm.IAND, -1, []jvm.Opcode{jvm.ILOAD, jvm.IRETURN}},
		{"multiply zero", jvm.IMUL, 0, []jvm.Opcode{jvm.ICONST_0, jvm.IRETURN}},
		{"or minus one", jvm.IOR, -1, []jvm.Opcode{jvm.ICONST_M1, jvm.IRETURN}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := jvm.NewBuilder().Var(jvm.ILOAD, 0).Push(tc.c).Op(tc.op, jvm.IRETURN).Build()
			out, changed := transformOne(t, &ConstantFolding{}, "(I)I", code)
			require.True(t, changed)
			assert.Equal(t, tc.want, ops(out))
		})
	}
}

func TestFoldLeavesUnknownsAlone(t *testing.T) {
	code := jvm.NewBuilder().Var(jvm.ILOAD, 0).Op(jvm.ICONST_2, jvm.IADD, jvm.IRETURN).Build()
	_, changed := transformOne(t, &ConstantFolding{}, "(I)I", code)
	assert.False(t, changed)
}

func TestOpaquePredicateDropsDeadRange(t *testing.T) {
	code := jvm.NewBuilder().
		Op(jvm.ICONST_0).Jump(jvm.IFEQ, 1).
		Label(0).Op(jvm.ICONST_1, jvm.IRETURN).
		Label(2).
		Label(1).Op(jvm.ICONST_2, jvm.IRETURN).
		Label(3).Op(jvm.POP, jvm.ICONST_3, jvm.IRETURN).
		Try(0, 2, 3, "java/lang/RuntimeException").
		Build()
	out, changed := transformOne(t, &OpaquePredicate{}, "()I", code)
	require.True(t, changed)
	text := disasm.Format(out)
	assert.NotContains(t, text, "exceptions:")
	assert.Empty(t, out.TryCatches)
	assert.Equal(t, []jvm.Opcode{jvm.ICONST_2, jvm.IRETURN}, ops(out))
}

func TestOpaquePredicateNotTaken(t *testing.T) {
	code := jvm.NewBuilder().
		Op(jvm.ICONST_1, jvm.ICONST_2).Jump(jvm.IF_ICMPGE, 1).
		Op(jvm.ICONST_1, jvm.IRETURN).
		Label(1).Op(jvm.ICONST_0, jvm.IRETURN).
		Build()
	out, changed := transformOne(t, &OpaquePredicate{}, "()I", code)
	require.True(t, changed)
	assert.Equal(t, []jvm.Opcode{jvm.ICONST_1, jvm.IRETURN}, ops(out))
}

func TestOpaqueSwitch(t *testing.T) {
	code := jvm.NewBuilder().
		Op(jvm.ICONST_1).TableSwitch(0, 3, 1, 2).
		Label(1).Op(jvm.ICONST_0, jvm.IRETURN).
		Label(2).Op(jvm.ICONST_1, jvm.IRETURN).
		Label(3).Op(jvm.ICONST_M1, jvm.IRETURN).
		Build()
	out, changed := transformOne(t, &OpaquePredicate{}, "()I", code)
	require.True(t, changed)
	assert.Equal(t, []jvm.Opcode{jvm.ICONST_1, jvm.IRETURN}, ops(out))
}

func TestSelfLoopIsLeftAlone(t *testing.T) {
	code := func() *jvm.Code { return jvm.NewBuilder().Label(0).Jump(jvm.GOTO, 0).Build() }
	for _, mt := range []transform.MethodTransformer{&DeadCode{}, &GotoInlining{}, &ConstantFolding{}, &OpaquePredicate{}} {
		out, changed := transformOne(t, mt, "()V", code())
		assert.False(t, changed, mt.Name())
		assert.Nil(t, out, mt.Name())
	}
}

func TestDeadCodeLeavesLiveCodeAlone(t *testing.T) {
	code := jvm.NewBuilder().Op(jvm.ICONST_1, jvm.IRETURN).Build()
	m := staticMethod("()I", code)
	cls := class("T", m)
	ctx := newContext(cls)

	out, changed, err := (&DeadCode{}).TransformMethod(ctx, cls, m)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, out)

	// pruning hands the code back so callers can keep their rewrite
	pruned, changed, err := ctx.PruneDeadCode(cls, m, code)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, code, pruned)
}

func TestDeadCodeRemovesUnreachable(t *testing.T) {
	code := jvm.NewBuilder().
		Op(jvm.ICONST_1, jvm.IRETURN).
		Label(0).Op(jvm.ICONST_2, jvm.IRETURN).
		Label(1).
		Label(2).Op(jvm.POP, jvm.ICONST_0, jvm.IRETURN).
		Try(0, 1, 2, "").
		Build()

	m := staticMethod("()I", code)
	cls := class("T", m)
	ctx := newContext(cls)
	fm, err := ctx.Analyze(cls, m, nil)
	require.NoError(t, err)
	dead := fm.Unreachable()
	require.NotEmpty(t, dead)

	out, changed, err := (&DeadCode{}).TransformMethod(ctx, cls, m)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Empty(t, out.TryCatches)
	assert.Equal(t, []jvm.Opcode{jvm.ICONST_1, jvm.IRETURN}, ops(out))
	assert.Len(t, out.Insns, len(code.Insns)-len(dead))
}

func TestDeadCodeKeepsPartlyLiveRange(t *testing.T) {
	code := jvm.NewBuilder().
		Label(0).
		Invoke(jvm.INVOKESTATIC, "T", "f", "()V").
		Op(jvm.ICONST_1, jvm.IRETURN).
		Op(jvm.ICONST_2, jvm.IRETURN).
		Label(1).
		Label(2).Op(jvm.POP, jvm.ICONST_0, jvm.IRETURN).
		Try(0, 1, 2, "").
		Build()
	out, changed := transformOne(t, &DeadCode{}, "()I", code)
	require.True(t, changed)
	require.Len(t, out.TryCatches, 1)
	assert.Equal(t, []jvm.Opcode{jvm.INVOKESTATIC, jvm.ICONST_1, jvm.IRETURN, jvm.POP, jvm.ICONST_0, jvm.IRETURN}, ops(out))
}

func TestGotoInliningMovesSingleUseBlock(t *testing.T) {
	code := jvm.NewBuilder().
		Jump(jvm.GOTO, 1).
		Label(2).Op(jvm.IRETURN).
		Label(1).Op(jvm.ICONST_1).Jump(jvm.GOTO, 2).
		Build()
	out, changed := transformOne(t, &GotoInlining{}, "()I", code)
	require.True(t, changed)
	assert.Equal(t, []jvm.Opcode{jvm.ICONST_1, jvm.IRETURN}, ops(out))
}

func TestGotoInliningCollapsesChains(t *testing.T) {
	code := jvm.NewBuilder().
		Var(jvm.ILOAD, 0).Jump(jvm.IFEQ, 1).
		Op(jvm.ICONST_0, jvm.IRETURN).
		Label(1).Jump(jvm.GOTO, 2).
		Label(2).Jump(jvm.GOTO, 3).
		Label(3).Op(jvm.ICONST_1, jvm.IRETURN).
		Build()
	out, changed := transformOne(t, &GotoInlining{}, "(I)I", code)
	require.True(t, changed)
	assert.NotContains(t, ops(out), jvm.GOTO)
	assert.Equal(t, []jvm.Opcode{jvm.ILOAD, jvm.IFEQ, jvm.ICONST_0, jvm.IRETURN, jvm.ICONST_1, jvm.IRETURN}, ops(out))
}

func TestVariableFoldingInlinesConstantLocal(t *testing.T) {
	code := jvm.NewBuilder().Op(jvm.ICONST_5).Var(jvm.ISTORE, 0).Var(jvm.ILOAD, 0).Op(jvm.IRETURN).Build()
	out, changed := transformOne(t, &VariableFolding{}, "()I", code)
	require.True(t, changed)
	assert.Equal(t, []jvm.Opcode{jvm.ICONST_5, jvm.IRETURN}, ops(out))
}

func TestVariableFoldingKeepsLoopCounter(t *testing.T) {
	code := jvm.NewBuilder().
		Op(jvm.ICONST_0).Var(jvm.ISTORE, 0).
		Label(0).Iinc(0, 1).
		Var(jvm.ILOAD, 0).Int(jvm.BIPUSH, 10).Jump(jvm.IF_ICMPLT, 0).
		Var(jvm.ILOAD, 0).Op(jvm.IRETURN).
		Build()
	_, changed := transformOne(t, &VariableFolding{}, "()I", code)
	assert.False(t, changed)
}

func TestVariableFoldingKeepsParameters(t *testing.T) {
	code := jvm.NewBuilder().Var(jvm.ILOAD, 0).Op(jvm.IRETURN).Build()
	_, changed := transformOne(t, &VariableFolding{}, "(I)I", code)
	assert.False(t, changed)
}

func TestRoundTripFoldThroughApplier(t *testing.T) {
	code := jvm.NewBuilder().Op(jvm.ICONST_1, jvm.ICONST_1, jvm.IADD, jvm.IRETURN).Build()
	b := jvm.NewBundle(class("T", staticMethod("()I", code)))
	res := run(t, b, ConstantFoldingName)
	require.True(t, res.Changed())
	assert.Equal(t, []string{"m()I"}, res.Methods["T"])

	// nothing is visible before Apply
	before, _ := b.Get("T")
	assert.Len(t, before.Method("m", "()I").Code.Insns, 4)

	require.NoError(t, res.Apply())
	require.NoError(t, res.Apply())
	after, _ := b.Get("T")
	assert.Equal(t, "    iconst_2\n    ireturn\n", disasm.Format(after.Method("m", "()I").Code))
}

func TestRoundTripCycleRemoval(t *testing.T) {
	loop := &jvm.Class{Name: "Loop", Super: "Loop"}
	b := jvm.NewBundle(loop, class("Ok"))
	res := run(t, b, CycleRemovalName)
	assert.Equal(t, []string{"Loop"}, res.Removed)
	require.NoError(t, res.Apply())
	_, ok := b.Get("Loop")
	assert.False(t, ok)
	_, ok = b.Get("Ok")
	assert.True(t, ok)
}

func TestDefaultQueueResolves(t *testing.T) {
	queue, err := NewRegistry().Queue(DefaultNames)
	require.NoError(t, err)
	pos := make(map[string]int)
	for i, tr := range queue {
		pos[tr.Name()] = i
	}
	assert.Len(t, pos, len(All()))
	assert.Less(t, pos[StaticValueCollectionName], pos[StaticValueInliningName])
	assert.Less(t, pos[ExceptionCollectionName], pos[TryCatchName])
	assert.Less(t, pos[DeadCodeName], pos[OpaquePredicateName])
}

func TestSimplifyStack(t *testing.T) {
	in := []jvm.Insn{
		jvm.Op(jvm.NOP),
		jvm.Op(jvm.ICONST_1), jvm.Op(jvm.POP),
		jvm.Op(jvm.LCONST_0), jvm.Op(jvm.POP2),
		jvm.Op(jvm.ICONST_1), jvm.Op(jvm.ICONST_2), jvm.Op(jvm.POP2),
		jvm.Op(jvm.SWAP), jvm.Op(jvm.SWAP),
		jvm.Jump(jvm.GOTO, 0), jvm.Label(0),
		jvm.Op(jvm.RETURN),
	}
	out, changed := simplifyStack(in)
	require.True(t, changed)
	assert.Equal(t, []jvm.Opcode{jvm.LABEL, jvm.RETURN}, []jvm.Opcode{out[0].Op, out[1].Op})
	assert.Len(t, out, 2)
}
