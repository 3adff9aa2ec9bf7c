package transform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deobf/internal/analysis"
	"deobf/internal/jvm"
	"deobf/internal/value"
)

type fakeMethod struct {
	name string
	deps []string
	fn   func(ctx *Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error)
}

func (f *fakeMethod) Name() string           { return f.name }
func (f *fakeMethod) Description() string    { return "fake " + f.name }
func (f *fakeMethod) Dependencies() []string { return f.deps }

func (f *fakeMethod) TransformMethod(ctx *Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	if f.fn == nil {
		return nil, false, nil
	}
	return f.fn(ctx, cls, m)
}

type fakeClass struct {
	name string
	deps []string
	fn   func(ctx *Context, cls *jvm.Class) (bool, error)
}

func (f *fakeClass) Name() string           { return f.name }
func (f *fakeClass) Description() string    { return "fake " + f.name }
func (f *fakeClass) Dependencies() []string { return f.deps }

func (f *fakeClass) TransformClass(ctx *Context, cls *jvm.Class) (bool, error) {
	if f.fn == nil {
		return false, nil
	}
	return f.fn(ctx, cls)
}

func returning(name string) *jvm.Method {
	return &jvm.Method{Access: jvm.AccStatic, Name: name, Desc: "()V", Code: jvm.NewBuilder().Op(jvm.RETURN).Build()}
}

func bundle(methods ...*jvm.Method) *jvm.Bundle {
	return jvm.NewBundle(&jvm.Class{Name: "T", Super: "java/lang/Object", Methods: methods})
}

// prefixNop inserts a nop ahead of bodies that do not start with one.
func prefixNop(_ *Context, _ *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	if m.Code.Insns[0].Op == jvm.NOP {
		return nil, false, nil
	}
	out := m.Code.Clone()
	out.Insns = append([]jvm.Insn{jvm.Op(jvm.NOP)}, out.Insns...)
	return out, true, nil
}

func names(ts []Transformer) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name()
	}
	return out
}

func TestQueueOrdersDependencies(t *testing.T) {
	reg := NewRegistry(
		&fakeMethod{name: "a", deps: []string{"b"}},
		&fakeMethod{name: "b"},
		&fakeMethod{name: "c", deps: []string{"b", "a"}},
	)
	queue, err := reg.Queue([]string{"c", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, names(queue))
	assert.Equal(t, []string{"a", "b", "c"}, reg.Names())
}

func TestQueueErrors(t *testing.T) {
	reg := NewRegistry(
		&fakeMethod{name: "x", deps: []string{"y"}},
		&fakeMethod{name: "y", deps: []string{"x"}},
		&fakeMethod{name: "z", deps: []string{"missing"}},
	)
	_, err := reg.Queue([]string{"x"})
	assert.ErrorIs(t, err, ErrDependencyCycle)

	_, err = reg.Queue([]string{"nope"})
	assert.ErrorIs(t, err, ErrUnknownTransformer)

	_, err = reg.Queue([]string{"z"})
	assert.ErrorIs(t, err, ErrUnknownTransformer)
	assert.Contains(t, err.Error(), "required by z")
}

func TestRunRejectsCycleBeforeRunning(t *testing.T) {
	calls := 0
	count := func(*Context, *jvm.Class, *jvm.Method) (*jvm.Code, bool, error) {
		calls++
		return nil, false, nil
	}
	reg := NewRegistry(
		&fakeMethod{name: "free", fn: count},
		&fakeMethod{name: "x", deps: []string{"y"}, fn: count},
		&fakeMethod{name: "y", deps: []string{"x"}, fn: count},
	)
	res, err := NewApplier(reg).Run(context.Background(), bundle(returning("m")), []string{"free", "x"})
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.Nil(t, res)
	assert.Zero(t, calls)
}

func TestRunRepeatsUntilStable(t *testing.T) {
	b := bundle(returning("m"))
	reg := NewRegistry(&fakeMethod{name: "nop", fn: prefixNop})
	res, err := NewApplier(reg).Run(context.Background(), b, []string{"nop"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Passes)
	assert.Equal(t, []string{"m()V"}, res.Methods["T"])
	assert.True(t, res.Changed())

	// staged only
	cls, _ := b.Get("T")
	assert.Len(t, cls.Method("m", "()V").Code.Insns, 1)
	assert.False(t, res.Applied())

	require.NoError(t, res.Apply())
	require.NoError(t, res.Apply())
	assert.True(t, res.Applied())
	cls, _ = b.Get("T")
	assert.Len(t, cls.Method("m", "()V").Code.Insns, 2)
}

func TestRunStopsAtMaxPasses(t *testing.T) {
	always := func(_ *Context, _ *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
		out := m.Code.Clone()
		out.Insns = append([]jvm.Insn{jvm.Op(jvm.NOP)}, out.Insns...)
		return out, true, nil
	}
	a := NewApplier(NewRegistry(&fakeMethod{name: "grow", fn: always}))
	a.MaxPasses = 3
	res, err := a.Run(context.Background(), bundle(returning("m")), []string{"grow"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Passes)
	assert.Len(t, res.Classes["T"].Method("m", "()V").Code.Insns, 4)
}

func TestPanicIsRecordedPerMethod(t *testing.T) {
	fn := func(ctx *Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
		if m.Name == "bad" {
			panic("boom")
		}
		return prefixNop(ctx, cls, m)
	}
	b := bundle(returning("bad"), returning("good"))
	res, err := NewApplier(NewRegistry(&fakeMethod{name: "p", fn: fn})).Run(context.Background(), b, []string{"p"})
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, FailureKey{Transformer: "p", Class: "T", Method: "bad()V"}, f.Key)
	assert.ErrorIs(t, f, ErrTransformer)
	assert.Contains(t, f.Error(), "boom")
	assert.Equal(t, []string{"good()V"}, res.Methods["T"])

	// the failing method is left as it was
	assert.Len(t, res.Classes["T"].Method("bad", "()V").Code.Insns, 1)
}

func TestErrorsAreClassified(t *testing.T) {
	reg := NewRegistry(
		&fakeMethod{name: "an", fn: func(*Context, *jvm.Class, *jvm.Method) (*jvm.Code, bool, error) {
			return nil, false, fmt.Errorf("%w: stack underflow", analysis.ErrAnalysis)
		}},
		&fakeClass{name: "cl", fn: func(*Context, *jvm.Class) (bool, error) {
			return false, errors.New("bad class")
		}},
	)
	res, err := NewApplier(reg).Run(context.Background(), bundle(returning("m")), []string{"an", "cl"})
	require.NoError(t, err)
	require.Len(t, res.Failures, 2)
	byName := make(map[string]*Failure)
	for _, f := range res.Failures {
		byName[f.Key.Transformer] = f
	}
	assert.ErrorIs(t, byName["an"], analysis.ErrAnalysis)
	assert.NotErrorIs(t, byName["an"], ErrTransformer)
	assert.ErrorIs(t, byName["cl"], ErrTransformer)
	assert.Empty(t, byName["cl"].Key.Method)
	assert.False(t, res.Changed())
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewApplier(NewRegistry(&fakeMethod{name: "nop", fn: prefixNop})).Run(ctx, bundle(returning("m")), []string{"nop"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestRemovedClassesAreSkipped(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	reg := NewRegistry(
		&fakeClass{name: "mark", fn: func(ctx *Context, cls *jvm.Class) (bool, error) {
			if cls.Name == "Gone" {
				ctx.MarkClassForRemoval(cls.Name)
			}
			return false, nil
		}},
		&fakeMethod{name: "visit", deps: []string{"mark"}, fn: func(_ *Context, cls *jvm.Class, _ *jvm.Method) (*jvm.Code, bool, error) {
			mu.Lock()
			seen = append(seen, cls.Name)
			mu.Unlock()
			return nil, false, nil
		}},
	)
	b := jvm.NewBundle(
		&jvm.Class{Name: "Gone", Methods: []*jvm.Method{returning("m")}},
		&jvm.Class{Name: "Kept", Methods: []*jvm.Method{returning("m")}},
	)
	res, err := NewApplier(reg).Run(context.Background(), b, []string{"visit"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gone"}, res.Removed)
	assert.Equal(t, []string{"Kept"}, seen)

	require.NoError(t, res.Apply())
	assert.Equal(t, []string{"Kept"}, b.Names())
}

func TestMappingsApplyAfterClassChanges(t *testing.T) {
	reg := NewRegistry(&fakeClass{name: "rename", fn: func(ctx *Context, cls *jvm.Class) (bool, error) {
		ctx.Mappings().AddMethod(cls.Name, "m", "()V", "run")
		return false, nil
	}})
	b := bundle(returning("m"))
	res, err := NewApplier(reg).Run(context.Background(), b, []string{"rename"})
	require.NoError(t, err)
	assert.True(t, res.Changed())
	require.NoError(t, res.Apply())
	cls, _ := b.Get("T")
	assert.NotNil(t, cls.Method("run", "()V"))
	assert.Nil(t, cls.Method("m", "()V"))
}

func TestPruneDeadCodeNeedsTransformer(t *testing.T) {
	m := returning("m")
	cls := &jvm.Class{Name: "T", Methods: []*jvm.Method{m}}
	ctx := NewContext([]*jvm.Class{cls}, nil, nil, 0)
	_, _, err := ctx.PruneDeadCode(cls, m, nil)
	assert.ErrorIs(t, err, ErrUnknownTransformer)
}

func TestAnalyzeIsCached(t *testing.T) {
	m := returning("m")
	cls := &jvm.Class{Name: "T", Methods: []*jvm.Method{m}}
	ctx := NewContext([]*jvm.Class{cls}, nil, nil, 0)
	a, err := ctx.Analyze(cls, m, nil)
	require.NoError(t, err)
	b, err := ctx.Analyze(cls, m, m.Code)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = ctx.Analyze(cls, &jvm.Method{Name: "abstract", Desc: "()V"}, nil)
	assert.ErrorIs(t, err, analysis.ErrAnalysis)
}

func TestStaticsAndThrown(t *testing.T) {
	ctx := NewContext(nil, nil, nil, 0)
	ref := FieldRef{Owner: "T", Name: "X", Desc: "I"}
	_, ok := ctx.Statics().Get(ref)
	assert.False(t, ok)

	ctx.Statics().Merge(ref, value.KnownInt(1))
	v, ok := ctx.Statics().Get(ref)
	require.True(t, ok)
	assert.True(t, v.IsKnown())

	ctx.Statics().Merge(ref, value.KnownInt(2))
	v, _ = ctx.Statics().Get(ref)
	assert.False(t, v.IsKnown())

	ctx.Statics().Set(ref, value.KnownInt(3))
	v, _ = ctx.Statics().Get(ref)
	assert.Equal(t, int32(3), v.Int())
	assert.Equal(t, 1, ctx.Statics().Len())
	assert.Equal(t, "T.X I", ref.String())

	ctx.Thrown().Add("b/E")
	ctx.Thrown().Add("a/E")
	ctx.Thrown().Add("a/E")
	assert.Equal(t, []string{"a/E", "b/E"}, ctx.Thrown().Names())
	assert.True(t, ctx.Thrown().Contains("b/E"))
}
