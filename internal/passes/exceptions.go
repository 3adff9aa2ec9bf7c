package passes

import (
	"deobf/internal/analysis"
	"deobf/internal/jvm"
	"deobf/internal/transform"
)

// ExceptionCollection records every exception type the bundle may throw:
// declared exceptions, instantiated throwables, and the static type of every
// value reaching athrow.
type ExceptionCollection struct{}

func (*ExceptionCollection) Name() string { return ExceptionCollectionName }

func (*ExceptionCollection) Description() string {
	return "collect the exception types thrown in the bundle"
}

func (*ExceptionCollection) TransformClass(ctx *transform.Context, cls *jvm.Class) (bool, error) {
	h := ctx.Hierarchy()
	thrown := ctx.Thrown()
	var firstErr error
	for _, m := range cls.Methods {
		for _, e := range m.Exceptions {
			thrown.Add(e)
		}
		if m.Code == nil {
			continue
		}
		for _, in := range m.Code.Insns {
			if in.Op != jvm.NEW {
				continue
			}
			if ok, known := h.IsAssignable(throwable, in.Desc); ok || !known {
				thrown.Add(in.Desc)
			}
		}
		fm, err := analyzeCurrent(ctx, cls, m)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for i, in := range m.Code.Insns {
			if in.Op != jvm.ATHROW || !fm.Reachable(i) {
				continue
			}
			top, ok := fm.At(i).Peek(0)
			if !ok || top.IsNull() {
				continue
			}
			if name := internalName(top.Desc()); name != "" && name != object {
				thrown.Add(name)
			}
		}
	}
	return false, firstErr
}

// analyzeCurrent analyzes the committed version of m, which class
// transformers only see as a copy, so that the frames are shared with the
// method transformers of the same step.
func analyzeCurrent(ctx *transform.Context, cls *jvm.Class, m *jvm.Method) (*analysis.FrameMap, error) {
	if cur, ok := ctx.Class(cls.Name); ok {
		if cm := cur.Method(m.Name, m.Desc); cm != nil && cm.Code != nil && sameInsns(cm.Code.Insns, m.Code.Insns) {
			return ctx.Analyze(cur, cm, cm.Code)
		}
	}
	return ctx.Analyze(cls, m, m.Code)
}
