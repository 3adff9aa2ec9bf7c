package passes

import (
	"deobf/internal/analysis"
	"deobf/internal/jvm"
	"deobf/internal/transform"
)

// DeadCode removes unreachable instructions and the exception ranges that
// no longer protect a live instruction. Other transformers reach it through
// transform.Context.PruneDeadCode.
type DeadCode struct{}

func (*DeadCode) Name() string { return DeadCodeName }

func (*DeadCode) Description() string {
	return "remove unreachable code and exception ranges without live code"
}

func (d *DeadCode) TransformMethod(ctx *transform.Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	code, changed, err := d.Prune(ctx, cls, m, m.Code)
	if err != nil || !changed {
		return nil, false, err
	}
	return code, true, nil
}

// Prune removes the dead code of code, analysed as the body of m. Removing
// a range can make its handler dead, so it repeats until nothing changes.
// Unlike TransformMethod it always returns the code, pruned or not, so
// callers can chain it after their own rewrite.
func (*DeadCode) Prune(ctx *transform.Context, cls *jvm.Class, m *jvm.Method, code *jvm.Code) (*jvm.Code, bool, error) {
	if code == nil {
		code = m.Code
	}
	changed := false
	for round := 0; round <= len(code.Insns); round++ {
		fm, err := ctx.Analyze(cls, m, code)
		if err != nil {
			return nil, false, err
		}
		next, ok := dropDead(code, fm)
		if !ok {
			break
		}
		code, changed = next, true
	}
	return code, changed, nil
}

// dropDead removes what fm marks unreachable in one step.
func dropDead(code *jvm.Code, fm *analysis.FrameMap) (*jvm.Code, bool) {
	labels := code.LabelIndex()
	var tries []jvm.TryCatch
	keep := make(map[jvm.LabelID]bool)
	for _, tc := range code.TryCatches {
		s, okS := labels[tc.Start]
		e, okE := labels[tc.End]
		if !okS || !okE || !liveIn(code, fm, s, e) {
			continue
		}
		tries = append(tries, tc)
		keep[tc.Start] = true
		keep[tc.End] = true
		keep[tc.Handler] = true
	}
	insns := make([]jvm.Insn, 0, len(code.Insns))
	for i, in := range code.Insns {
		if fm.Reachable(i) || (in.Op == jvm.LABEL && keep[in.Label]) {
			insns = append(insns, in)
		}
	}
	if len(insns) == len(code.Insns) && len(tries) == len(code.TryCatches) {
		return code, false
	}
	return &jvm.Code{Insns: insns, TryCatches: tries, MaxLocals: code.MaxLocals}, true
}

// liveIn reports whether a reachable real instruction lies in [from, to).
func liveIn(code *jvm.Code, fm *analysis.FrameMap, from, to int) bool {
	for i := from; i < to; i++ {
		if code.Insns[i].Op != jvm.LABEL && fm.Reachable(i) {
			return true
		}
	}
	return false
}
