package passes

import (
	"strings"

	"deobf/internal/analysis"
	"deobf/internal/hierarchy"
	"deobf/internal/jvm"
	"deobf/internal/transform"
)

// Exceptions raised by the virtual machine itself.
const (
	excNPE    = "java/lang/NullPointerException"
	excAIOOBE = "java/lang/ArrayIndexOutOfBoundsException"
	excASE    = "java/lang/ArrayStoreException"
	excNASE   = "java/lang/NegativeArraySizeException"
	excIMSE   = "java/lang/IllegalMonitorStateException"
	excCCE    = "java/lang/ClassCastException"
	excAE     = "java/lang/ArithmeticException"
)

// TryCatch removes exception table entries that can never apply.
//
// Four passes run in order: handlers shadowed by an earlier handler of the
// same range, handlers for bundle exception types that are never thrown,
// ranges whose instructions never throw what the handler catches together
// with effective duplicates, and finally consecutive ranges sharing handler
// and type are combined.
type TryCatch struct{}

func (*TryCatch) Name() string { return TryCatchName }

func (*TryCatch) Description() string {
	return "remove exception handlers that can never be entered"
}

func (*TryCatch) Dependencies() []string {
	return []string{DeadCodeName, ExceptionCollectionName}
}

type tryPass func(ctx *transform.Context, cls *jvm.Class, m *jvm.Method, code *jvm.Code) (*jvm.Code, bool, error)

func (t *TryCatch) TransformMethod(ctx *transform.Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	code := m.Code
	if len(code.TryCatches) == 0 {
		return nil, false, nil
	}
	changed := false
	for _, pass := range []tryPass{dropShadowed, dropUnthrown, dropNonThrowing, combineAdjacent} {
		next, ok, err := pass(ctx, cls, m, code)
		if err != nil {
			return nil, false, err
		}
		if ok {
			code, changed = next, true
		}
	}
	if !changed {
		return nil, false, nil
	}
	pruned, _, err := ctx.PruneDeadCode(cls, m, code)
	if err != nil {
		return nil, false, err
	}
	return pruned, true, nil
}

func withTries(code *jvm.Code, tries []jvm.TryCatch) *jvm.Code {
	return &jvm.Code{Insns: code.Insns, TryCatches: tries, MaxLocals: code.MaxLocals}
}

// dropShadowed removes handlers that an earlier handler of the same range
// already catches.
func dropShadowed(ctx *transform.Context, _ *jvm.Class, _ *jvm.Method, code *jvm.Code) (*jvm.Code, bool, error) {
	h := ctx.Hierarchy()
	type span struct{ start, end jvm.LabelID }
	seen := make(map[span][]string)
	var out []jvm.TryCatch
	for _, tc := range code.TryCatches {
		sp := span{tc.Start, tc.End}
		shadowed := false
		for _, earlier := range seen[sp] {
			if catchesAll(earlier) || earlier == tc.Type {
				shadowed = true
				break
			}
			if tc.Type != "" {
				if ok, _ := h.IsAssignable(earlier, tc.Type); ok {
					shadowed = true
					break
				}
			}
		}
		if shadowed {
			continue
		}
		seen[sp] = append(seen[sp], tc.Type)
		out = append(out, tc)
	}
	if len(out) == len(code.TryCatches) {
		return code, false, nil
	}
	return withTries(code, out), true, nil
}

// dropUnthrown removes handlers for exception types declared in the bundle
// of which no instance is ever thrown.
func dropUnthrown(ctx *transform.Context, _ *jvm.Class, _ *jvm.Method, code *jvm.Code) (*jvm.Code, bool, error) {
	h := ctx.Hierarchy()
	thrown := ctx.Thrown().Names()
	var out []jvm.TryCatch
	for _, tc := range code.TryCatches {
		if tc.Type == "" || !h.Defined(tc.Type) || mayBeThrown(h, tc.Type, thrown) {
			out = append(out, tc)
		}
	}
	if len(out) == len(code.TryCatches) {
		return code, false, nil
	}
	return withTries(code, out), true, nil
}

func mayBeThrown(h *hierarchy.Graph, typ string, thrown []string) bool {
	for _, t := range thrown {
		if ok, known := h.IsAssignable(typ, t); ok || !known {
			return true
		}
	}
	return false
}

// throwRange is the span of instructions that may throw into a handler.
type throwRange struct{ first, last int }

// dropNonThrowing removes duplicate declarations, ranges that never throw
// into their handler, and ranges that duplicate another one in effect.
// Of a set of identical declarations exactly one is kept.
func dropNonThrowing(ctx *transform.Context, cls *jvm.Class, m *jvm.Method, code *jvm.Code) (*jvm.Code, bool, error) {
	fm, err := ctx.Analyze(cls, m, code)
	if err != nil {
		return nil, false, err
	}
	h := ctx.Hierarchy()
	labels := code.LabelIndex()

	copies := make(map[jvm.TryCatch]int)
	for _, tc := range code.TryCatches {
		copies[tc]++
	}
	type effect struct {
		typ         string
		first, last int
		handler     int
	}
	declared := make(map[jvm.TryCatch]bool)
	effective := make(map[effect]bool)
	var out []jvm.TryCatch
	for _, tc := range code.TryCatches {
		if declared[tc] {
			continue
		}
		declared[tc] = true
		r, ok := throwingRange(fm, h, tc, labels)
		if !ok {
			if copies[tc] > 1 {
				out = append(out, tc)
			}
			continue
		}
		e := effect{typ: tc.Type, first: r.first, last: r.last, handler: labels[tc.Handler]}
		if effective[e] {
			continue
		}
		effective[e] = true
		out = append(out, tc)
	}
	if len(out) == len(code.TryCatches) {
		return code, false, nil
	}
	return withTries(code, out), true, nil
}

// throwingRange finds the first and last instruction of tc's range that may
// raise something its handler catches.
func throwingRange(fm *analysis.FrameMap, h *hierarchy.Graph, tc jvm.TryCatch, labels map[jvm.LabelID]int) (throwRange, bool) {
	s, okS := labels[tc.Start]
	e, okE := labels[tc.End]
	if !okS || !okE {
		return throwRange{}, false
	}
	r := throwRange{first: -1, last: -1}
	for i := s; i < e; i++ {
		if !fm.Reachable(i) || !fm.Throws[i] {
			continue
		}
		if !handles(h, tc.Type, fm.Code.Insns[i], fm.At(i)) {
			continue
		}
		if r.first < 0 {
			r.first = i
		}
		r.last = i
	}
	return r, r.first >= 0
}

// handles reports whether a handler of type typ may catch what in raises.
func handles(h *hierarchy.Graph, typ string, in jvm.Insn, f *analysis.Frame) bool {
	if catchesAll(typ) {
		return true
	}
	if in.Op == jvm.ATHROW {
		top, ok := f.Peek(0)
		if !ok {
			return true
		}
		if top.IsNull() {
			return catches(h, typ, excNPE)
		}
		name := internalName(top.Desc())
		if name == "" || name == object {
			return true
		}
		// a value typed as a supertype may hold an instance of typ
		if ok, known := h.IsAssignable(name, typ); ok || !known {
			return true
		}
		return catches(h, typ, name)
	}
	raised := vmExceptions(in.Op)
	if raised == nil {
		return true
	}
	for _, exc := range raised {
		if catches(h, typ, exc) {
			return true
		}
	}
	return false
}

func catches(h *hierarchy.Graph, typ, exc string) bool {
	ok, known := h.IsAssignable(typ, exc)
	return ok || !known
}

// vmExceptions lists what the virtual machine itself raises for op. Nil
// means anything may be thrown.
func vmExceptions(op jvm.Opcode) []string {
	switch {
	case jvm.IsArrayLoad(op):
		return []string{excNPE, excAIOOBE}
	case jvm.IsArrayStore(op):
		return []string{excNPE, excAIOOBE, excASE}
	}
	switch op {
	case jvm.IDIV, jvm.LDIV, jvm.IREM, jvm.LREM:
		return []string{excAE}
	case jvm.GETFIELD, jvm.PUTFIELD, jvm.ARRAYLENGTH:
		return []string{excNPE}
	case jvm.MONITORENTER, jvm.MONITOREXIT:
		return []string{excNPE, excIMSE}
	case jvm.CHECKCAST:
		return []string{excCCE}
	case jvm.NEWARRAY, jvm.ANEWARRAY, jvm.MULTIANEWARRAY:
		return []string{excNASE}
	}
	return nil
}

func internalName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// combineAdjacent merges ranges that follow each other in the table, share
// handler and type, and touch.
func combineAdjacent(_ *transform.Context, _ *jvm.Class, _ *jvm.Method, code *jvm.Code) (*jvm.Code, bool, error) {
	if len(code.TryCatches) < 2 {
		return code, false, nil
	}
	labels := code.LabelIndex()
	touch := func(end, start jvm.LabelID) bool {
		e, okE := labels[end]
		s, okS := labels[start]
		return okE && okS && e <= s && !hasReal(code.Insns, e, s)
	}
	out := []jvm.TryCatch{code.TryCatches[0]}
	for _, tc := range code.TryCatches[1:] {
		last := &out[len(out)-1]
		if last.Handler == tc.Handler && last.Type == tc.Type && touch(last.End, tc.Start) {
			last.End = tc.End
			continue
		}
		out = append(out, tc)
	}
	if len(out) == len(code.TryCatches) {
		return code, false, nil
	}
	return withTries(code, out), true, nil
}
