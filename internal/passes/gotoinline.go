package passes

import (
	"deobf/internal/jvm"
	"deobf/internal/transform"
)

// GotoInlining straightens control flow: jumps to the next instruction are
// dropped, chains of gotos are shortened, and a block reached only through
// one goto is moved in place of that goto.
type GotoInlining struct{}

func (*GotoInlining) Name() string { return GotoInliningName }

func (*GotoInlining) Description() string {
	return "inline blocks reached by a single goto and collapse goto chains"
}

func (*GotoInlining) Dependencies() []string { return []string{DeadCodeName} }

func (*GotoInlining) TransformMethod(ctx *transform.Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	code := m.Code
	changed := false
	for round := 0; round < 4*len(m.Code.Insns)+16; round++ {
		next, ok := inlineOnce(code)
		if !ok {
			break
		}
		code, changed = next, true
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

// inlineOnce applies the first applicable rewrite.
func inlineOnce(code *jvm.Code) (*jvm.Code, bool) {
	insns := code.Insns
	labels := code.LabelIndex()
	for g, in := range insns {
		if in.Op != jvm.GOTO {
			continue
		}
		if jumpsToNext(insns, g) {
			out := append(append([]jvm.Insn(nil), insns[:g]...), insns[g+1:]...)
			return rebuild(code, out), true
		}
		if target, ok := chainEnd(insns, labels, in.Target); ok && target != in.Target {
			out := append([]jvm.Insn(nil), insns...)
			out[g] = jvm.Jump(jvm.GOTO, target)
			return rebuild(code, out), true
		}
		if out, ok := moveBlock(code, labels, g); ok {
			return rebuild(code, out), true
		}
	}
	return code, false
}

// chainEnd follows gotos starting at label l. ok is false when the chain
// loops.
func chainEnd(insns []jvm.Insn, labels map[jvm.LabelID]int, l jvm.LabelID) (jvm.LabelID, bool) {
	seen := map[jvm.LabelID]bool{l: true}
	for {
		at, ok := labels[l]
		if !ok {
			return l, false
		}
		i := nextReal(insns, at)
		if i >= len(insns) || insns[i].Op != jvm.GOTO {
			return l, true
		}
		l = insns[i].Target
		if seen[l] {
			return l, false
		}
		seen[l] = true
	}
}

// moveBlock moves the block at the target of the goto at g in its place.
// The block must be entered only through that goto, end in a terminator,
// hold no exception range boundary, and share the goto's exception ranges.
func moveBlock(code *jvm.Code, labels map[jvm.LabelID]int, g int) ([]jvm.Insn, bool) {
	insns := code.Insns
	target := insns[g].Target
	start, ok := labels[target]
	if !ok || code.References(target) != 1 {
		return nil, false
	}
	// no fall-through entry, and nothing jumps to the labels just above
	prev := prevReal(insns, start)
	if prev < 0 || !jvm.IsTerminal(insns[prev].Op) {
		return nil, false
	}
	for i := prev + 1; i < start; i++ {
		if code.References(insns[i].Label) > 0 {
			return nil, false
		}
	}
	end := -1
	for i := start + 1; i < len(insns); i++ {
		if insns[i].Op != jvm.LABEL && jvm.IsTerminal(insns[i].Op) {
			end = i
			break
		}
	}
	if end < 0 || (g >= start && g <= end) {
		return nil, false
	}
	bounds := tryLabels(code)
	cover := coverage(code)
	for i := start; i <= end; i++ {
		if insns[i].Op == jvm.LABEL {
			if bounds[insns[i].Label] {
				return nil, false
			}
			continue
		}
		if !sameInts(cover[i], cover[g]) {
			return nil, false
		}
	}
	// the block's own label is dropped along with its only reference
	block := insns[start+1 : end+1]
	out := make([]jvm.Insn, 0, len(insns))
	for i, in := range insns {
		switch {
		case i == g:
			out = append(out, block...)
		case i >= start && i <= end:
		default:
			out = append(out, in)
		}
	}
	return out, true
}
