package passes

import (
	"strconv"
	"strings"

	"deobf/internal/disasm"
	"deobf/internal/jvm"
	"deobf/internal/transform"
)

// minCatchBlock is the smallest handler body, in real instructions, worth
// merging.
const minCatchBlock = 4

// CatchMerging points the exception ranges of handlers with identical
// bodies at a single copy. The copies left without ranges are pruned.
type CatchMerging struct{}

func (*CatchMerging) Name() string { return CatchMergingName }

func (*CatchMerging) Description() string {
	return "merge exception handlers with identical bodies"
}

func (*CatchMerging) Dependencies() []string { return []string{DeadCodeName} }

// handlerBlock is the body of one handler, from its label to the point
// where control has left it on every path.
type handlerBlock struct {
	label      jvm.LabelID
	start, end int
	text       string
}

func (*CatchMerging) TransformMethod(ctx *transform.Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	code := m.Code
	if len(code.TryCatches) < 2 {
		return nil, false, nil
	}
	labels := code.LabelIndex()
	cover := coverage(code)
	seen := make(map[jvm.LabelID]bool)
	var blocks []handlerBlock
	for _, tc := range code.TryCatches {
		if seen[tc.Handler] {
			continue
		}
		seen[tc.Handler] = true
		if b, ok := catchBlock(code, labels, cover, tc.Handler); ok {
			blocks = append(blocks, b)
		}
	}

	// every handler moves to the last block with the same body
	retarget := make(map[jvm.LabelID]jvm.LabelID)
	last := make(map[string]handlerBlock)
	for _, b := range blocks {
		if prev, ok := last[b.text]; !ok || b.start > prev.start {
			last[b.text] = b
		}
	}
	for _, b := range blocks {
		if to := last[b.text]; to.label != b.label {
			retarget[b.label] = to.label
		}
	}
	if len(retarget) == 0 {
		return nil, false, nil
	}
	var tries []jvm.TryCatch
	dup := make(map[jvm.TryCatch]bool)
	for _, tc := range code.TryCatches {
		if to, ok := retarget[tc.Handler]; ok {
			tc.Handler = to
		}
		if dup[tc] {
			continue
		}
		dup[tc] = true
		tries = append(tries, tc)
	}
	pruned, _, err := ctx.PruneDeadCode(cls, m, withTries(code, tries))
	if err != nil {
		return nil, false, err
	}
	return pruned, true, nil
}

// catchBlock reads the handler body starting at label. The body extends
// past conditional branches and switches until every target they name
// further down has been reached and control cannot fall through. A goto
// leaves the body. Labels inside the body are named by their offset from
// the handler so that copies compare equal; labels outside keep their
// identity, so two bodies only match when they leave for the same code.
// Bodies that are too short, that other code jumps into, or that never end
// are skipped.
func catchBlock(code *jvm.Code, labels map[jvm.LabelID]int, cover [][]int, label jvm.LabelID) (handlerBlock, bool) {
	start, ok := labels[label]
	if !ok {
		return handlerBlock{}, false
	}
	handlers := make(map[jvm.LabelID]bool, len(code.TryCatches))
	for _, tc := range code.TryCatches {
		handlers[tc.Handler] = true
	}
	pending := make(map[jvm.LabelID]bool)
	end := -1
	for i := start + 1; i < len(code.Insns); i++ {
		in := code.Insns[i]
		if in.Op == jvm.LABEL {
			// running into another handler means the paths never met
			if handlers[in.Label] {
				return handlerBlock{}, false
			}
			delete(pending, in.Label)
			continue
		}
		if in.Op != jvm.GOTO {
			for _, l := range in.Labels() {
				if at, ok := labels[l]; ok && at > i {
					pending[l] = true
				}
			}
		}
		if jvm.IsTerminal(in.Op) && len(pending) == 0 {
			end = i
			break
		}
	}
	if end < 0 {
		return handlerBlock{}, false
	}

	inside := make(map[jvm.LabelID]bool)
	for i := start + 1; i <= end; i++ {
		if in := code.Insns[i]; in.Op == jvm.LABEL {
			inside[in.Label] = true
		}
	}
	names := func(l jvm.LabelID) string {
		if inside[l] {
			return "B" + strconv.Itoa(labels[l]-start)
		}
		return "L" + strconv.Itoa(int(l))
	}
	var b strings.Builder
	real := 0
	for i := start + 1; i <= end; i++ {
		in := code.Insns[i]
		switch in.Op {
		case jvm.NOP:
			continue
		case jvm.LABEL:
			b.WriteString(names(in.Label) + ":\n")
			continue
		}
		real++
		b.WriteString(disasm.Text(in, names))
		// instructions protected differently behave differently
		for _, k := range cover[i] {
			tc := code.TryCatches[k]
			b.WriteString(" @" + names(tc.Start) + names(tc.End) + names(tc.Handler) + tc.Type)
		}
		b.WriteByte('\n')
	}
	if real < minCatchBlock {
		return handlerBlock{}, false
	}
	// nothing may enter the block except through its handler label
	for i, in := range code.Insns {
		body := i > start && i <= end
		for _, l := range in.Labels() {
			if l == label || (inside[l] && !body) {
				return handlerBlock{}, false
			}
		}
	}
	for _, tc := range code.TryCatches {
		if inside[tc.Handler] {
			return handlerBlock{}, false
		}
	}
	return handlerBlock{label: label, start: start, end: end, text: b.String()}, true
}
