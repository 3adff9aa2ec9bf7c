package analysis

import (
	"fmt"

	"deobf/internal/jvm"
	"deobf/internal/value"
)

// DefaultMaxSteps bounds the number of block visits in one analysis.
const DefaultMaxSteps = 1_000_000

// Analyzer computes frame maps.
type Analyzer struct {
	Interp   *Interpreter
	MaxSteps int
}

// NewAnalyzer returns an analyzer using interp.
func NewAnalyzer(interp *Interpreter) *Analyzer {
	return &Analyzer{Interp: interp, MaxSteps: DefaultMaxSteps}
}

// FrameMap holds the result of one analysis. Frames, Throws and Outcomes
// are indexed by instruction.
type FrameMap struct {
	Code *jvm.Code
	// Frames holds the frame before each instruction, nil when unreachable.
	Frames []*Frame
	// Throws marks reachable instructions that may raise an exception.
	Throws []bool
	// Outcomes holds the decided direction of conditionals and switches.
	Outcomes []Outcome

	interp *Interpreter
}

// At returns the frame before instruction i.
func (m *FrameMap) At(i int) *Frame {
	if i < 0 || i >= len(m.Frames) {
		return nil
	}
	return m.Frames[i]
}

// After returns the frame after instruction i, nil when i is unreachable.
func (m *FrameMap) After(i int) *Frame {
	f := m.At(i)
	if f == nil {
		return nil
	}
	out, _, err := m.interp.Step(f, i, m.Code.Insns[i])
	if err != nil {
		return nil
	}
	return out
}

// Reachable reports whether instruction i is reachable from the entry.
func (m *FrameMap) Reachable(i int) bool { return m.At(i) != nil }

// Unreachable lists the indexes of unreachable instructions.
func (m *FrameMap) Unreachable() []int {
	var out []int
	for i, f := range m.Frames {
		if f == nil {
			out = append(out, i)
		}
	}
	return out
}

type blockState uint8

const (
	unvisited blockState = iota
	queued
	processed
)

type block struct {
	start, end int // [start, end)
	entry      *Frame
	state      blockState
}

// handlerRange is a try-catch entry resolved to instruction indexes.
type handlerRange struct {
	start, end int
	block      int
	exc        value.Value
}

// Analyze runs m, a method of owner, to a fixpoint. Any instruction that
// cannot be simulated aborts the whole analysis with an *Error; no partial
// frame map is returned.
func (a *Analyzer) Analyze(owner string, m *jvm.Method) (*FrameMap, error) {
	code := m.Code
	if code == nil {
		return nil, fmt.Errorf("%w: %s%s has no code", ErrAnalysis, m.Name, m.Desc)
	}
	entry, err := EntryFrame(owner, m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}
	return a.Run(code, entry)
}

// Run analyzes code starting from entry.
func (a *Analyzer) Run(code *jvm.Code, entry *Frame) (*FrameMap, error) {
	n := len(code.Insns)
	fm := &FrameMap{
		Code:     code,
		Frames:   make([]*Frame, n),
		Throws:   make([]bool, n),
		Outcomes: make([]Outcome, n),
		interp:   a.Interp,
	}
	if n == 0 {
		return fm, nil
	}
	labels := code.LabelIndex()
	blocks, blockOf, err := partition(code, labels)
	if err != nil {
		return nil, err
	}
	handlers := make([]handlerRange, 0, len(code.TryCatches))
	for _, tc := range code.TryCatches {
		s, okS := labels[tc.Start]
		e, okE := labels[tc.End]
		h, okH := labels[tc.Handler]
		if !okS || !okE || !okH {
			return nil, fmt.Errorf("%w: try-catch refers to a missing label", ErrBadStackShape)
		}
		desc := value.ThrowableDesc
		if tc.Type != "" {
			desc = jvm.ObjectDesc(tc.Type)
		}
		handlers = append(handlers, handlerRange{start: s, end: e, block: blockOf[h], exc: value.NonNullObject(desc)})
	}

	var queue []int
	enqueue := func(b int, in *Frame, at int) error {
		blk := blocks[b]
		if blk.entry == nil {
			blk.entry = in
		} else {
			merged, err := Merge(blk.entry, in)
			if err != nil {
				return fail(at, code.Insns[blk.start].Op, err)
			}
			if merged.Equal(blk.entry) {
				return nil
			}
			blk.entry = merged
		}
		if blk.state != queued {
			blk.state = queued
			queue = append(queue, b)
		}
		return nil
	}
	if err := enqueue(0, entry, 0); err != nil {
		return nil, err
	}

	limit := a.MaxSteps
	if limit <= 0 {
		limit = DefaultMaxSteps
	}
	for steps := 0; len(queue) > 0; steps++ {
		if steps >= limit {
			return nil, &Error{Index: -1, Op: jvm.NOP, Err: ErrNoConvergence}
		}
		b := queue[0]
		queue = queue[1:]
		blk := blocks[b]
		blk.state = processed
		f := blk.entry
		for i := blk.start; i < blk.end; i++ {
			in := code.Insns[i]
			fm.Frames[i] = f
			if in.Op != jvm.LABEL {
				for _, h := range handlers {
					if i < h.start || i >= h.end {
						continue
					}
					hf := &Frame{Locals: append([]value.Value(nil), f.Locals...), Stack: []value.Value{h.exc}}
					if err := enqueue(h.block, hf, i); err != nil {
						return nil, err
					}
				}
			}
			out, eff, err := a.Interp.Step(f, i, in)
			if err != nil {
				return nil, err
			}
			fm.Throws[i] = eff.Throws
			fm.Outcomes[i] = eff.Outcome
			f = out
		}
		last := code.Insns[blk.end-1]
		for _, l := range last.Labels() {
			if err := enqueue(blockOf[labels[l]], f, blk.end-1); err != nil {
				return nil, err
			}
		}
		if jvm.IsTerminal(last.Op) {
			continue
		}
		if blk.end >= n {
			return nil, &Error{Index: blk.end - 1, Op: last.Op, Err: ErrFallOff}
		}
		if err := enqueue(blockOf[blk.end], f, blk.end); err != nil {
			return nil, err
		}
	}
	return fm, nil
}

// partition splits code into basic blocks. Leaders are the first
// instruction, every jump, switch and handler target, and every instruction
// after a jump, switch or terminator.
func partition(code *jvm.Code, labels map[jvm.LabelID]int) ([]*block, []int, error) {
	n := len(code.Insns)
	leader := make([]bool, n)
	leader[0] = true
	mark := func(l jvm.LabelID) error {
		i, ok := labels[l]
		if !ok {
			return fmt.Errorf("%w: undefined label %d", ErrBadStackShape, l)
		}
		leader[i] = true
		return nil
	}
	for i, in := range code.Insns {
		targets := in.Labels()
		for _, l := range targets {
			if err := mark(l); err != nil {
				return nil, nil, &Error{Index: i, Op: in.Op, Err: err}
			}
		}
		if (len(targets) > 0 || jvm.IsTerminal(in.Op)) && i+1 < n {
			leader[i+1] = true
		}
	}
	for _, tc := range code.TryCatches {
		if err := mark(tc.Handler); err != nil {
			return nil, nil, err
		}
	}
	var blocks []*block
	blockOf := make([]int, n)
	for i := 0; i < n; i++ {
		if leader[i] {
			blocks = append(blocks, &block{start: i})
		}
		blockOf[i] = len(blocks) - 1
		blocks[len(blocks)-1].end = i + 1
	}
	return blocks, blockOf, nil
}
