package disasm

import (
	"sort"

	"deobf/internal/jvm"
)

// BasicBlock represents a sequence of instructions with a single entry point.
type BasicBlock struct {
	ID      int
	Start   int    // index into FuncCFG.Insts (inclusive)
	End     int    // index into FuncCFG.Insts (exclusive)
	Succs   []Succ // successor edges
	IsEntry bool
	IsTerm  bool // ends with a return or athrow
	Handler bool // entered by an exception edge
}

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int
	// "" = unconditional, "T" = taken, "F" = fallthrough, "k=N" or "default"
	// for switch cases, "E" for an exception edge.
	Cond string
}

// FuncCFG is a per-method control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []Inst
}

// BlockOf returns the block containing instruction i, or -1.
func (g FuncCFG) BlockOf(i int) int {
	n := sort.Search(len(g.Blocks), func(k int) bool { return g.Blocks[k].End > i })
	if n < len(g.Blocks) && g.Blocks[n].Start <= i {
		return n
	}
	return -1
}

// BuildCFG constructs a control flow graph from a method body.
// The algorithm:
//  1. Find block leaders: index 0, label targets of jumps, switches and
//     handlers, instructions after terminators.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction, then add
//     an exception edge from every block overlapping a protected range.
func BuildCFG(name string, code *jvm.Code) FuncCFG {
	insts := Decode(code, nil)
	if len(insts) == 0 {
		return FuncCFG{Name: name, Insts: insts}
	}
	labels := code.LabelIndex()

	// Pass 1: Identify block leaders.
	leaders := map[int]bool{0: true}
	for i, inst := range insts {
		bi := DecodeBranch(inst.Insn)
		if bi == nil {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		for _, e := range bi.Edges {
			if idx, ok := labels[e.Target]; ok {
				leaders[idx] = true
			}
		}
	}
	handlers := make(map[int]bool)
	for _, tc := range code.TryCatches {
		if idx, ok := labels[tc.Handler]; ok {
			leaders[idx] = true
			handlers[idx] = true
		}
	}

	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	// Pass 2: Partition into blocks.
	blocks := make([]BasicBlock, len(sorted))
	leaderToBlock := make(map[int]int, len(sorted))
	for i, start := range sorted {
		end := len(insts)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		blocks[i] = BasicBlock{
			ID:      i,
			Start:   start,
			End:     end,
			IsEntry: start == 0,
			Handler: handlers[start],
		}
		leaderToBlock[start] = i
	}
	target := func(l jvm.LabelID) (int, bool) {
		idx, ok := labels[l]
		if !ok {
			return 0, false
		}
		bid, ok := leaderToBlock[idx]
		return bid, ok
	}

	// Pass 3: Compute successors.
	for i := range blocks {
		blk := &blocks[i]
		last := insts[blk.End-1]
		bi := DecodeBranch(last.Insn)

		if bi == nil {
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
			continue
		}
		if bi.IsRet {
			blk.IsTerm = true
			continue
		}
		for _, e := range bi.Edges {
			if bid, ok := target(e.Target); ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: bid, Cond: e.Cond})
			}
		}
		if bi.Cond {
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
		}
	}

	for _, tc := range code.TryCatches {
		s, okS := labels[tc.Start]
		e, okE := labels[tc.End]
		h, okH := target(tc.Handler)
		if !okS || !okE || !okH {
			continue
		}
		for i := range blocks {
			blk := &blocks[i]
			if blk.Start >= e || blk.End <= s || !hasCode(insts[max(blk.Start, s):min(blk.End, e)]) {
				continue
			}
			if !hasSucc(blk.Succs, h, "E") {
				blk.Succs = append(blk.Succs, Succ{BlockID: h, Cond: "E"})
			}
		}
	}

	return FuncCFG{
		Name:   name,
		Blocks: blocks,
		Insts:  insts,
	}
}

func hasCode(insts []Inst) bool {
	for _, in := range insts {
		if in.Insn.Op != jvm.LABEL {
			return true
		}
	}
	return false
}

func hasSucc(succs []Succ, id int, cond string) bool {
	for _, s := range succs {
		if s.BlockID == id && s.Cond == cond {
			return true
		}
	}
	return false
}
