package disasm

import (
	"fmt"

	"deobf/internal/jvm"
)

// JVM control transfer detection. These functions identify basic-block
// terminators and extract their label targets.

// Edge is one labelled branch target.
type Edge struct {
	Target jvm.LabelID
	Cond   string // "T" for a taken conditional, "k=N" for a switch case, "default"
}

// BranchInfo describes a decoded control transfer.
type BranchInfo struct {
	Edges  []Edge
	Cond   bool // true if conditional (has fallthrough)
	IsRet  bool // true for returns and athrow
	Switch bool
}

// DecodeBranch decodes the control transfer of in.
// Returns nil if the instruction falls through to the next one.
func DecodeBranch(in jvm.Insn) *BranchInfo {
	op := in.Op
	switch {
	case jvm.IsTerminal(op) && !jvm.IsJump(op) && !jvm.IsSwitch(op):
		return &BranchInfo{IsRet: true}
	case jvm.IsConditional(op):
		return &BranchInfo{Edges: []Edge{{Target: in.Target, Cond: "T"}}, Cond: true}
	case jvm.IsJump(op):
		return &BranchInfo{Edges: []Edge{{Target: in.Target}}}
	case jvm.IsSwitch(op):
		bi := &BranchInfo{Switch: true}
		if in.Switch == nil {
			return bi
		}
		for i, l := range in.Switch.Labels {
			var key int64
			if op == jvm.TABLESWITCH {
				key = int64(in.Switch.Min) + int64(i)
			} else if i < len(in.Switch.Keys) {
				key = int64(in.Switch.Keys[i])
			}
			bi.Edges = append(bi.Edges, Edge{Target: l, Cond: fmt.Sprintf("k=%d", key)})
		}
		bi.Edges = append(bi.Edges, Edge{Target: in.Switch.Default, Cond: "default"})
		return bi
	}
	return nil
}
