package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"

	"deobf/internal/disasm"
	"deobf/internal/jvm"
)

// BuildCFG constructs a lattice.CFGGraph from method bodies.
// Each method is converted to a lattice.FuncCFG via disasm.BuildCFG
// (3-phase algorithm) then mapped to lattice types.
func BuildCFG(methods []MethodInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, m := range methods {
		lcfg, _ := BuildMethodCFG(m.Name, m.Code)
		cg.Funcs = append(cg.Funcs, lcfg)
	}
	return cg
}

// BuildMethodCFG builds a single-method lattice.FuncCFG.
// Returns the FuncCFG and the number of basic blocks (for filtering trivial methods).
func BuildMethodCFG(name string, code *jvm.Code) (*lattice.FuncCFG, int) {
	if code == nil {
		return &lattice.FuncCFG{Name: name}, 0
	}
	dcfg := disasm.BuildCFG(name, code)
	return convertFuncCFG(&dcfg), len(dcfg.Blocks)
}

// BuildSummaryCFG builds a single-block FuncCFG listing the distinct methods a
// body calls and the string literals it loads, in order of first use. A body
// with neither yields no blocks.
func BuildSummaryCFG(name string, code *jvm.Code) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: name}
	if code == nil {
		return lcfg
	}
	seen := make(map[string]bool)
	var calls []lattice.CallSite
	for _, in := range code.Insns {
		label := callee(in)
		if label == "" {
			label = stringRef(in)
		}
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		calls = append(calls, lattice.CallSite{Offset: len(calls), Callee: label})
	}
	if len(calls) > 0 {
		lcfg.Blocks = append(lcfg.Blocks, &lattice.BasicBlock{
			ID:    0,
			Start: 0,
			End:   1,
			Term:  true,
			Calls: calls,
		})
	}
	return lcfg
}

// stringRef renders a string literal load, truncated for display.
func stringRef(in jvm.Insn) string {
	if in.Const == nil || in.Const.Kind != jvm.ConstString {
		return ""
	}
	val := in.Const.String
	if len(val) > 50 {
		val = val[:47] + "..."
	}
	return fmt.Sprintf("%q", val)
}

// convertFuncCFG maps a disasm.FuncCFG to a lattice.FuncCFG.
// Invokes become call sites of the block containing them.
func convertFuncCFG(dcfg *disasm.FuncCFG) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}
		for _, ds := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ds.BlockID,
				Cond:    ds.Cond,
			})
		}
		for idx := db.Start; idx < db.End && idx < len(dcfg.Insts); idx++ {
			if c := callee(dcfg.Insts[idx].Insn); c != "" {
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: idx,
					Callee: c,
				})
			}
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}
