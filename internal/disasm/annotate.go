package disasm

import (
	"fmt"

	"deobf/internal/analysis"
	"deobf/internal/jvm"
	"deobf/internal/lookup"
	"deobf/internal/value"
)

// Annotator returns an optional inline comment for an instruction.
// Empty string means no annotation. Receives the full Inst for access
// to both the instruction and its index.
type Annotator func(inst Inst) string

// DeadAnnotator marks instructions the analysis never reached.
func DeadAnnotator(fm *analysis.FrameMap) Annotator {
	return func(inst Inst) string {
		if fm == nil || inst.Insn.Op == jvm.LABEL || fm.Reachable(inst.Index) {
			return ""
		}
		return "dead"
	}
}

// OutcomeAnnotator shows the decided direction of conditionals and switches.
func OutcomeAnnotator(fm *analysis.FrameMap, names LabelNamer) Annotator {
	return func(inst Inst) string {
		if fm == nil || inst.Index >= len(fm.Outcomes) || !fm.Reachable(inst.Index) {
			return ""
		}
		out := fm.Outcomes[inst.Index]
		if !out.Decided {
			return ""
		}
		switch {
		case jvm.IsSwitch(inst.Insn.Op):
			return "always " + names(out.Target)
		case out.Taken:
			return "always taken"
		}
		return "never taken"
	}
}

// ValueAnnotator shows the value an instruction leaves on top of the stack
// when the analysis knows it and the instruction is not already a constant.
func ValueAnnotator(fm *analysis.FrameMap) Annotator {
	return func(inst Inst) string {
		op := inst.Insn.Op
		if fm == nil || op == jvm.LABEL || jvm.IsConstPush(op) || !fm.Reachable(inst.Index) {
			return ""
		}
		if !producesValue(inst.Insn) {
			return ""
		}
		after := fm.After(inst.Index)
		if after == nil {
			return ""
		}
		top, ok := after.Peek(0)
		if !ok || !pushable(top) {
			return ""
		}
		return "= " + top.String()
	}
}

// producesValue reports whether in leaves a new value on top of the stack.
func producesValue(in jvm.Insn) bool {
	op := in.Op
	switch {
	case jvm.IsStore(op), jvm.IsArrayStore(op), jvm.IsJump(op), jvm.IsSwitch(op), jvm.IsTerminal(op):
		return false
	case op == jvm.POP || op == jvm.POP2 || op == jvm.NOP || op == jvm.IINC || op == jvm.SWAP:
		return false
	case op == jvm.PUTFIELD || op == jvm.PUTSTATIC || op == jvm.MONITORENTER || op == jvm.MONITOREXIT:
		return false
	case jvm.IsInvoke(op):
		_, ret, err := jvm.ParseMethodDesc(in.Desc)
		return err == nil && ret.Sort != jvm.SortVoid
	}
	return true
}

func pushable(v value.Value) bool {
	_, ok := v.Instruction()
	return ok
}

// ThrowAnnotator marks reachable instructions that may raise an exception.
func ThrowAnnotator(fm *analysis.FrameMap) Annotator {
	return func(inst Inst) string {
		if fm == nil || inst.Index >= len(fm.Throws) || !fm.Throws[inst.Index] {
			return ""
		}
		return "may throw"
	}
}

// CallAnnotator marks invocations the lookup registry can evaluate.
func CallAnnotator(reg *lookup.Registry) Annotator {
	return func(inst Inst) string {
		in := inst.Insn
		if !jvm.IsInvoke(in.Op) || in.Op == jvm.INVOKEDYNAMIC {
			return ""
		}
		if _, ok := reg.Lookup(in.Owner, in.Name, in.Desc); ok {
			return fmt.Sprintf("pure %s.%s", in.Owner, in.Name)
		}
		return ""
	}
}

// AnalysisAnnotators returns the annotator chain for an analyzed method, in
// precedence order.
func AnalysisAnnotators(code *jvm.Code, fm *analysis.FrameMap, reg *lookup.Registry) []Annotator {
	names := Names(code)
	return []Annotator{
		DeadAnnotator(fm),
		OutcomeAnnotator(fm, names),
		ValueAnnotator(fm),
		CallAnnotator(reg),
		ThrowAnnotator(fm),
	}
}
