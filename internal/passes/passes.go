// Package passes holds the deobfuscation transformers.
//
// Each transformer lives in its own file and is registered by All. Method
// transformers never edit the code they are handed; they build a new
// instruction list and return it.
package passes

import (
	"deobf/internal/jvm"
	"deobf/internal/transform"
)

// Transformer names.
const (
	ConstantFoldingName       = "constant-folding"
	OpaquePredicateName       = "opaque-predicate"
	DeadCodeName              = transform.DeadCodeName
	GotoInliningName          = "goto-inlining"
	VariableFoldingName       = "variable-folding"
	TryCatchName              = "try-catch"
	CatchMergingName          = "catch-merging"
	ExceptionCollectionName   = "exception-collection"
	StaticValueCollectionName = "static-value-collection"
	StaticValueInliningName   = "static-value-inlining"
	IllegalAttributesName     = "illegal-attributes"
	EnumNamesName             = "enum-names"
	CycleRemovalName          = "cycle-removal"
)

// DefaultNames is the queue run when no transformers are configured.
// Collection transformers are pulled in as dependencies.
var DefaultNames = []string{
	CycleRemovalName,
	IllegalAttributesName,
	StaticValueInliningName,
	ConstantFoldingName,
	VariableFoldingName,
	OpaquePredicateName,
	GotoInliningName,
	TryCatchName,
	CatchMergingName,
	DeadCodeName,
	EnumNamesName,
}

// All returns one instance of every transformer.
func All() []transform.Transformer {
	return []transform.Transformer{
		&ConstantFolding{},
		&OpaquePredicate{},
		&DeadCode{},
		&GotoInlining{},
		&VariableFolding{},
		&TryCatch{},
		&CatchMerging{},
		&ExceptionCollection{},
		&StaticValueCollection{},
		&StaticValueInlining{},
		&IllegalAttributes{},
		&EnumNames{},
		&CycleRemoval{},
	}
}

// NewRegistry returns a registry holding every transformer.
func NewRegistry() *transform.Registry { return transform.NewRegistry(All()...) }

// rebuild returns a copy of code with insns as its body. Exception ranges
// left without a real instruction are dropped.
func rebuild(code *jvm.Code, insns []jvm.Insn) *jvm.Code {
	out := &jvm.Code{Insns: insns, MaxLocals: code.MaxLocals}
	labels := out.LabelIndex()
	for _, tc := range code.TryCatches {
		s, okS := labels[tc.Start]
		e, okE := labels[tc.End]
		if !okS || !okE || !hasReal(insns, s, e) {
			continue
		}
		out.TryCatches = append(out.TryCatches, tc)
	}
	return out
}

// hasReal reports whether insns[from:to] holds anything but labels.
func hasReal(insns []jvm.Insn, from, to int) bool {
	for i := from; i < to && i < len(insns); i++ {
		if insns[i].Op != jvm.LABEL {
			return true
		}
	}
	return false
}

func sameInsns(a, b []jvm.Insn) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// popFor returns the pop matching a value of size words.
func popFor(size int) jvm.Insn {
	if size == 2 {
		return jvm.Op(jvm.POP2)
	}
	return jvm.Op(jvm.POP)
}

// producerWords reports the stack words pushed by an instruction that pushes
// one value without consuming anything or having side effects.
func producerWords(in jvm.Insn) (int, bool) {
	switch op := in.Op; {
	case op == jvm.LCONST_0 || op == jvm.LCONST_1 || op == jvm.DCONST_0 || op == jvm.DCONST_1 || op == jvm.LDC2_W:
		return 2, true
	case jvm.IsConstPush(op):
		return 1, true
	case jvm.IsLoad(op):
		if jvm.IsWideOp(op) {
			return 2, true
		}
		return 1, true
	}
	return 0, false
}

// nextReal returns the index of the first non-label instruction at or after
// i, or len(insns).
func nextReal(insns []jvm.Insn, i int) int {
	for i < len(insns) && insns[i].Op == jvm.LABEL {
		i++
	}
	return i
}

// prevReal returns the index of the last non-label instruction before i, or
// -1.
func prevReal(insns []jvm.Insn, i int) int {
	i--
	for i >= 0 && insns[i].Op == jvm.LABEL {
		i--
	}
	return i
}

// tryLabels returns every label used by an exception range.
func tryLabels(code *jvm.Code) map[jvm.LabelID]bool {
	out := make(map[jvm.LabelID]bool, 3*len(code.TryCatches))
	for _, tc := range code.TryCatches {
		out[tc.Start] = true
		out[tc.End] = true
		out[tc.Handler] = true
	}
	return out
}

// coverage returns, for every instruction, the indexes of the exception
// ranges protecting it.
func coverage(code *jvm.Code) [][]int {
	out := make([][]int, len(code.Insns))
	labels := code.LabelIndex()
	for k, tc := range code.TryCatches {
		s, okS := labels[tc.Start]
		e, okE := labels[tc.End]
		if !okS || !okE {
			continue
		}
		for i := s; i < e && i < len(out); i++ {
			out[i] = append(out[i], k)
		}
	}
	return out
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// catchesAll reports whether a handler of type typ catches everything.
func catchesAll(typ string) bool { return typ == "" || typ == throwable }

const (
	throwable = "java/lang/Throwable"
	object    = "java/lang/Object"
)

// simplifyStack removes stack operations that cancel out, until none are
// left. It needs no frames: every rule only looks at adjacent instructions.
func simplifyStack(insns []jvm.Insn) ([]jvm.Insn, bool) {
	changed := false
	for {
		next, ok := simplifyOnce(insns)
		if !ok {
			return insns, changed
		}
		insns, changed = next, true
	}
}

func simplifyOnce(insns []jvm.Insn) ([]jvm.Insn, bool) {
	out := make([]jvm.Insn, 0, len(insns))
	changed := false
	at := func(i int) jvm.Opcode {
		if i < len(insns) {
			return insns[i].Op
		}
		return jvm.LABEL
	}
	for i := 0; i < len(insns); i++ {
		in := insns[i]
		if in.Op == jvm.NOP {
			changed = true
			continue
		}
		if w, ok := producerWords(in); ok {
			if (w == 1 && at(i+1) == jvm.POP) || (w == 2 && at(i+1) == jvm.POP2) {
				i++
				changed = true
				continue
			}
			if w2, ok2 := producerWords(insnAt(insns, i+1)); ok && ok2 && w == 1 && w2 == 1 && at(i+2) == jvm.POP2 {
				i += 2
				changed = true
				continue
			}
		}
		switch {
		case in.Op == jvm.DUP && at(i+1) == jvm.POP,
			in.Op == jvm.DUP2 && at(i+1) == jvm.POP2,
			in.Op == jvm.SWAP && at(i+1) == jvm.SWAP:
			i++
			changed = true
			continue
		case in.Op == jvm.GOTO && jumpsToNext(insns, i):
			changed = true
			continue
		}
		out = append(out, in)
	}
	return out, changed
}

func insnAt(insns []jvm.Insn, i int) jvm.Insn {
	if i < len(insns) {
		return insns[i]
	}
	return jvm.Label(-1)
}

// jumpsToNext reports whether the jump at i targets one of the labels
// directly following it.
func jumpsToNext(insns []jvm.Insn, i int) bool {
	for j := i + 1; j < len(insns) && insns[j].Op == jvm.LABEL; j++ {
		if insns[j].Label == insns[i].Target {
			return true
		}
	}
	return false
}
