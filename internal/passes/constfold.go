package passes

import (
	"deobf/internal/analysis"
	"deobf/internal/jvm"
	"deobf/internal/transform"
	"deobf/internal/value"
)

// maxFoldRounds bounds the re-analysis rounds of one method.
const maxFoldRounds = 16

// ConstantFolding replaces computations over known values with a push of
// the result. It also removes operations that are identities or absorbing
// for a constant operand, and stack operations that cancel out.
type ConstantFolding struct{}

func (*ConstantFolding) Name() string { return ConstantFoldingName }

func (*ConstantFolding) Description() string {
	return "fold computations over known values into constants"
}

func (*ConstantFolding) TransformMethod(ctx *transform.Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	code := m.Code
	changed := false
	for round := 0; round < maxFoldRounds; round++ {
		fm, err := ctx.Analyze(cls, m, code)
		if err != nil {
			return nil, false, err
		}
		insns, ok := foldSequences(code, fm)
		if !ok {
			insns, ok = foldRedundant(code, fm)
		}
		if !ok {
			insns, ok = simplifyStack(code.Insns)
		}
		if !ok {
			break
		}
		code, changed = rebuild(code, insns), true
	}
	if !changed {
		return nil, false, nil
	}
	return code, true, nil
}

// foldSequences replaces every maximal run of pure instructions computing a
// known value with a single push. Runs are found from the operator backwards
// and never cross a referenced label.
func foldSequences(code *jvm.Code, fm *analysis.FrameMap) ([]jvm.Insn, bool) {
	insns := code.Insns
	type run struct {
		start, end int
		push       jvm.Insn
	}
	var runs []run
	for i := len(insns) - 1; i >= 0; i-- {
		push, ok := foldResult(fm, i)
		if !ok {
			continue
		}
		start, ok := runStart(code, fm, i)
		if !ok {
			continue
		}
		runs = append(runs, run{start: start, end: i, push: push})
		i = start
	}
	if len(runs) == 0 {
		return insns, false
	}
	out := make([]jvm.Insn, 0, len(insns))
	next := len(runs) - 1
	for i := 0; i < len(insns); i++ {
		if next >= 0 && i == runs[next].start {
			r := runs[next]
			for j := r.start; j <= r.end; j++ {
				if insns[j].Op == jvm.LABEL {
					out = append(out, insns[j])
				}
			}
			out = append(out, r.push)
			i = r.end
			next--
			continue
		}
		out = append(out, insns[i])
	}
	return out, true
}

// foldResult returns the push replacing the operator at i, which must
// consume at least one value and produce a known one without throwing.
func foldResult(fm *analysis.FrameMap, i int) (jvm.Insn, bool) {
	in := fm.Code.Insns[i]
	if !fm.Reachable(i) || fm.Throws[i] || !foldable(in.Op) || consumed(fm, i) < 1 {
		return jvm.Insn{}, false
	}
	after := fm.After(i)
	if after == nil {
		return jvm.Insn{}, false
	}
	top, ok := after.Peek(0)
	if !ok {
		return jvm.Insn{}, false
	}
	return top.Instruction()
}

// foldable reports whether op pushes one value computed only from its
// operands.
func foldable(op jvm.Opcode) bool {
	switch {
	case op >= jvm.IADD && op <= jvm.LXOR,
		op >= jvm.I2L && op <= jvm.DCMPG,
		op == jvm.ARRAYLENGTH:
		return true
	case jvm.IsInvoke(op):
		return op != jvm.INVOKEDYNAMIC
	}
	return false
}

// pure reports whether instruction i pushes one value and has no effect
// besides consuming its operands.
func pure(fm *analysis.FrameMap, i int) bool {
	in := fm.Code.Insns[i]
	if !fm.Reachable(i) {
		return false
	}
	if _, ok := producerWords(in); ok {
		return true
	}
	if fm.Throws[i] || !foldable(in.Op) {
		return false
	}
	after := fm.After(i)
	if after == nil {
		return false
	}
	return len(after.Stack) == len(fm.At(i).Stack)-consumed(fm, i)+1
}

// consumed returns the number of stack values instruction i takes, counting
// a single result.
func consumed(fm *analysis.FrameMap, i int) int {
	before, after := fm.At(i), fm.After(i)
	if before == nil || after == nil {
		return 0
	}
	if jvm.IsInvoke(fm.Code.Insns[i].Op) {
		if _, ret, err := jvm.ParseMethodDesc(fm.Code.Insns[i].Desc); err != nil || ret.Sort == jvm.SortVoid {
			return 0
		}
	}
	return len(before.Stack) - len(after.Stack) + 1
}

// runStart walks back from the operator at end until every value it
// consumes is accounted for by pure instructions.
func runStart(code *jvm.Code, fm *analysis.FrameMap, end int) (int, bool) {
	need := consumed(fm, end)
	j := end - 1
	for ; need > 0; j-- {
		if j < 0 {
			return 0, false
		}
		in := code.Insns[j]
		if in.Op == jvm.LABEL {
			if code.References(in.Label) > 0 {
				return 0, false
			}
			continue
		}
		if !pure(fm, j) {
			return 0, false
		}
		need += consumed(fm, j) - 1
	}
	return j + 1, true
}

// foldRedundant removes operations whose constant right operand makes them
// an identity, and replaces absorbing ones by the constant result.
func foldRedundant(code *jvm.Code, fm *analysis.FrameMap) ([]jvm.Insn, bool) {
	insns := code.Insns
	out := make([]jvm.Insn, 0, len(insns))
	changed := false
	for i := 0; i < len(insns); i++ {
		if i+1 < len(insns) && jvm.IsConstPush(insns[i].Op) && fm.Reachable(i+1) {
			f := fm.At(i + 1)
			c, okC := f.Peek(0)
			x, okX := f.Peek(1)
			if okC && okX && c.IsKnown() {
				switch rule := redundancy(insns[i+1].Op, c); rule {
				case identity:
					i++
					changed = true
					continue
				case absorbing:
					out = append(out, popFor(x.Size()), insns[i])
					i++
					changed = true
					continue
				}
			}
		}
		out = append(out, insns[i])
	}
	return out, changed
}

type redundancyRule int

const (
	keep redundancyRule = iota
	identity
	absorbing
)

// redundancy classifies op applied with the known right operand c. Float
// and double rules are limited to multiplicative identities, which hold for
// every value including NaN and negative zero.
func redundancy(op jvm.Opcode, c value.Value) redundancyRule {
	switch c.Kind() {
	case value.Int:
		v := c.Int()
		switch op {
		case jvm.IADD, jvm.ISUB, jvm.IOR, jvm.IXOR:
			if v == 0 {
				return identity
			}
			if op == jvm.IOR && v == -1 {
				return absorbing
			}
		case jvm.IMUL:
			if v == 1 {
				return identity
			}
			if v == 0 {
				return absorbing
			}
		case jvm.IDIV:
			if v == 1 {
				return identity
			}
		case jvm.IAND:
			if v == -1 {
				return identity
			}
			if v == 0 {
				return absorbing
			}
		case jvm.ISHL, jvm.ISHR, jvm.IUSHR:
			if v&31 == 0 {
				return identity
			}
		case jvm.LSHL, jvm.LSHR, jvm.LUSHR:
			if v&63 == 0 {
				return identity
			}
		}
	case value.Long:
		v := c.Long()
		switch op {
		case jvm.LADD, jvm.LSUB, jvm.LOR, jvm.LXOR:
			if v == 0 {
				return identity
			}
			if op == jvm.LOR && v == -1 {
				return absorbing
			}
		case jvm.LMUL:
			if v == 1 {
				return identity
			}
			if v == 0 {
				return absorbing
			}
		case jvm.LDIV:
			if v == 1 {
				return identity
			}
		case jvm.LAND:
			if v == -1 {
				return identity
			}
			if v == 0 {
				return absorbing
			}
		}
	case value.Float:
		if (op == jvm.FMUL || op == jvm.FDIV) && c.Float() == 1 {
			return identity
		}
	case value.Double:
		if (op == jvm.DMUL || op == jvm.DDIV) && c.Double() == 1 {
			return identity
		}
	}
	return keep
}
