package passes

import (
	"deobf/internal/jvm"
	"deobf/internal/transform"
)

// OpaquePredicate replaces branches and switches whose direction is decided
// by known operands with their outcome, then prunes the side never taken.
type OpaquePredicate struct{}

func (*OpaquePredicate) Name() string { return OpaquePredicateName }

func (*OpaquePredicate) Description() string {
	return "replace branches with a statically known outcome by their target"
}

func (*OpaquePredicate) Dependencies() []string { return []string{DeadCodeName} }

func (*OpaquePredicate) TransformMethod(ctx *transform.Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	code := m.Code
	fm, err := ctx.Analyze(cls, m, code)
	if err != nil {
		return nil, false, err
	}
	out := make([]jvm.Insn, 0, len(code.Insns))
	changed := false
	for i, in := range code.Insns {
		if !fm.Reachable(i) {
			out = append(out, in)
			continue
		}
		outcome := fm.Outcomes[i]
		switch {
		case jvm.IsConditional(in.Op) && outcome.Decided:
			out = append(out, popFor(operandWords(in.Op)))
			if outcome.Taken {
				out = append(out, jvm.Jump(jvm.GOTO, in.Target))
			}
			changed = true
		case jvm.IsSwitch(in.Op) && in.Switch != nil && (outcome.Decided || uniform(in.Switch)):
			target := in.Switch.Default
			if outcome.Decided {
				target = outcome.Target
			}
			out = append(out, jvm.Op(jvm.POP), jvm.Jump(jvm.GOTO, target))
			changed = true
		default:
			out = append(out, in)
		}
	}
	if !changed {
		return nil, false, nil
	}
	insns, _ := simplifyStack(out)
	next, _, err := ctx.PruneDeadCode(cls, m, rebuild(code, insns))
	if err != nil {
		return nil, false, err
	}
	if insns, ok := simplifyStack(next.Insns); ok {
		next = rebuild(next, insns)
	}
	return next, true, nil
}

// operandWords returns the stack words consumed by a conditional jump.
func operandWords(op jvm.Opcode) int {
	if op >= jvm.IF_ICMPEQ && op <= jvm.IF_ACMPNE {
		return 2
	}
	return 1
}

// uniform reports whether every case of a switch goes to its default.
func uniform(s *jvm.Switch) bool {
	for _, l := range s.Labels {
		if l != s.Default {
			return false
		}
	}
	return true
}
