package passes

import (
	"deobf/internal/jvm"
	"deobf/internal/transform"
	"deobf/internal/value"
)

// VariableFolding replaces reads of local variables that only ever hold one
// known value with that value, and removes stores nobody reads.
//
// Accesses are tracked per (slot, sort). Stores merge into the state of
// their variable, except that a store seen before any read of it and before
// any control flow or potentially throwing protected instruction replaces
// the state outright.
type VariableFolding struct{}

func (*VariableFolding) Name() string { return VariableFoldingName }

func (*VariableFolding) Description() string {
	return "inline locals holding a single known value and drop dead stores"
}

type localKey struct {
	slot int
	sort byte
}

type localState struct {
	val     value.Value
	set     bool
	array   bool
	reads   []int
	onlyInc bool // every read is an iinc
}

func (s *localState) merge(v value.Value) {
	if v.Kind() == value.Array {
		s.array = true
	}
	if !s.set {
		s.val, s.set = v, true
		return
	}
	s.val = value.Merge(s.val, v)
}

func (s *localState) replace(v value.Value) {
	if v.Kind() == value.Array {
		s.array = true
	}
	s.val, s.set = v, true
}

func (s *localState) read(i int, inc bool) {
	if len(s.reads) == 0 {
		s.onlyInc = true
	}
	s.reads = append(s.reads, i)
	s.onlyInc = s.onlyInc && inc
}

// readsBefore reports whether any read precedes index i.
func (s *localState) readsBefore(i int) bool { return len(s.reads) > 0 && s.reads[0] < i }

// constant returns the push of the state's value when it is known.
func (s *localState) constant() (jvm.Insn, bool) {
	if !s.set || s.val.IsNull() {
		return jvm.Insn{}, false
	}
	return s.val.Instruction()
}

func (*VariableFolding) TransformMethod(ctx *transform.Context, cls *jvm.Class, m *jvm.Method) (*jvm.Code, bool, error) {
	code := m.Code
	fm, err := ctx.Analyze(cls, m, code)
	if err != nil {
		return nil, false, err
	}
	states := make(map[localKey]*localState)
	state := func(slot int, sort byte) *localState {
		k := localKey{slot, sort}
		s, ok := states[k]
		if !ok {
			s = &localState{}
			states[k] = s
		}
		return s
	}

	// parameters are written on entry
	slot := 0
	if !m.IsStatic() {
		state(0, 'L').replace(value.NonNullObject(jvm.ObjectDesc(cls.Name)))
		slot = 1
	}
	args, _, err := jvm.ParseMethodDesc(m.Desc)
	if err != nil {
		return nil, false, err
	}
	for _, a := range args {
		state(slot, sortOf(a)).replace(value.UnknownOf(a.Desc))
		slot += a.Size()
	}

	cover := coverage(code)
	flow := false
	for i, in := range code.Insns {
		if !fm.Reachable(i) {
			continue
		}
		switch {
		case jvm.IsLoad(in.Op):
			state(in.Var, jvm.LocalSort(in.Op)).read(i, false)
		case jvm.IsStore(in.Op):
			s := state(in.Var, jvm.LocalSort(in.Op))
			top, ok := fm.At(i).Peek(0)
			if !ok {
				continue
			}
			if !s.readsBefore(i) && !flow {
				s.replace(top)
			} else {
				s.merge(top)
			}
		case in.Op == jvm.IINC:
			s := state(in.Var, 'I')
			cur := s.val
			s.read(i, true)
			if s.set && cur.IsKnown() && cur.Kind() == value.Int && !s.readsBefore(i) && !flow {
				s.replace(value.KnownInt(cur.Int() + in.Int))
			} else {
				s.merge(value.UnknownInt())
			}
		case in.Op == jvm.LABEL:
			if code.References(in.Label) > 0 {
				flow = true
			}
		case jvm.IsJump(in.Op) || jvm.IsTerminal(in.Op):
			flow = true
		case len(cover[i]) > 0 && fm.Throws[i]:
			flow = true
		}
	}

	out := append([]jvm.Insn(nil), code.Insns...)
	changed := false
	for i := len(out) - 1; i >= 0; i-- {
		in := out[i]
		switch {
		case jvm.IsLoad(in.Op):
			s := states[localKey{in.Var, jvm.LocalSort(in.Op)}]
			if s == nil {
				continue
			}
			if push, ok := s.constant(); ok {
				out[i] = push
				changed = true
			}
		case jvm.IsStore(in.Op):
			s := states[localKey{in.Var, jvm.LocalSort(in.Op)}]
			if s == nil || s.array {
				continue
			}
			if len(s.reads) > 0 {
				if _, ok := s.constant(); !ok {
					continue
				}
			}
			if j := i - 1; j >= 0 && fm.Reachable(i) {
				if _, ok := producerWords(out[j]); ok {
					out[j], out[i] = jvm.Op(jvm.NOP), jvm.Op(jvm.NOP)
					changed = true
					continue
				}
			}
			out[i] = popFor(1 + btoi(jvm.IsWideOp(in.Op)))
			changed = true
		case in.Op == jvm.IINC:
			s := states[localKey{in.Var, 'I'}]
			if s == nil {
				continue
			}
			if _, ok := s.constant(); ok || s.onlyInc {
				out[i] = jvm.Op(jvm.NOP)
				changed = true
			}
		}
	}
	if !changed {
		return nil, false, nil
	}
	return rebuild(code, out), true, nil
}

// sortOf maps a parameter type to the sort of the loads reading it.
func sortOf(t jvm.Type) byte {
	switch t.Sort {
	case jvm.SortLong:
		return 'J'
	case jvm.SortFloat:
		return 'F'
	case jvm.SortDouble:
		return 'D'
	case jvm.SortArray, jvm.SortObject:
		return 'L'
	}
	return 'I'
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
