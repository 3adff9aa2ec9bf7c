package analysis

import (
	"fmt"

	"deobf/internal/jvm"
	"deobf/internal/lookup"
	"deobf/internal/value"
)

// Outcome is the statically decided direction of a conditional jump or a
// switch.
type Outcome struct {
	Decided bool
	Taken   bool        // conditional jumps
	Target  jvm.LabelID // switches
}

// Effect is the side channel of one step.
type Effect struct {
	// Throws reports that the instruction may raise an exception for the
	// operands in the input frame.
	Throws  bool
	Outcome Outcome
}

// Interpreter steps instructions over abstract frames.
type Interpreter struct {
	// Calls evaluates allow-listed library calls. Nil evaluates none.
	Calls *lookup.Registry
}

// NewInterpreter returns an interpreter that evaluates the calls in reg.
func NewInterpreter(reg *lookup.Registry) *Interpreter { return &Interpreter{Calls: reg} }

// EntryFrame builds the frame on method entry: the receiver is a non-null
// instance of owner and every parameter is unknown of its declared type.
func EntryFrame(owner string, m *jvm.Method) (*Frame, error) {
	args, _, err := jvm.ParseMethodDesc(m.Desc)
	if err != nil {
		return nil, err
	}
	slots := jvm.ArgSlots(args)
	if !m.IsStatic() {
		slots++
	}
	maxLocals := slots
	if m.Code != nil {
		maxLocals = m.Code.ComputeMaxLocals(slots)
	}
	f := NewFrame(maxLocals)
	slot := 0
	if !m.IsStatic() {
		f.SetLocal(0, value.NonNullObject(jvm.ObjectDesc(owner)))
		slot = 1
	}
	for _, a := range args {
		f.SetLocal(slot, value.UnknownOf(a.Desc))
		slot += a.Size()
	}
	return f, nil
}

// Step simulates in, the instruction at index, on a copy of f. The input
// frame is never modified.
func (it *Interpreter) Step(f *Frame, index int, in jvm.Insn) (*Frame, Effect, error) {
	out := f.Clone()
	eff := Effect{Throws: jvm.MayThrow(in.Op)}
	if err := it.exec(out, index, in, &eff); err != nil {
		return nil, Effect{}, fail(index, in.Op, err)
	}
	return out, eff, nil
}

// arithKinds gives the operand descriptor of the typed arithmetic families,
// which cycle through int, long, float and double.
const arithKinds = "IJFD"

// convTargets gives the target of i2l through i2s.
const convTargets = "JFDIFDIJDIJFBCS"

func (it *Interpreter) exec(f *Frame, index int, in jvm.Insn, eff *Effect) error {
	op := in.Op
	switch {
	case op == jvm.LABEL || op == jvm.NOP:
		return nil
	case op == jvm.ACONST_NULL:
		f.Push(value.NullValue())
	case op >= jvm.ICONST_M1 && op <= jvm.ICONST_5:
		f.Push(value.KnownInt(int32(op - jvm.ICONST_0)))
	case op == jvm.LCONST_0 || op == jvm.LCONST_1:
		f.Push(value.KnownLong(int64(op - jvm.LCONST_0)))
	case op >= jvm.FCONST_0 && op <= jvm.FCONST_2:
		f.Push(value.KnownFloat(float32(op - jvm.FCONST_0)))
	case op == jvm.DCONST_0 || op == jvm.DCONST_1:
		f.Push(value.KnownDouble(float64(op - jvm.DCONST_0)))
	case op == jvm.BIPUSH || op == jvm.SIPUSH:
		f.Push(value.KnownInt(in.Int))
	case op == jvm.LDC || op == jvm.LDC_W || op == jvm.LDC2_W:
		if in.Const == nil {
			return fmt.Errorf("%w: ldc without constant", ErrBadStackShape)
		}
		f.Push(value.FromConstant(in.Const))
	case jvm.IsLoad(op):
		return load(f, in)
	case jvm.IsStore(op):
		v, err := f.Pop()
		if err != nil {
			return err
		}
		if want := 1 + btoi(jvm.IsWideOp(op)); v.Size() != want {
			return fmt.Errorf("%w: %s of a %d-word value", ErrBadStackShape, op, v.Size())
		}
		f.SetLocal(in.Var, v)
	case jvm.IsArrayLoad(op):
		return arrayLoad(f, in, eff)
	case jvm.IsArrayStore(op):
		return arrayStore(f, in, eff)
	case op == jvm.POP:
		_, err := f.popWords(1)
		return err
	case op == jvm.POP2:
		_, err := f.popWords(2)
		return err
	case op >= jvm.DUP && op <= jvm.DUP2_X2:
		// dup, dup_x1, dup_x2, dup2, dup2_x1, dup2_x2
		n := int(op - jvm.DUP)
		return f.shuffle(1+n/3, n%3)
	case op == jvm.SWAP:
		vals, err := f.popWords(2)
		if err != nil {
			return err
		}
		if len(vals) != 2 {
			return fmt.Errorf("%w: swap of a wide value", ErrBadStackShape)
		}
		f.Push(vals[1])
		f.Push(vals[0])
	case op >= jvm.IADD && op <= jvm.DREM:
		return binary(f, op, eff)
	case op >= jvm.INEG && op <= jvm.DNEG:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		r, err := value.Neg(v)
		if err != nil {
			r = value.UnknownOf(string(arithKinds[op-jvm.INEG]))
		}
		f.Push(r)
	case op >= jvm.ISHL && op <= jvm.LXOR:
		return binary(f, op, eff)
	case op == jvm.IINC:
		v := f.Local(in.Var)
		r, err := value.Add(v, value.KnownInt(in.Int))
		if err != nil || v.Kind() != value.Int {
			r = value.UnknownInt()
		}
		f.SetLocal(in.Var, r)
	case op >= jvm.I2L && op <= jvm.I2S:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		target := convTargets[op-jvm.I2L]
		r, err := value.Convert(v, target)
		if err != nil {
			r = value.UnknownOf(string(target))
		}
		f.Push(r)
	case op >= jvm.LCMP && op <= jvm.DCMPG:
		vals, err := f.PopN(2)
		if err != nil {
			return err
		}
		nan := int32(-1)
		if op == jvm.FCMPG || op == jvm.DCMPG {
			nan = 1
		}
		r, err := value.Compare(vals[0], vals[1], nan)
		if err != nil {
			r = value.UnknownInt()
		}
		f.Push(r)
	case op >= jvm.IFEQ && op <= jvm.IFLE:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		if v.Kind() == value.Int && v.IsKnown() {
			eff.Outcome = Outcome{Decided: true, Taken: compareInt(op-jvm.IFEQ, v.Int(), 0)}
		}
	case op >= jvm.IF_ICMPEQ && op <= jvm.IF_ICMPLE:
		vals, err := f.PopN(2)
		if err != nil {
			return err
		}
		a, b := vals[0], vals[1]
		if a.Kind() == value.Int && b.Kind() == value.Int && a.IsKnown() && b.IsKnown() {
			eff.Outcome = Outcome{Decided: true, Taken: compareInt(op-jvm.IF_ICMPEQ, a.Int(), b.Int())}
		}
	case op == jvm.IF_ACMPEQ || op == jvm.IF_ACMPNE:
		vals, err := f.PopN(2)
		if err != nil {
			return err
		}
		if same, ok := sameRef(vals[0], vals[1]); ok {
			eff.Outcome = Outcome{Decided: true, Taken: same == (op == jvm.IF_ACMPEQ)}
		}
	case op == jvm.IFNULL || op == jvm.IFNONNULL:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		switch {
		case v.IsNull():
			eff.Outcome = Outcome{Decided: true, Taken: op == jvm.IFNULL}
		case v.IsNonNull():
			eff.Outcome = Outcome{Decided: true, Taken: op == jvm.IFNONNULL}
		}
	case op == jvm.GOTO:
		return nil
	case op == jvm.JSR || op == jvm.RET || op == jvm.WIDE:
		return fmt.Errorf("%w: %s", ErrUnsupported, op)
	case jvm.IsSwitch(op):
		if in.Switch == nil {
			return fmt.Errorf("%w: switch without table", ErrBadStackShape)
		}
		v, err := f.Pop()
		if err != nil {
			return err
		}
		if v.Kind() == value.Int && v.IsKnown() {
			eff.Outcome = Outcome{Decided: true, Target: in.Switch.Target(op, v.Int())}
		}
	case op >= jvm.IRETURN && op <= jvm.ARETURN:
		_, err := f.Pop()
		return err
	case op == jvm.RETURN:
		return nil
	case op == jvm.GETSTATIC:
		f.Push(value.UnknownOf(in.Desc))
	case op == jvm.PUTSTATIC:
		_, err := f.Pop()
		return err
	case op == jvm.GETFIELD:
		ref, err := f.Pop()
		if err != nil {
			return err
		}
		eff.Throws = !ref.IsNonNull()
		f.Push(value.UnknownOf(in.Desc))
	case op == jvm.PUTFIELD:
		vals, err := f.PopN(2)
		if err != nil {
			return err
		}
		eff.Throws = !vals[0].IsNonNull()
	case jvm.IsInvoke(op):
		return it.invoke(f, index, in, eff)
	case op == jvm.NEW:
		f.Push(value.NonNullObject(jvm.ObjectDesc(in.Desc)))
	case op == jvm.NEWARRAY:
		desc, ok := jvm.NewArrayDesc(in.Int)
		if !ok {
			return fmt.Errorf("%w: newarray type %d", ErrBadStackShape, in.Int)
		}
		return newArray(f, index, desc, eff)
	case op == jvm.ANEWARRAY:
		return newArray(f, index, "["+jvm.ObjectDesc(in.Desc), eff)
	case op == jvm.ARRAYLENGTH:
		arr, err := f.Pop()
		if err != nil {
			return err
		}
		eff.Throws = !arr.IsNonNull()
		if n, ok := arr.Len(); ok {
			f.Push(value.KnownInt(n))
		} else {
			f.Push(value.UnknownInt())
		}
	case op == jvm.ATHROW:
		_, err := f.Pop()
		return err
	case op == jvm.CHECKCAST:
		ref, err := f.Pop()
		if err != nil {
			return err
		}
		desc := jvm.ObjectDesc(in.Desc)
		eff.Throws = !ref.IsNull() && desc != value.ObjectDesc && ref.Desc() != desc
		f.Push(ref.WithType(desc))
	case op == jvm.INSTANCEOF:
		ref, err := f.Pop()
		if err != nil {
			return err
		}
		desc := jvm.ObjectDesc(in.Desc)
		switch {
		case ref.IsNull():
			f.Push(value.KnownInt(0))
		case ref.IsNonNull() && (ref.Desc() == desc || desc == value.ObjectDesc):
			f.Push(value.KnownInt(1))
		default:
			f.Push(value.UnknownInt())
		}
	case op == jvm.MONITORENTER || op == jvm.MONITOREXIT:
		_, err := f.Pop()
		return err
	case op == jvm.MULTIANEWARRAY:
		if _, err := f.PopN(in.Dims); err != nil {
			return err
		}
		f.forgetArray(index + 1)
		f.Push(value.NewArray(in.Desc, -1, index+1))
	default:
		return fmt.Errorf("%w: opcode %d", ErrUnsupported, int(op))
	}
	return nil
}

func binary(f *Frame, op jvm.Opcode, eff *Effect) error {
	vals, err := f.PopN(2)
	if err != nil {
		return err
	}
	a, b := vals[0], vals[1]
	var fn func(a, b value.Value) (value.Value, error)
	var kind byte
	switch {
	case op <= jvm.DREM:
		idx := op - jvm.IADD
		kind = arithKinds[idx%4]
		fn = [...]func(a, b value.Value) (value.Value, error){
			value.Add, value.Sub, value.Mul, value.Div, value.Rem,
		}[idx/4]
		if idx/4 >= 3 && (kind == 'I' || kind == 'J') {
			// integer division throws only for a zero or unknown divisor
			eff.Throws = !b.IsKnown() || isZero(b)
		}
	case op <= jvm.LUSHR:
		idx := op - jvm.ISHL
		kind = arithKinds[idx%2]
		fn = [...]func(a, b value.Value) (value.Value, error){
			value.ShiftLeft, value.ShiftRight, value.ShiftRightUnsigned,
		}[idx/2]
	default:
		idx := op - jvm.IAND
		kind = arithKinds[idx%2]
		fn = [...]func(a, b value.Value) (value.Value, error){
			value.And, value.Or, value.Xor,
		}[idx/2]
	}
	r, err := fn(a, b)
	if err != nil || r.Desc() != string(kind) {
		r = value.UnknownOf(string(kind))
	}
	f.Push(r)
	return nil
}

func isZero(v value.Value) bool {
	switch v.Kind() {
	case value.Int:
		return v.Int() == 0
	case value.Long:
		return v.Long() == 0
	}
	return false
}

func load(f *Frame, in jvm.Insn) error {
	v := f.Local(in.Var)
	sort := jvm.LocalSort(in.Op)
	switch sort {
	case 'L':
		if v.IsReference() {
			f.Push(v)
			return nil
		}
		f.Push(value.UnknownObject(value.ObjectDesc))
		return nil
	}
	if v.Desc() != string(sort) {
		v = value.UnknownOf(string(sort))
	}
	f.Push(v)
	return nil
}

// arrayElementDesc gives the result kind of iaload through saload.
var arrayElementDesc = [...]string{"I", "J", "F", "D", "", "B", "C", "S"}

func arrayLoad(f *Frame, in jvm.Insn, eff *Effect) error {
	vals, err := f.PopN(2)
	if err != nil {
		return err
	}
	arr, idx := vals[0], vals[1]
	eff.Throws = !inBounds(arr, idx)
	if eff.Throws {
		f.Push(elementUnknown(in.Op, arr))
		return nil
	}
	if elems := arr.Elements(); elems != nil {
		f.Push(elems[idx.Int()])
		return nil
	}
	f.Push(elementUnknown(in.Op, arr))
	return nil
}

func elementUnknown(op jvm.Opcode, arr value.Value) value.Value {
	if op == jvm.AALOAD {
		if d := arr.Desc(); len(d) > 1 && d[0] == '[' {
			return value.UnknownOf(d[1:])
		}
		return value.UnknownObject(value.ObjectDesc)
	}
	return value.UnknownOf(arrayElementDesc[op-jvm.IALOAD])
}

func inBounds(arr, idx value.Value) bool {
	n, ok := arr.Len()
	if !ok || !arr.IsNonNull() || idx.Kind() != value.Int || !idx.IsKnown() {
		return false
	}
	return idx.Int() >= 0 && idx.Int() < n
}

func arrayStore(f *Frame, in jvm.Insn, eff *Effect) error {
	vals, err := f.PopN(3)
	if err != nil {
		return err
	}
	arr, idx, v := vals[0], vals[1], vals[2]
	ok := inBounds(arr, idx)
	eff.Throws = !ok || (in.Op == jvm.AASTORE && !v.IsNull())
	if arr.Kind() != value.Array || arr.Ref() == 0 {
		f.clobberArrays()
		return nil
	}
	if !ok || arr.Elements() == nil {
		f.replaceArray(arr.Ref(), arr.WithoutContents())
		return nil
	}
	f.replaceArray(arr.Ref(), arr.WithElement(idx.Int(), storedElement(in.Op, arr.Desc(), v)))
	return nil
}

// storedElement applies the implicit narrowing of bastore, castore and
// sastore.
func storedElement(op jvm.Opcode, desc string, v value.Value) value.Value {
	if v.Kind() != value.Int || !v.IsKnown() {
		if op == jvm.AASTORE {
			return v.WithoutIdentity()
		}
		return v
	}
	switch op {
	case jvm.BASTORE:
		if desc == "[Z" {
			return value.KnownInt(v.Int() & 1)
		}
		return value.KnownInt(int32(int8(v.Int())))
	case jvm.CASTORE:
		return value.KnownInt(int32(uint16(v.Int())))
	case jvm.SASTORE:
		return value.KnownInt(int32(int16(v.Int())))
	}
	return v
}

func newArray(f *Frame, index int, desc string, eff *Effect) error {
	n, err := f.Pop()
	if err != nil {
		return err
	}
	f.forgetArray(index + 1)
	if n.Kind() == value.Int && n.IsKnown() && n.Int() >= 0 {
		eff.Throws = false
		f.Push(value.NewArray(desc, n.Int(), index+1))
		return nil
	}
	f.Push(value.NewArray(desc, -1, index+1))
	return nil
}

func (it *Interpreter) invoke(f *Frame, index int, in jvm.Insn, eff *Effect) error {
	args, ret, err := jvm.ParseMethodDesc(in.Desc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadStackShape, err)
	}
	n := len(args)
	hasReceiver := in.Op != jvm.INVOKESTATIC && in.Op != jvm.INVOKEDYNAMIC
	if hasReceiver {
		n++
	}
	vals, err := f.PopN(n)
	if err != nil {
		return err
	}
	for i, a := range args {
		v := vals[i+btoi(hasReceiver)]
		if v.Size() != a.Size() {
			return fmt.Errorf("%w: argument %d of %s.%s%s", ErrBadStackShape, i, in.Owner, in.Name, in.Desc)
		}
	}
	res, pure, ok := it.evaluate(index, in, vals)
	eff.Throws = !ok
	if !pure {
		f.clobberArrays()
	}
	if ret.Sort == jvm.SortVoid {
		return nil
	}
	if !ok {
		res = value.UnknownOf(ret.Desc)
	}
	if res.Kind() == value.Array && res.Ref() == index+1 {
		f.forgetArray(index + 1)
	}
	f.Push(res)
	return nil
}

// evaluate runs an allow-listed call. pure reports that the callee is on
// the allow-list; ok that it was evaluated without throwing.
func (it *Interpreter) evaluate(index int, in jvm.Insn, args []value.Value) (res value.Value, pure, ok bool) {
	if in.Op == jvm.INVOKEDYNAMIC {
		return value.Top(), false, false
	}
	fn, found := it.Calls.Lookup(in.Owner, in.Name, in.Desc)
	if !found {
		return value.Top(), false, false
	}
	for _, a := range args {
		if !a.IsKnown() {
			return value.Top(), true, false
		}
	}
	res, err := fn(args)
	if err != nil {
		return value.Top(), true, false
	}
	if lookup.Key(in.Owner, in.Name, in.Desc) == lookup.ToCharArrayKey && res.Kind() == value.Array {
		// the new array takes the identity of this call site
		if elems := res.Elements(); elems != nil {
			res = value.KnownArray("[C", elems, index+1)
		} else if n, known := res.Len(); known {
			res = value.NewArray("[C", n, index+1).WithoutContents()
		}
	}
	return res, true, true
}

func compareInt(cond jvm.Opcode, a, b int32) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}

// sameRef decides reference equality when nullness settles it.
func sameRef(a, b value.Value) (same, ok bool) {
	switch {
	case a.IsNull() && b.IsNull():
		return true, true
	case a.IsNull() && b.IsNonNull(), a.IsNonNull() && b.IsNull():
		return false, true
	}
	return false, false
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
