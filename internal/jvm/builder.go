package jvm

// Builder assembles Code fluently.
//
//	code := jvm.NewBuilder().
//		Op(jvm.ICONST_1).Op(jvm.ICONST_1).Op(jvm.IADD).Op(jvm.IRETURN).
//		Build()
type Builder struct {
	code Code
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder { return &Builder{} }

// Insn appends raw instructions.
func (b *Builder) Insn(ins ...Insn) *Builder {
	b.code.Insns = append(b.code.Insns, ins...)
	return b
}

// Op appends zero-operand instructions.
func (b *Builder) Op(ops ...Opcode) *Builder {
	for _, op := range ops {
		b.code.Insns = append(b.code.Insns, Op(op))
	}
	return b
}

// Label appends a label.
func (b *Builder) Label(id LabelID) *Builder { return b.Insn(Label(id)) }

// Int appends bipush, sipush or newarray.
func (b *Builder) Int(op Opcode, v int32) *Builder { return b.Insn(IntInsn(op, v)) }

// Push appends the shortest int push of v.
func (b *Builder) Push(v int32) *Builder { return b.Insn(PushInt(v)) }

// Var appends a local variable instruction.
func (b *Builder) Var(op Opcode, slot int) *Builder { return b.Insn(VarInsn(op, slot)) }

// Iinc appends an iinc.
func (b *Builder) Iinc(slot int, delta int32) *Builder { return b.Insn(Iinc(slot, delta)) }

// Jump appends a branch.
func (b *Builder) Jump(op Opcode, target LabelID) *Builder { return b.Insn(Jump(op, target)) }

// Field appends a field access.
func (b *Builder) Field(op Opcode, owner, name, desc string) *Builder {
	return b.Insn(FieldInsn(op, owner, name, desc))
}

// Invoke appends a method invocation.
func (b *Builder) Invoke(op Opcode, owner, name, desc string) *Builder {
	return b.Insn(MethodInsn(op, owner, name, desc))
}

// Type appends a type instruction.
func (b *Builder) Type(op Opcode, desc string) *Builder { return b.Insn(TypeInsn(op, desc)) }

// LdcString appends an ldc of a string.
func (b *Builder) LdcString(s string) *Builder { return b.Insn(PushString(s)) }

// LdcLong appends an ldc2_w of a long.
func (b *Builder) LdcLong(v int64) *Builder { return b.Insn(Ldc(Constant{Kind: ConstLong, Long: v})) }

// LdcFloat appends an ldc of a float.
func (b *Builder) LdcFloat(v float32) *Builder {
	return b.Insn(Ldc(Constant{Kind: ConstFloat, Float: v}))
}

// LdcDouble appends an ldc2_w of a double.
func (b *Builder) LdcDouble(v float64) *Builder {
	return b.Insn(Ldc(Constant{Kind: ConstDouble, Double: v}))
}

// TableSwitch appends a tableswitch.
func (b *Builder) TableSwitch(min int32, dflt LabelID, labels ...LabelID) *Builder {
	return b.Insn(TableSwitch(min, dflt, labels...))
}

// LookupSwitch appends a lookupswitch.
func (b *Builder) LookupSwitch(dflt LabelID, keys []int32, labels []LabelID) *Builder {
	return b.Insn(LookupSwitch(dflt, keys, labels))
}

// Try appends an exception table entry.
func (b *Builder) Try(start, end, handler LabelID, typ string) *Builder {
	b.code.TryCatches = append(b.code.TryCatches, TryCatch{Start: start, End: end, Handler: handler, Type: typ})
	return b
}

// Build returns the assembled code. The builder must not be reused.
func (b *Builder) Build() *Code {
	c := b.code
	return &c
}
