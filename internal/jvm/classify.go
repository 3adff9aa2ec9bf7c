package jvm

// IsJump reports whether op transfers control to Insn.Target.
func IsJump(op Opcode) bool {
	return (op >= IFEQ && op <= JSR) || op == IFNULL || op == IFNONNULL
}

// IsConditional reports whether op is a two-way branch.
func IsConditional(op Opcode) bool {
	return (op >= IFEQ && op <= IF_ACMPNE) || op == IFNULL || op == IFNONNULL
}

// IsSwitch reports whether op is a table or lookup switch.
func IsSwitch(op Opcode) bool { return op == TABLESWITCH || op == LOOKUPSWITCH }

// IsReturn reports whether op returns from the method.
func IsReturn(op Opcode) bool { return op >= IRETURN && op <= RETURN }

// IsTerminal reports whether control never falls through op.
func IsTerminal(op Opcode) bool {
	return op == GOTO || op == ATHROW || op == RET || IsReturn(op) || IsSwitch(op)
}

// IsLoad reports whether op reads a local variable.
func IsLoad(op Opcode) bool { return op >= ILOAD && op <= ALOAD }

// IsStore reports whether op writes a local variable.
func IsStore(op Opcode) bool { return op >= ISTORE && op <= ASTORE }

// IsArrayLoad reports whether op reads an array element.
func IsArrayLoad(op Opcode) bool { return op >= IALOAD && op <= SALOAD }

// IsArrayStore reports whether op writes an array element.
func IsArrayStore(op Opcode) bool { return op >= IASTORE && op <= SASTORE }

// IsInvoke reports whether op is a method invocation.
func IsInvoke(op Opcode) bool { return op >= INVOKEVIRTUAL && op <= INVOKEDYNAMIC }

// IsConstPush reports whether op pushes a constant without consuming anything.
func IsConstPush(op Opcode) bool { return op >= ACONST_NULL && op <= LDC2_W }

// IsWideOp reports whether a load, store or return op moves a
// category-2 value.
func IsWideOp(op Opcode) bool {
	switch op {
	case LLOAD, DLOAD, LSTORE, DSTORE, LRETURN, DRETURN:
		return true
	}
	return false
}

// LocalSort returns the descriptor character for the value moved by a load,
// store or iinc.
func LocalSort(op Opcode) byte {
	switch op {
	case ILOAD, ISTORE, IINC:
		return 'I'
	case LLOAD, LSTORE:
		return 'J'
	case FLOAD, FSTORE:
		return 'F'
	case DLOAD, DSTORE:
		return 'D'
	}
	return 'L'
}

// MayThrow is the static classification of instructions that can raise an
// exception regardless of operand values. The interpreter refines it.
func MayThrow(op Opcode) bool {
	switch {
	case IsArrayLoad(op), IsArrayStore(op), IsInvoke(op):
		return true
	}
	switch op {
	case IDIV, LDIV, IREM, LREM,
		GETFIELD, PUTFIELD, GETSTATIC, PUTSTATIC,
		NEW, NEWARRAY, ANEWARRAY, MULTIANEWARRAY, ARRAYLENGTH,
		ATHROW, CHECKCAST, MONITORENTER, MONITOREXIT:
		return true
	}
	return false
}
