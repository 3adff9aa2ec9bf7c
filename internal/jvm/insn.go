package jvm

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed reports structurally invalid input.
var ErrMalformed = errors.New("jvm: malformed input")

// LabelID identifies a label within one method's code.
type LabelID int

// ConstKind tags the payload of a Constant.
type ConstKind string

const (
	ConstInt    ConstKind = "int"
	ConstLong   ConstKind = "long"
	ConstFloat  ConstKind = "float"
	ConstDouble ConstKind = "double"
	ConstString ConstKind = "string"
	ConstType   ConstKind = "type" // class literal; payload in String
)

// Constant is an ldc operand or a field ConstantValue.
type Constant struct {
	Kind   ConstKind `json:"kind"`
	Int    int32     `json:"int,omitempty"`
	Long   int64     `json:"long,omitempty"`
	Float  float32   `json:"float,omitempty"`
	Double float64   `json:"double,omitempty"`
	String string    `json:"string,omitempty"`
}

// Equal compares constants bitwise for floating point kinds.
func (c *Constant) Equal(o *Constant) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstInt:
		return c.Int == o.Int
	case ConstLong:
		return c.Long == o.Long
	case ConstFloat:
		return math.Float32bits(c.Float) == math.Float32bits(o.Float)
	case ConstDouble:
		return math.Float64bits(c.Double) == math.Float64bits(o.Double)
	default:
		return c.String == o.String
	}
}

// Text renders the constant as it appears in disassembly.
func (c *Constant) Text() string {
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstLong:
		return fmt.Sprintf("%dL", c.Long)
	case ConstFloat:
		return fmt.Sprintf("%vF", c.Float)
	case ConstDouble:
		return fmt.Sprintf("%vD", c.Double)
	case ConstString:
		return fmt.Sprintf("%q", c.String)
	default:
		return "L" + c.String + ";"
	}
}

// Switch holds tableswitch and lookupswitch operands. A tableswitch has
// contiguous keys starting at Min; a lookupswitch lists Keys explicitly.
type Switch struct {
	Min     int32     `json:"min,omitempty"`
	Keys    []int32   `json:"keys,omitempty"`
	Labels  []LabelID `json:"labels"`
	Default LabelID   `json:"default"`
}

// Target resolves the label selected by key.
func (s *Switch) Target(op Opcode, key int32) LabelID {
	if op == TABLESWITCH {
		if idx := int64(key) - int64(s.Min); idx >= 0 && idx < int64(len(s.Labels)) {
			return s.Labels[idx]
		}
		return s.Default
	}
	for i, k := range s.Keys {
		if k == key && i < len(s.Labels) {
			return s.Labels[i]
		}
	}
	return s.Default
}

// Insn is one instruction. Only the fields relevant to Op are set.
type Insn struct {
	Op     Opcode    `json:"op"`
	Int    int32     `json:"int,omitempty"`
	Var    int       `json:"var,omitempty"`
	Target LabelID   `json:"target,omitempty"`
	Label  LabelID   `json:"label,omitempty"`
	Owner  string    `json:"owner,omitempty"`
	Name   string    `json:"name,omitempty"`
	Desc   string    `json:"desc,omitempty"`
	Itf    bool      `json:"itf,omitempty"`
	Const  *Constant `json:"const,omitempty"`
	Switch *Switch   `json:"switch,omitempty"`
	Dims   int       `json:"dims,omitempty"`
}

// Clone deep-copies pointer operands.
func (in Insn) Clone() Insn {
	if in.Const != nil {
		c := *in.Const
		in.Const = &c
	}
	if in.Switch != nil {
		s := *in.Switch
		s.Keys = append([]int32(nil), s.Keys...)
		s.Labels = append([]LabelID(nil), s.Labels...)
		in.Switch = &s
	}
	return in
}

// Equal compares two instructions operand by operand.
func (in Insn) Equal(o Insn) bool {
	if in.Op != o.Op || in.Int != o.Int || in.Var != o.Var || in.Target != o.Target ||
		in.Label != o.Label || in.Owner != o.Owner || in.Name != o.Name || in.Desc != o.Desc ||
		in.Itf != o.Itf || in.Dims != o.Dims || !in.Const.Equal(o.Const) {
		return false
	}
	if (in.Switch == nil) != (o.Switch == nil) {
		return false
	}
	if in.Switch != nil {
		a, b := in.Switch, o.Switch
		if a.Min != b.Min || a.Default != b.Default || len(a.Keys) != len(b.Keys) || len(a.Labels) != len(b.Labels) {
			return false
		}
		for i := range a.Keys {
			if a.Keys[i] != b.Keys[i] {
				return false
			}
		}
		for i := range a.Labels {
			if a.Labels[i] != b.Labels[i] {
				return false
			}
		}
	}
	return true
}

// Labels returns every label the instruction jumps to.
func (in Insn) Labels() []LabelID {
	switch {
	case in.Op == TABLESWITCH || in.Op == LOOKUPSWITCH:
		if in.Switch == nil {
			return nil
		}
		out := make([]LabelID, 0, len(in.Switch.Labels)+1)
		out = append(out, in.Switch.Labels...)
		return append(out, in.Switch.Default)
	case IsJump(in.Op):
		return []LabelID{in.Target}
	}
	return nil
}

// Op builds a zero-operand instruction.
func Op(op Opcode) Insn { return Insn{Op: op} }

// Label builds a label pseudo instruction.
func Label(id LabelID) Insn { return Insn{Op: LABEL, Label: id} }

// IntInsn builds bipush, sipush and newarray.
func IntInsn(op Opcode, v int32) Insn { return Insn{Op: op, Int: v} }

// VarInsn builds a load, store or ret.
func VarInsn(op Opcode, slot int) Insn { return Insn{Op: op, Var: slot} }

// Jump builds a branch to target.
func Jump(op Opcode, target LabelID) Insn { return Insn{Op: op, Target: target} }

// Iinc builds an iinc.
func Iinc(slot int, delta int32) Insn { return Insn{Op: IINC, Var: slot, Int: delta} }

// FieldInsn builds a field access.
func FieldInsn(op Opcode, owner, name, desc string) Insn {
	return Insn{Op: op, Owner: owner, Name: name, Desc: desc}
}

// MethodInsn builds an invocation.
func MethodInsn(op Opcode, owner, name, desc string) Insn {
	return Insn{Op: op, Owner: owner, Name: name, Desc: desc, Itf: op == INVOKEINTERFACE}
}

// TypeInsn builds new, anewarray, checkcast and instanceof. desc is an
// internal name or array descriptor.
func TypeInsn(op Opcode, desc string) Insn { return Insn{Op: op, Desc: desc} }

// Ldc builds an ldc, choosing ldc2_w for wide constants.
func Ldc(c Constant) Insn {
	op := LDC
	if c.Kind == ConstLong || c.Kind == ConstDouble {
		op = LDC2_W
	}
	return Insn{Op: op, Const: &c}
}

// PushInt returns the shortest instruction pushing v.
func PushInt(v int32) Insn {
	switch {
	case v >= -1 && v <= 5:
		return Op(ICONST_0 + Opcode(v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return IntInsn(BIPUSH, v)
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return IntInsn(SIPUSH, v)
	}
	return Ldc(Constant{Kind: ConstInt, Int: v})
}

// PushLong returns the shortest instruction pushing v.
func PushLong(v int64) Insn {
	if v == 0 || v == 1 {
		return Op(LCONST_0 + Opcode(v))
	}
	return Ldc(Constant{Kind: ConstLong, Long: v})
}

// PushFloat returns the shortest instruction pushing v. Negative zero and
// NaN payloads always go through ldc.
func PushFloat(v float32) Insn {
	switch math.Float32bits(v) {
	case math.Float32bits(0):
		return Op(FCONST_0)
	case math.Float32bits(1):
		return Op(FCONST_1)
	case math.Float32bits(2):
		return Op(FCONST_2)
	}
	return Ldc(Constant{Kind: ConstFloat, Float: v})
}

// PushDouble returns the shortest instruction pushing v.
func PushDouble(v float64) Insn {
	switch math.Float64bits(v) {
	case math.Float64bits(0):
		return Op(DCONST_0)
	case math.Float64bits(1):
		return Op(DCONST_1)
	}
	return Ldc(Constant{Kind: ConstDouble, Double: v})
}

// PushString returns an ldc of s.
func PushString(s string) Insn { return Ldc(Constant{Kind: ConstString, String: s}) }

// TableSwitch builds a tableswitch over [min, min+len(labels)).
func TableSwitch(min int32, dflt LabelID, labels ...LabelID) Insn {
	return Insn{Op: TABLESWITCH, Switch: &Switch{Min: min, Labels: labels, Default: dflt}}
}

// LookupSwitch builds a lookupswitch. keys and labels pair up by index.
func LookupSwitch(dflt LabelID, keys []int32, labels []LabelID) Insn {
	return Insn{Op: LOOKUPSWITCH, Switch: &Switch{Keys: keys, Labels: labels, Default: dflt}}
}
