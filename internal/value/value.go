// Package value implements the abstract values tracked by the bytecode
// interpreter: known and unknown primitives, strings, objects, arrays, null
// and the uninitialized top element.
//
// Values are immutable. Every operation returns a fresh Value.
package value

import (
	"fmt"
	"math"
	"strings"

	"deobf/internal/jvm"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	Uninitialized Kind = iota
	Int
	Long
	Float
	Double
	Null
	String
	Object
	Array
)

var kindNames = [...]string{"uninitialized", "int", "long", "float", "double", "null", "string", "object", "array"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Descriptors used by the reference kinds.
const (
	ObjectDesc    = "Ljava/lang/Object;"
	StringDesc    = "Ljava/lang/String;"
	ThrowableDesc = "Ljava/lang/Throwable;"
)

// MaxTrackedLength caps the array lengths whose contents are modelled.
const MaxTrackedLength = 4096

// Value is one abstract stack or local slot.
//
// Int, Long, Float and Double are known when the payload in bits is exact.
// String values are always known; an unknown string is an Object with
// StringDesc. Array contents are known when elems is non-nil.
type Value struct {
	kind    Kind
	known   bool
	bits    uint64
	str     string
	desc    string
	elems   []Value
	length  int32
	ref     int
	nonNull bool
}

// Top returns the uninitialized value.
func Top() Value { return Value{} }

// UnknownInt returns an int of unknown value.
func UnknownInt() Value { return Value{kind: Int} }

// KnownInt returns the int v.
func KnownInt(v int32) Value { return Value{kind: Int, known: true, bits: uint64(uint32(v))} }

// UnknownLong returns a long of unknown value.
func UnknownLong() Value { return Value{kind: Long} }

// KnownLong returns the long v.
func KnownLong(v int64) Value { return Value{kind: Long, known: true, bits: uint64(v)} }

// UnknownFloat returns a float of unknown value.
func UnknownFloat() Value { return Value{kind: Float} }

// KnownFloat returns the float v.
func KnownFloat(v float32) Value {
	return Value{kind: Float, known: true, bits: uint64(math.Float32bits(v))}
}

// UnknownDouble returns a double of unknown value.
func UnknownDouble() Value { return Value{kind: Double} }

// KnownDouble returns the double v.
func KnownDouble(v float64) Value { return Value{kind: Double, known: true, bits: math.Float64bits(v)} }

// NullValue returns the null reference.
func NullValue() Value { return Value{kind: Null, known: true} }

// KnownString returns the non-null string s.
func KnownString(s string) Value {
	return Value{kind: String, known: true, str: s, desc: StringDesc, nonNull: true}
}

// UnknownObject returns a possibly-null reference of type desc.
func UnknownObject(desc string) Value {
	if strings.HasPrefix(desc, "[") {
		return UnknownArray(desc)
	}
	return Value{kind: Object, desc: desc}
}

// NonNullObject returns a reference of type desc known not to be null.
func NonNullObject(desc string) Value {
	v := UnknownObject(desc)
	v.nonNull = true
	return v
}

// UnknownArray returns a possibly-null array of unknown length and contents.
func UnknownArray(desc string) Value { return Value{kind: Array, desc: desc, length: -1} }

// NewArray returns a freshly allocated array of the given length filled with
// default values. Arrays longer than MaxTrackedLength keep their length but
// not their contents. ref identifies the allocation site.
func NewArray(desc string, length int32, ref int) Value {
	v := Value{kind: Array, desc: desc, length: length, ref: ref, nonNull: true}
	if length >= 0 && length <= MaxTrackedLength {
		zero := Zero(desc[1:])
		v.elems = make([]Value, length)
		for i := range v.elems {
			v.elems[i] = zero
		}
		v.known = true
	}
	return v
}

// KnownArray returns a non-null array with the given contents.
func KnownArray(desc string, elems []Value, ref int) Value {
	return Value{
		kind: Array, known: true, desc: desc, length: int32(len(elems)),
		elems: append([]Value(nil), elems...), ref: ref, nonNull: true,
	}
}

// UnknownOf returns the unknown value of a field descriptor.
func UnknownOf(desc string) Value {
	if desc == "" {
		return Top()
	}
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return UnknownInt()
	case 'J':
		return UnknownLong()
	case 'F':
		return UnknownFloat()
	case 'D':
		return UnknownDouble()
	case '[':
		return UnknownArray(desc)
	case 'L':
		return UnknownObject(desc)
	}
	return Top()
}

// Zero returns the default value of a field descriptor.
func Zero(desc string) Value {
	if desc == "" {
		return Top()
	}
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return KnownInt(0)
	case 'J':
		return KnownLong(0)
	case 'F':
		return KnownFloat(0)
	case 'D':
		return KnownDouble(0)
	}
	return NullValue()
}

// FromConstant converts an ldc operand.
func FromConstant(c *jvm.Constant) Value {
	switch c.Kind {
	case jvm.ConstInt:
		return KnownInt(c.Int)
	case jvm.ConstLong:
		return KnownLong(c.Long)
	case jvm.ConstFloat:
		return KnownFloat(c.Float)
	case jvm.ConstDouble:
		return KnownDouble(c.Double)
	case jvm.ConstString:
		return KnownString(c.String)
	}
	return NonNullObject("Ljava/lang/Class;")
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsKnown reports whether the exact runtime value is determined.
func (v Value) IsKnown() bool { return v.known }

// IsTop reports whether v is the uninitialized value.
func (v Value) IsTop() bool { return v.kind == Uninitialized }

// Size returns 2 for category-2 values and 1 otherwise.
func (v Value) Size() int {
	if v.kind == Long || v.kind == Double {
		return 2
	}
	return 1
}

// IsNumeric reports whether v is an int, long, float or double.
func (v Value) IsNumeric() bool { return v.kind >= Int && v.kind <= Double }

// IsReference reports whether v is null, a string, an object or an array.
func (v Value) IsReference() bool { return v.kind >= Null }

// Int returns the payload of a known int.
func (v Value) Int() int32 { return int32(uint32(v.bits)) }

// Long returns the payload of a known long.
func (v Value) Long() int64 { return int64(v.bits) }

// Float returns the payload of a known float.
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.bits)) }

// Double returns the payload of a known double.
func (v Value) Double() float64 { return math.Float64frombits(v.bits) }

// Str returns the payload of a known string.
func (v Value) Str() string { return v.str }

// Desc returns the descriptor of the value's static type.
func (v Value) Desc() string {
	switch v.kind {
	case Int:
		return "I"
	case Long:
		return "J"
	case Float:
		return "F"
	case Double:
		return "D"
	case Null:
		return ObjectDesc
	}
	return v.desc
}

// Len returns the array length when known.
func (v Value) Len() (int32, bool) {
	if v.kind != Array || v.length < 0 {
		return 0, false
	}
	return v.length, true
}

// Elements returns the known contents of an array, or nil.
func (v Value) Elements() []Value { return v.elems }

// Ref returns the allocation identity of an array, 0 when unknown.
func (v Value) Ref() int { return v.ref }

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool { return v.kind == Null }

// IsNonNull reports whether v is a reference known not to be null.
func (v Value) IsNonNull() bool { return v.nonNull }

// WithElement returns a copy of the array with element i replaced.
func (v Value) WithElement(i int32, e Value) Value {
	out := v
	out.elems = append([]Value(nil), v.elems...)
	out.elems[i] = e
	return out
}

// WithoutContents returns the array with its contents forgotten.
func (v Value) WithoutContents() Value {
	if v.kind != Array {
		return v
	}
	out := v
	out.elems = nil
	out.known = false
	return out
}

// WithoutIdentity returns the array with its contents and allocation
// identity forgotten.
func (v Value) WithoutIdentity() Value {
	out := v.WithoutContents()
	out.ref = 0
	return out
}

// WithType returns a reference narrowed to desc, as after a checkcast.
func (v Value) WithType(desc string) Value {
	switch v.kind {
	case Null, Uninitialized:
		return v
	case String:
		if desc == StringDesc || desc == ObjectDesc {
			return v
		}
	case Array:
		if desc == v.desc {
			return v
		}
	}
	out := UnknownObject(desc)
	out.nonNull = v.nonNull
	return out
}

// Equal reports structural equality. Floating point payloads compare by bits.
func Equal(a, b Value) bool {
	if a.kind != b.kind || a.known != b.known || a.nonNull != b.nonNull {
		return false
	}
	switch a.kind {
	case Int, Long, Float, Double:
		return !a.known || a.bits == b.bits
	case String:
		return a.str == b.str
	case Object:
		return a.desc == b.desc
	case Array:
		if a.desc != b.desc || a.length != b.length || a.ref != b.ref || (a.elems == nil) != (b.elems == nil) {
			return false
		}
		for i := range a.elems {
			if !Equal(a.elems[i], b.elems[i]) {
				return false
			}
		}
	}
	return true
}

// String renders the value for disassembly annotations.
func (v Value) String() string {
	switch v.kind {
	case Uninitialized:
		return "top"
	case Int, Long, Float, Double:
		if !v.known {
			return "?" + v.kind.String()
		}
		switch v.kind {
		case Int:
			return fmt.Sprintf("%d", v.Int())
		case Long:
			return fmt.Sprintf("%dL", v.Long())
		case Float:
			return fmt.Sprintf("%vF", v.Float())
		}
		return fmt.Sprintf("%vD", v.Double())
	case Null:
		return "null"
	case String:
		return fmt.Sprintf("%q", v.str)
	case Array:
		if v.elems != nil {
			parts := make([]string, len(v.elems))
			for i, e := range v.elems {
				parts[i] = e.String()
			}
			return v.desc + "{" + strings.Join(parts, ", ") + "}"
		}
		if v.length >= 0 {
			return fmt.Sprintf("%s[%d]", v.desc, v.length)
		}
	}
	return "?" + v.desc
}

// Instruction returns the instruction pushing a known int, long, float,
// double, string or null. ok is false for anything else.
func (v Value) Instruction() (jvm.Insn, bool) {
	if !v.known {
		return jvm.Insn{}, false
	}
	switch v.kind {
	case Int:
		return jvm.PushInt(v.Int()), true
	case Long:
		return jvm.PushLong(v.Long()), true
	case Float:
		return jvm.PushFloat(v.Float()), true
	case Double:
		return jvm.PushDouble(v.Double()), true
	case String:
		return jvm.PushString(v.str), true
	case Null:
		return jvm.Op(jvm.ACONST_NULL), true
	}
	return jvm.Insn{}, false
}
