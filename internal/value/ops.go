package value

import (
	"errors"
	"fmt"
	"math"
)

// ErrEvaluation is the root of every failed constant evaluation. A failed
// evaluation means the fold is skipped, not that analysis stops.
var ErrEvaluation = errors.New("value: evaluation failure")

var (
	ErrDivisionByZero   = fmt.Errorf("%w: division by zero", ErrEvaluation)
	ErrInvalidOperand   = fmt.Errorf("%w: invalid operand", ErrEvaluation)
	ErrIndexOutOfBounds = fmt.Errorf("%w: index out of bounds", ErrEvaluation)
	ErrNullReference    = fmt.Errorf("%w: null reference", ErrEvaluation)
	ErrUnrepresentable  = fmt.Errorf("%w: result not representable", ErrEvaluation)
)

// Widest picks the wider numeric kind using int < long < float < double.
func Widest(a, b Kind) Kind {
	if a > b {
		return a
	}
	return b
}

func unknownOfKind(k Kind) Value {
	switch k {
	case Long:
		return UnknownLong()
	case Float:
		return UnknownFloat()
	case Double:
		return UnknownDouble()
	}
	return UnknownInt()
}

// widen converts a known numeric value to a kind at least as wide.
func widen(v Value, k Kind) Value {
	if v.kind == k {
		return v
	}
	switch k {
	case Long:
		return KnownLong(int64(v.Int()))
	case Float:
		if v.kind == Long {
			return KnownFloat(float32(v.Long()))
		}
		return KnownFloat(float32(v.Int()))
	case Double:
		switch v.kind {
		case Long:
			return KnownDouble(float64(v.Long()))
		case Float:
			return KnownDouble(float64(v.Float()))
		}
		return KnownDouble(float64(v.Int()))
	}
	return v
}

type binop int

const (
	opAdd binop = iota
	opSub
	opMul
	opDiv
	opRem
	opAnd
	opOr
	opXor
)

func (op binop) bitwise() bool { return op >= opAnd }

func arith(op binop, a, b Value) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return Top(), fmt.Errorf("%w: %s and %s", ErrInvalidOperand, a.kind, b.kind)
	}
	k := Widest(a.kind, b.kind)
	if op.bitwise() && k > Long {
		return Top(), fmt.Errorf("%w: bitwise op on %s", ErrInvalidOperand, k)
	}
	if (op == opDiv || op == opRem) && k <= Long && b.known {
		if (b.kind == Int && b.Int() == 0) || (b.kind == Long && b.Long() == 0) {
			return unknownOfKind(k), ErrDivisionByZero
		}
	}
	if !a.known || !b.known {
		return unknownOfKind(k), nil
	}
	a, b = widen(a, k), widen(b, k)
	switch k {
	case Int:
		x, y := a.Int(), b.Int()
		switch op {
		case opAdd:
			return KnownInt(x + y), nil
		case opSub:
			return KnownInt(x - y), nil
		case opMul:
			return KnownInt(x * y), nil
		case opDiv:
			return KnownInt(x / y), nil
		case opRem:
			return KnownInt(x % y), nil
		case opAnd:
			return KnownInt(x & y), nil
		case opOr:
			return KnownInt(x | y), nil
		case opXor:
			return KnownInt(x ^ y), nil
		}
	case Long:
		x, y := a.Long(), b.Long()
		switch op {
		case opAdd:
			return KnownLong(x + y), nil
		case opSub:
			return KnownLong(x - y), nil
		case opMul:
			return KnownLong(x * y), nil
		case opDiv:
			return KnownLong(x / y), nil
		case opRem:
			return KnownLong(x % y), nil
		case opAnd:
			return KnownLong(x & y), nil
		case opOr:
			return KnownLong(x | y), nil
		case opXor:
			return KnownLong(x ^ y), nil
		}
	case Float:
		x, y := a.Float(), b.Float()
		switch op {
		case opAdd:
			return KnownFloat(x + y), nil
		case opSub:
			return KnownFloat(x - y), nil
		case opMul:
			return KnownFloat(x * y), nil
		case opDiv:
			return KnownFloat(x / y), nil
		case opRem:
			return KnownFloat(float32(math.Mod(float64(x), float64(y)))), nil
		}
	case Double:
		x, y := a.Double(), b.Double()
		switch op {
		case opAdd:
			return KnownDouble(x + y), nil
		case opSub:
			return KnownDouble(x - y), nil
		case opMul:
			return KnownDouble(x * y), nil
		case opDiv:
			return KnownDouble(x / y), nil
		case opRem:
			return KnownDouble(math.Mod(x, y)), nil
		}
	}
	return Top(), fmt.Errorf("%w: unsupported operation", ErrInvalidOperand)
}

// Add returns a + b.
func Add(a, b Value) (Value, error) { return arith(opAdd, a, b) }

// Sub returns a - b.
func Sub(a, b Value) (Value, error) { return arith(opSub, a, b) }

// Mul returns a * b.
func Mul(a, b Value) (Value, error) { return arith(opMul, a, b) }

// Div returns a / b. Integer division by a known zero fails with
// ErrDivisionByZero; floating point division follows IEEE 754.
func Div(a, b Value) (Value, error) { return arith(opDiv, a, b) }

// Rem returns a % b with the sign of the dividend.
func Rem(a, b Value) (Value, error) { return arith(opRem, a, b) }

// And returns a & b.
func And(a, b Value) (Value, error) { return arith(opAnd, a, b) }

// Or returns a | b.
func Or(a, b Value) (Value, error) { return arith(opOr, a, b) }

// Xor returns a ^ b.
func Xor(a, b Value) (Value, error) { return arith(opXor, a, b) }

// Neg returns -a.
func Neg(a Value) (Value, error) {
	if !a.IsNumeric() {
		return Top(), fmt.Errorf("%w: negate %s", ErrInvalidOperand, a.kind)
	}
	if !a.known {
		return unknownOfKind(a.kind), nil
	}
	switch a.kind {
	case Int:
		return KnownInt(-a.Int()), nil
	case Long:
		return KnownLong(-a.Long()), nil
	case Float:
		return KnownFloat(-a.Float()), nil
	}
	return KnownDouble(-a.Double()), nil
}

type shiftop int

const (
	shiftLeft shiftop = iota
	shiftRight
	shiftRightUnsigned
)

// shift keeps the kind of the shifted value; the distance is masked to 5
// bits for ints and 6 bits for longs.
func shift(op shiftop, a, dist Value) (Value, error) {
	if (a.kind != Int && a.kind != Long) || dist.kind != Int {
		return Top(), fmt.Errorf("%w: shift %s by %s", ErrInvalidOperand, a.kind, dist.kind)
	}
	if !a.known || !dist.known {
		return unknownOfKind(a.kind), nil
	}
	if a.kind == Int {
		x, s := a.Int(), uint(dist.Int())&31
		switch op {
		case shiftLeft:
			return KnownInt(x << s), nil
		case shiftRight:
			return KnownInt(x >> s), nil
		}
		return KnownInt(int32(uint32(x) >> s)), nil
	}
	x, s := a.Long(), uint(dist.Int())&63
	switch op {
	case shiftLeft:
		return KnownLong(x << s), nil
	case shiftRight:
		return KnownLong(x >> s), nil
	}
	return KnownLong(int64(uint64(x) >> s)), nil
}

// ShiftLeft returns a << dist.
func ShiftLeft(a, dist Value) (Value, error) { return shift(shiftLeft, a, dist) }

// ShiftRight returns a >> dist, sign extending.
func ShiftRight(a, dist Value) (Value, error) { return shift(shiftRight, a, dist) }

// ShiftRightUnsigned returns a >>> dist, zero extending.
func ShiftRightUnsigned(a, dist Value) (Value, error) { return shift(shiftRightUnsigned, a, dist) }

// Compare returns -1, 0 or 1 as an int. nanResult is the answer when either
// floating point operand is NaN: -1 for fcmpl/dcmpl, 1 for fcmpg/dcmpg.
func Compare(a, b Value, nanResult int32) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return Top(), fmt.Errorf("%w: compare %s and %s", ErrInvalidOperand, a.kind, b.kind)
	}
	if !a.known || !b.known {
		return UnknownInt(), nil
	}
	k := Widest(a.kind, b.kind)
	a, b = widen(a, k), widen(b, k)
	var x, y float64
	switch k {
	case Int:
		return KnownInt(cmp3(int64(a.Int()), int64(b.Int()))), nil
	case Long:
		return KnownInt(cmp3(a.Long(), b.Long())), nil
	case Float:
		x, y = float64(a.Float()), float64(b.Float())
	default:
		x, y = a.Double(), b.Double()
	}
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return KnownInt(nanResult), nil
	case x < y:
		return KnownInt(-1), nil
	case x > y:
		return KnownInt(1), nil
	}
	return KnownInt(0), nil
}

func cmp3(x, y int64) int32 {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// Convert applies a primitive conversion. target is one of the descriptor
// characters I, J, F, D, B, C, S. Float to integer conversions saturate and
// map NaN to zero.
func Convert(v Value, target byte) (Value, error) {
	if !v.IsNumeric() {
		return Top(), fmt.Errorf("%w: convert %s", ErrInvalidOperand, v.kind)
	}
	switch target {
	case 'B', 'C', 'S':
		if v.kind != Int {
			return Top(), fmt.Errorf("%w: narrow %s to %c", ErrInvalidOperand, v.kind, target)
		}
		if !v.known {
			return UnknownInt(), nil
		}
		switch target {
		case 'B':
			return KnownInt(int32(int8(v.Int()))), nil
		case 'C':
			return KnownInt(int32(uint16(v.Int()))), nil
		}
		return KnownInt(int32(int16(v.Int()))), nil
	case 'I', 'J', 'F', 'D':
	default:
		return Top(), fmt.Errorf("%w: convert to %c", ErrInvalidOperand, target)
	}
	if !v.known {
		return UnknownOf(string(target)), nil
	}
	switch v.kind {
	case Int:
		switch target {
		case 'I':
			return v, nil
		case 'J':
			return KnownLong(int64(v.Int())), nil
		case 'F':
			return KnownFloat(float32(v.Int())), nil
		}
		return KnownDouble(float64(v.Int())), nil
	case Long:
		switch target {
		case 'I':
			return KnownInt(int32(v.Long())), nil
		case 'J':
			return v, nil
		case 'F':
			return KnownFloat(float32(v.Long())), nil
		}
		return KnownDouble(float64(v.Long())), nil
	case Float:
		f := float64(v.Float())
		switch target {
		case 'I':
			return KnownInt(toInt32(f)), nil
		case 'J':
			return KnownLong(toInt64(f)), nil
		case 'F':
			return v, nil
		}
		return KnownDouble(f), nil
	}
	d := v.Double()
	switch target {
	case 'I':
		return KnownInt(toInt32(d)), nil
	case 'J':
		return KnownLong(toInt64(d)), nil
	case 'F':
		return KnownFloat(float32(d)), nil
	}
	return v, nil
}

func toInt32(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func toInt64(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}
