package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// String operations evaluate java.lang.String methods on known operands.
// Indices and lengths are in UTF-16 code units. An operand that is not a
// known string or int yields an unknown result with no error; an operation
// that would throw at runtime fails with an ErrEvaluation error. Strings
// that are not valid UTF-8 count as unknown: their code units cannot be
// recovered, so nothing over them is folded.

// units is exact for valid UTF-8, which checkString guarantees.
func units(s string) []uint16 { return utf16.Encode([]rune(s)) }

// fromUnits fails on unpaired surrogates, which have no UTF-8 form.
func fromUnits(u []uint16) (string, error) {
	for i := 0; i < len(u); i++ {
		c := rune(u[i])
		switch {
		case utf16.IsSurrogate(c) && c < 0xdc00 && i+1 < len(u) && rune(u[i+1]) >= 0xdc00 && rune(u[i+1]) <= 0xdfff:
			i++
		case utf16.IsSurrogate(c):
			return "", ErrUnrepresentable
		}
	}
	return string(utf16.Decode(u)), nil
}

func isStringish(v Value) bool {
	return v.kind == String || v.kind == Null || (v.kind == Object && v.desc == StringDesc)
}

func checkString(v Value) (bool, error) {
	switch {
	case v.kind == Null:
		return false, ErrNullReference
	case v.kind == String:
		return utf8.ValidString(v.str), nil
	case isStringish(v):
		return false, nil
	}
	return false, fmt.Errorf("%w: %s is not a string", ErrInvalidOperand, v.kind)
}

func checkInt(v Value) (bool, error) {
	if v.kind != Int {
		return false, fmt.Errorf("%w: %s is not an int", ErrInvalidOperand, v.kind)
	}
	return v.known, nil
}

// Length evaluates s.length().
func Length(s Value) (Value, error) {
	ok, err := checkString(s)
	if err != nil || !ok {
		return UnknownInt(), err
	}
	return KnownInt(int32(len(units(s.str)))), nil
}

// CharAt evaluates s.charAt(i).
func CharAt(s, i Value) (Value, error) {
	ok, err := checkString(s)
	if err != nil || !ok {
		return UnknownInt(), err
	}
	if ok, err = checkInt(i); err != nil || !ok {
		return UnknownInt(), err
	}
	u := units(s.str)
	idx := i.Int()
	if idx < 0 || int(idx) >= len(u) {
		return UnknownInt(), ErrIndexOutOfBounds
	}
	return KnownInt(int32(u[idx])), nil
}

// Concat evaluates a.concat(b).
func Concat(a, b Value) (Value, error) {
	okA, err := checkString(a)
	if err != nil {
		return UnknownObject(StringDesc), err
	}
	okB, err := checkString(b)
	if err != nil || !okA || !okB {
		return NonNullObject(StringDesc), err
	}
	return KnownString(a.str + b.str), nil
}

// IndexOf evaluates s.indexOf(x) where x is a char code or a string.
func IndexOf(s, x Value) (Value, error) {
	ok, err := checkString(s)
	if err != nil || !ok {
		return UnknownInt(), err
	}
	if x.kind == Int {
		if !x.known {
			return UnknownInt(), nil
		}
		u := units(s.str)
		for i, c := range u {
			if int32(c) == x.Int() {
				return KnownInt(int32(i)), nil
			}
		}
		// Supplementary code points never match a single unit.
		return KnownInt(-1), nil
	}
	ok, err = checkString(x)
	if err != nil || !ok {
		return UnknownInt(), err
	}
	hay, needle := units(s.str), units(x.str)
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j := range needle {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return KnownInt(int32(i)), nil
		}
	}
	return KnownInt(-1), nil
}

// Substring evaluates s.substring(begin) or s.substring(begin, end). Pass
// Top() as end for the one-argument form.
func Substring(s, begin, end Value) (Value, error) {
	ok, err := checkString(s)
	if err != nil || !ok {
		return NonNullObject(StringDesc), err
	}
	if ok, err = checkInt(begin); err != nil || !ok {
		return NonNullObject(StringDesc), err
	}
	u := units(s.str)
	e := int32(len(u))
	if !end.IsTop() {
		if ok, err = checkInt(end); err != nil || !ok {
			return NonNullObject(StringDesc), err
		}
		e = end.Int()
	}
	b := begin.Int()
	if b < 0 || e > int32(len(u)) || b > e {
		return NonNullObject(StringDesc), ErrIndexOutOfBounds
	}
	out, err := fromUnits(u[b:e])
	if err != nil {
		return NonNullObject(StringDesc), err
	}
	return KnownString(out), nil
}

// ToCharArray evaluates s.toCharArray(). ref is the allocation identity of
// the new array.
func ToCharArray(s Value, ref int) (Value, error) {
	ok, err := checkString(s)
	if err != nil || !ok {
		out := UnknownArray("[C")
		out.nonNull = err == nil
		return out, err
	}
	u := units(s.str)
	if len(u) > MaxTrackedLength {
		return NewArray("[C", int32(len(u)), ref).WithoutContents(), nil
	}
	elems := make([]Value, len(u))
	for i, c := range u {
		elems[i] = KnownInt(int32(c))
	}
	return KnownArray("[C", elems, ref), nil
}

// IsEmpty evaluates s.isEmpty() as a 0/1 int.
func IsEmpty(s Value) (Value, error) {
	ok, err := checkString(s)
	if err != nil || !ok {
		return UnknownInt(), err
	}
	return boolInt(s.str == ""), nil
}

// StringEquals evaluates s.equals(o) as a 0/1 int.
func StringEquals(s, o Value) (Value, error) {
	ok, err := checkString(s)
	if err != nil || !ok {
		return UnknownInt(), err
	}
	switch o.kind {
	case Null:
		return KnownInt(0), nil
	case String:
		return boolInt(s.str == o.str), nil
	case Int, Long, Float, Double:
		return UnknownInt(), fmt.Errorf("%w: equals on %s", ErrInvalidOperand, o.kind)
	}
	return UnknownInt(), nil
}

// HashCode evaluates s.hashCode().
func HashCode(s Value) (Value, error) {
	ok, err := checkString(s)
	if err != nil || !ok {
		return UnknownInt(), err
	}
	var h int32
	for _, c := range units(s.str) {
		h = 31*h + int32(c)
	}
	return KnownInt(h), nil
}

// ValueOf evaluates String.valueOf for a primitive. sort is the descriptor
// character of the parameter (Z, C, I, J, F or D). Floating point values are
// only rendered where the decimal form is unambiguous.
func ValueOf(v Value, sort byte) (Value, error) {
	if !v.IsNumeric() {
		if v.kind == String {
			return v, nil
		}
		return NonNullObject(StringDesc), nil
	}
	if !v.known {
		return NonNullObject(StringDesc), nil
	}
	switch sort {
	case 'Z':
		if v.Int() != 0 {
			return KnownString("true"), nil
		}
		return KnownString("false"), nil
	case 'C':
		s, err := fromUnits([]uint16{uint16(v.Int())})
		if err != nil {
			return NonNullObject(StringDesc), err
		}
		return KnownString(s), nil
	case 'I', 'B', 'S':
		return KnownString(strconv.FormatInt(int64(v.Int()), 10)), nil
	case 'J':
		return KnownString(strconv.FormatInt(v.Long(), 10)), nil
	case 'F':
		s, err := javaDecimal(float64(v.Float()), 32)
		if err != nil {
			return NonNullObject(StringDesc), err
		}
		return KnownString(s), nil
	case 'D':
		s, err := javaDecimal(v.Double(), 64)
		if err != nil {
			return NonNullObject(StringDesc), err
		}
		return KnownString(s), nil
	}
	return NonNullObject(StringDesc), fmt.Errorf("%w: valueOf(%c)", ErrInvalidOperand, sort)
}

// javaDecimal renders d the way Double.toString and Float.toString do for
// magnitudes in [1e-2, 1e7) with a short mantissa, and for the special
// values. Scientific notation is not reproduced.
func javaDecimal(d float64, bits int) (string, error) {
	switch {
	case math.IsNaN(d):
		return "NaN", nil
	case math.IsInf(d, 1):
		return "Infinity", nil
	case math.IsInf(d, -1):
		return "-Infinity", nil
	case d == 0:
		if math.Signbit(d) {
			return "-0.0", nil
		}
		return "0.0", nil
	}
	if a := math.Abs(d); a < 1e-2 || a >= 1e7 {
		return "", ErrUnrepresentable
	}
	// older JDKs print some values with a trailing digit the shortest form
	// lacks; keep to short mantissas where every release agrees
	e := strconv.FormatFloat(d, 'e', -1, bits)
	mant := strings.TrimLeft(e[:strings.IndexByte(e, 'e')], "-")
	if digits := len(strings.Replace(mant, ".", "", 1)); digits > maxDigits(bits) {
		return "", ErrUnrepresentable
	}
	s := strconv.FormatFloat(d, 'f', -1, bits)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s, nil
}

func maxDigits(bits int) int {
	if bits == 32 {
		return 6
	}
	return 15
}

func boolInt(b bool) Value {
	if b {
		return KnownInt(1)
	}
	return KnownInt(0)
}
