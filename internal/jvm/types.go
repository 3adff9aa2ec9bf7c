package jvm

import (
	"fmt"
	"strings"
)

// Sort classifies a field descriptor.
type Sort uint8

const (
	SortVoid Sort = iota
	SortBoolean
	SortChar
	SortByte
	SortShort
	SortInt
	SortFloat
	SortLong
	SortDouble
	SortArray
	SortObject
)

// Type is a parsed field or return descriptor.
type Type struct {
	Sort Sort
	Desc string
}

// Size is the number of stack words the type occupies.
func (t Type) Size() int {
	switch t.Sort {
	case SortVoid:
		return 0
	case SortLong, SortDouble:
		return 2
	}
	return 1
}

// IsPrimitive reports whether t is neither a reference nor void.
func (t Type) IsPrimitive() bool { return t.Sort >= SortBoolean && t.Sort <= SortDouble }

// ElementDesc returns the descriptor of one array dimension down.
func (t Type) ElementDesc() string {
	if t.Sort != SortArray {
		return ""
	}
	return t.Desc[1:]
}

// InternalName returns the class name of an object type, or the descriptor
// for arrays.
func (t Type) InternalName() string {
	if t.Sort == SortObject {
		return t.Desc[1 : len(t.Desc)-1]
	}
	return t.Desc
}

// ParseType parses a single field descriptor.
func ParseType(desc string) (Type, error) {
	t, n, err := parseOne(desc, 0)
	if err != nil {
		return Type{}, err
	}
	if n != len(desc) {
		return Type{}, fmt.Errorf("%w: trailing data in descriptor %q", ErrMalformed, desc)
	}
	return t, nil
}

// MustType parses desc and panics on failure. Intended for literals.
func MustType(desc string) Type {
	t, err := ParseType(desc)
	if err != nil {
		panic(err)
	}
	return t
}

func parseOne(desc string, i int) (Type, int, error) {
	if i >= len(desc) {
		return Type{}, i, fmt.Errorf("%w: truncated descriptor %q", ErrMalformed, desc)
	}
	start := i
	switch desc[i] {
	case 'V':
		return Type{SortVoid, "V"}, i + 1, nil
	case 'Z':
		return Type{SortBoolean, "Z"}, i + 1, nil
	case 'C':
		return Type{SortChar, "C"}, i + 1, nil
	case 'B':
		return Type{SortByte, "B"}, i + 1, nil
	case 'S':
		return Type{SortShort, "S"}, i + 1, nil
	case 'I':
		return Type{SortInt, "I"}, i + 1, nil
	case 'F':
		return Type{SortFloat, "F"}, i + 1, nil
	case 'J':
		return Type{SortLong, "J"}, i + 1, nil
	case 'D':
		return Type{SortDouble, "D"}, i + 1, nil
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end <= 1 {
			return Type{}, i, fmt.Errorf("%w: bad object descriptor %q", ErrMalformed, desc)
		}
		return Type{SortObject, desc[i : i+end+1]}, i + end + 1, nil
	case '[':
		for i < len(desc) && desc[i] == '[' {
			i++
		}
		elem, n, err := parseOne(desc, i)
		if err != nil {
			return Type{}, n, err
		}
		if elem.Sort == SortVoid {
			return Type{}, n, fmt.Errorf("%w: void array in %q", ErrMalformed, desc)
		}
		return Type{SortArray, desc[start:n]}, n, nil
	}
	return Type{}, i, fmt.Errorf("%w: bad descriptor char %q in %q", ErrMalformed, desc[i], desc)
}

// ParseMethodDesc splits a method descriptor into argument and return types.
func ParseMethodDesc(desc string) ([]Type, Type, error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, Type{}, fmt.Errorf("%w: bad method descriptor %q", ErrMalformed, desc)
	}
	var args []Type
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, n, err := parseOne(desc, i)
		if err != nil {
			return nil, Type{}, err
		}
		if t.Sort == SortVoid {
			return nil, Type{}, fmt.Errorf("%w: void argument in %q", ErrMalformed, desc)
		}
		args = append(args, t)
		i = n
	}
	if i >= len(desc) {
		return nil, Type{}, fmt.Errorf("%w: unterminated arguments in %q", ErrMalformed, desc)
	}
	ret, n, err := parseOne(desc, i+1)
	if err != nil {
		return nil, Type{}, err
	}
	if n != len(desc) {
		return nil, Type{}, fmt.Errorf("%w: trailing data in %q", ErrMalformed, desc)
	}
	return args, ret, nil
}

// ArgSlots returns the number of local slots taken by the arguments,
// excluding the receiver.
func ArgSlots(args []Type) int {
	n := 0
	for _, a := range args {
		n += a.Size()
	}
	return n
}

// ObjectDesc wraps an internal name as a descriptor. Array descriptors pass
// through unchanged.
func ObjectDesc(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}

// NewArrayDesc maps a NEWARRAY element code to its array descriptor.
func NewArrayDesc(code int32) (string, bool) {
	switch code {
	case T_BOOLEAN:
		return "[Z", true
	case T_CHAR:
		return "[C", true
	case T_FLOAT:
		return "[F", true
	case T_DOUBLE:
		return "[D", true
	case T_BYTE:
		return "[B", true
	case T_SHORT:
		return "[S", true
	case T_INT:
		return "[I", true
	case T_LONG:
		return "[J", true
	}
	return "", false
}
