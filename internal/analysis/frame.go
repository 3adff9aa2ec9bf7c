// Package analysis simulates JVM methods over the abstract value lattice.
//
// An Interpreter steps one instruction at a time. An Analyzer runs the
// interpreter to a fixpoint over the method's basic blocks, following
// branch, switch and exception edges, and returns a FrameMap holding the
// frame before every reachable instruction.
package analysis

import (
	"fmt"
	"strings"

	"deobf/internal/value"
)

// Frame is the abstract machine state at one program point.
//
// Locals are indexed by slot. A category-2 value occupies its slot and the
// following one, which holds Top. The stack holds one entry per value, so a
// long is one entry of two words.
type Frame struct {
	Locals []value.Value
	Stack  []value.Value
}

// NewFrame returns a frame with maxLocals Top locals and an empty stack.
func NewFrame(maxLocals int) *Frame {
	return &Frame{Locals: make([]value.Value, maxLocals)}
}

// Clone returns an independent copy. Values are immutable and shared.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Locals: append([]value.Value(nil), f.Locals...),
		Stack:  append([]value.Value(nil), f.Stack...),
	}
}

// Local returns the value in slot i, Top when out of range.
func (f *Frame) Local(i int) value.Value {
	if i < 0 || i >= len(f.Locals) {
		return value.Top()
	}
	return f.Locals[i]
}

// SetLocal stores v in slot i, growing the table if needed. A wide value
// claims slot i+1; overwriting half of a wide value invalidates it.
func (f *Frame) SetLocal(i int, v value.Value) {
	need := i + v.Size()
	for len(f.Locals) < need {
		f.Locals = append(f.Locals, value.Top())
	}
	if i > 0 && f.Locals[i-1].Size() == 2 {
		f.Locals[i-1] = value.Top()
	}
	f.Locals[i] = v
	if v.Size() == 2 {
		f.Locals[i+1] = value.Top()
	}
}

// Push pushes v.
func (f *Frame) Push(v value.Value) { f.Stack = append(f.Stack, v) }

// Pop removes and returns the top value.
func (f *Frame) Pop() (value.Value, error) {
	if len(f.Stack) == 0 {
		return value.Top(), ErrStackUnderflow
	}
	v := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return v, nil
}

// PopN removes n values and returns them bottom first.
func (f *Frame) PopN(n int) ([]value.Value, error) {
	if n > len(f.Stack) {
		return nil, ErrStackUnderflow
	}
	out := append([]value.Value(nil), f.Stack[len(f.Stack)-n:]...)
	f.Stack = f.Stack[:len(f.Stack)-n]
	return out, nil
}

// Peek returns the value n entries below the top; Peek(0) is the top.
func (f *Frame) Peek(n int) (value.Value, bool) {
	if n < 0 || n >= len(f.Stack) {
		return value.Top(), false
	}
	return f.Stack[len(f.Stack)-1-n], true
}

// Words returns the stack depth in words.
func (f *Frame) Words() int {
	n := 0
	for _, v := range f.Stack {
		n += v.Size()
	}
	return n
}

// popWords pops values until exactly n words are removed. Splitting a wide
// value is a stack shape error.
func (f *Frame) popWords(n int) ([]value.Value, error) {
	var out []value.Value
	words := 0
	for words < n {
		v, err := f.Pop()
		if err != nil {
			return nil, err
		}
		words += v.Size()
		out = append(out, v)
	}
	if words != n {
		return nil, fmt.Errorf("%w: %d-word group splits a wide value", ErrBadStackShape, n)
	}
	// reverse into bottom-first order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// shuffle implements the dup family: the top copy words are duplicated and the
// copy is inserted below the skip words under them.
func (f *Frame) shuffle(copyWords, skipWords int) error {
	top, err := f.popWords(copyWords)
	if err != nil {
		return err
	}
	skip, err := f.popWords(skipWords)
	if err != nil {
		return err
	}
	f.Stack = append(f.Stack, top...)
	f.Stack = append(f.Stack, skip...)
	f.Stack = append(f.Stack, top...)
	return nil
}

// replaceArray swaps every copy of the array with allocation identity ref.
func (f *Frame) replaceArray(ref int, v value.Value) {
	f.mapValues(func(x value.Value) value.Value {
		if x.Kind() == value.Array && x.Ref() == ref {
			return v
		}
		return x
	})
}

// forgetArray strips the identity of older arrays from an allocation site
// that is about to allocate again.
func (f *Frame) forgetArray(ref int) {
	f.mapValues(func(x value.Value) value.Value {
		if x.Kind() == value.Array && x.Ref() == ref {
			return x.WithoutIdentity()
		}
		return x
	})
}

// clobberArrays drops the contents of every array in the frame.
func (f *Frame) clobberArrays() {
	f.mapValues(func(x value.Value) value.Value {
		if x.Kind() == value.Array {
			return x.WithoutContents()
		}
		return x
	})
}

func (f *Frame) mapValues(fn func(value.Value) value.Value) {
	for i, v := range f.Locals {
		f.Locals[i] = fn(v)
	}
	for i, v := range f.Stack {
		f.Stack[i] = fn(v)
	}
}

// Merge joins two frames reaching the same instruction. Local tables of
// different lengths are padded with Top. Stacks must agree in height and in
// the width of every entry.
func Merge(a, b *Frame) (*Frame, error) {
	if len(a.Stack) != len(b.Stack) {
		return nil, fmt.Errorf("%w: stack heights %d and %d", ErrUnresolvableMerge, len(a.Stack), len(b.Stack))
	}
	out := &Frame{
		Locals: make([]value.Value, max(len(a.Locals), len(b.Locals))),
		Stack:  make([]value.Value, len(a.Stack)),
	}
	for i := range out.Locals {
		out.Locals[i] = value.Merge(a.Local(i), b.Local(i))
	}
	for i := range out.Stack {
		x, y := a.Stack[i], b.Stack[i]
		if x.Size() != y.Size() {
			return nil, fmt.Errorf("%w: stack entry %d is %s and %s", ErrUnresolvableMerge, i, x, y)
		}
		out.Stack[i] = value.Merge(x, y)
	}
	return out, nil
}

// Equal reports whether two frames hold equal values.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	if len(f.Stack) != len(o.Stack) || len(f.Locals) != len(o.Locals) {
		return false
	}
	for i := range f.Locals {
		if !value.Equal(f.Locals[i], o.Locals[i]) {
			return false
		}
	}
	for i := range f.Stack {
		if !value.Equal(f.Stack[i], o.Stack[i]) {
			return false
		}
	}
	return true
}

func (f *Frame) String() string {
	var sb strings.Builder
	sb.WriteString("locals=[")
	for i, v := range f.Locals {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteString("] stack=[")
	for i, v := range f.Stack {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteString("]")
	return sb.String()
}
