package analysis

import (
	"errors"
	"fmt"

	"deobf/internal/jvm"
)

// ErrAnalysis is the root of every failure that aborts a method's analysis.
var ErrAnalysis = errors.New("analysis: failure")

var (
	ErrStackUnderflow    = fmt.Errorf("%w: stack underflow", ErrAnalysis)
	ErrUnresolvableMerge = fmt.Errorf("%w: unresolvable frame merge", ErrAnalysis)
	ErrBadStackShape     = fmt.Errorf("%w: bad stack shape", ErrAnalysis)
	ErrUnsupported       = fmt.Errorf("%w: unsupported instruction", ErrAnalysis)
	ErrFallOff           = fmt.Errorf("%w: execution falls off the end of the code", ErrAnalysis)
	ErrNoConvergence     = fmt.Errorf("%w: no fixpoint within the step limit", ErrAnalysis)
)

// Error locates an analysis failure.
type Error struct {
	Index int
	Op    jvm.Opcode
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("insn %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(index int, op jvm.Opcode, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Index: index, Op: op, Err: err}
}
