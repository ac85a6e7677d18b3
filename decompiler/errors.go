package decompiler

import (
	"errors"
	"fmt"
)

var (
	// ErrStackUnderflow is returned when an instruction pops more than the
	// simulated stack holds.
	ErrStackUnderflow = errors.New("stack underflow")

	// ErrInvalidStackAccess is returned for sub-element positions below 1 and
	// for offsets outside the simulated frame.
	ErrInvalidStackAccess = errors.New("invalid stack access")

	// ErrUnsupportedConstType is returned for constant type tags other than
	// int, float, string and object.
	ErrUnsupportedConstType = errors.New("unsupported constant type")

	// ErrAmbiguousControlFlow marks a jump whose break or continue role could
	// not be established. It is only ever reported as a diagnostic.
	ErrAmbiguousControlFlow = errors.New("ambiguous control flow")

	// ErrInternal wraps a panic raised while reconstructing a subroutine.
	ErrInternal = errors.New("internal decompiler error")
)

// DecompileError wraps a failure with the subroutine and byte offset at which
// reconstruction stopped.
type DecompileError struct {
	Subroutine string
	Offset     int
	Err        error
}

func (e *DecompileError) Error() string {
	if e.Subroutine == "" {
		return fmt.Sprintf("at %04X: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("%s at %04X: %v", e.Subroutine, e.Offset, e.Err)
}

func (e *DecompileError) Unwrap() error {
	return e.Err
}
