package counter

import (
	"errors"
	"fmt"
)

// Code classifies the reason a counter-context or wire operation failed.
type Code int

const (
	_ Code = iota
	// CodeMalformedContext means a byte buffer's length is not a
	// multiple of the tuple step length.
	CodeMalformedContext
	// CodeBadResponseFrame means a ReadResponse's digest/data tag
	// disagreed with its size header.
	CodeBadResponseFrame
	// CodeUnsupportedBloomSize means the requested (k, m) pair, or the
	// element count/false-positive target it was derived from, cannot
	// be satisfied under the bitset size cap.
	CodeUnsupportedBloomSize
	// CodeDecode means an upstream byte-read failed while deserializing
	// a wire structure.
	CodeDecode
)

func (c Code) String() string {
	switch c {
	case CodeMalformedContext:
		return "malformed context"
	case CodeBadResponseFrame:
		return "bad response frame"
	case CodeUnsupportedBloomSize:
		return "unsupported bloom size"
	case CodeDecode:
		return "decode error"
	default:
		return "unknown"
	}
}

// sentinel errors, unexported, so callers use errors.Is against the
// exported constructors' results rather than comparing values directly.
var (
	errMalformedContext    = errors.New("counter: malformed context")
	errBadResponseFrame    = errors.New("counter: bad response frame")
	errUnsupportedBloomSize = errors.New("counter: unsupported bloom size")
	errDecode              = errors.New("counter: decode error")
)

// Error is a structured failure surfaced from the core counter-context,
// bloom, or wire packages. It carries a Code for programmatic dispatch
// and wraps the underlying cause, if any.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) sentinel() error {
	switch e.Code {
	case CodeMalformedContext:
		return errMalformedContext
	case CodeBadResponseFrame:
		return errBadResponseFrame
	case CodeUnsupportedBloomSize:
		return errUnsupportedBloomSize
	case CodeDecode:
		return errDecode
	default:
		return nil
	}
}

// Is lets errors.Is(err, ErrMalformedContext) succeed against any
// *Error carrying that code, regardless of Msg/Err.
func (e *Error) Is(target error) bool {
	return e.sentinel() == target
}

// ErrMalformedContext, ErrBadResponseFrame, ErrUnsupportedBloomSize and
// ErrDecode are the sentinels callers match on with errors.Is.
var (
	ErrMalformedContext     = errMalformedContext
	ErrBadResponseFrame     = errBadResponseFrame
	ErrUnsupportedBloomSize = errUnsupportedBloomSize
	ErrDecode               = errDecode
)

// NewMalformedContextError reports that a byte buffer's length is not a
// multiple of stepLength.
func NewMalformedContextError(length, stepLength int) *Error {
	return &Error{
		Code: CodeMalformedContext,
		Msg:  fmt.Sprintf("length %d is not a multiple of step length %d", length, stepLength),
	}
}

// NewBadResponseFrameError reports that a deserialized ReadResponse's
// isDigest flag disagreed with its digest size header.
func NewBadResponseFrameError(digestSize int32, isDigest bool) *Error {
	return &Error{
		Code: CodeBadResponseFrame,
		Msg:  fmt.Sprintf("digestSize=%d isDigest=%t", digestSize, isDigest),
	}
}

// NewUnsupportedBloomSizeError reports that a bloom filter cannot be
// constructed for the given number of elements under the bitset cap.
func NewUnsupportedBloomSizeError(numElements uint64) *Error {
	return &Error{
		Code: CodeUnsupportedBloomSize,
		Msg:  fmt.Sprintf("cannot compute bucket layout for %d elements", numElements),
	}
}

// NewDecodeError wraps an upstream I/O failure encountered while
// deserializing a wire structure.
func NewDecodeError(err error) *Error {
	return &Error{Code: CodeDecode, Msg: "read failed", Err: err}
}
