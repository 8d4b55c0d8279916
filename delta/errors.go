package delta

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by this package. Every error returned by
// Connect, ConnectBuffers, ApplyDelta or PatchDelta unwraps to exactly
// one of these, except that an error from the io.Writer given to
// ApplyDelta or Handle.Apply is returned as it is.
var (
	// ErrNoStreams is returned when the stream source yielded nothing.
	ErrNoStreams = errors.New("delta: no streams provided")

	// ErrOversizedDelta is returned when a stream's declared or
	// collapsed size exceeds the 32-bit ceiling this format supports.
	ErrOversizedDelta = errors.New("delta: stream exceeds 2^32 bytes")

	// ErrMalformedDelta is returned for any opcode stream that does not
	// parse: a zero command byte, a truncated opcode, a COPY outside
	// its base's bounds, or a declared target size that does not match
	// the opcodes' cumulative output.
	ErrMalformedDelta = errors.New("delta: malformed delta stream")

	// ErrIteratorFailure wraps an error raised by the caller's
	// StreamSource itself, propagated verbatim.
	ErrIteratorFailure = errors.New("delta: stream source failed")
)

// CollapseError carries a sentinel error plus contextual detail. It
// mirrors the teacher's packfile.Error: a thin wrapper that lets
// call sites attach formatted detail without losing Is/As matching
// against the sentinel.
type CollapseError struct {
	error
}

// newError wraps one of the sentinel errors above.
func newError(sentinel error) *CollapseError {
	return &CollapseError{sentinel}
}

// Unwrap returns the underlying sentinel error.
func (e *CollapseError) Unwrap() error {
	return e.error
}

// AddDetails returns a new CollapseError carrying additional formatted
// context, chained onto the original via %w so errors.Is still matches
// the sentinel.
func (e *CollapseError) AddDetails(format string, args ...interface{}) *CollapseError {
	detail := fmt.Errorf(format, args...)
	if e.error == nil {
		return &CollapseError{detail}
	}
	return &CollapseError{fmt.Errorf("%w: %w", e.error, detail)}
}
