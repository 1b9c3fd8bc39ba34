package graphbin

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by Encode and Decode wraps one of
// these, so callers can test with errors.Is.
var (
	// ErrFormat reports malformed input: truncation, a length beyond the
	// remaining bytes, an oversized vint, a bad reference index, or an
	// unknown tag or built-in type id.
	ErrFormat = errors.New("wrong format")

	// ErrUnregistered reports a class, callable or token name that is not
	// registered in the Context.
	ErrUnregistered = errors.New("unregistered name")

	// ErrUnsupportedValue reports a value the encoder cannot classify.
	ErrUnsupportedValue = errors.New("unsupported value")

	// ErrUnsupportedFeature reports serialized callable code, which is
	// never decoded.
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrCycle reports a cyclic graph handed to a tree-only bridge.
	ErrCycle = errors.New("cyclic value")
)

// DecodeError describes a decode failure at a byte offset.
type DecodeError struct {
	Err    error
	Reason string
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("graphbin: decode: %v: %s at offset %d", e.Err, e.Reason, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError describes an encode failure.
type EncodeError struct {
	Err    error
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("graphbin: encode: %v: %s", e.Err, e.Reason)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
