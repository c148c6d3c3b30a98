package omf

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conditions callers are expected to test with
// errors.Is.
var (
	// ErrTruncated indicates a record ended before all of its declared
	// fields could be read.
	ErrTruncated = errors.New("record truncated")
	// ErrNotRelocatable indicates an attempt to relocate an absolute
	// segment.
	ErrNotRelocatable = errors.New("segment is not relocatable")
	// ErrBadAlignment indicates an alignment code with no defined rounding
	// boundary.
	ErrBadAlignment = errors.New("unsupported alignment type")
	// ErrGapTooLarge indicates a zero-fill hole larger than the configured
	// limit while reconstructing a segment image.
	ErrGapTooLarge = errors.New("uninitialized hole exceeds fill limit")
	// ErrSealed indicates an attempt to attach data to a segment after its
	// data list was frozen.
	ErrSealed = errors.New("segment is sealed")
)

// A ParseError is a malformed or truncated record, located by offset within
// the stream it was parsed from.
type ParseError struct {
	Offset int64  // byte offset where parsing failed
	Msg    string // what was being decoded
	Err    error  // underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("at offset %#x: %s: %v", e.Offset, e.Msg, e.Err)
	}
	return fmt.Sprintf("at offset %#x: %s", e.Offset, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
