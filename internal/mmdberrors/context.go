package mmdberrors

import "fmt"

// ContextualError attaches the stream offset where a decode failed to
// the underlying error, so a caller several stack frames away from the
// original ReadAt still sees where the database went bad. It is only
// allocated once an error actually occurs.
type ContextualError struct {
	Err    error
	Offset uint
}

func (e ContextualError) Error() string {
	return fmt.Sprintf("at offset %d: %v", e.Offset, e.Err)
}

func (e ContextualError) Unwrap() error {
	return e.Err
}

// WrapWithContext wraps err with the offset it occurred at. Returns nil
// if err is nil, so callers can use it unconditionally after a decode
// call without an extra branch.
func WrapWithContext(err error, offset uint) error {
	if err == nil {
		return nil
	}
	return ContextualError{Offset: offset, Err: err}
}
