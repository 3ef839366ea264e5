package gatt

import "github.com/pkg/errors"

// malformedError marks a wire-level decoding failure: a length prefix
// disagreeing with the buffer, a truncated fragment, or similar. These
// are always recoverable by dropping the offending packet.
type malformedError struct {
	msg string
}

func (e *malformedError) Error() string { return e.msg }

func errMalformed(msg string) error {
	return errors.WithStack(&malformedError{msg: msg})
}

// isMalformed reports whether err (or one of the errors it wraps) is a
// wire-level malformed error, as opposed to a host programming error.
func isMalformed(err error) bool {
	_, ok := errors.Cause(err).(*malformedError)
	return ok
}

// programmingError marks a violation the caller is responsible for
// never committing, such as double-queueing a command opcode or
// building an AttributeDB with a dangling value-attribute reference.
// It is returned, never panicked, so a caller can at least log it.
type programmingError struct {
	msg string
}

func (e *programmingError) Error() string { return e.msg }

func errProgramming(msg string) error {
	return errors.WithStack(&programmingError{msg: msg})
}
