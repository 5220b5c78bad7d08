package querier

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures worth retrying: throttling, timeouts,
	// dropped connections, 5xx responses.
	ErrTransient = errors.New("transient query service error")
	// ErrPermanent marks failures that retrying cannot fix: bad syntax,
	// missing log group, denied access, exhausted quota.
	ErrPermanent = errors.New("permanent query error")
)

// Error carries the operation and classification of a client failure.
type Error struct {
	Op        string // submit, poll, cancel
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Transient
	case ErrPermanent:
		return !e.Transient
	}
	return false
}

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Transient: true, Err: err}
}

func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsPermanent reports whether err is a classified non-retryable error.
// Unclassified errors are neither transient nor permanent.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }
