package store

import (
	"errors"
	"fmt"
)

// Status classifies an operation failure.
type Status int

const (
	// StatusOK is the zero status of a successful operation.
	StatusOK Status = iota

	// StatusNotFound indicates a missing item or key-table.
	StatusNotFound

	// StatusConflict indicates a key-type mismatch with an existing key-table.
	StatusConflict

	// StatusPreconditionFailed indicates an unmet condition or overwrite guard.
	StatusPreconditionFailed

	// StatusTimeout indicates the key-table activation wait was exhausted.
	StatusTimeout

	// StatusTooMuchContention indicates the contention retry budget was exhausted.
	StatusTooMuchContention

	// StatusInvalidArgument indicates a malformed path, element set or cursor.
	StatusInvalidArgument

	// StatusUnavailable indicates the backend client is not usable.
	StatusUnavailable

	// StatusInternal indicates an unexpected backend fault.
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusConflict:
		return "conflict"
	case StatusPreconditionFailed:
		return "precondition failed"
	case StatusTimeout:
		return "timeout"
	case StatusTooMuchContention:
		return "too much contention"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is the failure type returned by every lattice operation. Backend
// faults are mapped into an Error exactly once, at the adapter boundary.
type Error struct {
	Status  Status
	Message string
	cause   error
}

// NewError returns an Error with the given status and message.
func NewError(status Status, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Errorf returns an Error with a formatted message.
func Errorf(status Status, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// WrapError returns an Error that wraps cause.
func WrapError(status Status, message string, cause error) *Error {
	return &Error{Status: status, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("lattice: %s: %s: %v", e.Status, e.Message, e.cause)
	}
	return fmt.Sprintf("lattice: %s: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same status, so errors.Is(err, ErrNotFound)
// matches every not-found failure regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Status == e.Status
}

// StatusOf extracts the status from err. A nil error is StatusOK; an error
// that is not a *Error is StatusInternal.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusInternal
}

// Sentinel errors for each failure status. Use errors.Is to test them.
var (
	ErrNotFound           = NewError(StatusNotFound, "item or key-table not found")
	ErrConflict           = NewError(StatusConflict, "key type conflicts with existing key-table")
	ErrPreconditionFailed = NewError(StatusPreconditionFailed, "condition not met")
	ErrTimeout            = NewError(StatusTimeout, "key-table activation wait exhausted")
	ErrTooMuchContention  = NewError(StatusTooMuchContention, "write contention retry budget exhausted")
	ErrInvalidArgument    = NewError(StatusInvalidArgument, "invalid argument")
	ErrUnavailable        = NewError(StatusUnavailable, "backend client not available")
	ErrInternal           = NewError(StatusInternal, "internal backend fault")
)
