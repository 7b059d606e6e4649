package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it to a status code.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Forbidden
	Conflict
	InvalidState
	InvalidArgument
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	case InvalidState:
		return "invalid_state"
	case InvalidArgument:
		return "invalid_argument"
	case Unavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified failure with a stable machine code.
// Values are compared by identity, so declare them once as package-level sentinels.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Wrap keeps e matchable with errors.Is while attaching the cause.
func Wrap(e *Error, cause error) error {
	if cause == nil {
		return e
	}
	return fmt.Errorf("%w: %w", e, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err; unclassified errors are Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}
