// Package toolerr defines the uniform error kinds returned by the debugger
// tool surface and their JSON-RPC codes (spec §7).
package toolerr

import (
	"errors"
	"fmt"
)

// Kind is one of the ten uniform error kinds a tool call can fail with.
type Kind int

const (
	InvalidParams Kind = iota
	MethodNotFound
	NotSupported
	InternalError
	SessionNotFound
	InvalidState
	BreakpointUnverified
	MemoryAccessError
	Timeout
	Cancelled
)

// Code returns the JSON-RPC error code associated with a Kind.
func (k Kind) Code() int {
	switch k {
	case InvalidParams:
		return -32602
	case MethodNotFound:
		return -32601
	case NotSupported:
		return -32001
	case InternalError:
		return -32603
	case SessionNotFound:
		return -32002
	case InvalidState:
		return -32003
	case BreakpointUnverified:
		return -32004
	case MemoryAccessError:
		return -32005
	case Timeout:
		return -32006
	case Cancelled:
		return -32007
	default:
		return -32603
	}
}

func (k Kind) String() string {
	switch k {
	case InvalidParams:
		return "InvalidParams"
	case MethodNotFound:
		return "MethodNotFound"
	case NotSupported:
		return "NotSupported"
	case InternalError:
		return "InternalError"
	case SessionNotFound:
		return "SessionNotFound"
	case InvalidState:
		return "InvalidState"
	case BreakpointUnverified:
		return "BreakpointUnverified"
	case MemoryAccessError:
		return "MemoryAccessError"
	case Timeout:
		return "Timeout"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is a uniform error carrying a Kind, mappable to a JSON-RPC error
// object at the transport boundary without a switch at every call site.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind that wraps an existing error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// CodeOf maps any error to a JSON-RPC code, defaulting to InternalError for
// errors that were never classified by this package.
func CodeOf(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind.Code()
	}
	return InternalError.Code()
}

// KindOf extracts the Kind from a classified error, or InternalError if the
// error was never classified here.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return InternalError
}
