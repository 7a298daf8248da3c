package query

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// Sentinel errors, use errors.Is to test the kind of an *Error
var (
	// ErrNotFound is returned if a query id or a cache does not exist (anymore).
	// Clients should treat it as "the cursor expired, re-execute".
	ErrNotFound = errors.New("not found")
	// ErrEngineExecution is returned if the query engine rejected or failed the query
	ErrEngineExecution = errors.New("engine execution error")
	// ErrUnsupportedCommand is returned for commands the handler does not declare
	ErrUnsupportedCommand = errors.New("unsupported command")
	// ErrInvalidRequest is returned for requests with a missing or malformed payload
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInternal is returned for unexpected failures (e.g. panics in the engine)
	ErrInternal = errors.New("internal error")
)

// ErrorKind classifies an *Error
type ErrorKind uint8

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindEngineExecution
	KindUnsupportedCommand
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindEngineExecution:
		return "EngineExecutionError"
	case KindUnsupportedCommand:
		return "UnsupportedCommand"
	case KindInvalidRequest:
		return "InvalidRequest"
	default:
		return "Internal"
	}
}

// sentinel returns the sentinel error of the kind
func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindEngineExecution:
		return ErrEngineExecution
	case KindUnsupportedCommand:
		return ErrUnsupportedCommand
	case KindInvalidRequest:
		return ErrInvalidRequest
	default:
		return ErrInternal
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by all operations of this package.
// Msg is human-readable and is sent to clients as is.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error // the underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Msg
}

// Is reports whether target is the sentinel error of the kind
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// --------------------------------------------------------------------------
// Factory Functions
// --------------------------------------------------------------------------

func errQueryNotFound(id uint64) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("cannot find query [qryId=%d]", id)}
}

func errCacheNotFound(name string) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("no cache with name [cacheName=%s]", name)}
}

func errEngine(err error) *Error {
	return &Error{Kind: KindEngineExecution, Msg: err.Error(), Err: err}
}

func errInvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Msg: fmt.Sprintf(format, args...)}
}

func errUnsupported(cmd Command) *Error {
	return &Error{Kind: KindUnsupportedCommand, Msg: fmt.Sprintf("unsupported command: %s", cmd)}
}
