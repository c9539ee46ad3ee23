// Package syncerr classifies deploy failures.
//
// Every failure surfaced to the invoker carries one Kind. Callers match on kind
// with errors.Is against the sentinel values, or extract it with KindOf.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind is the class of a deploy failure.
type Kind string

const (
	// KindConnection covers an unreachable or refusing host and a broken session.
	KindConnection Kind = "ConnectionError"

	// KindAuth covers rejected credentials and host key verification failures.
	KindAuth Kind = "AuthError"

	// KindTransfer covers failures while reading the source or mutating the remote tree.
	KindTransfer Kind = "TransferError"

	// KindConfig covers invalid deployment configuration.
	KindConfig Kind = "ConfigError"

	// KindUnknown is returned by KindOf for errors that carry no kind.
	KindUnknown Kind = "UnknownError"
)

// Sentinel values for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrConnection = errors.New("connection error")
	ErrAuth       = errors.New("authentication error")
	ErrTransfer   = errors.New("transfer error")
	ErrConfig     = errors.New("configuration error")
)

// Error is a classified deploy failure.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Op is the operation that failed (e.g. "dial", "upload", "delete").
	Op string

	// Path is the local or remote path involved, if any.
	Path string

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return sentinel(e.Kind) == target && target != nil
}

func sentinel(k Kind) error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindAuth:
		return ErrAuth
	case KindTransfer:
		return ErrTransfer
	case KindConfig:
		return ErrConfig
	default:
		return nil
	}
}

// New creates an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewPath creates an Error of the given kind with path context.
func NewPath(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Connection wraps err as a ConnectionError.
func Connection(op string, err error) *Error {
	return New(KindConnection, op, err)
}

// Auth wraps err as an AuthError.
func Auth(op string, err error) *Error {
	return New(KindAuth, op, err)
}

// Transfer wraps err as a TransferError on path.
func Transfer(op, path string, err error) *Error {
	return NewPath(KindTransfer, op, path, err)
}

// Config wraps err as a ConfigError.
func Config(op string, err error) *Error {
	return New(KindConfig, op, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
