// Package platerr defines the error taxonomy shared by the serving path.
//
// Every failure that can reach the HTTP boundary carries one of three kinds:
// a bad request (the client asked for something malformed or nonexistent),
// a missing tile (well-formed request, no tile at that address), or a server
// error (transport, blob or transfer failure). Errors without a kind are
// treated as defects by the boundary.
package platerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindUnknown marks errors that did not originate from this package.
	KindUnknown Kind = iota
	KindBadRequest
	KindTileNotFound
	KindServerError
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindTileNotFound:
		return "tile not found"
	case KindServerError:
		return "server error"
	default:
		return "unknown"
	}
}

type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func Errorf(kind Kind, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	return &Error{kind: kind, msg: err.Error(), err: errors.Unwrap(err)}
}

// Wrap attaches a kind to an existing error, keeping it in the chain.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{kind: kind, msg: msg, err: err}
}

// KindOf classifies any error. Kinds survive wrapping with fmt.Errorf("%w").
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

func IsBadRequest(err error) bool   { return KindOf(err) == KindBadRequest }
func IsTileNotFound(err error) bool { return KindOf(err) == KindTileNotFound }
func IsServerError(err error) bool  { return KindOf(err) == KindServerError }
