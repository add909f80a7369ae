// Package errs classifies failures raised while resolving and installing
// artifacts and resources.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the broad class of a failure.
type Kind int

const (
	Unknown Kind = iota
	Network
	Decode
	InvalidReference
	PathSafety
	IO
	Rollback
	NoDownloadURL
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case Decode:
		return "decode"
	case InvalidReference:
		return "invalid-reference"
	case PathSafety:
		return "path-safety"
	case IO:
		return "io"
	case Rollback:
		return "rollback"
	case NoDownloadURL:
		return "no-download-url"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and a stable code to an underlying error.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and code. A nil err yields nil.
func New(kind Kind, code string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Err: err}
}

// Errorf formats a message and wraps it with kind and code.
func Errorf(kind Kind, code, format string, args ...any) error {
	return &Error{Kind: kind, Code: code, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost Kind found in err's chain. Errors that
// implement interface{ ErrKind() Kind } are honoured as well.
func KindOf(err error) Kind {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Kind != Unknown {
				return e.Kind
			}
		case interface{ ErrKind() Kind }:
			return e.ErrKind()
		}
		err = errors.Unwrap(err)
	}
	return Unknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
