package source

import (
	"fmt"

	"dxm/internal/errs"
)

// Reason subdivides invalid repository references.
type Reason int

const (
	NoAuthor Reason = iota + 1
	NoName
	InvalidLink
	ReleaseFailed
	DefaultFailed
)

func (r Reason) String() string {
	switch r {
	case NoAuthor:
		return "no author"
	case NoName:
		return "no name"
	case InvalidLink:
		return "invalid link"
	case ReleaseFailed:
		return "release fetch failed"
	case DefaultFailed:
		return "default branch fetch failed"
	}
	return "unknown"
}

// InvalidReferenceError reports a repository link that cannot be turned into
// an archive URL.
type InvalidReferenceError struct {
	Reason Reason
	Ref    string
	Err    error
}

func (e *InvalidReferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("SRC_INVALID_REFERENCE: %s: %s: %v", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("SRC_INVALID_REFERENCE: %s: %s", e.Ref, e.Reason)
}

func (e *InvalidReferenceError) Unwrap() error { return e.Err }

func (e *InvalidReferenceError) ErrKind() errs.Kind { return errs.InvalidReference }
