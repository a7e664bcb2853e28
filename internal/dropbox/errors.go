package dropbox

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a staging failure without exposing SDK error types.
type Kind int

const (
	KindAPI Kind = iota
	KindAuth
	KindNotFound
	KindJobFailed
	KindJobTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not found"
	case KindJobFailed:
		return "job failed"
	case KindJobTimeout:
		return "job timeout"
	default:
		return "api"
	}
}

// Error is returned by every Stager method.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("dropbox %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("dropbox %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a staging Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// classify maps an SDK error to a Kind by its error summary, which is
// stable across endpoint-specific error types.
func classify(err error) Kind {
	s := err.Error()
	switch {
	case strings.Contains(s, "invalid_access_token"),
		strings.Contains(s, "expired_access_token"),
		strings.Contains(s, "missing_scope"),
		strings.Contains(s, "401"):
		return KindAuth
	case strings.Contains(s, "not_found"):
		return KindNotFound
	default:
		return KindAPI
	}
}

func wrap(op, path string, err error) error {
	return &Error{Kind: classify(err), Op: op, Path: path, Err: err}
}
