// Package teamserr defines the typed error kinds surfaced across the
// team registry, inbox, task engine, and spawner, mirroring the
// pkg/llm.LLMError classification pattern: a small struct carrying a
// machine-checkable Kind alongside a human-readable message.
package teamserr

import "fmt"

// Kind classifies why a store or backend operation failed.
type Kind string

const (
	InvalidInput Kind = "invalid-input"
	Precondition Kind = "precondition"
	NotFound     Kind = "not-found"
	Conflict     Kind = "conflict"
	External     Kind = "external"
	IO           Kind = "io"
)

// Error is the typed error value returned by internal/store and
// internal/backend. The tool-handler boundary maps it to a uniform
// envelope; it never re-exposes a bare Go error or a traceback to a
// caller.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error,
// defaulting to External for anything else — the tool-handler boundary
// never forwards an unclassified error kind to a caller.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return External
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// FromHTTPStatus maps a remote-agent HTTP response's status code to an
// Error: 404 becomes NotFound; 400, 5xx and every other status become
// External, each with its own message.
func FromHTTPStatus(status int, endpoint, bodySnippet string) *Error {
	switch {
	case status == 400:
		return New(External, "opencode rejected request to %s: %s", endpoint, bodySnippet)
	case status == 404:
		return New(NotFound, "opencode resource not found at %s", endpoint)
	case status >= 500:
		return New(External, "opencode server error (%d) on %s: %s", status, endpoint, bodySnippet)
	default:
		return New(External, "unexpected response from opencode (%d) on %s: %s", status, endpoint, bodySnippet)
	}
}
