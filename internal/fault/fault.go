// Package fault defines the error taxonomy shared by the file server,
// the gateway client and the ETL pipeline. Every failure that crosses a
// component boundary is classified into one Kind so callers can decide
// between retrying, requeuing and giving up without string matching.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	// Access means the backing resource is unreachable or off limits.
	// Potentially transient; the only retryable kind.
	Access Kind = "access"
	// NotFound means the named file does not exist. Terminal.
	NotFound Kind = "not_found"
	// UnsupportedFormat means the file is not a recognized tabular format. Terminal.
	UnsupportedFormat Kind = "unsupported_format"
	// Parse means the file content is malformed. Terminal.
	Parse Kind = "parse"
	// Persistence means a database write failed.
	Persistence Kind = "persistence"
	// Validation means a row is missing required columns. Row-level, non-fatal.
	Validation Kind = "validation"
)

type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// New creates a classified error with a caller-facing message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error, keeping it reachable via errors.Unwrap.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, err: err}
}

// KindOf extracts the Kind from err. Unclassified errors report Access,
// the conservative choice: unknown failures are treated as transient.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Access
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

// Terminal reports whether err should never be retried or requeued.
func Terminal(err error) bool {
	switch KindOf(err) {
	case NotFound, UnsupportedFormat, Parse:
		return true
	}
	return false
}

// StatusCode maps a kind to the HTTP status the file server responds with.
func StatusCode(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case UnsupportedFormat, Parse:
		return http.StatusUnprocessableEntity
	case Validation:
		return http.StatusBadRequest
	case Access:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus maps an HTTP status back to a kind on the client side.
// 5xx and anything unrecognized collapse to Access so the retry policy
// stays on the safe side.
func FromStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusUnprocessableEntity:
		return UnsupportedFormat
	case status == http.StatusBadRequest:
		return Validation
	default:
		return Access
	}
}
