// Package bridgeerr defines the error taxonomy shared by the orchestrator,
// webhook bridge and lead pipeline. Every error carries a machine kind and a
// human detail string; wrapped causes stay server-side.
package bridgeerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers.
type Kind string

const (
	KindEmployeeNotConfigured Kind = "employee_not_configured"
	KindThreadAccessDenied    Kind = "thread_access_denied"
	KindMissingFields         Kind = "missing_fields"
	KindInvalidPayload        Kind = "invalid_payload"
	KindUnknownToolCall       Kind = "unknown_tool_call"
	KindRuntimeUnavailable    Kind = "runtime_unavailable"
	KindNotFound              Kind = "not_found"
	KindInternal              Kind = "internal"
)

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Detail string
	// Placeholder marks an EmployeeNotConfigured error caused by a placeholder
	// credential rather than a lookup miss.
	Placeholder bool
	Err         error
}

// New returns an error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf returns an error of the given kind with a formatted detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error of the same kind, so sentinel comparisons work:
//
//	errors.Is(err, bridgeerr.ErrUnknownToolCall)
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrEmployeeNotConfigured = New(KindEmployeeNotConfigured, "employee not configured")
	ErrThreadAccessDenied    = New(KindThreadAccessDenied, "thread access denied")
	ErrMissingFields         = New(KindMissingFields, "missing required fields")
	ErrInvalidPayload        = New(KindInvalidPayload, "invalid payload")
	ErrUnknownToolCall       = New(KindUnknownToolCall, "no matching pending tool call")
	ErrRuntimeUnavailable    = New(KindRuntimeUnavailable, "assistant runtime unavailable")
	ErrNotFound              = New(KindNotFound, "not found")
)

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailOf returns the client-safe detail for err.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return "internal error"
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindMissingFields, KindInvalidPayload:
		return http.StatusBadRequest
	case KindThreadAccessDenied:
		return http.StatusForbidden
	case KindEmployeeNotConfigured:
		if e.Placeholder {
			return http.StatusServiceUnavailable
		}
		return http.StatusNotFound
	case KindUnknownToolCall, KindNotFound:
		return http.StatusNotFound
	case KindRuntimeUnavailable:
		return http.StatusBadGateway
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
