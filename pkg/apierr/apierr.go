// Package apierr classifies control-plane errors into a small taxonomy
// (validation, conflict, authorization, external, fatal) and maps them
// to HTTP status codes at the gateway boundary.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Category is one of the fixed outcome classes below. It carries no
// language type beyond a string tag; callers construct one of the
// sentinel errors below rather than switching on Category directly.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryConflict   Category = "conflict"
	CategoryAuthn      Category = "authentication"
	CategoryAuthz      Category = "authorization"
	CategoryTransient  Category = "external_transient"
	CategoryPermanent  Category = "external_permanent"
	CategoryFatal      Category = "fatal"
)

// Error wraps an underlying cause with a category and an optional detail
// message intended for the API caller.
type Error struct {
	Category Category
	Detail   string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Cause)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(cat Category, detail string, cause error) *Error {
	return &Error{Category: cat, Detail: detail, Cause: cause}
}

// Validation wraps a precondition failure (bad slug, missing field,
// unknown template). Never enqueued as a task; surfaced as 4xx.
func Validation(detail string) *Error { return new_(CategoryValidation, detail, nil) }

// Validationf formats a Validation error.
func Validationf(format string, args ...any) *Error {
	return new_(CategoryValidation, fmt.Sprintf(format, args...), nil)
}

// Conflict wraps a state-store invariant violation (duplicate slug,
// duplicate membership). Surfaced as 409.
func Conflict(detail string) *Error { return new_(CategoryConflict, detail, nil) }

// Unauthenticated wraps a request with no acceptable credential. 401.
func Unauthenticated(detail string) *Error { return new_(CategoryAuthn, detail, nil) }

// Forbidden wraps a request with valid credentials but insufficient
// scope. The detail must name the required scope. 403.
func Forbidden(requiredScope string) *Error {
	return new_(CategoryAuthz, fmt.Sprintf("missing required scope %q", requiredScope), nil)
}

// Transient wraps a retryable adapter failure (timeout, 5xx).
func Transient(detail string, cause error) *Error { return new_(CategoryTransient, detail, cause) }

// Permanent wraps a non-retryable adapter failure (4xx from a remote API).
func Permanent(detail string, cause error) *Error { return new_(CategoryPermanent, detail, cause) }

// Fatal wraps an unexpected error not produced by any known adapter.
func Fatal(detail string, cause error) *Error { return new_(CategoryFatal, detail, cause) }

// HTTPStatus maps err's category to an HTTP status code. Unrecognized
// errors map to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryConflict:
		return http.StatusConflict
	case CategoryAuthn:
		return http.StatusUnauthorized
	case CategoryAuthz:
		return http.StatusForbidden
	case CategoryTransient, CategoryPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RetryAvailable reports whether the task API should offer a retry for an
// error of this category — true for anything except validation/auth,
// which require a different request entirely.
func RetryAvailable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return true
	}
	switch e.Category {
	case CategoryValidation, CategoryAuthn, CategoryAuthz:
		return false
	default:
		return true
	}
}
