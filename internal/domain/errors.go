// Package domain defines the error taxonomy shared across the answer engine.
// Errors are values inside the core; only the HTTP layer maps them to status codes.
package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for boundary handling.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindPermission      Kind = "permission"
	KindStorage         Kind = "storage"
	KindExternalService Kind = "external_service"
	KindCancelled       Kind = "cancelled"
)

// Error carries a kind, a user-safe detail message, and an optional cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a validation error.
func Validation(detail string) *Error {
	return &Error{Kind: KindValidation, Detail: detail}
}

// NotFound builds a not-found error.
func NotFound(detail string) *Error {
	return &Error{Kind: KindNotFound, Detail: detail}
}

// Permission builds a permission error.
func Permission(detail string) *Error {
	return &Error{Kind: KindPermission, Detail: detail}
}

// Storage wraps a storage failure.
func Storage(detail string, err error) *Error {
	return &Error{Kind: KindStorage, Detail: detail, Err: err}
}

// External wraps an external service failure.
func External(detail string, err error) *Error {
	return &Error{Kind: KindExternalService, Detail: detail, Err: err}
}

// Cancelled wraps a cancellation.
func Cancelled(err error) *Error {
	return &Error{Kind: KindCancelled, Detail: "request cancelled", Err: err}
}

// KindOf returns the kind of err, mapping context cancellation to
// KindCancelled and anything unclassified to KindStorage-free internal handling.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindExternalService
}

// Detail returns the user-safe detail for err.
func Detail(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Detail
	}
	return "internal error"
}

// HTTPStatus maps an error to the status code the API layer should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermission:
		return http.StatusForbidden
	case KindStorage:
		return http.StatusInternalServerError
	case KindCancelled:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
