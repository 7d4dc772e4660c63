package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, user-visible classification of a failure
type Kind string

const (
	KindStorageWrite        Kind = "storage_write_error"
	KindStorageRead         Kind = "storage_read_error"
	KindClassification      Kind = "classification_error"
	KindNotFound            Kind = "not_found"
	KindNotFoundOrForbidden Kind = "not_found_or_forbidden"
	KindInvalidArgument     Kind = "invalid_argument"
	KindUnauthenticated     Kind = "unauthenticated"
	KindRateLimited         Kind = "rate_limited"
	KindInternal            Kind = "internal"
)

// Sentinels for errors.Is checks. Matching is by Kind only.
var (
	ErrStorageWrite        = &Error{Kind: KindStorageWrite}
	ErrStorageRead         = &Error{Kind: KindStorageRead}
	ErrClassification      = &Error{Kind: KindClassification}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrNotFoundOrForbidden = &Error{Kind: KindNotFoundOrForbidden}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
)

// Error carries a Kind plus the operation that produced it
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// New creates an error of the given kind
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of the first *Error in err's chain
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal server error"
}

// HTTPStatus maps a Kind to an HTTP status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound, KindNotFoundOrForbidden:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindStorageWrite, KindStorageRead, KindClassification:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
