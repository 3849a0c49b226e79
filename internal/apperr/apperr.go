// Package apperr defines the error taxonomy shared across the memory store.
// Every package that can fail in a way the HTTP boundary must report returns
// (or wraps) an *Error so the boundary maps kind to status exactly once.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a coarse error category, independent of transport.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthentication  Kind = "authentication"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindVersionConflict Kind = "version_conflict"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindRateLimited     Kind = "rate_limited"
	KindDatabase        Kind = "database"
	KindExternalService Kind = "external_service"
	KindTimeout         Kind = "timeout"
)

// Error is the typed error value propagated out of domain, store, retrieval,
// security, and integrator packages.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithCorrelation returns a copy of e carrying the given correlation ID.
func (e *Error) WithCorrelation(id string) *Error {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

// Is supports errors.Is by kind: apperr.New(KindNotFound, "") matches any
// *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Validation, Authentication, ... are convenience constructors.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func Authentication(message string) *Error {
	return New(KindAuthentication, message)
}

func Authorization(format string, args ...interface{}) *Error {
	return New(KindAuthorization, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func VersionConflict(format string, args ...interface{}) *Error {
	return New(KindVersionConflict, fmt.Sprintf(format, args...))
}

func PayloadTooLarge(format string, args ...interface{}) *Error {
	return New(KindPayloadTooLarge, fmt.Sprintf(format, args...))
}

func RateLimited(format string, args ...interface{}) *Error {
	return New(KindRateLimited, fmt.Sprintf(format, args...))
}

func Database(message string, cause error) *Error {
	return Wrap(KindDatabase, message, cause)
}

func ExternalService(message string, cause error) *Error {
	return Wrap(KindExternalService, message, cause)
}

func Timeout(message string) *Error {
	return New(KindTimeout, message)
}

// KindOf extracts the Kind of err, defaulting to KindDatabase for unclassified
// errors so the HTTP boundary never silently falls back to 200.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDatabase
}

// HTTPStatus maps a Kind to the HTTP status code the API returns for it.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return 400
	case KindAuthentication:
		return 401
	case KindAuthorization:
		return 403
	case KindNotFound:
		return 404
	case KindConflict, KindVersionConflict:
		return 409
	case KindPayloadTooLarge:
		return 413
	case KindRateLimited:
		return 429
	case KindExternalService:
		return 502
	case KindTimeout:
		return 504
	default:
		return 500
	}
}
