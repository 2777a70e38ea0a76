package errors

import (
	"fmt"
	"net/http"
)

// Error codes shared across the service. Handlers map these to HTTP status
// codes; clients switch on them rather than on message text.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInternal     = "INTERNAL"
	ErrCodeUnavailable  = "UNAVAILABLE"

	// Approval workflow taxonomy
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeUnresolvedApprover = "UNRESOLVED_APPROVER"
	ErrCodeAlreadyFinalized   = "ALREADY_FINALIZED"
	ErrCodeAlreadyActed       = "ALREADY_ACTED"
	ErrCodeMissingReason      = "MISSING_REASON"
)

// Error is a coded error. Code identifies the failure class, Message is
// safe to return to callers, Err carries the underlying cause if any.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code so errors.Is works across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New creates an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil when err is nil.
func Wrap(err error, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound creates a NOT_FOUND error for a resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// InvalidInput creates an INVALID_INPUT error for a named field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, message)}
}

// Unauthorized creates an UNAUTHORIZED error.
func Unauthorized(message string) *Error {
	return &Error{Code: ErrCodeUnauthorized, Message: message}
}

// Code extracts the error code, walking the cause chain. Unknown errors
// report ErrCodeInternal.
func Code(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrCodeInternal
}

// HTTPStatus maps an error to the HTTP status code handlers should return.
func HTTPStatus(err error) int {
	switch Code(err) {
	case ErrCodeInvalidInput, ErrCodeMissingReason:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeAlreadyFinalized, ErrCodeAlreadyActed:
		return http.StatusConflict
	case ErrCodeConfiguration, ErrCodeUnresolvedApprover:
		return http.StatusUnprocessableEntity
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
