// Package apperr carries the HTTP-facing error taxonomy of the service.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeConflict            Code = "CONFLICT"
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	CodeProvider            Code = "PROVIDER_ERROR"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is returned by services for failures the caller should see. Message is
// safe to show to clients; Cause is only logged.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

func Unauthorized(msg string) *Error { return New(CodeUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(CodeForbidden, msg) }
func NotFound(msg string) *Error     { return New(CodeNotFound, msg) }
func Validation(msg string) *Error   { return New(CodeValidation, msg) }
func Conflict(msg string) *Error     { return New(CodeConflict, msg) }

// InsufficientCredits is the domain refusal for a send without balance.
func InsufficientCredits(msg string) *Error {
	return New(CodeInsufficientCredits, msg)
}

// Provider surfaces the upstream provider's failure text to the caller.
func Provider(msg string) *Error {
	return New(CodeProvider, msg)
}

// Internal hides the cause behind a generic message.
func Internal(err error) *Error {
	return Wrap(err, CodeInternal, "Internal server error")
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeInsufficientCredits:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is what the client sees for err.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok || e.Code == CodeInternal {
		return "Internal server error"
	}
	return e.Message
}
