package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes exposed to clients.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeBadRequest          = "BAD_REQUEST"
	CodeConflict            = "CONFLICT"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeGenerationFailed    = "GENERATION_FAILED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL"
)

// Error is a failure that carries its own HTTP status and client-facing code.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetails attaches client-visible details.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// Wrap keeps the underlying error for logs without exposing it to the client.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Unauthenticated is deliberately generic: callers must not learn which check failed.
func Unauthenticated() *Error {
	return New(http.StatusUnauthorized, CodeUnauthenticated, "invalid session")
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

func QuotaExceeded(limit int) *Error {
	return New(http.StatusTooManyRequests, CodeQuotaExceeded,
		fmt.Sprintf("You have reached your daily chat limit (%d/%d). Please upgrade to PRO!", limit, limit)).
		WithDetails(map[string]int{"limit": limit})
}

func InsufficientCredits(need, have int) *Error {
	return New(http.StatusPaymentRequired, CodeInsufficientCredits,
		fmt.Sprintf("Insufficient credits: need %d, have %d", need, have)).
		WithDetails(map[string]int{"need": need, "have": have})
}

func ProviderUnavailable(message string) *Error {
	return New(http.StatusServiceUnavailable, CodeProviderUnavailable, message)
}

func GenerationFailed(cause error) *Error {
	return New(http.StatusBadGateway, CodeGenerationFailed, "AI Error: "+cause.Error()).Wrap(cause)
}

func RateLimited() *Error {
	return New(http.StatusTooManyRequests, CodeRateLimited, "too many requests, slow down")
}

func Internal(cause error) *Error {
	return New(http.StatusInternalServerError, CodeInternal, "internal server error").Wrap(cause)
}

// From converts any error into an *Error, treating unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
