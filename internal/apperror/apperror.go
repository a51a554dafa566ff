// Package apperror defines the error taxonomy shared by the identity adapter,
// the auth modal and the HTTP handlers.
//
// Every domain error is an *AppError wrapping one of the sentinels below, so
// callers can branch with errors.Is and still show AppError.Message verbatim.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured  = errors.New("not configured")
	ErrAuthentication = errors.New("authentication failed")
	ErrValidation     = errors.New("Validation Error")
	ErrBusy           = errors.New("busy")
	ErrRateLimited    = errors.New("rate limited")
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
)

// NotConfiguredMessage is shown when an auth operation is attempted without
// backend credentials.
const NotConfiguredMessage = "Supabase is not configured. Set SUPABASE_URL and SUPABASE_ANON_KEY in your environment."

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Status  int    // Optional: upstream HTTP status (identity backend)
	Cause   error  // Optional: underlying error, never shown to the user
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Wrap attaches cause to e and returns e.
func Wrap(e *AppError, cause error) *AppError {
	e.Cause = cause
	return e
}

// NotConfigured is returned by every sign-in/sign-up attempt on the stub adapter.
func NotConfigured() *AppError {
	return &AppError{
		Err:     ErrNotConfigured,
		Message: NotConfiguredMessage,
	}
}

// Authentication wraps a backend rejection (or an unreachable backend).
// message is the backend-supplied text and is shown to the user as-is.
func Authentication(message string, status int) *AppError {
	if message == "" {
		message = "Authentication failed"
	}
	return &AppError{
		Err:     ErrAuthentication,
		Message: message,
		Status:  status,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Busy reports that a submission is already in flight.
func Busy() *AppError {
	return &AppError{
		Err:     ErrBusy,
		Message: "a request is already in progress",
	}
}

func RateLimited() *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: "Too many attempts. Please wait a moment and try again.",
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// MessageOf returns the text a user should see for err.
// Unknown errors fall back to their Error() string, empty errors to fallback.
func MessageOf(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
