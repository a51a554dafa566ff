package handler

// RESPONSE HELPERS:
// Every JSON endpoint answers through writeJSON/writeError so the error
// shape is always the same:
//   {"error": "unauthorized", "message": "Sign in to see your profile."}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/cinemax-club/internal/apperror"
)

// ErrorResponse is the error body returned by every JSON endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable type, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends data as JSON. Headers and status go out before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent; all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusOf maps a domain error to its HTTP status and error type.
// errors.Is walks the wrap chain, so fmt.Errorf("...: %w", appErr) still
// matches its sentinel.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrAuthentication):
		return http.StatusUnauthorized, "authentication_failed"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, apperror.ErrNotConfigured):
		return http.StatusServiceUnavailable, "not_configured"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError sends err in the standard error shape. Errors that are not an
// *apperror.AppError become a generic 500 so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, errorType := statusOf(err)
	writeJSON(w, status, ErrorResponse{Error: errorType, Message: appErr.Message})
}
