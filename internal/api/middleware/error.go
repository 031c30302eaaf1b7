// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/dispatcher"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// WriteCommandError maps a dispatcher error onto the HTTP surface.
func WriteCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatcher.ErrUnknownDevice),
		errors.Is(err, dispatcher.ErrUnknownCode):
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.Is(err, dispatcher.ErrValidation):
		WriteError(w, http.StatusBadRequest, ErrValidation, err.Error())
	case errors.Is(err, dispatcher.ErrInvalidState):
		WriteError(w, http.StatusConflict, ErrConflict, err.Error())
	case errors.Is(err, dispatcher.ErrDeviceOffline):
		WriteError(w, http.StatusServiceUnavailable, ErrDeviceOffline, err.Error())
	case errors.Is(err, dispatcher.ErrVendorCommand):
		WriteError(w, http.StatusBadGateway, ErrVendorCommand, err.Error())
	case errors.Is(err, dispatcher.ErrConfiguration):
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
	}
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.Any("panic", err),
						zap.ByteString("stack", debug.Stack()))
					WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Common error codes
const (
	ErrNotFound      = "not_found"
	ErrBadRequest    = "bad_request"
	ErrConflict      = "conflict"
	ErrInternalError = "internal_error"
	ErrValidation    = "validation_error"
	ErrUnauthorized  = "unauthorized"
	ErrForbidden     = "forbidden"
	ErrDeviceOffline = "device_offline"
	ErrVendorCommand = "vendor_command_failed"
)
