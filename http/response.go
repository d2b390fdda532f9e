package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sagarc03/filedock"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, filedock.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, filedock.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, filedock.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// HandleError writes appropriate error response based on error type.
// Server-side failures are logged; client errors are not.
func HandleError(w http.ResponseWriter, err error) {
	code, errCode := statusFor(err)

	switch code {
	case http.StatusInternalServerError:
		slog.Error("request error", "error", err)
		WriteError(w, code, errCode, "Internal server error")
	case http.StatusServiceUnavailable:
		slog.Error("request error", "error", err)
		WriteError(w, code, errCode, "Storage temporarily unavailable")
	default:
		slog.Debug("request rejected", "error", err)
		WriteError(w, code, errCode, err.Error())
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}

func writeNotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "Route not found")
}

func writeMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
}
