package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lyceum-io/identity/internal/models"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// WriteServiceError maps the service error taxonomy to HTTP once, at the
// boundary. Messages for login failures are deliberately asymmetric: an
// unknown identifier and a wrong password share one uniform message,
// while blocked and deactivated accounts are told what happened.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		WriteUnauthorized(w, "Invalid credentials")
	case errors.Is(err, models.ErrAccountBlocked):
		WriteForbidden(w, "Your account has been blocked. Contact support.")
	case errors.Is(err, models.ErrAccountDeactivated):
		WriteForbidden(w, "Your account is deactivated.")
	case errors.Is(err, models.ErrVerificationRequired):
		WriteForbidden(w, "Verify your email or mobile before logging in.")
	case errors.Is(err, models.ErrRoleRejected):
		WriteForbidden(w, "Your role request was rejected.")
	case errors.Is(err, models.ErrOTPNotFound):
		WriteBadRequest(w, "OTP not found")
	case errors.Is(err, models.ErrOTPUsed):
		WriteBadRequest(w, "OTP already used")
	case errors.Is(err, models.ErrOTPExpired):
		WriteBadRequest(w, "OTP expired")
	case errors.Is(err, models.ErrOTPMismatch):
		WriteBadRequest(w, "Invalid OTP")
	case errors.Is(err, models.ErrPasswordReused):
		WriteBadRequest(w, "Password was used recently, choose a different one")
	case errors.Is(err, models.ErrPasswordMismatch):
		WriteBadRequest(w, "Passwords do not match")
	case errors.Is(err, models.ErrValidation):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrForbidden):
		WriteForbidden(w, "Forbidden")
	case errors.Is(err, models.ErrNotFound):
		WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		WriteConflict(w, "Resource already exists")
	default:
		WriteInternalError(w, "Internal server error")
	}
}
