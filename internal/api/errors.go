package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error code constants for structured API error responses.
const (
	ErrCodeBadRequest            = "bad_request"
	ErrCodeNotFound              = "not_found"
	ErrCodeInternal              = "internal_error"
	ErrCodeUnauthorized          = "unauthorized"
	ErrCodeForbidden             = "forbidden"
	ErrCodeRateLimited           = "rate_limited"
	ErrCodeSignupDisabled        = "signup_disabled"
	ErrCodeConflict              = "conflict"
	ErrCodeExpired               = "expired"
	ErrCodeValidationFailed      = "validation_failed"
	ErrCodeAirtableNotConfigured = "airtable_not_configured"
	ErrCodeAirtableError         = "airtable_error"
)

// APIError represents a structured error returned by the API.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse wraps an APIError for JSON serialization.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// writeError writes a JSON error response with the given HTTP status code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorBody(w, status, APIError{Code: code, Message: message})
}

// writeValidationError answers 400 with a message per offending field.
func writeValidationError(w http.ResponseWriter, fields map[string]string) {
	writeErrorBody(w, http.StatusBadRequest, APIError{
		Code:    ErrCodeValidationFailed,
		Message: "validation failed",
		Fields:  fields,
	})
}

func writeErrorBody(w http.ResponseWriter, status int, e APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: e}); err != nil {
		slog.Error("write error response", "err", err)
	}
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}
