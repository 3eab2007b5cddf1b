package api

import (
	"encoding/json"
	"net/http"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondServiceError maps a service error to its HTTP response. Internal
// errors are reported without their cause.
func respondServiceError(w http.ResponseWriter, err error) {
	statusCode, code, message := mapServiceError(err)
	var details map[string]interface{}
	if statusCode < http.StatusInternalServerError {
		details = errors.Categorize(err).Details
	}
	respondError(w, statusCode, code, message, details)
}

// mapServiceError maps service errors to HTTP status codes.
func mapServiceError(err error) (int, string, string) {
	catErr := errors.Categorize(err)
	if catErr == nil {
		return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
	}

	switch catErr.Category {
	case errors.CategoryNotFound:
		return http.StatusNotFound, ErrCodeNotFound, catErr.Message
	case errors.CategoryValidation, errors.CategoryUserInput:
		return http.StatusBadRequest, ErrCodeInvalidInput, catErr.Message
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests, ErrCodeRateLimitExceeded, catErr.Message
	}
	if catErr.StatusCode == http.StatusServiceUnavailable {
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, catErr.Message
	}
	return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
}
