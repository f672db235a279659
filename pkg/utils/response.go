package utils

import (
	"encoding/json"
	"net/http"

	"galleria/pkg/logger"
)

const (
	// Request Error Codes
	ErrRequestInvalid           = "request/invalid_parameters"
	ErrRequestRateLimitExceeded = "request/rate_limit_exceeded"
	ErrRequestForbidden         = "request/forbidden"

	ErrRequestBodyTooLarge     = "request/body_too_large"
	ErrRequestUnSupportedMedia = "request/invalid_media"

	// Auth Error Codes
	ErrAuthRequired        = "auth/authentication_required"
	ErrAuthInvalid         = "auth/invalid_credentials"
	ErrAuthTokenInvalid    = "auth/invalid_token"
	ErrAuthRateLimitExceed = "auth/rate_limit_exceeded"

	// Server Error Codes
	ErrServerInternal    = "server/internal_error"
	ErrServerTimeout     = "server/timeout"
	ErrServerUnavailable = "server/feature_unavailable"

	// Validation & Resource Error Codes
	ErrValidationFailed        = "validation/failed"
	ErrValidationInvalidFormat = "validation/invalid_format"
	ErrResourceNotFound        = "resource/not_found"

	// Others
	ErrStorageFailed = "storage/failed"

	ErrBackupConcurrencyLimit = "backup/concurrency_limit"
)

type APIError struct {
	Code    string            `json:"code"`             // e.g., "request/invalid_parameters"
	Message string            `json:"message"`          // User-friendly message
	Status  int               `json:"status"`           // HTTP Status Code
	Fields  map[string]string `json:"fields,omitempty"` // Field-level validation messages
}

// WriteError sends a JSON formatted error response
func WriteError(w http.ResponseWriter, status int, code string, message string) {
	if status >= http.StatusInternalServerError {
		logger.LogError("%s: %s", code, message)
	} else {
		logger.LogDebug("%s: %s", code, message)
	}
	WriteJSON(w, status, APIError{
		Code:    code,
		Message: message,
		Status:  status,
	})
}

// WriteValidationError reports request-shape problems per field with a 400.
func WriteValidationError(w http.ResponseWriter, fields map[string]string) {
	WriteJSON(w, http.StatusBadRequest, APIError{
		Code:    ErrValidationFailed,
		Message: "Some fields are invalid.",
		Status:  http.StatusBadRequest,
		Fields:  fields,
	})
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
