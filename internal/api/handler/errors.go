package handler

import (
	"net/http"

	"github.com/mcoot/dicefunnel/internal/api/apierr"
)

// Re-export from apierr for convenience
type APIError = apierr.APIError
type ErrorResponse = apierr.ErrorResponse

// Re-export error codes
const (
	CodeInvalidRequest  = apierr.CodeInvalidRequest
	CodeSessionExpired  = apierr.CodeSessionExpired
	CodeOtpExpired      = apierr.CodeOtpExpired
	CodeOtpMismatch     = apierr.CodeOtpMismatch
	CodeNotVerified     = apierr.CodeNotVerified
	CodeUnauthorized    = apierr.CodeUnauthorized
	CodeNotFound        = apierr.CodeNotFound
	CodeConflict        = apierr.CodeConflict
	CodeExternalService = apierr.CodeExternalService
	CodeInternalError   = apierr.CodeInternalError
)

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return apierr.NewUnauthorizedError()
}
