package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/dicefunnel/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeSessionExpired  = "SESSION_EXPIRED"
	CodeOtpExpired      = "OTP_EXPIRED"
	CodeOtpMismatch     = "OTP_MISMATCH"
	CodeNotVerified     = "NOT_VERIFIED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status err maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, verr.Error()}}
	}

	switch {
	case errors.Is(err, model.ErrSessionExpired), errors.Is(err, model.ErrSessionNotFound):
		return &httpError{http.StatusBadRequest, APIError{CodeSessionExpired, "Session expired, please start again"}}
	case errors.Is(err, model.ErrOtpExpired):
		return &httpError{http.StatusBadRequest, APIError{CodeOtpExpired, "OTP has expired, please request a new one"}}
	case errors.Is(err, model.ErrOtpMismatch):
		return &httpError{http.StatusBadRequest, APIError{CodeOtpMismatch, "Invalid OTP"}}
	case errors.Is(err, model.ErrNotVerified):
		return &httpError{http.StatusUnauthorized, APIError{CodeNotVerified, "Please verify OTP first"}}
	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, "Player not found"}}
	case errors.Is(err, model.ErrCodeNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, "Discount code not found"}}
	case errors.Is(err, model.ErrNoMatchingCodes):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, "No matching users found for discount codes"}}
	case errors.Is(err, model.ErrCustomerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, "Customer not found"}}
	case errors.Is(err, model.ErrVersionConflict):
		return &httpError{http.StatusConflict, APIError{CodeConflict, "Record was modified concurrently, please retry"}}
	}

	var extErr *model.ExternalServiceError
	if errors.As(err, &extErr) {
		return &httpError{http.StatusBadGateway, APIError{CodeExternalService, extErr.Service + " is unavailable"}}
	}

	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// NewInternalErrorRef creates an internal server error quoting a request id
func NewInternalErrorRef(requestID string) error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error (request " + requestID + ")"}}
}
