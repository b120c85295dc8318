package model

import (
	"errors"
	"fmt"
)

// Common errors used across the application
var (
	// Session and OTP errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrOtpExpired      = errors.New("otp expired")
	ErrOtpMismatch     = errors.New("otp mismatch")
	ErrNotVerified     = errors.New("session not verified")

	// Player errors
	ErrPlayerNotFound  = errors.New("player not found")
	ErrPlayerExists    = errors.New("player already exists")
	ErrVersionConflict = errors.New("player was modified concurrently")

	// Reward errors
	ErrCodeNotFound     = errors.New("discount code not found")
	ErrNoMatchingCodes  = errors.New("no matching players for discount codes")
	ErrInvalidTier      = errors.New("invalid reward tier")
	ErrCustomerNotFound = errors.New("customer not found")
)

// ValidationError reports a bad input field
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ExternalServiceError reports a failed call to the loyalty platform,
// the SMS gateway or the wallet credit API
type ExternalServiceError struct {
	Service    string
	Op         string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the external service answered 404
func (e *ExternalServiceError) IsNotFound() bool {
	return e.StatusCode == 404
}
