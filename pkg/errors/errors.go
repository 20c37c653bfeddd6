package errors

import (
	stderrors "errors"
	"fmt"
)

// Error types for the character sync service
var (
	// ErrAuthentication is returned when the third-party provider rejects the
	// supplied credentials. The reason is user-correctable and surfaced verbatim.
	ErrAuthentication = &ServiceError{
		Code:    "AUTHENTICATION_FAILED",
		Message: "Invalid external account credentials",
		Status:  401,
	}

	ErrSessionExpired = &ServiceError{
		Code:    "SESSION_EXPIRED",
		Message: "External session expired or invalid",
		Status:  401,
	}

	ErrUpstreamUnavailable = &ServiceError{
		Code:    "UPSTREAM_UNAVAILABLE",
		Message: "Character provider is unavailable",
		Status:  502,
	}

	ErrDecodeExhausted = &ServiceError{
		Code:    "DECODE_FAILED",
		Message: "Failed to read character data",
		Status:  422,
	}

	ErrNotFound = &ServiceError{
		Code:    "NOT_FOUND",
		Message: "Character not found",
		Status:  404,
	}

	ErrInvalidShareKey = &ServiceError{
		Code:    "INVALID_SHARE_KEY",
		Message: "Invalid share key",
		Status:  400,
	}

	// ErrCorruptSecret and ErrDecryption never carry ciphertext or plaintext.
	ErrCorruptSecret = &ServiceError{
		Code:    "CORRUPT_SECRET",
		Message: "Stored credentials are unreadable",
		Status:  500,
	}

	ErrDecryption = &ServiceError{
		Code:    "DECRYPTION_FAILED",
		Message: "Stored credentials are unreadable",
		Status:  500,
	}

	ErrNoStoredCredentials = &ServiceError{
		Code:    "NO_STORED_CREDENTIALS",
		Message: "No linked external account credentials",
		Status:  409,
	}

	// ErrInvalidRequest is used for syntactically invalid requests (missing or
	// malformed parameters) where a 400 response is appropriate.
	ErrInvalidRequest = &ServiceError{
		Code:    "INVALID_REQUEST",
		Message: "Invalid request",
		Status:  400,
	}

	ErrUnauthorized = &ServiceError{
		Code:    "UNAUTHORIZED",
		Message: "Missing or invalid bearer token",
		Status:  401,
	}

	ErrRateLimitExceeded = &ServiceError{
		Code:    "RATE_LIMIT_EXCEEDED",
		Message: "Rate limit exceeded",
		Status:  429,
	}

	ErrInternalServer = &ServiceError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "Internal server error",
		Status:  500,
	}
)

// ServiceError represents a service-level error
type ServiceError struct {
	Code    string
	Message string
	Status  int
	Reason  string
	Err     error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ServiceError with the same code, so wrapped
// copies still match the package sentinels.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Description is the message shown to API callers.
func (e *ServiceError) Description() string {
	if e.Reason != "" {
		return e.Message + ": " + e.Reason
	}
	return e.Message
}

// Wrap wraps an error with a ServiceError
func Wrap(err error, serviceErr *ServiceError) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: serviceErr.Message,
		Status:  serviceErr.Status,
		Reason:  serviceErr.Reason,
		Err:     err,
	}
}

// WithReason copies serviceErr and attaches a human-readable reason.
func WithReason(serviceErr *ServiceError, reason string) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: serviceErr.Message,
		Status:  serviceErr.Status,
		Reason:  reason,
		Err:     serviceErr.Err,
	}
}

// As extracts the first ServiceError in err's chain. Errors outside the
// taxonomy are reported as internal errors.
func As(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return Wrap(err, ErrInternalServer)
}
