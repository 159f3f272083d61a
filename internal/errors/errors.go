package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound           = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists      = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation         = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation   = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied   = new(ErrCodePermissionDenied, "permission denied")
	ErrAuthRequired       = new(ErrCodeAuthRequired, "authentication required")
	ErrInvalidAPIKey      = new(ErrCodeInvalidAPIKey, "invalid api key")
	ErrRateLimited        = new(ErrCodeRateLimited, "rate limit exceeded")
	ErrServiceUnavailable = new(ErrCodeServiceUnavailable, "service unavailable")
	ErrDatabase           = new(ErrCodeDatabase, "database error")
	ErrSystem             = new(ErrCodeSystemError, "system error")
	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:           http.StatusNotFound,
		ErrAlreadyExists:      http.StatusConflict,
		ErrValidation:         http.StatusBadRequest,
		ErrInvalidOperation:   http.StatusBadRequest,
		ErrPermissionDenied:   http.StatusForbidden,
		ErrAuthRequired:       http.StatusUnauthorized,
		ErrInvalidAPIKey:      http.StatusUnauthorized,
		ErrRateLimited:        http.StatusTooManyRequests,
		ErrServiceUnavailable: http.StatusServiceUnavailable,
		ErrDatabase:           http.StatusInternalServerError,
		ErrSystem:             http.StatusInternalServerError,
	}
)

const (
	ErrCodeSystemError        = "system_error"
	ErrCodeNotFound           = "not_found"
	ErrCodeAlreadyExists      = "already_exists"
	ErrCodeValidation         = "validation_error"
	ErrCodeInvalidOperation   = "invalid_operation"
	ErrCodePermissionDenied   = "permission_denied"
	ErrCodeAuthRequired       = "authentication_required"
	ErrCodeInvalidAPIKey      = "invalid_api_key"
	ErrCodeRateLimited        = "rate_limit_exceeded"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeDatabase           = "database_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsPermissionDenied checks if an error is a permission denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsDatabase checks if an error is a database error
func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// ErrCodeFromErr returns the machine-readable code of the sentinel the
// error is marked with.
func ErrCodeFromErr(err error) string {
	for e := range statusCodeMap {
		if errors.Is(err, e) {
			if ie, ok := e.(*InternalError); ok {
				return ie.Code
			}
		}
	}
	return ErrCodeSystemError
}
