// Package errors provides standardized error handling for the wizard API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeSchemaViolation  ErrorCode = "SCHEMA_VALIDATION_FAILED"
	ErrCodeUnknownSurface   ErrorCode = "UNKNOWN_SURFACE"
	ErrCodeInvalidStep      ErrorCode = "INVALID_STEP"
	ErrCodeInvalidIndex     ErrorCode = "INVALID_INDEX"
	ErrCodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSkipDisabled     ErrorCode = "SKIP_DISABLED"
	ErrCodeNotOnFinalStep   ErrorCode = "NOT_ON_FINAL_STEP"
	ErrCodeNoChanges        ErrorCode = "NO_CHANGES"
	ErrCodeTransitionBusy   ErrorCode = "TRANSITION_IN_FLIGHT"
	ErrCodeStepValidation   ErrorCode = "STEP_VALIDATION_FAILED"
	ErrCodePersistFailed    ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeSubmitFailed     ErrorCode = "SUBMIT_FAILED"
	ErrCodeApplicationFetch ErrorCode = "APPLICATION_FETCH_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeCacheConnectionFailed    ErrorCode = "CACHE_CONNECTION_FAILED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error's metadata and returns e.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	e := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewInvalidRequestError reports a body that could not be decoded.
func NewInvalidRequestError(details string) *StandardError {
	e := newError(ErrCodeInvalidRequest, "Invalid request", nil, false)
	e.Details = details
	return e
}

// NewSchemaViolationError reports a body that failed its JSON schema.
func NewSchemaViolationError(messages []string) *StandardError {
	e := newError(ErrCodeSchemaViolation, "Request body does not match schema", nil, false)
	e.Details = strings.Join(messages, "; ")
	return e.WithMetadata("violations", messages)
}

func NewSessionNotFoundError(sessionID string) *StandardError {
	e := newError(ErrCodeSessionNotFound, "Wizard session not found", nil, false)
	e.Details = fmt.Sprintf("session %s does not exist or has expired", sessionID)
	return e
}

func NewInvalidIndexError(collection string, index int) *StandardError {
	e := newError(ErrCodeInvalidIndex, "Index out of range", nil, false)
	e.Details = fmt.Sprintf("%s index %d is out of range", collection, index)
	return e
}

// NewWizardError wraps a wizard failure under code. Persistence codes are
// retryable.
func NewWizardError(code ErrorCode, err error) *StandardError {
	return newError(code, messageOf(err), err, IsRetryableErrorCode(code))
}

func NewApplicationFetchError(err error) *StandardError {
	return newError(ErrCodeApplicationFetch, "Failed to load application", err, true)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection failed", err, true)
}

func NewCacheConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeCacheConnectionFailed, "Cache connection failed", err, true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// messageOf returns the outermost message of a wrapped "%w: detail" chain.
func messageOf(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if inner := errors.Unwrap(err); inner != nil && strings.HasPrefix(msg, inner.Error()) {
		return inner.Error()
	}
	if i := strings.Index(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}

// ==========================
// 3. Utility Functions
// ==========================

// HTTPStatus maps an error code to the response status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeSchemaViolation, ErrCodeUnknownSurface,
		ErrCodeInvalidStep, ErrCodeInvalidIndex:
		return http.StatusBadRequest
	case ErrCodeSessionNotFound:
		return http.StatusNotFound
	case ErrCodeSkipDisabled:
		return http.StatusForbidden
	case ErrCodeNotOnFinalStep, ErrCodeNoChanges, ErrCodeTransitionBusy:
		return http.StatusConflict
	case ErrCodeStepValidation:
		return http.StatusUnprocessableEntity
	case ErrCodePersistFailed, ErrCodeSubmitFailed, ErrCodeApplicationFetch:
		return http.StatusBadGateway
	case ErrCodeDatabaseConnectionFailed, ErrCodeCacheConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryableErrorCode reports whether a client may repeat the request as is.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeTransitionBusy, ErrCodePersistFailed, ErrCodeSubmitFailed,
		ErrCodeApplicationFetch, ErrCodeDatabaseConnectionFailed, ErrCodeCacheConnectionFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CACHE"):
		return "STORAGE"
	case strings.Contains(codeStr, "PERSIST") || strings.Contains(codeStr, "SUBMIT") || strings.Contains(codeStr, "FETCH"):
		return "PERSISTENCE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "SURFACE"):
		return "VALIDATION"
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "STEP") || strings.Contains(codeStr, "TRANSITION") ||
		strings.Contains(codeStr, "SKIP") || strings.Contains(codeStr, "CHANGES"):
		return "NAVIGATION"
	default:
		return "OTHER"
	}
}

// AsStandardError returns the StandardError in err's chain, or wraps err as
// an internal error.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}
