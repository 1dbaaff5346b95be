package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE_ERROR"
	ErrorTypeConflict       ErrorType = "CONFLICT_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"

	// Integrity domain
	ErrorTypeInvalidInput ErrorType = "INVALID_INPUT"
	ErrorTypeProbeFailed  ErrorType = "PROBE_FAILED"
	ErrorTypeIntegrity    ErrorType = "REFERENTIAL_INTEGRITY_VIOLATION"

	// Migration domain
	ErrorTypeMigrationAbort            ErrorType = "MIGRATION_ABORT"
	ErrorTypeMigrationPartial          ErrorType = "MIGRATION_PARTIAL"
	ErrorTypeMigrationValidationFailed ErrorType = "MIGRATION_VALIDATION_FAILED"
	ErrorTypeIndexConflict             ErrorType = "INDEX_CONFLICT"
)

// Common application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")
)

// Integrity and migration errors
var (
	ErrInvalidEntityID      = errors.New("invalid entity id")
	ErrUnknownParentType    = errors.New("unknown parent entity type")
	ErrProbeFailed          = errors.New("reference probe failed")
	ErrValidationTimeout    = errors.New("integrity validation timed out")
	ErrMigrationInProgress  = errors.New("migration already running for collection")
	ErrBackupFailed         = errors.New("backup collection copy failed")
	ErrIndexUniquenessClash = errors.New("index exists with conflicting uniqueness")
)

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common error constructors

// NewInvalidInputError rejects malformed identifiers or unknown entity types
// before any probe runs.
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrorTypeInvalidInput, message, http.StatusBadRequest)
}

// NewProbeFailedError marks a child-collection existence check that could not
// complete. Validation fails closed on this error.
func NewProbeFailedError(message string) *AppError {
	return NewAppError(ErrorTypeProbeFailed, message, http.StatusInternalServerError)
}

// NewIntegrityViolationError reports blocking child references. The blocking
// list travels in Details under "blocking_references".
func NewIntegrityViolationError(message string) *AppError {
	return NewAppError(ErrorTypeIntegrity, message, http.StatusConflict)
}

// NewMigrationAbortError marks a run that stopped before touching source data.
func NewMigrationAbortError(message string) *AppError {
	return NewAppError(ErrorTypeMigrationAbort, message, http.StatusInternalServerError)
}

// NewMigrationPartialError marks a run that completed with per-document failures.
func NewMigrationPartialError(message string) *AppError {
	return NewAppError(ErrorTypeMigrationPartial, message, http.StatusInternalServerError)
}

// NewMigrationValidationError marks a run whose post-migration invariants did
// not all hold. The backup is retained for operator remediation.
func NewMigrationValidationError(message string) *AppError {
	return NewAppError(ErrorTypeMigrationValidationFailed, message, http.StatusInternalServerError)
}

// NewIndexConflictError marks a uniqueness constraint that cannot be created.
func NewIndexConflictError(message string) *AppError {
	return NewAppError(ErrorTypeIndexConflict, message, http.StatusConflict)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewInfrastructureError creates an infrastructure error
func NewInfrastructureError(message string) *AppError {
	return NewAppError(ErrorTypeInfrastructure, message, http.StatusInternalServerError)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, http.StatusConflict)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// Helper functions for common error scenarios

// WrapError wraps an error with context
func WrapError(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// HTTPStatus resolves the HTTP status code for an error, defaulting to 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	return http.StatusInternalServerError
}

// IsInvalidInput checks if an error rejects the request before any probe ran
func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeInvalidInput || appErr.Type == ErrorTypeValidation
	}
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidEntityID) || errors.Is(err, ErrUnknownParentType)
}

// IsProbeFailed checks if an error is a failed existence probe
func IsProbeFailed(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeProbeFailed
	}
	return errors.Is(err, ErrProbeFailed) || errors.Is(err, ErrValidationTimeout)
}

// IsIntegrityViolation checks if an error carries blocking references
func IsIntegrityViolation(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeIntegrity
	}
	return false
}

// IsIndexConflict checks if an error is an index uniqueness conflict
func IsIndexConflict(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeIndexConflict
	}
	return errors.Is(err, ErrIndexUniquenessClash)
}

// IsMigrationAbort checks if an error aborted a run before source mutation
func IsMigrationAbort(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeMigrationAbort
	}
	return errors.Is(err, ErrBackupFailed)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeNotFound
	}
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeConflict || appErr.Type == ErrorTypeIndexConflict || appErr.Type == ErrorTypeIntegrity
	}
	return errors.Is(err, ErrConflict)
}
