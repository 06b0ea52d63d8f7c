package errors

import (
	"fmt"
)

// ErrorType represents the subsystem an AppError originated in
type ErrorType string

const (
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeMetrics    ErrorType = "METRICS"
	ErrTypeScheduler  ErrorType = "SCHEDULER"
	ErrTypeLogging    ErrorType = "LOGGING"
	ErrTypeAPISpec    ErrorType = "API_SPEC"
	ErrTypeUpload     ErrorType = "UPLOAD"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
)

// AppError represents an application-specific error. Startup failures are
// reported as AppErrors so the entry point can name the failing subsystem.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewMetricsError creates a metrics bootstrap error
func NewMetricsError(message string, cause error) *AppError {
	return NewAppError(ErrTypeMetrics, message, cause)
}

// NewSchedulerError creates a scheduler error
func NewSchedulerError(message string, cause error) *AppError {
	return NewAppError(ErrTypeScheduler, message, cause)
}

// NewLoggingError creates a logging configuration error
func NewLoggingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeLogging, message, cause)
}

// NewAPISpecError creates an API description loading error
func NewAPISpecError(message string, cause error) *AppError {
	return NewAppError(ErrTypeAPISpec, message, cause)
}

// NewUploadError creates an upload configuration error
func NewUploadError(message string, cause error) *AppError {
	return NewAppError(ErrTypeUpload, message, cause)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}
