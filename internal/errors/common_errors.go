package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeInvalidRange   ErrorType = "INVALID_RANGE"
	ErrTypeFetch          ErrorType = "FETCH"
	ErrTypeExtraction     ErrorType = "EXTRACTION"
	ErrTypeRecordNotFound ErrorType = "RECORD_NOT_FOUND"
	ErrTypeParse          ErrorType = "PARSE"
	ErrTypeWrite          ErrorType = "WRITE"
	ErrTypeValidation     ErrorType = "VALIDATION"
	ErrTypeNotFound       ErrorType = "NOT_FOUND"
	ErrTypeConfig         ErrorType = "CONFIG"
)

// ErrMultipleRecords is wrapped by an extraction error when strict mode finds
// more than one record entry in an archive.
var ErrMultipleRecords = errors.New("archive contains more than one record file")

// AppError represents an application-specific error
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

// Detail renders the error for end users: the message and the root cause,
// without the type tag.
func (e *AppError) Detail() string {
	if e.Cause == nil {
		return e.Message
	}
	var inner *AppError
	if errors.As(e.Cause, &inner) {
		return e.Message + ": " + inner.Detail()
	}
	return e.Message + ": " + e.Cause.Error()
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

// NewInvalidRangeError reports a batch whose start date falls after its end date.
func NewInvalidRangeError(message string) *AppError {
	return NewAppError(ErrTypeInvalidRange, message, nil)
}

// NewFetchError creates a network or HTTP failure for one archive.
func NewFetchError(message string, cause error) *AppError {
	return NewAppError(ErrTypeFetch, message, cause)
}

// NewExtractionError creates an unreadable-archive error.
func NewExtractionError(message string, cause error) *AppError {
	return NewAppError(ErrTypeExtraction, message, cause)
}

// NewRecordNotFoundError reports an archive without the expected record entry.
func NewRecordNotFoundError(suffix string) *AppError {
	return NewAppError(ErrTypeRecordNotFound, fmt.Sprintf("no %s entry in archive", suffix), nil)
}

// NewParseError creates a malformed-field error for an accepted record line.
func NewParseError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParse, message, cause)
}

// NewWriteError creates an output persistence error.
func NewWriteError(message string, cause error) *AppError {
	return NewAppError(ErrTypeWrite, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// IsType reports whether err wraps an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	if appErr.Type == errType {
		return true
	}
	return IsType(appErr.Cause, errType)
}

// TypeOf returns the type of the outermost AppError in err, or "" if none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}
