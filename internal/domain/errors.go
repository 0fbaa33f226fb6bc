// Package domain defines core types, interfaces, and errors for the property dashboard.
package domain

import (
	"fmt"
	"time"
)

// Stable machine codes surfaced to callers alongside human-readable messages.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeMissingSession     = "MISSING_SESSION"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeNoFile             = "NO_FILE"
	CodeInvalidFileType    = "INVALID_FILE_TYPE"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeEncodingError      = "ENCODING_ERROR"
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeMissingColumns     = "MISSING_COLUMNS"
	CodeEmptyData          = "EMPTY_DATA"
	CodeProcessing         = "PROCESSING_ERROR"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeSessionCorrupt     = "SESSION_CORRUPT"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeInternal           = "INTERNAL_ERROR"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates caller-supplied input was malformed.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ProcessingError indicates ingestion or transformation failed.
type ProcessingError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// StorageError indicates the session backend is unavailable or an entry is unreadable.
type StorageError struct {
	Code    string
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StorageError) Unwrap() error { return e.Err }

// RateLimitError indicates the admission controller denied the request.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "Too many requests. Please wait before trying again."
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with the given code and formatted message.
func ErrValidation(code, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrProcessing creates a ProcessingError with the given code and formatted message.
func ErrProcessing(code, format string, args ...interface{}) *ProcessingError {
	return &ProcessingError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrStorage creates a StorageError wrapping err.
func ErrStorage(code string, err error, format string, args ...interface{}) *StorageError {
	return &StorageError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}
