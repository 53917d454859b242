// Package errors provides the structured error type used by the catalog.
// Every error carries a category, a code, a message and a retryable hint so
// callers can tell malformed input apart from missing rows and backend faults.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies an error by the kind of fault it reports.
type ErrorCategory string

const (
	// ErrCategoryValidation reports malformed caller input. It is always
	// detected before any storage call.
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	// ErrCategoryNotFound reports a lookup with no matching row.
	ErrCategoryNotFound   ErrorCategory = "NOT_FOUND"
	// ErrCategoryStorage reports a failure in the storage or loader collaborator.
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeEmptyConstraints  = "EMPTY_CONSTRAINTS"
	CodeInvalidConstraint = "INVALID_CONSTRAINT"
	CodeUnresolvedColumn  = "UNRESOLVED_COLUMN"
	CodeInvalidChunkSize  = "INVALID_CHUNK_SIZE"
	CodeInvalidLimit      = "INVALID_LIMIT"
	CodeParseError        = "PARSE_ERROR"
	CodeInvalidArgument   = "INVALID_ARGUMENT"

	// Not found codes
	CodeSkyGroupNotFound       = "SKY_GROUP_NOT_FOUND"
	CodeKicNotFound            = "KIC_NOT_FOUND"
	CodeCharacteristicNotFound = "CHARACTERISTIC_NOT_FOUND"

	// Storage codes
	CodeQueryFailed         = "QUERY_FAILED"
	CodeWriteFailed         = "WRITE_FAILED"
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeConnectionFailed    = "CONNECTION_FAILED"
	CodeLoadFailed          = "LOAD_FAILED"
	CodeSnapshotFailed      = "SNAPSHOT_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// CatalogError is the structured error type used throughout the system.
type CatalogError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *CatalogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CatalogError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *CatalogError) Is(target error) bool {
	var t *CatalogError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new CatalogError.
func New(category ErrorCategory, code, message string) *CatalogError {
	return &CatalogError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new CatalogError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *CatalogError {
	return &CatalogError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *CatalogError) WithDetails(details map[string]interface{}) *CatalogError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
// The catalog itself never retries; the flag is a hint for callers.
func IsRetryable(err error) bool {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a CatalogError.
func GetCategory(err error) ErrorCategory {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a CatalogError.
func GetCode(err error) string {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsInvalidArgument reports whether err is a validation error.
func IsInvalidArgument(err error) bool {
	return GetCategory(err) == ErrCategoryValidation
}

// IsNotFound reports whether err reports a missing row.
func IsNotFound(err error) bool {
	return GetCategory(err) == ErrCategoryNotFound
}

// IsStorage reports whether err came from the storage collaborator.
func IsStorage(err error) bool {
	return GetCategory(err) == ErrCategoryStorage
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeConnectionFailed:
		return true
	case category == ErrCategoryStorage && code == CodeSnapshotFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *CatalogError {
	return New(ErrCategoryValidation, code, message)
}

// InvalidArgumentf builds a generic validation error from a format string.
func InvalidArgumentf(format string, args ...interface{}) *CatalogError {
	return New(ErrCategoryValidation, CodeInvalidArgument, fmt.Sprintf(format, args...))
}

func NewNotFoundError(code, message string) *CatalogError {
	return New(ErrCategoryNotFound, code, message)
}

func NewStorageError(code, message string, cause error) *CatalogError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *CatalogError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
