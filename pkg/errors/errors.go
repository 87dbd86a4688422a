// Package errors provides the structured error type used by the storage manager.
// Every failure that leaves a backend, the file cache or the download lock carries
// a stable code, a category and the offending path or bucket.
package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
	"time"
)

// ErrorCode represents a structured error code for storage operations.
type ErrorCode string

// Error code constants organized by category with numeric prefixes for sorting.
const (
	// Configuration Errors (1000-1999)
	ErrCodeInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig      ErrorCode = "MISSING_CONFIG"
	ErrCodeUnknownStorageType ErrorCode = "UNKNOWN_STORAGE_TYPE"

	// Connection Errors (2000-2999)
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Storage Backend Errors (3000-3999)
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"

	// Filesystem Errors (4000-4999)
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodePathInvalid      ErrorCode = "PATH_INVALID"
	ErrCodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"

	// Resource Errors (5000-5999)
	ErrCodeDiskFull  ErrorCode = "DISK_FULL"
	ErrCodeCacheFull ErrorCode = "CACHE_FULL"

	// Operation Errors (7000-7999)
	ErrCodeLockTimeout       ErrorCode = "LOCK_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"

	// Internal System Errors (9000-9999)
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

var codeNumbers = map[ErrorCode]int{
	ErrCodeInvalidConfig:      1001,
	ErrCodeMissingConfig:      1002,
	ErrCodeUnknownStorageType: 1003,

	ErrCodeConnectionFailed:  2001,
	ErrCodeConnectionTimeout: 2002,
	ErrCodeNetworkError:      2003,

	ErrCodeObjectNotFound: 3001,
	ErrCodeBucketNotFound: 3002,
	ErrCodeStorageRead:    3003,
	ErrCodeStorageWrite:   3004,
	ErrCodeAccessDenied:   3005,

	ErrCodePermissionDenied: 4001,
	ErrCodePathInvalid:      4002,
	ErrCodeFileNotFound:     4003,

	ErrCodeDiskFull:  5001,
	ErrCodeCacheFull: 5002,

	ErrCodeLockTimeout:       7001,
	ErrCodeOperationCanceled: 7002,
	ErrCodeRetryExhausted:    7003,

	ErrCodeInternalError: 9001,
}

// Number returns the stable numeric value of the code. Unknown codes map to 9999.
func (c ErrorCode) Number() int {
	if n, ok := codeNumbers[c]; ok {
		return n
	}
	return 9999
}

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryResource      ErrorCategory = "resource"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// StorageError represents a structured error with context and metadata.
type StorageError struct {
	Code     ErrorCode
	Category ErrorCategory
	Message  string
	Details  map[string]interface{}

	// Where it happened
	Path      string
	Bucket    string
	Component string
	Operation string

	Cause     error
	Timestamp time.Time
	Retryable bool
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString("[")
		b.WriteString(e.Component)
		if e.Operation != "" {
			b.WriteString(":")
			b.WriteString(e.Operation)
		}
		b.WriteString("] ")
	}
	fmt.Fprintf(&b, "%s(%d): %s", e.Code, e.Code.Number(), e.Message)
	if e.Bucket != "" {
		fmt.Fprintf(&b, " bucket=%s", e.Bucket)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *StorageError) Is(target error) bool {
	if t, ok := target.(*StorageError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new storage error with default values.
func NewError(code ErrorCode, message string) *StorageError {
	return &StorageError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// Newf is NewError with a format string.
func Newf(code ErrorCode, format string, args ...interface{}) *StorageError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch n := code.Number(); {
	case n >= 1000 && n < 2000:
		return CategoryConfiguration
	case n >= 2000 && n < 3000:
		return CategoryConnection
	case n >= 3000 && n < 4000:
		return CategoryStorage
	case n >= 4000 && n < 5000:
		return CategoryFilesystem
	case n >= 5000 && n < 6000:
		return CategoryResource
	case n >= 7000 && n < 8000:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeNetworkError,
		ErrCodeLockTimeout, ErrCodeInternalError:
		return true
	}
	return false
}

// WithPath records the offending path.
func (e *StorageError) WithPath(path string) *StorageError {
	e.Path = path
	return e
}

// WithBucket records the offending bucket.
func (e *StorageError) WithBucket(bucket string) *StorageError {
	e.Bucket = bucket
	return e
}

// WithDetail adds detailed information to an error
func (e *StorageError) WithDetail(key string, value interface{}) *StorageError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *StorageError) WithComponent(component string) *StorageError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *StorageError) WithOperation(operation string) *StorageError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *StorageError) WithCause(cause error) *StorageError {
	e.Cause = cause
	return e
}

// WithRetryable overrides the default retry hint.
func (e *StorageError) WithRetryable(retryable bool) *StorageError {
	e.Retryable = retryable
	return e
}

// Code extracts the code of the first StorageError in err's chain.
// Errors that are not StorageErrors report ErrCodeInternalError.
func Code(err error) ErrorCode {
	var se *StorageError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternalError
}

// HasCode reports whether any StorageError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &StorageError{Code: code})
}

// IsRetryable reports whether err is a StorageError flagged retryable.
func IsRetryable(err error) bool {
	var se *StorageError
	return stderrors.As(err, &se) && se.Retryable
}

// FromOSError wraps a filesystem error. write selects STORAGE_WRITE over
// STORAGE_READ for failures that are neither missing files nor permissions.
func FromOSError(op, path string, err error, write bool) *StorageError {
	code := ErrCodeStorageRead
	if write {
		code = ErrCodeStorageWrite
	}
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		code = ErrCodeFileNotFound
	case stderrors.Is(err, fs.ErrPermission):
		code = ErrCodePermissionDenied
	case stderrors.Is(err, syscall.ENOSPC):
		code = ErrCodeDiskFull
	}
	return NewError(code, op+" failed").
		WithOperation(op).
		WithPath(path).
		WithCause(err)
}
