package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Message != "configuration is invalid" {
			t.Errorf("Message = %q, want %q", err.Message, "configuration is invalid")
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets correct retryable defaults", func(t *testing.T) {
		if !NewError(ErrCodeLockTimeout, "locked").Retryable {
			t.Error("LockTimeout should be retryable by default")
		}
		if !NewError(ErrCodeConnectionTimeout, "timeout").Retryable {
			t.Error("ConnectionTimeout should be retryable by default")
		}
		if NewError(ErrCodeObjectNotFound, "missing").Retryable {
			t.Error("ObjectNotFound should not be retryable by default")
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeUnknownStorageType, CategoryConfiguration},
		{ErrCodeConnectionFailed, CategoryConnection},
		{ErrCodeNetworkError, CategoryConnection},
		{ErrCodeObjectNotFound, CategoryStorage},
		{ErrCodeAccessDenied, CategoryStorage},
		{ErrCodeFileNotFound, CategoryFilesystem},
		{ErrCodeDiskFull, CategoryResource},
		{ErrCodeLockTimeout, CategoryOperation},
		{ErrCodeInternalError, CategoryInternal},
		{ErrorCode("SOMETHING_ELSE"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestCodeNumbersAreUnique(t *testing.T) {
	seen := make(map[int]ErrorCode)
	for code, n := range codeNumbers {
		if prev, ok := seen[n]; ok {
			t.Errorf("codes %s and %s share number %d", prev, code, n)
		}
		seen[n] = code
	}
	if ErrorCode("NOPE").Number() != 9999 {
		t.Error("unknown code should map to 9999")
	}
}

func TestStorageError_Error(t *testing.T) {
	err := NewError(ErrCodeObjectNotFound, "object not found").
		WithComponent("s3").
		WithOperation("GetObject").
		WithBucket("products").
		WithPath("a/b.zip")

	msg := err.Error()
	for _, want := range []string{"[s3:GetObject]", "OBJECT_NOT_FOUND(3001)", "bucket=products", "path=a/b.zip"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestStorageError_IsAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewError(ErrCodeStorageRead, "read failed").WithCause(cause)
	wrapped := fmt.Errorf("outer: %w", err)

	if !errors.Is(wrapped, NewError(ErrCodeStorageRead, "")) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(wrapped, NewError(ErrCodeStorageWrite, "")) {
		t.Error("errors.Is should not match a different code")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if Code(wrapped) != ErrCodeStorageRead {
		t.Errorf("Code() = %v", Code(wrapped))
	}
	if Code(cause) != ErrCodeInternalError {
		t.Errorf("Code() of plain error = %v", Code(cause))
	}
	if !HasCode(wrapped, ErrCodeStorageRead) {
		t.Error("HasCode should find the code through wrapping")
	}
}

func TestHasCode_NestedStorageErrors(t *testing.T) {
	inner := NewError(ErrCodeNetworkError, "slow down")
	outer := Newf(ErrCodeRetryExhausted, "max retry attempts (%d) exceeded", 3).WithCause(inner)

	if Code(outer) != ErrCodeRetryExhausted {
		t.Errorf("Code() = %v, want the outermost code", Code(outer))
	}
	for _, code := range []ErrorCode{ErrCodeRetryExhausted, ErrCodeNetworkError} {
		if !HasCode(outer, code) {
			t.Errorf("HasCode(%v) = false", code)
		}
	}
	if HasCode(outer, ErrCodeObjectNotFound) {
		t.Error("HasCode matched a code absent from the chain")
	}
	if HasCode(nil, ErrCodeNetworkError) {
		t.Error("HasCode(nil) = true")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("x: %w", NewError(ErrCodeNetworkError, "net"))) {
		t.Error("network error should be retryable")
	}
	if IsRetryable(NewError(ErrCodeNetworkError, "net").WithRetryable(false)) {
		t.Error("override should win")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors are never retryable")
	}
}

func TestFromOSError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		write bool
		want  ErrorCode
	}{
		{"not exist", fs.ErrNotExist, false, ErrCodeFileNotFound},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, true, ErrCodePermissionDenied},
		{"no space", &fs.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, true, ErrCodeDiskFull},
		{"other read", fmt.Errorf("io"), false, ErrCodeStorageRead},
		{"other write", fmt.Errorf("io"), true, ErrCodeStorageWrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromOSError("open", "/x", tt.err, tt.write)
			if got.Code != tt.want {
				t.Errorf("code = %v, want %v", got.Code, tt.want)
			}
			if got.Path != "/x" {
				t.Errorf("path = %q", got.Path)
			}
		})
	}
}
