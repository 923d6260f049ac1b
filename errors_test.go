package coopvm

import (
	"errors"
	"syscall"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("reactor", "submit", ErrCodeValidationFailure, "invalid budget")

	if err.Op != "submit" {
		t.Errorf("Expected Op=submit, got %s", err.Op)
	}
	if err.Code != ErrCodeValidationFailure {
		t.Errorf("Expected Code=ErrCodeValidationFailure, got %s", err.Code)
	}

	expected := "coopvm: invalid budget (stage=reactor)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrnoError(t *testing.T) {
	err := NewErrnoError("facade", "run_tick", syscall.EPERM)

	if err.Errno != syscall.EPERM {
		t.Errorf("Expected Errno=EPERM, got %v", err.Errno)
	}
	if err.Code != ErrCodePermissionDenied {
		t.Errorf("Expected Code=ErrCodePermissionDenied, got %s", err.Code)
	}
}

func TestWrapError(t *testing.T) {
	inner := syscall.EIO
	err := WrapError("vblk_queue", "vblk_read", inner)

	if err.Code != ErrCodeVBLKIOFailure {
		t.Errorf("Expected Code=ErrCodeVBLKIOFailure, got %s", err.Code)
	}
	if err.Errno != syscall.EIO {
		t.Errorf("Expected Errno=EIO, got %v", err.Errno)
	}
	if !errors.Is(err, syscall.EIO) {
		t.Error("Expected wrapped error to satisfy errors.Is for EIO")
	}
}

func TestWrapErrorPreservesStructuredFields(t *testing.T) {
	inner := NewError("tty", "vtty_push", ErrCodeTTYTransientFailure, "push failed")
	wrapped := WrapError("tick", "tty_bridge", inner)

	if wrapped.Code != ErrCodeTTYTransientFailure {
		t.Errorf("Expected code to carry through wrap, got %s", wrapped.Code)
	}
	if wrapped.Op != "tty_bridge" {
		t.Errorf("Expected Op to be overwritten to tty_bridge, got %s", wrapped.Op)
	}
}

func TestBackwardCompatibility(t *testing.T) {
	var legacyErr error = ErrTimeout
	structuredErr := &Error{Code: ErrCodeTimeout}

	if !errors.Is(structuredErr, ErrTimeout) {
		t.Error("Structured error should be compatible with legacy RuntimeError")
	}
	if legacyErr.Error() != "timeout" {
		t.Errorf("Expected legacy error message, got %q", legacyErr.Error())
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("tick", "run_tick", ErrCodeTimeout, "deadline elapsed")

	if !IsCode(err, ErrCodeTimeout) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeVBLKIOFailure) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeTimeout) {
		t.Error("IsCode should return false for nil error")
	}
}

func TestIsErrno(t *testing.T) {
	err := NewErrnoError("vblk_ring", "vblk_write", syscall.EIO)

	if !IsErrno(err, syscall.EIO) {
		t.Error("IsErrno should return true for matching errno")
	}
	if IsErrno(err, syscall.EPERM) {
		t.Error("IsErrno should return false for non-matching errno")
	}
	if IsErrno(nil, syscall.EIO) {
		t.Error("IsErrno should return false for nil error")
	}
}

func TestErrnoMapping(t *testing.T) {
	testCases := []struct {
		errno    syscall.Errno
		expected ErrorCode
	}{
		{syscall.EINVAL, ErrCodeValidationFailure},
		{syscall.EIO, ErrCodeVBLKIOFailure},
		{syscall.ETIMEDOUT, ErrCodeTimeout},
		{syscall.EPERM, ErrCodePermissionDenied},
		{syscall.ENOMEM, ErrCodeInsufficientMemory},
	}

	for _, tc := range testCases {
		code := mapErrnoToCode(tc.errno)
		if code != tc.expected {
			t.Errorf("mapErrnoToCode(%v) = %s, want %s", tc.errno, code, tc.expected)
		}
	}
}
