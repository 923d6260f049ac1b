package coopvm

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured runtime error carrying the failing operation, an
// error category, and an optional platform errno.
type Error struct {
	Op    string    // operation that failed (e.g. "run_tick", "vblk_read")
	Stage string    // subsystem ("reactor", "facade", "vblk_queue", "vblk_ring", "tty")
	Code  ErrorCode // high-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string

	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("coopvm: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("coopvm: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports both legacy RuntimeError string comparison and structured
// Error comparison by category.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if re, ok := target.(RuntimeError); ok {
		return e.Code == ErrorCode(re)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is a high-level error category matching the taxonomy in §7.
type ErrorCode string

const (
	ErrCodeDeviceOpenFailure    ErrorCode = "device open failure"
	ErrCodeSubmissionFailure    ErrorCode = "submission failure"
	ErrCodeControlOpFailure     ErrorCode = "control operation failure"
	ErrCodeTimeout              ErrorCode = "timeout"
	ErrCodeValidationFailure    ErrorCode = "validation failure"
	ErrCodeShortRead            ErrorCode = "short read"
	ErrCodeVBLKIOFailure        ErrorCode = "vblk i/o failure"
	ErrCodeTTYTransientFailure  ErrorCode = "tty transient failure"
	ErrCodePermissionDenied     ErrorCode = "permission denied"
	ErrCodeInsufficientMemory   ErrorCode = "insufficient memory"
)

// RuntimeError is a legacy string-typed error kept for callers that match
// on sentinel values rather than the structured Error.
type RuntimeError string

func (e RuntimeError) Error() string { return string(e) }

const (
	ErrDeviceOpenFailure RuntimeError = "device open failure"
	ErrSubmissionClosed  RuntimeError = "submission channel closed"
	ErrTimeout           RuntimeError = "timeout"
)

// NewError builds a structured error with no errno.
func NewError(stage, op string, code ErrorCode, msg string) *Error {
	return &Error{Stage: stage, Op: op, Code: code, Msg: msg}
}

// NewErrnoError builds a structured error from a platform errno.
func NewErrnoError(stage, op string, errno syscall.Errno) *Error {
	return &Error{Stage: stage, Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error()}
}

// WrapError re-tags an existing error with a new operation, preserving a
// structured Error's fields or classifying a bare errno/error.
func WrapError(stage, op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ce, ok := inner.(*Error); ok {
		return &Error{Stage: stage, Op: op, Code: ce.Code, Errno: ce.Errno, Msg: ce.Msg, Inner: ce.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Stage: stage, Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Stage: stage, Op: op, Code: ErrCodeControlOpFailure, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeValidationFailure
	case syscall.EIO:
		return ErrCodeVBLKIOFailure
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeInsufficientMemory
	default:
		return ErrCodeControlOpFailure
	}
}

// IsCode reports whether err is (or wraps) a structured Error of the
// given category.
func IsCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsErrno reports whether err is (or wraps) a structured Error carrying
// the given platform errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Errno == errno
	}
	return false
}
