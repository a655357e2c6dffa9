// Package exception provides the structured error type used across temposync.
// Errors are classified as retryable or fatal so that chunk retry bookkeeping
// and task failure propagation can be decided without inspecting backends.
package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// SyncError is the error type produced by temposync components. It records the
// module where the failure occurred, a concise message, the wrapped cause, a
// retryable flag and the stack at creation time.
type SyncError struct {
	// Module names the component that produced the error ("planner", "tempo", "repository", "engine").
	Module string
	// Message is a concise description of the failure.
	Message string
	// Cause is the wrapped original error, if any.
	Cause error
	// retryable marks errors worth another attempt (timeouts, 5xx, lock contention).
	retryable bool
	// StackTrace is the goroutine stack captured at construction.
	StackTrace string
}

// New creates a SyncError.
func New(module, message string, cause error, retryable bool) *SyncError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &SyncError{
		Module:     module,
		Message:    message,
		Cause:      cause,
		retryable:  retryable,
		StackTrace: string(buf[:n]),
	}
}

// Newf creates a SyncError with a formatted message. The error is not retryable.
func Newf(module, format string, a ...interface{}) *SyncError {
	return New(module, fmt.Sprintf(format, a...), nil, false)
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether this error is worth another attempt.
func (e *SyncError) IsRetryable() bool {
	return e.retryable
}

// ErrOptimisticLock is the sentinel wrapped by optimistic locking failures on
// versioned rows (tasks, checkpoints).
var ErrOptimisticLock = errors.New("optimistic locking failure")

// NewOptimisticLock creates a SyncError wrapping ErrOptimisticLock. Lock
// contention on claim/update is retryable by the next poll cycle.
func NewOptimisticLock(module, message string, cause error) *SyncError {
	wrapped := ErrOptimisticLock
	if cause != nil {
		wrapped = errors.Join(ErrOptimisticLock, cause)
	}
	return New(module, message, wrapped, true)
}

// IsOptimisticLock reports whether err is an optimistic locking failure.
func IsOptimisticLock(err error) bool {
	return errors.Is(err, ErrOptimisticLock)
}

// IsTemporary reports whether an error looks transient. The SyncError flag
// takes precedence; otherwise common network failure substrings are matched,
// since backends rarely expose a typed distinction.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}

// ExtractErrorMessage returns the concise message of a SyncError, or the full
// Error() string for anything else. Used when persisting bounded error text.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

// Truncate bounds an error message for storage in task/checkpoint rows.
func Truncate(msg string, limit int) string {
	if limit <= 0 || len(msg) <= limit {
		return msg
	}
	return msg[:limit-3] + "..."
}
