package engine

import (
	"errors"
	"fmt"
	"time"
)

// RuntimeError represents a failed routing attempt.
//
// Runtime errors include:
//   - Lock timeout: the document lock could not be acquired in time
//   - Resolve failure: no usable destination name could be determined
//   - Store fault: the backing store rejected a read or write
//
// Not-ready and already-routed conditions are NOT errors - they are
// expected outcomes reported through Outcome.Status.
//
// RuntimeError includes structured fields for diagnostics and recovery.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Table names the affected table, when known.
	Table string

	// SourceRow identifies the staging row under attempt.
	SourceRow int

	// Err is the underlying cause, when one exists.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeLockTimeout indicates the document lock was not acquired
	// within the bounded wait.
	ErrCodeLockTimeout RuntimeErrorCode = "LOCK_TIMEOUT"

	// ErrCodeResolveFailed indicates resolution produced no usable
	// destination name.
	ErrCodeResolveFailed RuntimeErrorCode = "RESOLVE_FAILED"

	// ErrCodeStoreFault indicates the backing store failed a read or write.
	ErrCodeStoreFault RuntimeErrorCode = "STORE_FAULT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Table != "" && e.SourceRow > 0 {
		return fmt.Sprintf("%s: %s (table=%s, row=%d)", e.Code, e.Message, e.Table, e.SourceRow)
	}
	if e.SourceRow > 0 {
		return fmt.Sprintf("%s: %s (row=%d)", e.Code, e.Message, e.SourceRow)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsLockTimeout returns true if the error is a lock-acquisition timeout.
// Uses errors.As to handle wrapped errors.
func IsLockTimeout(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeLockTimeout
	}
	return false
}

// IsResolveFailed returns true if the error is a destination resolution
// failure. Uses errors.As to handle wrapped errors.
func IsResolveFailed(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeResolveFailed
	}
	return false
}

// IsStoreFault returns true if the error is a store-level fault.
// Uses errors.As to handle wrapped errors.
func IsStoreFault(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStoreFault
	}
	return false
}

// NewLockTimeoutError creates a RuntimeError for a lock-acquisition timeout.
func NewLockTimeoutError(sourceRow int, wait time.Duration, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeLockTimeout,
		Message:   fmt.Sprintf("document lock not acquired within %s", wait),
		SourceRow: sourceRow,
		Err:       err,
	}
}

// NewResolveError creates a RuntimeError for a resolution failure.
func NewResolveError(sourceRow int, key string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeResolveFailed,
		Message:   fmt.Sprintf("no destination for classification key %q", key),
		SourceRow: sourceRow,
	}
}

// NewStoreError creates a RuntimeError wrapping a store-level fault.
func NewStoreError(sourceRow int, table, op string, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeStoreFault,
		Message:   op,
		Table:     table,
		SourceRow: sourceRow,
		Err:       err,
	}
}
