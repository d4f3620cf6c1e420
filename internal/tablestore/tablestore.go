package tablestore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations.
var (
	// ErrTableNotFound indicates a lookup by exact name found no table.
	ErrTableNotFound = errors.New("table not found")

	// ErrTableExists indicates a create collided with an existing name.
	ErrTableExists = errors.New("table already exists")

	// ErrLockTimeout indicates the document lock could not be acquired
	// within the bounded wait.
	ErrLockTimeout = errors.New("document lock acquisition timed out")

	// ErrLockNotHeld indicates a release without a matching acquire.
	ErrLockNotHeld = errors.New("document lock not held")

	// ErrStoreClosed indicates use after Close.
	ErrStoreClosed = errors.New("store is closed")
)

// Table is a handle to one named table in the document.
type Table interface {
	// Name returns the exact table name.
	Name() string

	// ReadRow returns colCount cells starting at colStart on the given row.
	// Positions never written read as nil.
	ReadRow(ctx context.Context, rowIndex, colStart, colCount int) ([]any, error)

	// WriteRow writes values left to right starting at colStart.
	WriteRow(ctx context.Context, rowIndex, colStart int, values []any) error

	// AppendRow writes values on the first row past the last known row.
	AppendRow(ctx context.Context, values []any) error

	// LastRowIndex reports the highest row holding any value: 0 when the
	// table is empty, 1 when only a header row is present.
	LastRowIndex(ctx context.Context) (int, error)
}

// Store is a document: named tables plus the document-scoped advisory lock
// that serializes multi-call routing sequences.
type Store interface {
	// Table returns a handle by exact name, or ErrTableNotFound.
	Table(ctx context.Context, name string) (Table, error)

	// CreateTable creates an empty table with the exact given name.
	// Returns ErrTableExists when the name is taken.
	CreateTable(ctx context.Context, name string) (Table, error)

	// TableNames lists table names in creation order.
	TableNames(ctx context.Context) ([]string, error)

	// Acquire takes the document lock, waiting at most timeout.
	// Returns ErrLockTimeout when the bound expires, or the context error
	// if ctx is done first.
	Acquire(ctx context.Context, timeout time.Duration) error

	// Release drops the document lock. Returns ErrLockNotHeld when the
	// lock is not held.
	Release() error

	// Close releases backend resources. The lock must not be held.
	Close() error
}

// docLock is a timed in-process mutex. Backends without a cross-process lock
// primitive use it to realize the document lock contract.
type docLock struct {
	ch chan struct{}
}

func newDocLock() *docLock {
	return &docLock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is free, the timeout elapses, or ctx is done.
func (l *docLock) Acquire(ctx context.Context, timeout time.Duration) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *docLock) Release() error {
	select {
	case <-l.ch:
		return nil
	default:
		return ErrLockNotHeld
	}
}

// cellHasValue reports whether a stored cell counts as content. Empty and
// whitespace-only strings do not; every other non-nil value does.
func cellHasValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		for _, r := range val {
			if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
				return true
			}
		}
		return false
	default:
		return true
	}
}
