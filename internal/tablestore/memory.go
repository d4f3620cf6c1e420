package tablestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process document. It is the default backend for tests
// and one-shot CLI runs; nothing survives the process.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*memoryTable
	order  []string
	lock   *docLock
	closed bool
}

// NewMemoryStore returns an empty document.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]*memoryTable),
		lock:   newDocLock(),
	}
}

// Table returns a handle by exact name.
func (s *MemoryStore) Table(_ context.Context, name string) (Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, ErrTableNotFound
	}
	return t, nil
}

// CreateTable creates an empty table with the exact given name.
func (s *MemoryStore) CreateTable(_ context.Context, name string) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if _, ok := s.tables[name]; ok {
		return nil, ErrTableExists
	}
	t := &memoryTable{store: s, name: name}
	s.tables[name] = t
	s.order = append(s.order, name)
	return t, nil
}

// TableNames lists table names in creation order.
func (s *MemoryStore) TableNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names, nil
}

// Acquire takes the document lock with a bounded wait.
func (s *MemoryStore) Acquire(ctx context.Context, timeout time.Duration) error {
	return s.lock.Acquire(ctx, timeout)
}

// Release drops the document lock.
func (s *MemoryStore) Release() error {
	return s.lock.Release()
}

// Close marks the store closed. Held handles fail afterwards.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// memoryTable is a dense grid of rows. Row and column indices are 1-based;
// the slice grows on demand.
type memoryTable struct {
	store *MemoryStore
	name  string
	rows  [][]any
}

func (t *memoryTable) Name() string { return t.name }

func (t *memoryTable) ReadRow(_ context.Context, rowIndex, colStart, colCount int) ([]any, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if t.store.closed {
		return nil, ErrStoreClosed
	}

	cells := make([]any, colCount)
	if rowIndex < 1 || rowIndex > len(t.rows) {
		return cells, nil
	}
	row := t.rows[rowIndex-1]
	for i := 0; i < colCount; i++ {
		col := colStart + i
		if col-1 < len(row) {
			cells[i] = row[col-1]
		}
	}
	return cells, nil
}

func (t *memoryTable) WriteRow(_ context.Context, rowIndex, colStart int, values []any) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.closed {
		return ErrStoreClosed
	}
	t.writeLocked(rowIndex, colStart, values)
	return nil
}

func (t *memoryTable) AppendRow(_ context.Context, values []any) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.closed {
		return ErrStoreClosed
	}
	t.writeLocked(t.lastRowLocked()+1, 1, values)
	return nil
}

func (t *memoryTable) LastRowIndex(_ context.Context) (int, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if t.store.closed {
		return 0, ErrStoreClosed
	}
	return t.lastRowLocked(), nil
}

// writeLocked grows the grid as needed and copies values in.
func (t *memoryTable) writeLocked(rowIndex, colStart int, values []any) {
	for len(t.rows) < rowIndex {
		t.rows = append(t.rows, nil)
	}
	row := t.rows[rowIndex-1]
	need := colStart - 1 + len(values)
	for len(row) < need {
		row = append(row, nil)
	}
	copy(row[colStart-1:need], values)
	t.rows[rowIndex-1] = row
}

// lastRowLocked finds the highest row holding any value. Rows written with
// only empty strings do not count, matching the other backends.
func (t *memoryTable) lastRowLocked() int {
	for r := len(t.rows); r >= 1; r-- {
		for _, v := range t.rows[r-1] {
			if cellHasValue(v) {
				return r
			}
		}
	}
	return 0
}
