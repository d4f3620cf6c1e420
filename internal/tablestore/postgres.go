package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/roach88/switchyard/internal/record"
)

const (
	postgresOperationTimeout = 5 * time.Second
	postgresLockPollInterval = 100 * time.Millisecond
)

// PostgresStore is a document shared between processes. Several documents may
// share one database; rows are scoped by document name. The document lock is
// a session advisory lock keyed by the document name, so routing attempts
// from different processes exclude each other.
type PostgresStore struct {
	dsn      string
	document string
	lockKey  int64

	initOnce sync.Once
	initErr  error
	db       *sql.DB

	lockMu   sync.Mutex
	lockConn *sql.Conn
}

// OpenPostgres prepares a document backed by the database at dsn. The schema
// is bootstrapped lazily on first use.
func OpenPostgres(dsn, document string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	document = strings.TrimSpace(document)
	if document == "" {
		return nil, errors.New("document name is empty")
	}
	return &PostgresStore{
		dsn:      dsn,
		document: document,
		lockKey:  postgresDocumentLockKey(document),
	}, nil
}

func (s *PostgresStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := sql.Open("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		statements := []string{
			`CREATE TABLE IF NOT EXISTS sheets (
				document   TEXT NOT NULL,
				name       TEXT NOT NULL,
				pos        BIGINT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (document, name)
			)`,
			`CREATE TABLE IF NOT EXISTS cells (
				document TEXT NOT NULL,
				sheet    TEXT NOT NULL,
				row_idx  BIGINT NOT NULL,
				col_idx  BIGINT NOT NULL,
				value    TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (document, sheet, row_idx, col_idx)
			)`,
			`CREATE INDEX IF NOT EXISTS cells_document_sheet_row_idx
				ON cells (document, sheet, row_idx)`,
		}
		for _, stmt := range statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				s.initErr = err
				return
			}
		}
		s.db = db
	})
	return s.initErr
}

// Close releases the connection pool. The document lock must not be held.
func (s *PostgresStore) Close() error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lockConn != nil {
		return errors.New("close with document lock held")
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Table returns a handle by exact name.
func (s *PostgresStore) Table(ctx context.Context, name string) (Table, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var got string
	err := s.db.QueryRowContext(opCtx,
		`SELECT name FROM sheets WHERE document = $1 AND name = $2`,
		s.document, name,
	).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup table %q: %w", name, err)
	}
	return &postgresTable{store: s, name: got}, nil
}

// CreateTable creates an empty table with the exact given name.
func (s *PostgresStore) CreateTable(ctx context.Context, name string) (Table, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	result, err := s.db.ExecContext(opCtx, `
		INSERT INTO sheets (document, name, pos)
		VALUES ($1, $2, (SELECT COALESCE(MAX(pos), 0) + 1 FROM sheets WHERE document = $1))
		ON CONFLICT (document, name) DO NOTHING
	`, s.document, name)
	if err != nil {
		return nil, fmt.Errorf("create table %q: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create table %q: rows affected: %w", name, err)
	}
	if affected == 0 {
		return nil, ErrTableExists
	}
	return &postgresTable{store: s, name: name}, nil
}

// TableNames lists table names in creation order.
func (s *PostgresStore) TableNames(ctx context.Context) ([]string, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, `
		SELECT name FROM sheets
		WHERE document = $1
		ORDER BY pos ASC, name ASC
	`, s.document)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// Acquire takes the document's session advisory lock, polling until the
// bounded wait expires. The lock is held by a dedicated connection so other
// pool traffic cannot drop it early.
func (s *PostgresStore) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lockConn != nil {
		return errors.New("document lock already held by this store")
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire document lock: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, s.lockKey).Scan(&acquired); err != nil {
			_ = conn.Close()
			return fmt.Errorf("acquire document lock: %w", err)
		}
		if acquired {
			s.lockConn = conn
			return nil
		}
		if time.Now().After(deadline) {
			_ = conn.Close()
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return ctx.Err()
		case <-time.After(postgresLockPollInterval):
		}
	}
}

// Release drops the session advisory lock and returns its connection to the
// pool.
func (s *PostgresStore) Release() error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lockConn == nil {
		return ErrLockNotHeld
	}

	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	var released bool
	err := s.lockConn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, s.lockKey).Scan(&released)
	closeErr := s.lockConn.Close()
	s.lockConn = nil

	if err != nil {
		return fmt.Errorf("release document lock: %w", err)
	}
	if !released {
		return ErrLockNotHeld
	}
	return closeErr
}

// postgresTable addresses one sheet's cells. Values persist as TEXT.
type postgresTable struct {
	store *PostgresStore
	name  string
}

func (t *postgresTable) Name() string { return t.name }

func (t *postgresTable) ReadRow(ctx context.Context, rowIndex, colStart, colCount int) ([]any, error) {
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	rows, err := t.store.db.QueryContext(opCtx, `
		SELECT col_idx, value FROM cells
		WHERE document = $1 AND sheet = $2 AND row_idx = $3 AND col_idx BETWEEN $4 AND $5
		ORDER BY col_idx ASC
	`, t.store.document, t.name, rowIndex, colStart, colStart+colCount-1)
	if err != nil {
		return nil, fmt.Errorf("read row %d of %q: %w", rowIndex, t.name, err)
	}
	defer rows.Close()

	cells := make([]any, colCount)
	for rows.Next() {
		var col int
		var value string
		if err := rows.Scan(&col, &value); err != nil {
			return nil, fmt.Errorf("read row %d of %q: scan: %w", rowIndex, t.name, err)
		}
		cells[col-colStart] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read row %d of %q: %w", rowIndex, t.name, err)
	}
	return cells, nil
}

func (t *postgresTable) WriteRow(ctx context.Context, rowIndex, colStart int, values []any) error {
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	tx, err := t.store.db.BeginTx(opCtx, nil)
	if err != nil {
		return fmt.Errorf("write row %d of %q: begin tx: %w", rowIndex, t.name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := t.writeCells(opCtx, tx, rowIndex, colStart, values); err != nil {
		return fmt.Errorf("write row %d of %q: %w", rowIndex, t.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write row %d of %q: commit: %w", rowIndex, t.name, err)
	}
	committed = true
	return nil
}

func (t *postgresTable) AppendRow(ctx context.Context, values []any) error {
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	tx, err := t.store.db.BeginTx(opCtx, nil)
	if err != nil {
		return fmt.Errorf("append to %q: begin tx: %w", t.name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var last int
	err = tx.QueryRowContext(opCtx, `
		SELECT COALESCE(MAX(row_idx), 0) FROM cells
		WHERE document = $1 AND sheet = $2 AND value <> ''
	`, t.store.document, t.name).Scan(&last)
	if err != nil {
		return fmt.Errorf("append to %q: last row: %w", t.name, err)
	}

	if err := t.writeCells(opCtx, tx, last+1, 1, values); err != nil {
		return fmt.Errorf("append to %q: %w", t.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append to %q: commit: %w", t.name, err)
	}
	committed = true
	return nil
}

func (t *postgresTable) LastRowIndex(ctx context.Context) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var last int
	err := t.store.db.QueryRowContext(opCtx, `
		SELECT COALESCE(MAX(row_idx), 0) FROM cells
		WHERE document = $1 AND sheet = $2 AND value <> ''
	`, t.store.document, t.name).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last row of %q: %w", t.name, err)
	}
	return last, nil
}

func (t *postgresTable) writeCells(ctx context.Context, tx *sql.Tx, rowIndex, colStart int, values []any) error {
	for i, v := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cells (document, sheet, row_idx, col_idx, value)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (document, sheet, row_idx, col_idx) DO UPDATE SET value = EXCLUDED.value
		`, t.store.document, t.name, rowIndex, colStart+i, record.CellString(v))
		if err != nil {
			return fmt.Errorf("cell (%d,%d): %w", rowIndex, colStart+i, err)
		}
	}
	return nil
}

// postgresDocumentLockKey derives the advisory lock key for a document.
func postgresDocumentLockKey(document string) int64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte("switchyard.document"))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(strings.TrimSpace(document)))
	return int64(hasher.Sum64())
}
