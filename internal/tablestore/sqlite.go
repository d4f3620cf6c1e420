package tablestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/switchyard/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added idx_cells_sheet_row for planner scans
const currentSchemaVersion = 1

// SQLiteStore is a file-backed document. The document lock is a timed
// in-process mutex; cross-process exclusion relies on single ownership of
// the database file.
type SQLiteStore struct {
	db   *sql.DB
	lock *docLock
}

// OpenSQLite creates or opens a document database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, lock: newDocLock()}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Table returns a handle by exact name.
func (s *SQLiteStore) Table(ctx context.Context, name string) (Table, error) {
	var got string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM sheets WHERE name = ?`, name).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup table %q: %w", name, err)
	}
	return &sqliteTable{store: s, name: got}, nil
}

// CreateTable creates an empty table with the exact given name.
func (s *SQLiteStore) CreateTable(ctx context.Context, name string) (Table, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sheets (name, pos)
		VALUES (?, (SELECT COALESCE(MAX(pos), 0) + 1 FROM sheets))
		ON CONFLICT(name) DO NOTHING
	`, name)
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
	return &sqliteTable{store: s, name: name}, nil
}

// TableNames lists table names in creation order.
func (s *SQLiteStore) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sheets
		ORDER BY pos ASC, name COLLATE BINARY ASC
	`)
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

// Acquire takes the document lock with a bounded wait.
func (s *SQLiteStore) Acquire(ctx context.Context, timeout time.Duration) error {
	return s.lock.Acquire(ctx, timeout)
}

// Release drops the document lock.
func (s *SQLiteStore) Release() error {
	return s.lock.Release()
}

// sqliteTable addresses one sheet's cells. Cell values persist as TEXT;
// readers coerce numerics back as needed.
type sqliteTable struct {
	store *SQLiteStore
	name  string
}

func (t *sqliteTable) Name() string { return t.name }

func (t *sqliteTable) ReadRow(ctx context.Context, rowIndex, colStart, colCount int) ([]any, error) {
	rows, err := t.store.db.QueryContext(ctx, `
		SELECT col_idx, value FROM cells
		WHERE sheet = ? AND row_idx = ? AND col_idx BETWEEN ? AND ?
		ORDER BY col_idx ASC
	`, t.name, rowIndex, colStart, colStart+colCount-1)
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

func (t *sqliteTable) WriteRow(ctx context.Context, rowIndex, colStart int, values []any) error {
	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write row %d of %q: begin tx: %w", rowIndex, t.name, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := writeCells(ctx, tx, t.name, rowIndex, colStart, values); err != nil {
		return fmt.Errorf("write row %d of %q: %w", rowIndex, t.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write row %d of %q: commit: %w", rowIndex, t.name, err)
	}
	return nil
}

func (t *sqliteTable) AppendRow(ctx context.Context, values []any) error {
	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append to %q: begin tx: %w", t.name, err)
	}
	defer tx.Rollback()

	// Compute the landing row and write it in one transaction so two
	// appends cannot claim the same row.
	var last int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(row_idx), 0) FROM cells
		WHERE sheet = ? AND value <> ''
	`, t.name).Scan(&last)
	if err != nil {
		return fmt.Errorf("append to %q: last row: %w", t.name, err)
	}

	if err := writeCells(ctx, tx, t.name, last+1, 1, values); err != nil {
		return fmt.Errorf("append to %q: %w", t.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append to %q: commit: %w", t.name, err)
	}
	return nil
}

func (t *sqliteTable) LastRowIndex(ctx context.Context) (int, error) {
	var last int
	err := t.store.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(row_idx), 0) FROM cells
		WHERE sheet = ? AND value <> ''
	`, t.name).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last row of %q: %w", t.name, err)
	}
	return last, nil
}

// writeCells upserts one run of cells on a row.
func writeCells(ctx context.Context, tx *sql.Tx, sheet string, rowIndex, colStart int, values []any) error {
	for i, v := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cells (sheet, row_idx, col_idx, value)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(sheet, row_idx, col_idx) DO UPDATE SET value = excluded.value
		`, sheet, rowIndex, colStart+i, record.CellString(v))
		if err != nil {
			return fmt.Errorf("cell (%d,%d): %w", rowIndex, colStart+i, err)
		}
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the sheet/row index for databases created before it was
// part of schema.sql. New databases get it from the DDL.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_cells_sheet_row
		ON cells(sheet, row_idx)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
