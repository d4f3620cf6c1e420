package tablestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

// Postgres tests need a live database. Set SWITCHYARD_TEST_POSTGRES_DSN to
// run them, e.g. postgres://localhost/switchyard_test?sslmode=disable
func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("SWITCHYARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SWITCHYARD_TEST_POSTGRES_DSN not set")
	}
	document := fmt.Sprintf("test-%d", time.Now().UnixNano())
	s, err := OpenPostgres(dsn, document)
	if err != nil {
		t.Fatalf("OpenPostgres() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := openTestPostgres(t)

	if _, err := s.CreateTable(ctx, "ORDERS"); err != nil {
		t.Fatalf("CreateTable() failed: %v", err)
	}
	tab, err := s.Table(ctx, "ORDERS")
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}
	if tab.Name() != "ORDERS" {
		t.Errorf("Name() = %q, want ORDERS", tab.Name())
	}
	if _, err := s.CreateTable(ctx, "ORDERS"); !errors.Is(err, ErrTableExists) {
		t.Errorf("duplicate create: got %v, want ErrTableExists", err)
	}
}

func TestPostgresTable_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestPostgres(t)
	tab, err := s.CreateTable(ctx, "T")
	if err != nil {
		t.Fatalf("CreateTable() failed: %v", err)
	}

	if err := tab.WriteRow(ctx, 1, 1, []any{"H1", "H2"}); err != nil {
		t.Fatalf("WriteRow() failed: %v", err)
	}
	if err := tab.AppendRow(ctx, []any{"a", 7}); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}

	last, err := tab.LastRowIndex(ctx)
	if err != nil {
		t.Fatalf("LastRowIndex() failed: %v", err)
	}
	if last != 2 {
		t.Errorf("LastRowIndex = %d, want 2", last)
	}

	cells, err := tab.ReadRow(ctx, 2, 1, 2)
	if err != nil {
		t.Fatalf("ReadRow() failed: %v", err)
	}
	if cells[0] != "a" || cells[1] != "7" {
		t.Errorf("row 2 = %v, want [a 7]", cells)
	}
}

func TestPostgresStore_AdvisoryLock(t *testing.T) {
	ctx := context.Background()
	s := openTestPostgres(t)

	if err := s.Acquire(ctx, 2*time.Second); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	// A second store on the same document cannot take the lock.
	dsn := os.Getenv("SWITCHYARD_TEST_POSTGRES_DSN")
	other, err := OpenPostgres(dsn, s.document)
	if err != nil {
		t.Fatalf("OpenPostgres() failed: %v", err)
	}
	defer other.Close()

	if err := other.Acquire(ctx, 300*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("contended Acquire: got %v, want ErrLockTimeout", err)
	}

	if err := s.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if err := other.Acquire(ctx, 2*time.Second); err != nil {
		t.Errorf("Acquire after release failed: %v", err)
	}
	_ = other.Release()
}
