package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/switchyard/internal/engine"
	"github.com/roach88/switchyard/internal/tablestore"
)

// syncBuffer collects output written from the command's goroutines so the
// test can read it back without racing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWatch_RequiresSpoolDir(t *testing.T) {
	t.Setenv("SPOOL_DIR", "")

	_, _, err := runCommand(t, "watch")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no spool directory configured")
}

func TestWatch_ConsumesSpooledEvent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	seedSQLite(t, dbPath,
		[]any{"P-100", "WH1", "ACME", "12.50", "2026-08-01", "GASKET"},
	)

	spool := t.TempDir()
	eventPath := filepath.Join(spool, "edit-001.json")
	require.NoError(t, os.WriteFile(eventPath,
		[]byte(`{"table":"INTAKE","row":2,"col":1,"col_count":6}`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"watch", "--store", "sqlite", "--db", dbPath, spool})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	waitFor(t, func() bool {
		return strings.Contains(out.String(), "✓ row 2 routed to ORDERS (row 2)")
	})
	waitFor(t, func() bool {
		_, err := os.Stat(eventPath)
		return os.IsNotExist(err)
	})

	cancel()
	require.NoError(t, <-done)

	assert.Contains(t, out.String(), "Watching "+spool)

	st, err := tablestore.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()
	entries, err := engine.New(st, engine.Names{}).Ledger().Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].SourceRow)
}
