package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/switchyard/internal/tablestore"
)

// spoolFile writes an event file into the spool the way producers
// should: write elsewhere, then rename in.
func spoolFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	dst := filepath.Join(dir, name)
	require.NoError(t, os.Rename(tmp, dst))
	return dst
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWatcher_DrainsExistingFiles(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seedStaging(t, store, completeRow("P-1"))

	d := newTestDispatcher(store)
	spool := t.TempDir()
	path := spoolFile(t, spool, "edit-001.json", `{"table":"INTAKE","row":2,"col":1,"col_count":6}`)

	w := NewWatcher(d, spool)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool {
		entries, err := d.engine.Ledger().Entries(context.Background())
		return err == nil && len(entries) == 1
	})

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "consumed spool file must be removed")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcher_ConsumesNewFiles(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seedStaging(t, store, completeRow("P-1"), completeRow("P-2"))

	d := newTestDispatcher(store)
	spool := t.TempDir()

	w := NewWatcher(d, spool)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watch a moment to be established before producing.
	time.Sleep(50 * time.Millisecond)
	spoolFile(t, spool, "edit-002.json", `{"table":"INTAKE","row":2,"row_count":2,"col":1,"col_count":6}`)

	waitFor(t, func() bool {
		entries, err := d.engine.Ledger().Entries(context.Background())
		return err == nil && len(entries) == 2
	})

	cancel()
	<-done
}

func TestWatcher_RejectsMalformedFile(t *testing.T) {
	store := tablestore.NewMemoryStore()
	seedStaging(t, store, completeRow("P-1"))

	d := newTestDispatcher(store)
	spool := t.TempDir()
	path := spoolFile(t, spool, "bad.json", `{"table":"INTAKE"`)

	w := NewWatcher(d, spool)
	w.consume(context.Background(), path)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "rejected file must be moved aside")
	_, err = os.Stat(path + rejectedSuffix)
	assert.NoError(t, err, "rejected file must be preserved under the .rejected suffix")

	entries, err := d.engine.Ledger().Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWatcher_LeavesEmptyFileForLaterWrite(t *testing.T) {
	store := tablestore.NewMemoryStore()
	seedStaging(t, store, completeRow("P-1"))

	d := newTestDispatcher(store)
	spool := t.TempDir()

	path := filepath.Join(spool, "half.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w := NewWatcher(d, spool)
	w.consume(context.Background(), path)

	_, err := os.Stat(path)
	assert.NoError(t, err, "an empty file is a write in progress, not garbage")
}

func TestWatcher_IgnoresNonJSONFiles(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seedStaging(t, store, completeRow("P-1"))

	d := newTestDispatcher(store)
	spool := t.TempDir()
	spoolFile(t, spool, "notes.txt", "not an event")

	w := NewWatcher(d, spool)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	entries, err := d.engine.Ledger().Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	cancel()
	<-done
}

func TestWatcher_MissingSpoolDir(t *testing.T) {
	store := tablestore.NewMemoryStore()
	d := newTestDispatcher(store)

	w := NewWatcher(d, filepath.Join(t.TempDir(), "absent"))
	err := w.Run(context.Background())
	assert.Error(t, err)
}
