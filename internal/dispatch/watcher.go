package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// rejectedSuffix marks spool files that failed validation. Renaming
// them aside keeps the evidence without re-triggering the watcher.
const rejectedSuffix = ".rejected"

// Watcher drains a spool directory of edit-event files.
//
// External producers drop one JSON edit event per *.json file. Each
// file is validated, dispatched, and removed. Producers should move
// files into the spool atomically (write elsewhere, then rename in);
// a file that is still empty when its event fires is left alone until
// a later write completes it.
//
// Malformed files are renamed aside with the .rejected suffix and
// logged, never silently dropped.
type Watcher struct {
	dispatcher *Dispatcher
	dir        string
}

// NewWatcher creates a Watcher over the given spool directory.
func NewWatcher(d *Dispatcher, dir string) *Watcher {
	return &Watcher{dispatcher: d, dir: dir}
}

// Run watches the spool until ctx is done. Files already present at
// startup are drained before the watch loop begins, so events spooled
// while the process was down are not lost.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start spool watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch spool %s: %w", w.dir, err)
	}

	slog.Info("spool watcher started", "dir", w.dir)

	if err := w.drainExisting(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("spool watcher stopping")
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if !isSpoolFile(ev.Name) {
				continue
			}
			w.consume(ctx, ev.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("spool watcher error", "error", err)
		}
	}
}

// drainExisting consumes every spool file already on disk, in name order.
func (w *Watcher) drainExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read spool %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isSpoolFile(entry.Name()) {
			continue
		}
		w.consume(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// consume reads, validates, dispatches, and removes one spool file.
func (w *Watcher) consume(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return // already consumed
		}
		slog.Error("spool read failed", "file", path, "error", err)
		return
	}
	if len(data) == 0 {
		return // producer still writing; a later event completes it
	}

	ev, err := DecodeEvent(data)
	if err != nil {
		w.reject(path, err)
		return
	}

	s := w.dispatcher.HandleEdit(ctx, ev)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Error("spool remove failed", "file", path, "error", err)
	}

	slog.Info("spool event dispatched",
		"file", filepath.Base(path),
		"table", ev.Table,
		"rows", s.Rows(),
		"routed", s.Routed,
		"failed", s.Failed,
	)
}

// reject moves an invalid spool file aside.
func (w *Watcher) reject(path string, cause error) {
	if err := os.Rename(path, path+rejectedSuffix); err != nil && !os.IsNotExist(err) {
		slog.Error("spool reject failed", "file", path, "error", err)
		return
	}
	slog.Warn("spool event rejected",
		"file", filepath.Base(path),
		"error", cause,
	)
}

func isSpoolFile(name string) bool {
	return filepath.Ext(name) == ".json"
}
