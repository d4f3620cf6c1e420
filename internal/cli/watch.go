package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/switchyard/internal/dispatch"
	"github.com/roach88/switchyard/internal/engine"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [spool-dir]",
		Short: "Watch a spool directory for edit events",
		Long: `Consume edit event files from a spool directory.

Producers drop JSON edit events into the directory (write elsewhere, then
rename in). Each file is validated, dispatched, and removed; malformed
files are renamed aside with a .rejected suffix. Successful routings are
echoed to the terminal as they happen.

The directory defaults to SPOOL_DIR when no argument is given.

Example:
  switchyard watch --store sqlite --db ./doc.db ./spool
  SPOOL_DIR=./spool switchyard watch`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.cfg.Spool.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			return runWatch(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runWatch(opts *RootOptions, dir string, cmd *cobra.Command) error {
	if dir == "" {
		return NewExitError(ExitCommandError, "no spool directory configured: set SPOOL_DIR or pass a directory")
	}

	st, err := openStore(opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	queue := engine.NewQueue()
	defer queue.Close()
	eng := newEngine(opts.cfg, st, engine.WithNotifier(queue))
	watcher := dispatch.NewWatcher(dispatch.New(eng), dir)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	out := cmd.OutOrStdout()
	go drainNotifications(ctx, queue, func(n engine.Notification) {
		fmt.Fprintf(out, "✓ row %d routed to %s (row %d)\n", n.SourceRow, n.Destination, n.DestRow)
	})

	fmt.Fprintf(out, "Watching %s for edit events. Press Ctrl-C to stop.\n", dir)

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watcher error", err)
	}

	slog.Info("watcher stopped")
	return nil
}

// drainNotifications feeds routing notifications to emit until ctx is done.
// Notifications are transient user feedback; losing them never affects
// what was routed.
func drainNotifications(ctx context.Context, q *engine.Queue, emit func(engine.Notification)) {
	for {
		for {
			n, ok := q.TryNext()
			if !ok {
				break
			}
			emit(n)
		}

		select {
		case <-ctx.Done():
			return
		case <-q.Wait():
		}
	}
}
