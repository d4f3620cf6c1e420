package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/switchyard/internal/dispatch"
	"github.com/roach88/switchyard/internal/engine"
	"github.com/roach88/switchyard/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the edit webhook server",
		Long: `Serve the routing engine over HTTP.

POST /api/edits accepts edit events, POST /api/sweep re-scans the staging
table, GET /api/ledger lists ledger entries, GET /healthz reports store
health. When SPOOL_DIR is set the spool watcher runs alongside the server,
and SWEEP_ON_START=true runs one sweep before listening.

Example:
  switchyard serve --store postgres --dsn postgres://localhost/doc
  switchyard serve --store sqlite --db ./doc.db --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from SERVER_HOST/SERVER_PORT)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.cfg

	st, err := openStore(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	queue := engine.NewQueue()
	defer queue.Close()
	eng := newEngine(cfg, st, engine.WithNotifier(queue))
	d := dispatch.New(eng)

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

	if cfg.Routing.SweepOnStart {
		summary, err := d.Sweep(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "startup sweep failed", err)
		}
		slog.Info("startup sweep complete",
			"routed", summary.Routed,
			"not_ready", summary.NotReady,
			"already_routed", summary.AlreadyRouted,
			"failed", summary.Failed,
		)
	}

	if cfg.Spool.Dir != "" {
		watcher := dispatch.NewWatcher(d, cfg.Spool.Dir)
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("spool watcher stopped", "error", err)
			}
		}()
	}

	go drainNotifications(ctx, queue, func(n engine.Notification) {
		slog.Info("routing notification",
			"source_row", n.SourceRow,
			"destination", n.Destination,
			"dest_row", n.DestRow,
			"attempt_id", n.AttemptID,
		)
	})

	srv := httpapi.NewServer(eng,
		httpapi.WithRequestTimeout(cfg.Server.RequestTimeout),
		httpapi.WithHTTPTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	)

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(addr)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", addr)

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return WrapExitError(ExitFailure, "shutdown error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}
