// Package cli implements the switchyard command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/switchyard/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Store    string // backend override: memory | sqlite | postgres
	Database string // sqlite path override
	DSN      string // postgres connection string override
	Document string // postgres document name override

	// cfg is the effective configuration: environment plus flag overrides.
	// Populated by the root PersistentPreRunE before any verb runs.
	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the switchyard CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "switchyard",
		Short: "Switchyard - staged record routing",
		Long: `Route staged records into destination tables.

Rows land in a staging table, a classification code picks the destination
per routing rules, and an append-only ledger guarantees each row is routed
at most once. Triggers are explicit: edit events, sweeps, file loads.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			cfg, err := config.FromEnv()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			applyOverrides(cfg, opts)
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.cfg = cfg

			setupLogging(cfg, opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "store backend: memory|sqlite|postgres (default from STORE_BACKEND)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "sqlite database path (default from STORE_PATH)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "postgres connection string (default from STORE_DSN)")
	cmd.PersistentFlags().StringVar(&opts.Document, "document", "", "postgres document name (default from STORE_DOCUMENT)")

	// Add subcommands
	cmd.AddCommand(NewRouteCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// applyOverrides layers non-empty flag values over the environment config.
func applyOverrides(cfg *config.Config, opts *RootOptions) {
	if opts.Store != "" {
		cfg.Store.Backend = opts.Store
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}
	if opts.DSN != "" {
		cfg.Store.DSN = opts.DSN
	}
	if opts.Document != "" {
		cfg.Store.Document = opts.Document
	}
}

// setupLogging installs the process-wide slog handler. The verbose flag
// forces debug level regardless of LOG_LEVEL.
func setupLogging(cfg *config.Config, verbose bool) {
	level := slogLevel(cfg.Logging.Level)
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func slogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
