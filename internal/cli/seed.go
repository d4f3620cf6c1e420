package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/switchyard/internal/rules"
	"github.com/roach88/switchyard/internal/tablestore"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	DryRun bool
}

// SeedResult is the JSON payload of a successful seed.
type SeedResult struct {
	Table string       `json:"table"`
	Count int          `json:"count"`
	Rules []rules.Rule `json:"rules,omitempty"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <rules.cue>",
		Short: "Rewrite the routing rule table from a CUE file",
		Long: `Load routing rules from a CUE file and rewrite the rule table.

The file declares a list of rules, each mapping a classification code to a
destination table name, with at most one marked as the default. The rewrite
happens under the document lock, so it never interleaves with routing.

Rules are linted first: shadowed codes and overridden defaults are printed
as warnings, and a destination that collides with the staging, rule, or
ledger table aborts the seed.

Example:
  switchyard seed --store sqlite --db ./doc.db ./rules.cue
  switchyard seed --dry-run ./rules.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "parse and list the rules without writing them")

	return cmd
}

func runSeed(opts *SeedOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ruleset, err := rules.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}
	formatter.VerboseLog("loaded %d rule(s) from %s", len(ruleset), path)

	// Lint findings go to stderr so JSON output stays parseable.
	problems := rules.Lint(ruleset,
		opts.cfg.Tables.Staging, opts.cfg.Tables.Rules, opts.cfg.Tables.Ledger)
	for _, p := range problems {
		fmt.Fprintf(formatter.ErrWriter, "%s: %s\n", p.Severity, p)
	}
	if rules.HasErrors(problems) {
		return NewExitError(ExitFailure, "rules failed lint")
	}

	if opts.DryRun {
		return outputRules(formatter, opts.cfg.Tables.Rules, ruleset)
	}

	st, err := openStore(opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if err := st.Acquire(ctx, opts.cfg.Routing.LockTimeout); err != nil {
		if errors.Is(err, tablestore.ErrLockTimeout) {
			return WrapExitError(ExitFailure, "document lock busy", err)
		}
		return WrapExitError(ExitCommandError, "failed to acquire document lock", err)
	}
	defer func() {
		if err := st.Release(); err != nil {
			slog.Error("failed to release document lock", "error", err)
		}
	}()

	if err := rules.Seed(ctx, st, opts.cfg.Tables.Rules, ruleset); err != nil {
		return WrapExitError(ExitFailure, "failed to seed rules", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(SeedResult{Table: opts.cfg.Tables.Rules, Count: len(ruleset)})
	}
	fmt.Fprintf(formatter.Writer, "✓ seeded %d rule(s) into %s\n", len(ruleset), opts.cfg.Tables.Rules)
	return nil
}

// outputRules lists parsed rules without touching the store.
func outputRules(f *OutputFormatter, table string, ruleset []rules.Rule) error {
	if f.Format == "json" {
		return f.Success(SeedResult{Table: table, Count: len(ruleset), Rules: ruleset})
	}

	for _, r := range ruleset {
		if r.Default {
			fmt.Fprintf(f.Writer, "%s -> %s (default)\n", r.Code, r.Destination)
			continue
		}
		fmt.Fprintf(f.Writer, "%s -> %s\n", r.Code, r.Destination)
	}
	fmt.Fprintf(f.Writer, "%d rule(s), not written (dry run)\n", len(ruleset))
	return nil
}
