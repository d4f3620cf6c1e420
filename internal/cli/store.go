package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/switchyard/internal/config"
	"github.com/roach88/switchyard/internal/engine"
	"github.com/roach88/switchyard/internal/tablestore"
)

// openStore opens the configured table store backend.
func openStore(cfg *config.Config) (tablestore.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "memory":
		return tablestore.NewMemoryStore(), nil
	case "sqlite":
		return tablestore.OpenSQLite(cfg.Store.Path)
	case "postgres":
		return tablestore.OpenPostgres(cfg.Store.DSN, cfg.Store.Document)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// closeStore closes the store, logging close failures instead of
// returning them. It runs in defers after the verb's result is set.
func closeStore(st tablestore.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}

// newEngine builds the routing engine from the effective configuration.
func newEngine(cfg *config.Config, st tablestore.Store, opts ...engine.Option) *engine.Engine {
	names := engine.Names{
		Staging:  cfg.Tables.Staging,
		Rules:    cfg.Tables.Rules,
		Ledger:   cfg.Tables.Ledger,
		Fallback: cfg.Tables.Fallback,
	}
	opts = append([]engine.Option{engine.WithLockTimeout(cfg.Routing.LockTimeout)}, opts...)
	return engine.New(st, names, opts...)
}
