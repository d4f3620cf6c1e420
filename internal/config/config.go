// Package config loads switchyard settings from environment variables.
// Defaults are applied for unset values and the result is validated on
// startup so a misconfigured process fails before touching the document.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all runtime settings for the switchyard CLI and service.
type Config struct {
	Store   StoreConfig
	Tables  TablesConfig
	Routing RoutingConfig
	Spool   SpoolConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// StoreConfig selects and parameterizes the document backend.
type StoreConfig struct {
	// Backend is the table store implementation: memory, sqlite or postgres
	// (default: memory)
	Backend string `env:"STORE_BACKEND" default:"memory"`

	// Path is the database file used by the sqlite backend (default: switchyard.db)
	Path string `env:"STORE_PATH" default:"switchyard.db"`

	// DSN is the connection string used by the postgres backend.
	// Supports both STORE_DSN and DATABASE_URL for compatibility.
	DSN string `env:"STORE_DSN" envAlt:"DATABASE_URL"`

	// Document names the document when several share one postgres database
	// (default: main)
	Document string `env:"STORE_DOCUMENT" default:"main"`
}

// TablesConfig names the reserved tables of the document. Destination
// tables are created on demand by routing and are not configured here.
type TablesConfig struct {
	// Staging is the table rows are routed out of (default: INTAKE)
	Staging string `env:"TABLE_STAGING" default:"INTAKE"`

	// Rules is the routing rule table (default: RULES)
	Rules string `env:"TABLE_RULES" default:"RULES"`

	// Ledger is the append-only routing log (default: ROUTED_LOG)
	Ledger string `env:"TABLE_LEDGER" default:"ROUTED_LOG"`

	// Fallback is the destination for rows no rule matches (default: ORDERS)
	Fallback string `env:"TABLE_FALLBACK" default:"ORDERS"`
}

// RoutingConfig tunes the routing engine.
type RoutingConfig struct {
	// LockTimeout bounds the wait for the document lock per routing attempt
	// (default: 5s)
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" default:"5s"`

	// SweepOnStart runs one full staging sweep when the service starts,
	// picking up rows edited while it was down (default: false)
	SweepOnStart bool `env:"SWEEP_ON_START" default:"false"`
}

// SpoolConfig controls the edit event spool watcher.
type SpoolConfig struct {
	// Dir is the directory watched for edit event files. Empty disables
	// the watcher.
	Dir string `env:"SPOOL_DIR"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 10s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"10s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// RequestTimeout is the per-request middleware timeout (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`

	// ShutdownTimeout bounds graceful shutdown (default: 15s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
