package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/switchyard/internal/record"
)

// Load reads configuration from environment variables, applies defaults for
// unset values, and validates the result. Errors name the variable that
// carried the offending value.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// FromEnv reads configuration from environment variables without validating
// it. Callers that layer overrides on top (CLI flags) validate afterwards.
func FromEnv() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	return cfg, nil
}

// MustLoad is Load for main(): it panics instead of returning an error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct populates struct fields from the environment using the env,
// envAlt, default and required tags. Nested structs recurse.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := os.Getenv(envName)
		if value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value = os.Getenv(alt)
			}
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField parses value into the field according to the field's kind.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is coherent. All failures are
// reported in one error.
func (c *Config) Validate() error {
	var errs []string

	validBackends := map[string]bool{"memory": true, "sqlite": true, "postgres": true}
	backend := strings.ToLower(c.Store.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("STORE_BACKEND (%q) must be one of: memory, sqlite, postgres", c.Store.Backend))
	}
	if backend == "sqlite" && strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, "STORE_PATH is required when STORE_BACKEND is sqlite")
	}
	if backend == "postgres" {
		if c.Store.DSN == "" {
			errs = append(errs, "STORE_DSN is required when STORE_BACKEND is postgres")
		}
		if strings.TrimSpace(c.Store.Document) == "" {
			errs = append(errs, "STORE_DOCUMENT is required when STORE_BACKEND is postgres")
		}
	}

	// The four reserved tables are looked up case-insensitively at runtime,
	// so their configured names must not collide under that comparison.
	seen := map[string]string{}
	for _, tbl := range []struct {
		envName string
		value   string
	}{
		{"TABLE_STAGING", c.Tables.Staging},
		{"TABLE_RULES", c.Tables.Rules},
		{"TABLE_LEDGER", c.Tables.Ledger},
		{"TABLE_FALLBACK", c.Tables.Fallback},
	} {
		if strings.TrimSpace(tbl.value) == "" {
			errs = append(errs, tbl.envName+" must not be empty")
			continue
		}
		key := record.Canonical(tbl.value)
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Sprintf("%s (%q) collides with %s", tbl.envName, tbl.value, prev))
			continue
		}
		seen[key] = tbl.envName
	}

	if c.Routing.LockTimeout <= 0 {
		errs = append(errs, "LOCK_TIMEOUT must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.WriteTimeout < 0 {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must be non-negative")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a loggable representation of the config. The connection
// string is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Store: {Backend: %q, Path: %q, DSN: [MASKED], Document: %q}, ",
		c.Store.Backend, c.Store.Path, c.Store.Document))
	b.WriteString(fmt.Sprintf("Tables: {Staging: %q, Rules: %q, Ledger: %q, Fallback: %q}, ",
		c.Tables.Staging, c.Tables.Rules, c.Tables.Ledger, c.Tables.Fallback))
	b.WriteString(fmt.Sprintf("Routing: {LockTimeout: %v, SweepOnStart: %v}, ",
		c.Routing.LockTimeout, c.Routing.SweepOnStart))
	b.WriteString(fmt.Sprintf("Spool: {Dir: %q}, ", c.Spool.Dir))
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
