package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
)

// Resolution is the outcome of resolving a classification key. Default
// reports whether the resolution came from the default path rather than an
// exact rule; downstream it selects which header layout the destination
// gets.
type Resolution struct {
	Destination string
	Default     bool
}

// Resolver maps classification keys to destination names using the
// configuration table. Resolution is a pure read: it never mutates the
// document and tolerates a missing or empty configuration.
type Resolver struct {
	store    tablestore.Store
	table    string
	fallback string
}

// NewResolver builds a resolver over the given configuration table.
// fallback is the hard-coded destination used when the configuration names
// no usable default.
func NewResolver(store tablestore.Store, configTable, fallback string) *Resolver {
	return &Resolver{store: store, table: configTable, fallback: fallback}
}

// Resolve scans the configuration in table order: pass one finds the active
// default target (the last default-flagged rule wins), pass two finds an
// exact case/whitespace-insensitive match on key. An exact match beats the
// default; an exact match without a destination falls back to the default,
// then to the hard-coded fallback.
func (r *Resolver) Resolve(ctx context.Context, key string) (Resolution, error) {
	rules, err := r.Rules(ctx)
	if err != nil {
		return Resolution{}, err
	}

	// Last default-flagged rule wins, even when it names no destination;
	// an empty winner drops through to the hard-coded fallback.
	defaultDest := ""
	for _, rule := range rules {
		if rule.Default {
			defaultDest = rule.Destination
		}
	}
	def := Resolution{Destination: r.fallback, Default: true}
	if defaultDest != "" {
		def.Destination = defaultDest
	}

	for _, rule := range rules {
		if rule.Code == "" || !record.SameName(rule.Code, key) {
			continue
		}
		if rule.Destination == "" {
			return def, nil
		}
		return Resolution{Destination: rule.Destination, Default: false}, nil
	}
	return def, nil
}

// Rules reads the configuration rows in table order. A missing table is an
// empty configuration, not an error.
func (r *Resolver) Rules(ctx context.Context) ([]Rule, error) {
	tab, err := r.store.Table(ctx, r.table)
	if errors.Is(err, tablestore.ErrTableNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config table %q: %w", r.table, err)
	}

	last, err := tab.LastRowIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("config table %q: %w", r.table, err)
	}

	rules := []Rule{}
	for row := record.FirstDataRow; row <= last; row++ {
		cells, err := tab.ReadRow(ctx, row, 1, len(ConfigHeader))
		if err != nil {
			return nil, fmt.Errorf("config table %q row %d: %w", r.table, row, err)
		}
		rule := FromRow(cells)
		if rule.blank() {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
