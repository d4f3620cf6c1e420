package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/rules"
	"github.com/roach88/switchyard/internal/tablestore"
)

// Well-known table names and the hard-coded fallback destination.
// All of them are overridable through Names.
const (
	DefaultStagingTable = "INTAKE"
	DefaultRulesTable   = "RULES"
	DefaultLedgerTable  = "ROUTED_LOG"
	DefaultFallback     = "ORDERS"
)

// DefaultLockTimeout bounds the wait for the document lock. An attempt
// that cannot take the lock within this window is abandoned; the row
// stays eligible for a later retry.
const DefaultLockTimeout = 5 * time.Second

// Names binds an Engine to the document's well-known tables.
// Blank fields take the package defaults.
type Names struct {
	// Staging is the table where new records arrive.
	Staging string

	// Rules is the destination rule configuration table.
	Rules string

	// Ledger is the routing-event log table.
	Ledger string

	// Fallback is the hard-coded fallback destination, used when the
	// rules name no usable destination at all.
	Fallback string
}

func (n Names) withDefaults() Names {
	if n.Staging == "" {
		n.Staging = DefaultStagingTable
	}
	if n.Rules == "" {
		n.Rules = DefaultRulesTable
	}
	if n.Ledger == "" {
		n.Ledger = DefaultLedgerTable
	}
	if n.Fallback == "" {
		n.Fallback = DefaultFallback
	}
	return n
}

// Status classifies the outcome of one routing attempt.
type Status int

const (
	// StatusRouted means the record was appended to its destination and
	// the ledger entry written.
	StatusRouted Status = iota + 1

	// StatusNotReady means at least one of the six fields was empty.
	// The row is expected to be retried by a later trigger.
	StatusNotReady

	// StatusAlreadyRouted means the ledger already holds this source
	// row. Idempotent no-op.
	StatusAlreadyRouted
)

// String returns the status name used in logs and CLI output.
func (s Status) String() string {
	switch s {
	case StatusRouted:
		return "routed"
	case StatusNotReady:
		return "not_ready"
	case StatusAlreadyRouted:
		return "already_routed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalJSON encodes the status by name, matching String.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Outcome reports one routing attempt.
//
// Destination, DestRow and ContentKey are set only when Status is
// StatusRouted.
type Outcome struct {
	Status      Status `json:"status"`
	SourceRow   int    `json:"source_row"`
	Destination string `json:"destination,omitempty"`
	DestRow     int    `json:"dest_row,omitempty"`
	ContentKey  string `json:"content_key,omitempty"`
	AttemptID   string `json:"attempt_id"`
}

// Engine orchestrates routing attempts against one document.
//
// The engine owns no persistent state. Everything lives in the
// TableStore; the engine only enforces invariants across the reads and
// writes it issues, under the document lock.
//
// Thread-safety model:
//   - RouteRow(): safe from any goroutine; attempts serialize on the
//     document lock
//   - read accessors (Ledger, Names): safe from any goroutine
//
// INVARIANTS:
//   - a source row index appears in the ledger at most once
//   - destination writes happen only for rows absent from the ledger
//   - no writes happen outside the document lock
type Engine struct {
	store    tablestore.Store
	names    Names
	resolver *rules.Resolver
	ledger   *Ledger

	clock       Clock
	tokens      TokenSource
	notifier    Notifier
	lockTimeout time.Duration
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithClock sets the timestamp source for ledger entries.
// Default: SystemClock (wall clock, UTC).
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithTokens sets the attempt token source.
// Default: UUIDv7Source.
func WithTokens(ts TokenSource) Option {
	return func(e *Engine) {
		e.tokens = ts
	}
}

// WithNotifier sets the sink for routed-record notifications.
// Default: Discard.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithLockTimeout bounds the wait for the document lock.
// Default: DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lockTimeout = d
	}
}

// New creates an Engine over the given store.
func New(store tablestore.Store, names Names, opts ...Option) *Engine {
	names = names.withDefaults()

	e := &Engine{
		store:       store,
		names:       names,
		resolver:    rules.NewResolver(store, names.Rules, names.Fallback),
		ledger:      NewLedger(store, names.Ledger),
		clock:       SystemClock{},
		tokens:      UUIDv7Source{},
		notifier:    Discard{},
		lockTimeout: DefaultLockTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Names returns the bound table names.
func (e *Engine) Names() Names {
	return e.names
}

// Store returns the underlying table store.
func (e *Engine) Store() tablestore.Store {
	return e.store
}

// Ledger returns the engine's routing ledger, for read surfaces.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Resolver returns the engine's destination resolver, for read surfaces.
func (e *Engine) Resolver() *rules.Resolver {
	return e.resolver
}

// RouteRow runs one routing attempt for a staged row.
//
// The whole read-check-resolve-write-log sequence runs under the
// document lock, so for a fixed source row at most one destination
// write ever happens, no matter how often or how concurrently RouteRow
// is invoked for that row. Resolution uses whatever values are present
// on the first invocation that finds the row complete and unlogged.
//
// Not-ready and already-routed conditions are reported through
// Outcome.Status with a nil error. A lock timeout, a resolution
// failure, or a store fault returns a *RuntimeError. Errors raised
// before the destination write leave no state behind. A fault between
// the destination write and the ledger append can leave an unlogged
// record; keeping both consistent is best-effort, not transactional.
func (e *Engine) RouteRow(ctx context.Context, sourceRow int) (Outcome, error) {
	if sourceRow < record.FirstDataRow {
		return Outcome{}, fmt.Errorf("route row %d: below first data row", sourceRow)
	}

	attempt := e.tokens.Token()

	out, note, err := e.routeLocked(ctx, sourceRow, attempt)
	if err != nil {
		return Outcome{}, err
	}

	// Step 8, outside the lock: observational only, never blocks,
	// never fails the outcome.
	if note != nil {
		e.notifier.Notify(*note)
	}

	return out, nil
}

// routeLocked runs steps 1-7 of a routing attempt inside the document
// lock and returns the outcome plus the notification to emit, if any.
func (e *Engine) routeLocked(ctx context.Context, sourceRow int, attempt string) (Outcome, *Notification, error) {
	if err := e.store.Acquire(ctx, e.lockTimeout); err != nil {
		if errors.Is(err, tablestore.ErrLockTimeout) {
			slog.Warn("document lock timeout",
				"attempt", attempt,
				"source_row", sourceRow,
				"timeout", e.lockTimeout,
			)
			return Outcome{}, nil, NewLockTimeoutError(sourceRow, e.lockTimeout, err)
		}
		return Outcome{}, nil, fmt.Errorf("acquire document lock: %w", err)
	}
	defer func() {
		if err := e.store.Release(); err != nil {
			slog.Error("document lock release failed",
				"attempt", attempt,
				"source_row", sourceRow,
				"error", err,
			)
		}
	}()

	out := Outcome{SourceRow: sourceRow, AttemptID: attempt}

	// Step 1: read the six fixed-position fields.
	staging, err := e.store.Table(ctx, e.names.Staging)
	if err != nil {
		return Outcome{}, nil, NewStoreError(sourceRow, e.names.Staging, "open staging table", err)
	}
	cells, err := staging.ReadRow(ctx, sourceRow, 1, record.FieldCount)
	if err != nil {
		return Outcome{}, nil, NewStoreError(sourceRow, e.names.Staging, "read staged row", err)
	}
	rec := record.FromRow(cells)

	// Step 2: completeness gate. Not an error, just not yet ready.
	if !rec.Complete() {
		slog.Debug("row not ready",
			"attempt", attempt,
			"source_row", sourceRow,
		)
		out.Status = StatusNotReady
		return out, nil, nil
	}

	// Step 3: the ledger gates at-most-once by source row index.
	routed, err := e.ledger.WasRouted(ctx, sourceRow)
	if err != nil {
		return Outcome{}, nil, NewStoreError(sourceRow, e.names.Ledger, "check ledger", err)
	}
	if routed {
		slog.Debug("row already routed",
			"attempt", attempt,
			"source_row", sourceRow,
		)
		out.Status = StatusAlreadyRouted
		return out, nil, nil
	}

	// Step 4: resolve the destination from the classification key.
	res, err := e.resolver.Resolve(ctx, rec.CustomerCode)
	if err != nil {
		return Outcome{}, nil, NewStoreError(sourceRow, e.names.Rules, "resolve destination", err)
	}
	if res.Destination == "" {
		return Outcome{}, nil, NewResolveError(sourceRow, rec.CustomerCode)
	}

	// Step 5: obtain or create the destination and enforce its header.
	dest, err := e.ensureDestination(ctx, res)
	if err != nil {
		return Outcome{}, nil, NewStoreError(sourceRow, res.Destination, "ensure destination", err)
	}

	// Step 6: plan the next writable row and append the full record.
	destRow, err := NextRow(ctx, dest, record.FieldCount)
	if err != nil {
		return Outcome{}, nil, NewStoreError(sourceRow, dest.Name(), "plan next row", err)
	}
	if err := dest.WriteRow(ctx, destRow, 1, rec.Cells()); err != nil {
		return Outcome{}, nil, NewStoreError(sourceRow, dest.Name(), "write record", err)
	}

	// Step 7: record the event. From here on the row is routed.
	key := rec.ContentKey()
	now := e.clock.Now()
	if err := e.ledger.Append(ctx, key, dest.Name(), sourceRow, now); err != nil {
		return Outcome{}, nil, NewStoreError(sourceRow, e.names.Ledger, "append ledger entry", err)
	}

	out.Status = StatusRouted
	out.Destination = dest.Name()
	out.DestRow = destRow
	out.ContentKey = key

	slog.Info("row routed",
		"attempt", attempt,
		"source_row", sourceRow,
		"destination", out.Destination,
		"dest_row", destRow,
		"content_key", key,
	)

	note := &Notification{
		AttemptID:   attempt,
		SourceRow:   sourceRow,
		ContentKey:  key,
		Destination: out.Destination,
		DestRow:     destRow,
		When:        now,
	}
	return out, note, nil
}

// ensureDestination returns a handle to the resolved destination table.
// Lookup is case/whitespace-insensitive against the existing table
// names; creation uses the exact resolved name. Either way the header
// layout is enforced before the handle is returned.
func (e *Engine) ensureDestination(ctx context.Context, res rules.Resolution) (tablestore.Table, error) {
	names, err := e.store.TableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	existing := ""
	for _, name := range names {
		if record.SameName(name, res.Destination) {
			existing = name
			break
		}
	}

	var dest tablestore.Table
	if existing != "" {
		dest, err = e.store.Table(ctx, existing)
		if err != nil {
			return nil, fmt.Errorf("open destination %s: %w", existing, err)
		}
	} else {
		dest, err = e.store.CreateTable(ctx, res.Destination)
		if err != nil {
			return nil, fmt.Errorf("create destination %s: %w", res.Destination, err)
		}
		slog.Info("destination created", "destination", res.Destination)
	}

	if err := ensureHeader(ctx, dest, res.Default); err != nil {
		return nil, err
	}
	return dest, nil
}

// ensureHeader enforces the destination header layout: the full
// six-column layout on the primary/default destination, the compact
// four-column layout on all others. A header already matching
// case-insensitively is left untouched; an absent or mismatched one is
// overwritten.
func ensureHeader(ctx context.Context, t tablestore.Table, isDefault bool) error {
	layout := record.CompactHeader
	if isDefault {
		layout = record.FullHeader
	}

	cells, err := t.ReadRow(ctx, 1, 1, len(layout))
	if err != nil {
		return fmt.Errorf("read header of %s: %w", t.Name(), err)
	}
	if record.HeaderMatches(cells, layout) {
		return nil
	}

	if err := t.WriteRow(ctx, 1, 1, record.HeaderCells(layout)); err != nil {
		return fmt.Errorf("write header of %s: %w", t.Name(), err)
	}
	return nil
}
