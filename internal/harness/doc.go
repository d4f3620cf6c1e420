// Package harness runs routing scenarios as executable contract tests.
//
// A scenario seeds a rule configuration, stages source rows, drives the
// engine through a flow of routing steps, and asserts on the ledger and
// the final document. Scenarios are the regression net for the routing
// invariants: at-most-once per source row, exact-over-default
// resolution, and header enforcement on destinations.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	rules:
//	  - code: ACME
//	    destination: ACME_ORDERS
//	  - destination: ORDERS
//	    default: true
//	staging:
//	  - ["P-100", "WH1", "ACME", "12.50", "2026-08-01", "GASKET"]
//	flow:
//	  - do: route
//	    row: 2
//	    expect: { status: routed, destination: ACME_ORDERS }
//	  - do: sweep
//	    expect: { already_routed: 1 }
//	assertions:
//	  - type: ledger_count
//	    count: 1
//	  - type: routed
//	    row: 2
//	    destination: ACME_ORDERS
//
// Flow steps:
//
//   - route: one routing attempt for a single source row
//   - sweep: a full pass over every staged row
//   - edit: an edit event covering a row range, dispatched as the
//     webhook and spool producers would deliver it
//   - set: write one cell, typically to complete a previously
//     not-ready row mid-scenario
//
// An expect clause is a subset match: only the keys it names are
// compared, extra keys in the actual outcome are ignored. Route steps
// match against the outcome fields (status, destination, dest_row,
// content_key, attempt); sweep and edit steps match against the summary
// counters (routed, not_ready, already_routed, failed). A route step
// that should fail names the error code instead: expect: { error:
// LOCK_TIMEOUT }.
//
// # Assertion Types
//
//   - ledger_count: the ledger holds exactly N entries
//   - routed: a source row appears in the ledger, optionally bound to a
//     destination
//   - not_routed: a source row does not appear in the ledger
//   - cell: one cell of one table holds an exact value
//   - table_exists / no_table: a table is present or absent
//   - header: a table's header row matches a layout (full, compact,
//     ledger)
//   - destination_count: a table holds exactly N data rows
//
// # Deterministic Execution
//
// Every scenario runs against a fresh in-memory store with a pinned
// clock and sequenced attempt tokens, so ledger timestamps and trace
// output are identical across runs. Golden snapshots build on that: see
// RunWithGolden.
package harness
