// Package engine implements the switchyard routing engine.
//
// The engine is the heart of switchyard - it takes one staged row at a
// time, decides whether the row is ready and unrouted, resolves its
// destination, appends the record there, and records the event in the
// routing ledger.
//
// ARCHITECTURE:
//
// Document-Scoped Critical Section:
// The backing store offers no transactional isolation across separate
// read/write calls, so every routing attempt runs the full
// read-check-resolve-write-log sequence under a single document-scoped
// lock. At most one attempt is in flight against the store at any time,
// across all rows and all callers. The lock is acquired with a bounded
// wait; on timeout the attempt is abandoned before any write, leaving
// the row eligible for a later retry.
//
// Routing Attempt Flow:
// 1. Read the six staged fields at the source row
// 2. Incomplete record: stop, not ready (no state change)
// 3. Ledger already holds the source row: stop, idempotent no-op
// 4. Resolve the destination from the rules table
// 5. Obtain or create the destination table, ensure its header
// 6. Plan the next writable row and append the full record
// 7. Append the ledger entry (key, timestamp, destination, source row)
// 8. Emit a fire-and-forget notification of the routed outcome
//
// Steps 1-7 hold the lock; step 8 never blocks and never fails the
// attempt.
//
// CRITICAL PATTERNS:
//
// At-Most-Once by Ledger:
// The ledger is the source of truth for "already routed." A source row
// index appears in the ledger at most once, and only rows absent from
// the ledger are ever written to a destination. Duplicate content keys
// across different source rows are permitted.
//
// Read-Only Planning:
// The append planner only reads. The planned row is not reserved; the
// caller must write it promptly inside the same critical section.
package engine
