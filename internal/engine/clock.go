package engine

import "time"

// Clock supplies the timestamps recorded in ledger entries.
//
// Routing never orders by these timestamps - ordering comes from the
// ledger's append order - so the clock exists only for the audit trail.
// Injecting it keeps ledger output deterministic under test.
//
// Implemented by SystemClock (production) and testutil.FixedClock (tests).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
//
// Thread-safety: SystemClock is stateless and safe for concurrent use.
type SystemClock struct{}

// Now returns the current wall-clock time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
