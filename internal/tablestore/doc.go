// Package tablestore defines the tabular document the routing engine runs
// against, plus three backends: an in-memory grid, SQLite, and Postgres.
//
// A document is a named set of tables. Tables are sparse grids of cells
// addressed by 1-based (row, column); row 1 is by convention the header row.
// The engine owns no state of its own - everything it reads and writes lives
// here.
//
// # Contract
//
//   - ReadRow returns exactly colCount cells; positions never written read
//     as nil.
//   - AppendRow lands on the first row past the last known row.
//   - LastRowIndex counts only rows holding a value: 0 for an empty table,
//     1 for a header-only table.
//   - Table lookup is by exact name. Callers needing tolerant matching scan
//     TableNames and compare canonically.
//
// # Document Lock
//
// The store carries one document-scoped advisory lock with a bounded
// acquisition wait. The storage medium provides no transactional isolation
// across separate read/write calls, so every multi-call routing sequence
// runs under this lock. The memory and SQLite backends realize it as a timed
// in-process mutex; the Postgres backend uses a session advisory lock keyed
// by the document name, which also serializes routing across processes.
package tablestore
