// Package store is a local Haystack database on SQLite. It implements
// client.Client, so bindings can run against it without a server.
//
// # Layout
//
//   - entities: one row per record, tags stored as a Hayson object
//   - point_writes: the priority array of each written point
//
// Reads come back ordered by seq, the order records were first stored,
// with ties broken by id (ORDER BY seq ASC, id ASC COLLATE BINARY).
//
// # Filters
//
// ReadByFilter compiles the filter with package filtersql. Queries the
// compiler marks inexact (ref paths, literals SQLite cannot compare) are
// re-checked row by row with filter.Match, dereferencing refs through the
// store.
//
// # Writes
//
// PointWrite sets one level of a point's 17-level priority array and
// recomputes curVal, writeVal and writeLevel from the highest priority
// level that holds a value. A write with a duration expires; expired
// levels are dropped before every read and write. TagCommit sets or
// removes a single tag.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
