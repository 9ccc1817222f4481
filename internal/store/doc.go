// Package store keeps cohort definitions and their compiled SQL in SQLite.
//
// The store holds three tables:
//   - definitions: portable definitions keyed by their content hash
//   - revisions: named, numbered pointers to a definition
//   - compilations: statements compiled from a definition for one backend
//     and dialect
//
// Saving an unchanged definition under the same name does not create a new
// revision. Revision ordering uses the per-name seq column, never
// timestamps, and every query orders by seq and then id with binary
// collation so results are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Content hashes come from internal/ir/hash.go: SHA-256 over the canonical
// encoding with domain separation.
package store
