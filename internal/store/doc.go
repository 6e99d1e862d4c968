// Package store provides SQLite-backed durable storage for flow instances.
//
// The store keeps:
//   - Instances: the durable DataSet of each FlowInstance, with its hash
//   - Runs: one record per executor invocation (ok or failed), append-only
//   - Builder Events: the listener notifications observed during each run
//
// # Critical Patterns
//
// Logical time:
//   - Runs are ordered by seq INTEGER (logical clock), NEVER timestamps
//   - Enables deterministic history and replay regardless of wall time
//
// Deterministic query results:
//   - All list queries include ORDER BY seq ASC (plus a tiebreaker)
//
// Atomic commits:
//   - CommitRun writes the run, its events and the new DataSet in one
//     transaction; a failed run never touches the stored DataSet
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// DataSets, deltas and responses are stored as canonical JSON
// (ir.MarshalCanonical), so stored hashes can be recomputed exactly.
package store
