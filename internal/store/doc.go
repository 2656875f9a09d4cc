// Package store owns the single connection to the embedded SQLite database and
// its versioned schema.
//
// A Manager hands out a Handle. Open reuses the live handle unless the stored
// schema version moved underneath it (another connection mutated the schema),
// in which case the handle is invalidated and a fresh one is opened. Mutate
// applies a schema change under a new version number.
//
// Two version signaling variants are supported behind the same contract:
//
//   - upgrade-event: the live handle is closed and the database is reopened at
//     version+1; the upgrade runs while the new handle is being opened.
//   - set-version: the version is bumped on the live handle inside a
//     transaction, and the upgrade runs inside that same transaction.
//
// Either way the upgrade callback, the base layout, and the version bump commit
// or roll back together.
//
// # Layout
//
//   - col_<collection>: one table per logical collection, keyed by entity id
//   - query_cache: query signature -> ordered ids
//   - aggregation_cache: aggregation signature -> raw result
//   - transaction_log: collection -> pending changeset
//
// The schema version is PRAGMA user_version. A fresh database is brought to
// version 1 with the base layout on first open.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// The pool is limited to one connection. Never query the handle's DB while a
// transaction from the same handle is open.
package store
