// Package store provides the SQLite-backed operation index, document
// storage and remote cursor persistence.
//
// The operation index is an append-only log keyed by (document, scope,
// branch):
//   - Operations: one row per committed operation, with a global ordinal
//   - Collections: named groups of document ids used by sync filters
//   - Documents: materialized document snapshots (the storage contract)
//   - Remotes: sync peers and their durable inbox/outbox cursors
//
// # Invariants
//
// Append-only: a trigger rejects UPDATE and DELETE on operations. Commit
// checks that each written index is exactly the next free index of its log,
// so indexes stay contiguous from 0.
//
// Atomic commits: a batch is written in one transaction. Either every staged
// row gets an ordinal or none does.
//
// Deterministic reads: log reads order by op_index; feed reads order by
// ordinal.
//
// The store trusts its caller for single-writer-per-log discipline; the job
// queue provides it.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
