// Package sync defines persistence-facing contracts for loading and saving
// transaction logs, plus a small synchronizer that replays stored logs into a
// registry and publishes captured transactions back out.
//
// Responsibilities:
//   - Store only loads/saves a single Log for a single Ref.
//   - Synchronizer decodes logs, replays them via model.RestoreTransaction,
//     and encodes transactions for publishing.
//   - The core model package remains persistence-agnostic; all persistence
//     logic stays behind Store implementations supplied by consumers.
//
// Data flow:
//
//	Store -> Synchronizer.Apply -> model.RestoreTransaction(...).Perform()
//	model.Capture(...) -> Synchronizer.Publish -> Store
//
// Conflict detection:
//
//	Meta.ETag carries the store's last-write token. Publish compares the
//	caller's ETag against the stored one and fails with ErrETagMismatch when
//	they diverge, leaving the stored log untouched.
//
// Deterministic keys:
//
//	Ref.Identifier() provides a canonical storage key (`source/channel`) so
//	different Store implementations agree on placement.
package sync
