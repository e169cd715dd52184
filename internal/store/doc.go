// Package store provides SQLite-backed durable storage for simulation runs.
//
// A run is one engine session. For every run the store keeps:
//   - runs: backend, graph hash and flags the session was started with
//   - block_changes: every block a flush changed, in flush order
//   - snapshots: zstd-compressed full world states at chosen ticks
//
// Run IDs are UUIDv7, so listing runs by ID lists them in start order.
// Changes are ordered by (tick, seq) where seq is a per-run counter; wall
// time is stored for humans and never used for ordering.
//
// # Database Configuration
//
// Open sets WAL mode, synchronous=NORMAL, a 5 second busy timeout and
// foreign keys, so deleting a run deletes its changes and snapshots. Logs
// written by older builds are upgraded in place through the migrations
// keyed on PRAGMA user_version.
package store
