// Package store provides SQLite-backed durable storage for simulation runs.
//
// Each run gets one row in runs and an append-only stream of rows in events:
// every spawn, completion, token recovery, crash and the final stop.
//
// # Ordering
//
//   - Events are ordered by seq, a per-run logical sequence from Sequence
//   - Queries always ORDER BY seq ASC, never by wall time
//   - Run IDs are UUIDv7, so ordering runs by id follows creation time
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
