// Package store provides a SQLite-backed journal of compiled queries.
//
// Each entry holds a request document, the SQL and arguments it compiled
// to (or the error it raised), and content hashes for both sides:
//   - request_hash: ir.RequestHash of the request, UNIQUE, so recording the
//     same request twice is a no-op that returns the existing entry
//   - compiled_hash: ir.CompiledHash of the SQL and args
//
// Replay recompiles every entry and reports drift, which is how a compiler
// change is checked against previously recorded output.
//
// # Ordering
//
// Entries carry a logical seq assigned at insert time. All reads use
// ORDER BY seq ASC, id ASC COLLATE BINARY; recorded_at is informational.
//
// # Encoding
//
//   - request and sql_text: zstd-compressed (canonical JSON for requests)
//   - args: MessagePack with an explicit kind tag per argument, so int64,
//     float64 and time.Time arguments survive the round trip unchanged
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
