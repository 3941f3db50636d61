// Package store provides durable key-value storage for tracker state.
//
// Two implementations satisfy KV:
//   - SQLite: a single-file database for state that survives restarts
//   - Memory: a process-local map, used when no path is configured
//
// # Layout
//
// Preferences live in one table keyed by name ("User ID", "Cache Version",
// "Action Name 17", ...). Values are text; GetInt, GetBool and GetIntList
// decode them. Per-delivery action data lives in its own table so clearing
// preferences leaves it intact.
//
// # Writes
//
// Every write is an Edit. The callback records operations on a Tx and the
// store applies them atomically, in order. The tracker funnels all Edits
// through its session lock, so the store only ever sees one writer.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
