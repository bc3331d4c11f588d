// Package core provides the record store for face embeddings.
//
// Records live in a single SQLite table (Faces) accessed through the pure Go
// modernc.org/sqlite driver. Each record carries a name, descriptive metadata
// and a fixed-length float32 embedding stored as a raw blob.
//
// # Key Components
//
//   - SQLiteStore: insert, lookup, ordered scan, delete and count over the Faces table.
//   - StoreError: every failure carries the failing operation; engine failures match ErrStorage.
//   - Logger: pluggable structured logging, backed by zap.
//
// # Names
//
// Names are not unique. Lookups by name return the record with the lowest ID,
// and deletes by name remove every record sharing the name.
package core
