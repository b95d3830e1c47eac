// Package store provides SQLite-backed durable storage for fogtimer.
//
// The store is a key-value blob store: each key names one opaque value.
// The trial archive is persisted as a single blob and rewritten in full on
// every change.
//
// # Atomicity
//
// Put replaces a blob inside a single transaction. Either the new value is
// committed or the previous value remains; a reader never observes a
// partial write.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: The archive is clinical data; durability over speed
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Schema migrations are tracked with PRAGMA user_version.
package store
