// Package archive keeps the persisted log of finalized trials.
//
// The archive is an ordered, append-only sequence of trials stored as one
// JSON document in a single named blob. Every change rewrites the whole
// document (overwrite-on-write, no incremental diffing). Historical freeze
// edits and deletions are allowed; derived statistics are never stored, so
// they are always recomputed from the current freeze list.
//
// # Failure Handling
//
//   - Load: unreadable or invalid content is copied to "<key>.corrupt",
//     logged, and the archive starts empty. Load never fails the host.
//   - Writes: if the store rejects a write, the in-memory log is rolled back
//     so memory and storage keep agreeing.
//
// Thread-safety: Archive is not safe for concurrent use. It is owned by the
// single control thread that drives trials.
package archive
