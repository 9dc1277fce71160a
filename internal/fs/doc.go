// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: Represents an open file with read/write/sync capabilities
//   - [FileSystem]: Abstracts filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Durable writes
//
// [WriteAtomic] is the only way curated logs, manifests and snapshots reach disk:
// content goes to a temp file in the target directory, is fsynced, renamed over the
// target, and the directory is fsynced. A crash leaves either the old or the new file,
// never a torn one.
//
// # Process lock
//
// [Lock] takes an exclusive advisory lock so only one process curates a dataset root.
package fs
