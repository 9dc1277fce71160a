// Package curated implements the curated dataset index: an append-only, versioned log of
// page records with a last-write-wins view.
//
// On-disk layout of one dataset version:
//
//	<root>/v<N>/index/v<N>.jsonl                      one record per line, append order
//	<root>/v<N>/images/<base_label>/<doc>_<page>.png  rendered page images
//
// Every append rewrites the log through a temp file, fsync and rename, so a crash never
// leaves a partial line behind. Readers load an immutable view through an atomic pointer
// and never block the writer. Relabeling appends a new record; the newest record for a
// (document, page) pair is the current one and the full history stays in the log.
//
// A version handle is explicit: [Open] binds an Index to one version and every read and
// write goes through that handle.
package curated
