// Package model defines core types used throughout pagecorpus.
//
// # Identity Types
//
//   - Version: Dataset version handle (v1, v2, ...). Every read and write is scoped to one.
//   - PageKey: Logical page identity (document, page) inside one version.
//   - PageID: Stable string form of a PageKey ("<document>#<page>"), used by the embedding
//     store and the similarity index.
//   - RecordID: (document, page, dataset_version), returned by curated appends.
//
// # Data Types
//
//   - PageRecord: One curated training example for a single PDF page.
//   - Word / BBox: Ordered token layout as produced by the page feature extractor.
//   - TextSource: Where the page text came from (native PDF text or OCR).
//
// Records are immutable once written. A relabel is a new record that supersedes the
// previous one for the same PageKey.
package model
