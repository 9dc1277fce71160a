// Package corpus builds the initial labeled corpus from ground-truth files and their PDFs.
//
// Output layout under the output directory:
//
//	<family>/<label>.jsonl   one model.PageRecord per line
//	corpus_index.json        documents, totals, per-family and per-label counts
//	label_profiles.json      top terms per label
//
// A build is written to a staging directory and swapped into place when complete, so a
// failed or cancelled build leaves the previous corpus untouched. Repeated builds over
// unchanged input produce byte-identical files.
package corpus
