// Package embedding stores page vectors produced by an external embedding model and
// drives the asynchronous path that turns a curated page into a searchable one.
//
// Every vector carries the dataset version and append sequence of the record it was
// computed for. A vector for an older sequence never replaces a newer one, so a slow
// embedding call can not resurrect a superseded label.
package embedding
