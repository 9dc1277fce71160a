// Package label canonicalizes page labels.
//
// A label such as "Form_1040_P2" carries a page-in-form suffix. [Split] derives the base
// label ("Form_1040") and the page number (2). Labels are resolved through an alias
// table before anything is written, so every stored label is canonical.
//
// [Table] holds the alias map behind an atomic pointer: readers never block, and
// [Table.Set] persists the merged map with an atomic file replace. [Watcher] reloads the
// table when the aliases file changes on disk.
package label
