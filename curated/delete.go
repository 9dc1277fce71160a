package curated

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/pagecorpus/model"
)

// Delete removes a page from the curated set by appending a tombstone that
// supersedes its current record. The history stays in the log; the page image
// is removed. Deleting a page without a current record fails with ErrNotFound.
func (ix *Index) Delete(ctx context.Context, key model.PageKey) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if ix.closed.Load() {
		return Receipt{}, ErrClosed
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	old := ix.cur.Load()
	i, ok := old.latest[key]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotFound, key.ID())
	}
	prev := old.records[i]

	tomb := model.PageRecord{
		Document:       prev.Document,
		Page:           prev.Page,
		Family:         prev.Family,
		Label:          prev.Label,
		BaseLabel:      prev.BaseLabel,
		PageInForm:     prev.PageInForm,
		DatasetVersion: ix.layout.Version,
		Seq:            old.seq() + 1,
		AddedAt:        ix.opts.Now().UTC(),
		Deleted:        true,
	}
	if err := ix.writeLine(&tomb); err != nil {
		return Receipt{}, err
	}
	ix.cur.Store(old.with(tomb))

	rcpt := Receipt{
		ID:            tomb.ID(),
		Seq:           tomb.Seq,
		Label:         tomb.Label,
		Superseded:    true,
		PreviousLabel: prev.Label,
	}

	if prev.ImagePath != "" {
		path := ix.layout.Abs(prev.ImagePath)
		if err := ix.opts.FS.Remove(path); err != nil && !os.IsNotExist(err) {
			ix.logger.Error("image removal failed", "document", key.Document, "page", key.Page, "error", err)
			return rcpt, ioErr("remove image", path, err)
		}
	}

	ix.logger.Debug("record deleted", "document", key.Document, "page", key.Page, "seq", tomb.Seq)
	return rcpt, nil
}

// DeleteDocument deletes every current page of a document. A document without
// current pages fails with ErrNotFound.
func (ix *Index) DeleteDocument(ctx context.Context, document string) ([]Receipt, error) {
	var keys []model.PageKey
	for _, rec := range ix.CurrentRecords() {
		if rec.Document == document {
			keys = append(keys, rec.Key())
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, document)
	}

	out := make([]Receipt, 0, len(keys))
	for _, key := range keys {
		r, err := ix.Delete(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// deleted concurrently
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
