package curated

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openTest(t *testing.T, root string, v model.Version, optFns ...func(o *Options)) *Index {
	t.Helper()
	ix, err := Open(root, v, append([]func(o *Options){func(o *Options) {
		o.Now = func() time.Time { return fixedNow }
	}}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func page(doc string, p int, lbl string) model.PageRecord {
	return model.PageRecord{Document: doc, Page: p, Label: lbl, Text: "Form  1040\nIncome", TextSource: model.TextSourceNative}
}

func writeImage(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestAppendSupersedes(t *testing.T) {
	ctx := context.Background()
	ix := openTest(t, t.TempDir(), 1)

	r1, err := ix.Append(ctx, page("1040_2021", 1, "Form_1040_P1"))
	require.NoError(t, err)
	assert.Equal(t, model.RecordID{Document: "1040_2021", Page: 1, Version: 1}, r1.ID)
	assert.False(t, r1.Superseded)

	r2, err := ix.Append(ctx, page("1040_2021", 1, "Form_1040_SR_P1"))
	require.NoError(t, err)
	assert.True(t, r2.Superseded)
	assert.True(t, r2.DedupConflict)
	assert.Equal(t, "Form_1040_P1", r2.PreviousLabel)
	assert.Equal(t, uint64(2), r2.Seq)

	cur, ok := ix.Current(model.PageKey{Document: "1040_2021", Page: 1})
	require.True(t, ok)
	assert.Equal(t, "Form_1040_SR_P1", cur.Label)
	assert.Equal(t, "Form_1040_SR", cur.BaseLabel)
	assert.Equal(t, 1, cur.PageInForm)
	assert.Equal(t, fixedNow, cur.AddedAt)
	assert.Equal(t, model.Version(1), cur.DatasetVersion)
	assert.Equal(t, "form 1040 income", cur.Text)
	assert.Equal(t, len("form 1040 income"), cur.TextLen)

	assert.Equal(t, 2, ix.Len())
	hist := ix.History(model.PageKey{Document: "1040_2021", Page: 1})
	require.Len(t, hist, 2)
	assert.Equal(t, "Form_1040_P1", hist[0].Label)
	assert.Len(t, ix.CurrentRecords(), 1)
}

func TestAppendValidation(t *testing.T) {
	ix := openTest(t, t.TempDir(), 1)
	word := model.Word{Text: "a", BBox: model.BBox{0, 0, 1, 1}}

	tests := []struct {
		name  string
		rec   model.PageRecord
		field string
	}{
		{"missing document", model.PageRecord{Page: 1, Label: "x"}, "document"},
		{"zero page", model.PageRecord{Document: "d", Label: "x"}, "page"},
		{"blank label", model.PageRecord{Document: "d", Page: 1, Label: "  "}, "label"},
		{"words without boxes", model.PageRecord{Document: "d", Page: 1, Label: "x", Words: []model.Word{word}}, "boxes_norm"},
		{"box out of range", model.PageRecord{Document: "d", Page: 1, Label: "x", Words: []model.Word{word}, BoxesNorm: []model.BBox{{0, 0, 1001, 5}}}, "boxes_norm"},
		{"bad text source", model.PageRecord{Document: "d", Page: 1, Label: "x", TextSource: "scan"}, "text_source"},
		{"foreign version", model.PageRecord{Document: "d", Page: 1, Label: "x", DatasetVersion: 2}, "dataset_version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ix.Append(context.Background(), tt.rec)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Equal(t, 0, ix.Len())
	_, err := os.Stat(ix.Layout().LogPath())
	assert.True(t, os.IsNotExist(err), "rejected records are not written")
}

func TestAppendResolvesAliases(t *testing.T) {
	aliases := label.Aliases{"f1040_p2": "1040_2021_P2"}
	ix := openTest(t, t.TempDir(), 1, func(o *Options) { o.Aliases = aliases })

	rec := page("doc", 2, "f1040_p2")
	rec.AutoLabel = "1040_2021_P2"
	r, err := ix.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "1040_2021_P2", r.Label)

	cur, _ := ix.Current(model.PageKey{Document: "doc", Page: 2})
	assert.Equal(t, "1040_2021_P2", cur.Label)
	assert.Equal(t, "f1040_p2", cur.RawLabel)
	assert.Equal(t, "1040_2021", cur.BaseLabel)
	assert.Equal(t, 2, cur.PageInForm)
	assert.True(t, cur.Multipage)
	assert.False(t, cur.UpdatedLabel, "auto label equals the canonical label")

	again := label.Canonicalize(aliases, cur.Label)
	assert.Equal(t, cur.Label, again.Label)
}

func TestReopenAndInvalidLines(t *testing.T) {
	root := t.TempDir()
	ix := openTest(t, root, 3)
	for i := 1; i <= 3; i++ {
		_, err := ix.Append(context.Background(), page("doc", i, "W2"))
		require.NoError(t, err)
	}

	f, err := os.OpenFile(ix.Layout().LogPath(), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(ix.Layout().LogPath()), fs.TempPrefix+"v3.jsonl-123"), []byte("x"), 0o644))

	re := openTest(t, root, 3)
	assert.Equal(t, 3, re.Len())
	assert.Equal(t, uint64(3), re.Seq())
	assert.Equal(t, 1, re.Stats().InvalidLines)

	entries, err := os.ReadDir(filepath.Dir(re.Layout().LogPath()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "leftover temp files are removed on open")

	r, err := re.Append(context.Background(), page("doc", 4, "W2"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), r.Seq)

	vs, err := Versions(nil, root)
	require.NoError(t, err)
	assert.Equal(t, []model.Version{3}, vs)
}

func TestOpenWithoutCreate(t *testing.T) {
	_, err := Open(t.TempDir(), 1, func(o *Options) { o.Create = false })
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Open(t.TempDir(), 0)
	require.ErrorIs(t, err, ErrValidation)
}

func TestAppendMovesImageOnRelabel(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ix := openTest(t, root, 1)
	src := writeImage(t, t.TempDir(), "render.png", "png-1")

	_, err := ix.Append(ctx, page("a/b.pdf", 1, "Form_1040_P1"), WithImage(src))
	require.NoError(t, err)
	first, _ := ix.Current(model.PageKey{Document: "a/b.pdf", Page: 1})
	assert.Equal(t, "images/Form_1040/a_b.pdf_1.png", first.ImagePath)
	data, err := os.ReadFile(ix.Layout().Abs(first.ImagePath))
	require.NoError(t, err)
	assert.Equal(t, "png-1", string(data))

	_, err = ix.Append(ctx, page("a/b.pdf", 1, "Form_1040_SR_P1"))
	require.NoError(t, err)
	second, _ := ix.Current(model.PageKey{Document: "a/b.pdf", Page: 1})
	assert.Equal(t, "images/Form_1040_SR/a_b.pdf_1.png", second.ImagePath)

	data, err = os.ReadFile(ix.Layout().Abs(second.ImagePath))
	require.NoError(t, err)
	assert.Equal(t, "png-1", string(data))
	_, err = os.Stat(ix.Layout().Abs(first.ImagePath))
	assert.True(t, os.IsNotExist(err), "stale image is removed")

	src2 := writeImage(t, t.TempDir(), "render.png", "png-2")
	_, err = ix.Append(ctx, page("a/b.pdf", 1, "W2"), WithImage(src2))
	require.NoError(t, err)
	third, _ := ix.Current(model.PageKey{Document: "a/b.pdf", Page: 1})
	data, err = os.ReadFile(ix.Layout().Abs(third.ImagePath))
	require.NoError(t, err)
	assert.Equal(t, "png-2", string(data))
	_, err = os.Stat(ix.Layout().Abs(second.ImagePath))
	assert.True(t, os.IsNotExist(err))
}

func TestAppendIOErrorLeavesLogIntact(t *testing.T) {
	ctx := context.Background()
	ffs := fs.NewFaultyFS(fs.Default)
	root := t.TempDir()
	ix := openTest(t, root, 1, func(o *Options) { o.FS = ffs })

	_, err := ix.Append(ctx, page("doc", 1, "W2"))
	require.NoError(t, err)
	before, err := os.ReadFile(ix.Layout().LogPath())
	require.NoError(t, err)

	boom := errors.New("disk full")
	ffs.AddRule("v1.jsonl", fs.Fault{FailOnRename: true, Err: boom})
	_, err = ix.Append(ctx, page("doc", 2, "W2"))
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.ErrorIs(t, err, boom)

	after, err := os.ReadFile(ix.Layout().LogPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, ix.Len())

	ffs.ClearRules()
	_, err = ix.Append(ctx, page("doc", 2, "W2"))
	require.NoError(t, err, "no internal retry, the caller retries")
	assert.Equal(t, 2, ix.Len())
}

func TestConcurrentAppends(t *testing.T) {
	ix := openTest(t, t.TempDir(), 1)
	const n = 32

	var wg sync.WaitGroup
	seqs := make([]uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := ix.Append(context.Background(), page(fmt.Sprintf("doc-%d", i%8), i/8+1, "W2"))
			assert.NoError(t, err)
			seqs[i] = r.Seq
			_ = ix.CurrentRecords()
		}()
	}
	wg.Wait()

	assert.Equal(t, n, ix.Len())
	seen := map[uint64]bool{}
	for _, s := range seqs {
		assert.False(t, seen[s])
		seen[s] = true
	}

	re := openTest(t, ix.Layout().Root, 1)
	assert.Equal(t, n, re.Len())
}

func TestAppendBatchIsolatesFailures(t *testing.T) {
	ix := openTest(t, t.TempDir(), 1)
	res, err := ix.AppendBatch(context.Background(), []model.PageRecord{
		page("doc", 1, "W2"),
		{Document: "doc", Page: 0, Label: "W2"},
		page("doc", 2, "W2"),
	})
	require.NoError(t, err)
	assert.Len(t, res.Receipts, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].Index)
}

func TestAppendAfterClose(t *testing.T) {
	ix := openTest(t, t.TempDir(), 1)
	require.NoError(t, ix.Close())
	_, err := ix.Append(context.Background(), page("doc", 1, "W2"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestDeleteAppendsTombstone(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ix := openTest(t, root, 1)
	key := model.PageKey{Document: "doc", Page: 1}

	src := writeImage(t, t.TempDir(), "render.png", "png")
	_, err := ix.Append(ctx, page("doc", 1, "Form_1040_P1"), WithImage(src))
	require.NoError(t, err)
	_, err = ix.Append(ctx, page("doc", 2, "Form_1040_P2"))
	require.NoError(t, err)
	cur, _ := ix.Current(key)
	imagePath := ix.Layout().Abs(cur.ImagePath)

	r, err := ix.Delete(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), r.Seq)
	assert.True(t, r.Superseded)
	assert.Equal(t, "Form_1040_P1", r.PreviousLabel)

	_, ok := ix.Current(key)
	assert.False(t, ok)
	hist := ix.History(key)
	require.Len(t, hist, 2)
	assert.False(t, hist[0].Deleted)
	assert.True(t, hist[1].Deleted)
	assert.Equal(t, 3, ix.Len())

	st := ix.Stats()
	assert.Equal(t, 1, st.CurrentPages)
	assert.Equal(t, 1, st.Tombstones)
	assert.Equal(t, map[string]int{"Form_1040_P2": 1}, st.Labels)
	require.Len(t, ix.CurrentRecords(), 1)

	_, err = os.Stat(imagePath)
	assert.True(t, os.IsNotExist(err), "image of a deleted page is removed")

	_, err = ix.Delete(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	re := openTest(t, root, 1)
	_, ok = re.Current(key)
	assert.False(t, ok, "tombstones survive a reopen")
	assert.Equal(t, 1, re.Stats().Tombstones)

	r, err = re.Append(ctx, page("doc", 1, "W2"))
	require.NoError(t, err)
	assert.False(t, r.Superseded, "a deleted page comes back as new")
	cur, ok = re.Current(key)
	require.True(t, ok)
	assert.Equal(t, "W2", cur.Label)
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	ix := openTest(t, t.TempDir(), 1)

	for p := 1; p <= 3; p++ {
		_, err := ix.Append(ctx, page("a.pdf", p, "W2"))
		require.NoError(t, err)
	}
	_, err := ix.Append(ctx, page("b.pdf", 1, "W2"))
	require.NoError(t, err)

	rs, err := ix.DeleteDocument(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Len(t, rs, 3)

	recs := ix.CurrentRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, "b.pdf", recs[0].Document)

	_, err = ix.DeleteDocument(ctx, "a.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}
