package curated

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
)

func TestRebuildCompactsWithAliases(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ix := openTest(t, root, 1)
	img := writeImage(t, t.TempDir(), "p.png", "png")

	_, err := ix.Append(ctx, page("doc", 1, "Form_1040_P1"), WithImage(img))
	require.NoError(t, err)
	_, err = ix.Append(ctx, page("doc", 1, "f1040sr_P1"), WithImage(img))
	require.NoError(t, err)
	_, err = ix.Append(ctx, page("doc", 2, "W2"))
	require.NoError(t, err)
	srcLog, err := os.ReadFile(ix.Layout().LogPath())
	require.NoError(t, err)

	next, res, err := ix.Rebuild(ctx, label.Aliases{"f1040sr_P1": "Form_1040_SR_P1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = next.Close() })

	assert.Equal(t, RebuildResult{From: 1, To: 2, Lines: 3, Records: 2, Relabeled: 1, Images: 1}, res)
	assert.Equal(t, model.Version(2), next.Version())
	assert.Equal(t, 2, next.Len())

	recs := next.Records()
	assert.Equal(t, "Form_1040_SR_P1", recs[0].Label)
	assert.Equal(t, "Form_1040_SR", recs[0].BaseLabel)
	assert.Equal(t, 1, recs[0].PageInForm)
	assert.Equal(t, model.Version(2), recs[0].DatasetVersion)
	assert.Equal(t, uint64(1), recs[0].Seq)
	assert.Equal(t, "images/Form_1040_SR/doc_1.png", recs[0].ImagePath)
	_, err = os.Stat(next.Layout().Abs(recs[0].ImagePath))
	require.NoError(t, err)
	assert.Equal(t, "W2", recs[1].Label)

	after, err := os.ReadFile(ix.Layout().LogPath())
	require.NoError(t, err)
	assert.Equal(t, srcLog, after, "source lines are untouched")

	vs, err := Versions(nil, root)
	require.NoError(t, err)
	assert.Equal(t, []model.Version{1, 2}, vs)

	_, _, err = ix.RebuildTo(ctx, 2, nil)
	require.ErrorIs(t, err, ErrVersionExists)
}

func TestRebuildCancelledRemovesPartialVersion(t *testing.T) {
	root := t.TempDir()
	ix := openTest(t, root, 1)
	_, err := ix.Append(context.Background(), page("doc", 1, "W2"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = ix.Rebuild(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = os.Stat(filepath.Join(root, "v2"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportTree(t *testing.T) {
	ctx := context.Background()
	ix := openTest(t, t.TempDir(), 1)
	img := writeImage(t, t.TempDir(), "p.png", "png")

	for i := 1; i <= 3; i++ {
		_, err := ix.Append(ctx, page("doc", i, "W2"), WithImage(img))
		require.NoError(t, err)
	}
	_, err := ix.Append(ctx, page("doc", 4, "1099 INT"), WithImage(img))
	require.NoError(t, err)
	_, err = ix.Append(ctx, page("doc", 5, "W2"))
	require.NoError(t, err)

	dst := t.TempDir()
	res, err := ix.ExportTree(ctx, dst, 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"W2": 2, "1099 INT": 1}, res.Labels)
	assert.Equal(t, 3, res.Copied)
	assert.Equal(t, 1, res.Capped)
	assert.Equal(t, 1, res.Missing)

	files, err := os.ReadDir(filepath.Join(dst, "W2"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
	_, err = os.Stat(filepath.Join(dst, "1099_INT", "doc_4.png"))
	require.NoError(t, err)
}

func TestConcurrentRebuildSharesOneVersion(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	var gated atomic.Bool
	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	ix := openTest(t, root, 1, func(o *Options) {
		o.Now = func() time.Time {
			if gated.Load() {
				select {
				case entered <- struct{}{}:
				default:
				}
				<-release
			}
			return fixedNow
		}
	})
	_, err := ix.Append(ctx, page("doc", 1, "W2"))
	require.NoError(t, err)
	_, err = ix.Append(ctx, page("doc", 2, "W2"))
	require.NoError(t, err)

	gated.Store(true)

	const n = 8
	var (
		wg      sync.WaitGroup
		ready   sync.WaitGroup
		indexes = make([]*Index, n)
		results = make([]RebuildResult, n)
		errs    = make([]error, n)
	)
	ready.Add(n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			indexes[i], results[i], errs[i] = ix.Rebuild(ctx, nil)
		}()
	}

	<-entered
	ready.Wait()
	time.Sleep(50 * time.Millisecond)
	gated.Store(false)
	close(release)
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, model.Version(2), results[i].To)
		assert.Same(t, indexes[0], indexes[i])
	}
	t.Cleanup(func() { _ = indexes[0].Close() })

	vs, err := Versions(nil, root)
	require.NoError(t, err)
	assert.Equal(t, []model.Version{1, 2}, vs)
}

func TestRebuildOmitsDeletedPages(t *testing.T) {
	ctx := context.Background()
	ix := openTest(t, t.TempDir(), 1)

	_, err := ix.Append(ctx, page("doc", 1, "W2"))
	require.NoError(t, err)
	_, err = ix.Append(ctx, page("doc", 2, "W2"))
	require.NoError(t, err)
	_, err = ix.Delete(ctx, model.PageKey{Document: "doc", Page: 1})
	require.NoError(t, err)

	next, res, err := ix.Rebuild(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = next.Close() })

	assert.Equal(t, 3, res.Lines)
	assert.Equal(t, 1, res.Records)
	recs := next.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Page)
	assert.Zero(t, next.Stats().Tombstones)
}
