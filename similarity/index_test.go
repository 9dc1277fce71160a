package similarity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/pagecorpus/embedding"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(t *testing.T, n, dim int, seed int64) []embedding.Entry {
	t.Helper()

	rng := testutil.NewRNG(seed)
	vecs := rng.UnitVectors(n, dim)

	out := make([]embedding.Entry, n)
	for i, v := range vecs {
		key := model.PageKey{Document: fmt.Sprintf("doc%03d.pdf", i/4), Page: i%4 + 1}
		out[i] = embedding.Entry{
			ID:      key.ID(),
			Label:   fmt.Sprintf("form_%d_P%d", i%5, i%4+1),
			Vector:  v,
			Version: 1,
			Seq:     uint64(i + 1),
		}
	}

	return out
}

func TestQueryEmpty(t *testing.T) {
	ix := New(1, nil)

	_, stamp, err := ix.Query([]float32{1, 0}, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	var empty *EmptyIndexError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, model.Version(1), stamp.Version)
	assert.Zero(t, stamp.Size)
}

func TestBuildAddQuerySelfHit(t *testing.T) {
	es := entries(t, 120, 16, 4711)
	ix := New(1, nil)

	stamp, err := ix.Build(context.Background(), 1, es[:100])
	require.NoError(t, err)
	assert.Equal(t, 100, stamp.Size)
	assert.NotEmpty(t, stamp.BuildID)

	for _, e := range es[100:] {
		require.NoError(t, ix.Add(context.Background(), e))
	}

	for _, e := range es {
		hits, _, err := ix.Query(e.Vector, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, e.ID, hits[0].ID)
		assert.Equal(t, e.Label, hits[0].Label)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	}
}

func TestQueryBoundAndOrder(t *testing.T) {
	es := entries(t, 80, 8, 1)
	ix := New(1, nil)

	stamp, err := ix.Build(context.Background(), 1, es)
	require.NoError(t, err)

	members := map[model.PageID]bool{}
	for _, e := range es {
		members[e.ID] = true
	}

	for _, k := range []int{1, 5, 10, 200} {
		hits, got, err := ix.Query(es[7].Vector, k)
		require.NoError(t, err)
		assert.Equal(t, stamp.BuildID, got.BuildID)
		assert.LessOrEqual(t, len(hits), k)
		assert.LessOrEqual(t, len(hits), len(es))

		for i, h := range hits {
			assert.True(t, members[h.ID])

			if i > 0 {
				prev := hits[i-1]
				assert.True(t, prev.Score > h.Score || (prev.Score == h.Score && prev.ID < h.ID))
			}
		}
	}

	hits, _, err := ix.Query(es[0].Vector, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTiesOrderedByPageID(t *testing.T) {
	ix := New(1, nil)

	same := []float32{1, 0, 0}
	for i, doc := range []string{"c.pdf", "a.pdf", "b.pdf"} {
		require.NoError(t, ix.Add(context.Background(), embedding.Entry{
			ID:      model.PageKey{Document: doc, Page: 1}.ID(),
			Label:   "x",
			Vector:  same,
			Version: 1,
			Seq:     uint64(i + 1),
		}))
	}

	hits, _, err := ix.Query(same, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, model.PageID("a.pdf#1"), hits[0].ID)
	assert.Equal(t, model.PageID("b.pdf#1"), hits[1].ID)
	assert.Equal(t, model.PageID("c.pdf#1"), hits[2].ID)
}

func TestAddSupersedesAndRejectsStale(t *testing.T) {
	ix := New(1, nil)
	id := model.PageKey{Document: "1040_2021.pdf", Page: 1}.ID()

	require.NoError(t, ix.Add(context.Background(), embedding.Entry{ID: id, Label: "1040_P1", Vector: []float32{1, 0}, Version: 1, Seq: 2}))
	require.NoError(t, ix.Add(context.Background(), embedding.Entry{ID: id, Label: "1040_P2", Vector: []float32{0, 1}, Version: 1, Seq: 3}))

	err := ix.Add(context.Background(), embedding.Entry{ID: id, Label: "1040_P1", Vector: []float32{1, 0}, Version: 1, Seq: 2})
	assert.ErrorIs(t, err, embedding.ErrStale)

	hits, stamp, err := ix.Query([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1040_P2", hits[0].Label)
	assert.Equal(t, 1, stamp.Size)
	assert.Equal(t, uint64(3), stamp.Seq)
}

func TestBaseLabelFilter(t *testing.T) {
	es := entries(t, 60, 8, 3)
	ix := New(1, nil)

	_, err := ix.Build(context.Background(), 1, es)
	require.NoError(t, err)

	hits, _, err := ix.Query(es[0].Vector, 10, WithBaseLabels("form_2"))
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	for _, h := range hits {
		assert.Regexp(t, `^form_2_P\d+$`, h.Label)
	}
}

func TestBuildDeterministic(t *testing.T) {
	es := entries(t, 150, 12, 9)

	a := New(1, nil)
	_, err := a.Build(context.Background(), 1, es)
	require.NoError(t, err)

	reversed := make([]embedding.Entry, len(es))
	for i, e := range es {
		reversed[len(es)-1-i] = e
	}

	b := New(1, nil)
	_, err = b.Build(context.Background(), 1, reversed)
	require.NoError(t, err)

	for _, e := range es[:30] {
		ha, _, err := a.Query(e.Vector, 5)
		require.NoError(t, err)

		hb, _, err := b.Query(e.Vector, 5)
		require.NoError(t, err)

		assert.Equal(t, ha, hb)
	}
}

func TestBuildCorruptionKeepsServing(t *testing.T) {
	es := entries(t, 20, 4, 5)
	ix := New(1, nil)

	before, err := ix.Build(context.Background(), 1, es)
	require.NoError(t, err)

	bad := append([]embedding.Entry{}, es...)
	bad = append(bad, embedding.Entry{ID: "zzz.pdf#1", Label: "x", Vector: []float32{1, float32(math.NaN()), 0, 0}, Version: 2, Seq: 99})

	_, err = ix.Build(context.Background(), 2, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruption)

	var ce *CorruptionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, model.PageID("zzz.pdf#1"), ce.ID)

	assert.Equal(t, before.BuildID, ix.Stamp().BuildID)

	_, err = ix.Build(context.Background(), 2, append(es[:1:1], embedding.Entry{ID: "short.pdf#1", Vector: []float32{1, 0}, Version: 2, Seq: 100}))
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
	assert.Equal(t, before.BuildID, ix.Stamp().BuildID)
}

func TestBuildCancelledNeverSwaps(t *testing.T) {
	es := entries(t, 50, 4, 6)
	ix := New(1, nil, func(o *Options) { o.BatchSize = 10 })

	before, err := ix.Build(context.Background(), 1, es[:10])
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ix.Build(ctx, 2, es)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, ix.Stamp())
	assert.Equal(t, int64(1), ix.Builds())
}

func TestConcurrentRebuildSingleFlight(t *testing.T) {
	es := entries(t, 40, 8, 7)

	var calls atomic.Int32
	release := make(chan struct{})

	src := SourceFunc(func() []embedding.Entry {
		calls.Add(1)
		<-release
		return es
	})

	ix := New(1, src)

	const n = 8

	var (
		wg     sync.WaitGroup
		ready  sync.WaitGroup
		stamps = make([]Stamp, n)
		errs   = make([]error, n)
	)

	ready.Add(n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			stamps[i], errs[i] = ix.Rebuild(context.Background(), 2)
		}()
	}

	ready.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), ix.Builds())

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, stamps[0], stamps[i])
	}

	assert.Equal(t, model.Version(2), stamps[0].Version)
	assert.Equal(t, len(es), stamps[0].Size)
}

func TestAddDuringRebuildIsReplayed(t *testing.T) {
	es := entries(t, 30, 8, 8)

	loaded := make(chan struct{})
	release := make(chan struct{})

	src := SourceFunc(func() []embedding.Entry {
		close(loaded)
		<-release
		return es[:29]
	})

	ix := New(1, src)

	done := make(chan error, 1)
	go func() {
		_, err := ix.Rebuild(context.Background(), 2)
		done <- err
	}()

	<-loaded
	require.NoError(t, ix.Add(context.Background(), es[29]))
	close(release)
	require.NoError(t, <-done)

	assert.True(t, ix.Contains(es[29].ID))
	assert.Equal(t, 30, ix.Len())

	hits, _, err := ix.Query(es[29].Vector, 1)
	require.NoError(t, err)
	assert.Equal(t, es[29].ID, hits[0].ID)
}

func TestQueryInvalidVector(t *testing.T) {
	es := entries(t, 5, 4, 2)
	ix := New(1, nil)

	_, err := ix.Build(context.Background(), 1, es)
	require.NoError(t, err)

	_, _, err = ix.Query([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)

	_, _, err = ix.Query([]float32{0, 0, 0, 0}, 1)
	assert.ErrorIs(t, err, embedding.ErrInvalidVector)
}

func TestRemoveHidesPageAndRejectsOlderVectors(t *testing.T) {
	ctx := context.Background()
	es := entries(t, 20, 8, 21)
	ix := New(1, nil)

	_, err := ix.Build(ctx, 1, es)
	require.NoError(t, err)

	gone := es[3]
	assert.True(t, ix.Remove(gone.ID, 1, 100))
	assert.False(t, ix.Contains(gone.ID))
	assert.Equal(t, 19, ix.Len())

	hits, _, err := ix.Query(gone.Vector, 20)
	require.NoError(t, err)
	assert.Len(t, hits, 19)
	for _, h := range hits {
		assert.NotEqual(t, gone.ID, h.ID)
	}

	assert.ErrorIs(t, ix.Add(ctx, gone), embedding.ErrStale, "a vector of the deleted record is stale")
	assert.False(t, ix.Remove(gone.ID, 1, 100))

	back := gone
	back.Seq = 101
	require.NoError(t, ix.Add(ctx, back), "a later record makes the page searchable again")
	assert.True(t, ix.Contains(gone.ID))
}

func TestRemoveLastPageEmptiesIndex(t *testing.T) {
	ix := New(1, nil)
	id := model.PageKey{Document: "w2.pdf", Page: 1}.ID()

	require.NoError(t, ix.Add(context.Background(), embedding.Entry{ID: id, Label: "W2", Vector: []float32{1, 0}, Version: 1, Seq: 1}))
	require.True(t, ix.Remove(id, 1, 2))

	_, _, err := ix.Query([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestRemoveDuringRebuildIsReplayed(t *testing.T) {
	es := entries(t, 30, 8, 9)

	loaded := make(chan struct{})
	release := make(chan struct{})

	src := SourceFunc(func() []embedding.Entry {
		close(loaded)
		<-release
		return es
	})

	ix := New(1, src)
	_, err := ix.Build(context.Background(), 1, es)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ix.Rebuild(context.Background(), 2)
		done <- err
	}()

	<-loaded
	ix.Remove(es[7].ID, 1, 1000)
	close(release)
	require.NoError(t, <-done)

	assert.False(t, ix.Contains(es[7].ID), "the new handle honours the removal")
	assert.Equal(t, 29, ix.Len())
}

func TestReplayFailureIsLogged(t *testing.T) {
	es := entries(t, 10, 8, 10)

	loaded := make(chan struct{})
	release := make(chan struct{})

	src := SourceFunc(func() []embedding.Entry {
		close(loaded)
		<-release
		return es
	})

	var logs bytes.Buffer
	ix := New(1, src, func(o *Options) {
		o.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	})

	done := make(chan error, 1)
	go func() {
		_, err := ix.Rebuild(context.Background(), 2)
		done <- err
	}()

	<-loaded
	// the empty serving handle takes any dimension, the new one is fixed at 8
	odd := embedding.Entry{ID: "odd.pdf#1", Label: "W2", Vector: []float32{1, 0, 0, 0}, Version: 1, Seq: 99}
	require.NoError(t, ix.Add(context.Background(), odd))
	close(release)
	require.NoError(t, <-done)

	assert.False(t, ix.Contains(odd.ID))
	assert.Equal(t, 10, ix.Len())
	assert.Contains(t, logs.String(), "replayed vector dropped")
	assert.Contains(t, logs.String(), "odd.pdf#1")
}
