package hnsw

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/hupe1980/pagecorpus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, vectors [][]float32, optFns ...func(o *Options)) *HNSW {
	t.Helper()

	h := New(len(vectors[0]), optFns...)
	for i, v := range vectors {
		id, err := h.Insert(v)
		require.NoError(t, err)
		require.Equal(t, uint32(i), id)
	}

	return h
}

func TestInsertValidation(t *testing.T) {
	h := New(3)

	_, err := h.Insert([]float32{1, 2})
	var dm *ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)

	_, err = h.Insert([]float32{0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidVector)

	_, err = h.Insert([]float32{1, float32(math.NaN()), 0})
	assert.ErrorIs(t, err, ErrInvalidVector)

	assert.Equal(t, 0, h.Len())
}

func TestSearchEmpty(t *testing.T) {
	h := New(4)

	res, err := h.Search([]float32{1, 0, 0, 0}, 3, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSelfHit(t *testing.T) {
	rng := testutil.NewRNG(4711)
	vectors := rng.UnitVectors(300, 16)

	h := build(t, vectors)

	for i, v := range vectors {
		res, err := h.Search(v, 1, 64, nil)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, uint32(i), res[0].ID)
		assert.InDelta(t, 1.0, res[0].Similarity(), 1e-5)
	}
}

func TestRecall(t *testing.T) {
	rng := testutil.NewRNG(42)
	vectors := rng.ClusteredVectors(500, 24, 10, 0.2)
	queries := rng.UnitVectors(20, 24)

	h := build(t, vectors)

	var total float64
	for _, q := range queries {
		approx, err := h.Search(q, 10, 100, nil)
		require.NoError(t, err)

		exact, err := h.BruteSearch(q, 10, nil)
		require.NoError(t, err)

		total += testutil.ComputeRecall(toResults(exact), toResults(approx))
	}

	assert.GreaterOrEqual(t, total/float64(len(queries)), 0.9)
}

func TestSearchOrderAndFilter(t *testing.T) {
	rng := testutil.NewRNG(7)
	vectors := rng.UnitVectors(200, 8)

	h := build(t, vectors)

	even := func(id uint32) bool { return id%2 == 0 }

	res, err := h.Search(vectors[3], 10, 16, even)
	require.NoError(t, err)
	require.Len(t, res, 10)

	for i, r := range res {
		assert.Zero(t, r.ID%2)

		if i > 0 {
			assert.False(t, less(r.Distance, r.ID, res[i-1].Distance, res[i-1].ID))
		}
	}

	none, err := h.Search(vectors[3], 5, 16, func(uint32) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeterministic(t *testing.T) {
	rng := testutil.NewRNG(99)
	vectors := rng.UnitVectors(150, 12)

	a := build(t, vectors)
	b := build(t, vectors)

	assert.Equal(t, a.Stats(), b.Stats())

	for _, q := range vectors[:20] {
		ra, err := a.Search(q, 5, 32, nil)
		require.NoError(t, err)

		rb, err := b.Search(q, 5, 32, nil)
		require.NoError(t, err)

		assert.Equal(t, ra, rb)
	}
}

func TestTiesBrokenByID(t *testing.T) {
	h := build(t, [][]float32{{1, 0}, {1, 0}, {1, 0}, {0, 1}}, func(o *Options) { o.M = 2 })

	res, err := h.BruteSearch([]float32{1, 0}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, ids(res))

	res, err = h.Search([]float32{1, 0}, 3, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, ids(res))
}

func TestStats(t *testing.T) {
	rng := testutil.NewRNG(1)
	h := build(t, rng.UnitVectors(100, 8), func(o *Options) { o.M = 4 })

	s := h.Stats()
	assert.Equal(t, 100, s.Nodes)
	assert.Equal(t, 4, s.M)
	assert.Len(t, s.Levels, s.MaxLevel+1)
	assert.Equal(t, 100, s.Levels[0].Nodes)
	assert.LessOrEqual(t, s.Levels[0].AvgConnections, 8.0)
}

func ids(rs []Result) []uint32 {
	out := make([]uint32, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}

	return out
}

func toResults(rs []Result) []testutil.SearchResult {
	out := make([]testutil.SearchResult, len(rs))
	for i, r := range rs {
		out[i] = testutil.SearchResult{ID: strconv.Itoa(int(r.ID)), Score: r.Similarity()}
	}

	return out
}
