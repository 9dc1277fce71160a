package embedding

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagecorpus/internal/compress"
	"github.com/hupe1980/pagecorpus/model"
)

func TestStorePut(t *testing.T) {
	s := NewStore("clip", 0)
	require.NoError(t, s.Put(Entry{ID: "doc#1", Label: "W2", Vector: []float32{1, 0, 0}, Version: 1, Seq: 2}))
	assert.Equal(t, 3, s.Dim())

	require.ErrorIs(t, s.Put(Entry{ID: "doc#2", Vector: []float32{1, 0}, Version: 1, Seq: 3}), ErrDimensionMismatch)
	require.ErrorIs(t, s.Put(Entry{ID: "doc#2", Vector: []float32{1, float32(math.NaN()), 0}, Version: 1, Seq: 3}), ErrInvalidVector)
	require.ErrorIs(t, s.Put(Entry{ID: "doc#2", Version: 1, Seq: 3}), ErrInvalidVector)

	require.ErrorIs(t, s.Put(Entry{ID: "doc#1", Vector: []float32{0, 1, 0}, Version: 1, Seq: 1}), ErrStale)
	e, ok := s.Get("doc#1")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0, 0}, e.Vector, "superseded vectors never replace newer ones")

	require.NoError(t, s.Put(Entry{ID: "doc#1", Label: "1099", Vector: []float32{0, 1, 0}, Version: 2, Seq: 1}))
	e, _ = s.Get("doc#1")
	assert.Equal(t, "1099", e.Label)

	v, seq := s.Stamp()
	assert.Equal(t, model.Version(2), v)
	assert.Equal(t, uint64(1), seq)

	assert.True(t, s.Delete("doc#1"))
	assert.False(t, s.Delete("doc#1"))
	assert.Equal(t, 0, s.Len())
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := NewStore("clip", 2)
	vec := []float32{1, 2}
	require.NoError(t, s.Put(Entry{ID: "a#1", Vector: vec, Version: 1, Seq: 1}))
	vec[0] = 9

	e, _ := s.Get("a#1")
	e.Vector[1] = 9
	again, _ := s.Get("a#1")
	assert.Equal(t, []float32{1, 2}, again.Vector)
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, c := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			s := NewStore("clip-vit", 4)
			for i, id := range []model.PageID{"b#1", "a#2", "a#1"} {
				require.NoError(t, s.Put(Entry{
					ID:      id,
					Label:   "W2",
					Vector:  []float32{float32(i), 0.5, -1, 0},
					Version: 3,
					Seq:     uint64(i + 1),
				}))
			}

			path := SnapshotPath(t.TempDir(), "clip-vit")
			require.NoError(t, s.Save(nil, path, c))

			loaded, err := LoadStore(nil, path)
			require.NoError(t, err)
			assert.Equal(t, "clip-vit", loaded.Model())
			assert.Equal(t, 4, loaded.Dim())
			assert.Equal(t, s.Entries(), loaded.Entries())
		})
	}
}

func TestSnapshotDetectsCorruption(t *testing.T) {
	s := NewStore("clip", 2)
	require.NoError(t, s.Put(Entry{ID: "a#1", Vector: []float32{1, 2}, Version: 1, Seq: 1}))
	path := filepath.Join(t.TempDir(), "e.vec")
	require.NoError(t, s.Save(nil, path, compress.None))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = LoadStore(nil, path)
	require.ErrorIs(t, err, ErrCorruptSnapshot)

	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))
	_, err = LoadStore(nil, path)
	require.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestLoadOrNew(t *testing.T) {
	s, err := LoadOrNew(nil, filepath.Join(t.TempDir(), "missing.vec"), "clip", 8)
	require.NoError(t, err)
	assert.Equal(t, 8, s.Dim())
	assert.Equal(t, 0, s.Len())
}
