package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], float32(1.0))
	assert.GreaterOrEqual(t, v[1][0], float32(0.0))
}

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))

	for _, vec := range v {
		var sum float32
		for _, val := range vec {
			sum += val * val
		}
		assert.InDelta(t, float32(1.0), sum, 1e-5)
	}
}

func TestClusteredVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.ClusteredVectors(100, 32, 5, 0.1)

	assert.Equal(t, 100, len(v))
	assert.Equal(t, 32, len(v[0]))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UniformVectors(1, 10)

	rng.Reset()
	v2 := rng.UniformVectors(1, 10)

	assert.Equal(t, v1, v2)
}

func TestExactTopK(t *testing.T) {
	ids := []string{"c", "a", "b"}
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 0}}

	got := ExactTopK([]float32{2, 0}, ids, vectors, 2)

	assert.Equal(t, []SearchResult{{ID: "b", Score: 1}, {ID: "c", Score: 1}}, got)
}

func TestComputeRecall(t *testing.T) {
	truth := []SearchResult{{ID: "a"}, {ID: "b"}}

	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.0, ComputeRecall(truth, nil))
	assert.Equal(t, 0.5, ComputeRecall(truth, []SearchResult{{ID: "a"}, {ID: "x"}}))
}
