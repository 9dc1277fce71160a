package queue

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Some items and their priorities.
var items = []float32{0.4, 9, 0.001, 0.0534, 0.234, 2.03, 2.042, 2.532, 1.0009, 0.329, 0.193, 0.999, 0.020391, 2.0991, 1.203, 10.03, 1.039, 1.0008, 5.029, 0.789}

func TestMaxValidation(t *testing.T) {
	h := NewMax(len(items))
	heap.Init(h)

	for k, v := range items {
		h.PushItem(uint32(k), v)
	}

	top := h.Top()
	assert.Equal(t, float32(10.03), top.Distance)
	assert.Equal(t, uint32(15), top.Node)
	assert.Equal(t, 20, h.Len())

	for h.Len() > 10 {
		h.PopItem()
	}

	top = h.Top()
	assert.Equal(t, float32(1.0008), top.Distance)
	assert.Equal(t, uint32(17), top.Node)

	for h.Len() > 1 {
		h.PopItem()
	}

	top = h.Top()
	assert.Equal(t, float32(0.001), top.Distance)
	assert.Equal(t, uint32(2), top.Node)

	h.PopItem()
	assert.Equal(t, 0, h.Len())
}

func TestMinValidation(t *testing.T) {
	h := NewMin(len(items))
	heap.Init(h)

	for k, v := range items {
		h.PushItem(uint32(k), v)
	}

	top := h.Top()
	assert.Equal(t, float32(0.001), top.Distance)
	assert.Equal(t, uint32(2), top.Node)
	assert.Equal(t, 20, h.Len())

	for h.Len() > 10 {
		h.PopItem()
	}

	top = h.Top()
	assert.Equal(t, float32(1.0009), top.Distance)
	assert.Equal(t, uint32(8), top.Node)

	for h.Len() > 1 {
		h.PopItem()
	}

	top = h.Top()
	assert.Equal(t, float32(10.03), top.Distance)
	assert.Equal(t, uint32(15), top.Node)
}

func TestTiesOrderedByNode(t *testing.T) {
	t.Run("min", func(t *testing.T) {
		h := NewMin(4)
		for _, n := range []uint32{7, 3, 9, 1} {
			h.PushItem(n, 0.5)
		}

		var got []uint32
		for h.Len() > 0 {
			got = append(got, h.PopItem().Node)
		}

		assert.Equal(t, []uint32{1, 3, 7, 9}, got)
	})

	t.Run("max", func(t *testing.T) {
		h := NewMax(4)
		for _, n := range []uint32{7, 3, 9, 1} {
			h.PushItem(n, 0.5)
		}

		var got []uint32
		for h.Len() > 0 {
			got = append(got, h.PopItem().Node)
		}

		assert.Equal(t, []uint32{9, 7, 3, 1}, got)
	})

	t.Run("pop empty", func(t *testing.T) {
		h := NewMin(0)
		assert.Nil(t, h.Pop())
	})
}
