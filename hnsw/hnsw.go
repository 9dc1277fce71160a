// Package hnsw implements a Hierarchical Navigable Small World graph over
// L2-normalised vectors using cosine distance.
//
// Graph construction is deterministic: level assignment draws from a seeded
// generator and every distance tie is broken by node id, so inserting the
// same vectors in the same order always yields the same graph.
package hnsw

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/pagecorpus/queue"
)

// ErrInvalidVector is returned for vectors containing NaN/Inf or with zero norm.
var ErrInvalidVector = errors.New("hnsw: invalid vector")

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("hnsw: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Node represents a node in the HNSW graph
type Node struct {
	Connections [][]uint32 // Links to other nodes, one slice per layer
	Vector      []float32  // Normalised vector
	Layer       int        // Highest layer the node exists in
	ID          uint32     // Insertion ordinal
}

// Options represents the options for configuring HNSW.
type Options struct {
	// M specifies the number of established connections for every new element during construction.
	// Layer 0 allows 2*M connections.
	M int

	// EF specifies the size of the dynamic candidate list during construction.
	EF int

	// EFSearch is the default candidate list size for Search.
	EFSearch int

	// Heuristic selects neighbours with the diversity heuristic instead of plain k-NN.
	Heuristic bool

	// Seed seeds level generation.
	Seed int64
}

// DefaultOptions are the defaults used by New.
var DefaultOptions = Options{
	M:         16,
	EF:        200,
	EFSearch:  64,
	Heuristic: true,
	Seed:      42,
}

// Result is a single search hit.
type Result struct {
	ID       uint32
	Distance float32
}

// Similarity converts the cosine distance back to cosine similarity.
func (r Result) Similarity() float32 { return 1 - r.Distance }

// HNSW represents the Hierarchical Navigable Small World graph
type HNSW struct {
	dimension int
	mmax      int     // Max number of connections per element/per layer
	mmax0     int     // Max for the 0 layer
	ml        float64 // Normalization factor for level generation
	ep        uint32  // Entry point
	maxLevel  int     // Current max level

	nodes []*Node
	rng   *rand.Rand

	opts Options

	mutex sync.RWMutex
}

// New creates a new HNSW instance with the given dimension and options
func New(dimension int, optFns ...func(o *Options)) *HNSW {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M < 2 {
		// M == 1 would result in division by zero in ml.
		opts.M = 2
	}

	if opts.EF < opts.M {
		opts.EF = opts.M
	}

	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultOptions.EFSearch
	}

	return &HNSW{
		dimension: dimension,
		mmax:      opts.M,
		mmax0:     2 * opts.M,
		ml:        1 / math.Log(float64(opts.M)),
		rng:       rand.New(rand.NewSource(opts.Seed)), // nolint gosec
		opts:      opts,
	}
}

// Dimension returns the vector dimension.
func (h *HNSW) Dimension() int { return h.dimension }

// Len returns the number of nodes.
func (h *HNSW) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.nodes)
}

// Vector returns the normalised vector of a node. The slice must not be modified.
func (h *HNSW) Vector(id uint32) ([]float32, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if int(id) >= len(h.nodes) {
		return nil, false
	}

	return h.nodes[id].Vector, true
}

// Normalize returns an L2-normalised copy of v.
func Normalize(v []float32) ([]float32, error) {
	var norm float64

	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ErrInvalidVector
		}

		norm += f * f
	}

	if norm == 0 {
		return nil, ErrInvalidVector
	}

	inv := 1 / math.Sqrt(norm)
	out := make([]float32, len(v))

	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}

	return out, nil
}

// distance is the cosine distance between two normalised vectors.
func distance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}

	return 1 - dot
}

func (h *HNSW) prepare(v []float32) ([]float32, error) {
	if len(v) != h.dimension {
		return nil, &ErrDimensionMismatch{Expected: h.dimension, Actual: len(v)}
	}

	return Normalize(v)
}

func (h *HNSW) randomLevel() int {
	// 1-Float64 lies in (0, 1], keeping the log finite.
	return int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
}

// Insert inserts a new element into the HNSW graph and returns its node id.
func (h *HNSW) Insert(v []float32) (uint32, error) {
	vec, err := h.prepare(v)
	if err != nil {
		return 0, err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	node := &Node{
		ID:     uint32(len(h.nodes)),
		Vector: vec,
		Layer:  h.randomLevel(),
	}
	node.Connections = make([][]uint32, node.Layer+1)

	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, node)
		h.ep = node.ID
		h.maxLevel = node.Layer

		return node.ID, nil
	}

	// Find single shortest path from top layers above our node, which will be our new starting-point
	curr := h.greedy(vec, h.ep, h.maxLevel, node.Layer)

	entry := []Result{curr}

	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		candidates := h.searchLayer(vec, entry, h.opts.EF, level)

		node.Connections[level] = h.selectNeighbours(candidates, h.opts.M)
		entry = candidates
	}

	h.nodes = append(h.nodes, node)

	// Next link the neighbour nodes to our new node, making it visible
	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		for _, neighbour := range node.Connections[level] {
			h.link(neighbour, node.ID, level)
		}
	}

	if node.Layer > h.maxLevel {
		h.ep = node.ID
		h.maxLevel = node.Layer
	}

	return node.ID, nil
}

// greedy walks from ep down to (but excluding) the stop layer, always
// moving to the closest neighbour.
func (h *HNSW) greedy(q []float32, ep uint32, from, stop int) Result {
	curr := Result{ID: ep, Distance: distance(q, h.nodes[ep].Vector)}

	for level := from; level > stop; level-- {
		changed := true
		for changed {
			changed = false

			node := h.nodes[curr.ID]
			if level >= len(node.Connections) {
				break
			}

			for _, id := range node.Connections[level] {
				d := distance(q, h.nodes[id].Vector)
				if less(d, id, curr.Distance, curr.ID) {
					curr = Result{ID: id, Distance: d}
					changed = true
				}
			}
		}
	}

	return curr
}

// searchLayer performs a search in a specified layer of the HNSW graph.
// Results are sorted by distance, then node id.
func (h *HNSW) searchLayer(q []float32, entry []Result, ef int, level int) []Result {
	visited := bitset.New(uint(len(h.nodes)))

	candidates := queue.NewMin(ef)
	top := queue.NewMax(ef + 1)

	for _, e := range entry {
		if visited.Test(uint(e.ID)) {
			continue
		}

		visited.Set(uint(e.ID))
		candidates.PushItem(e.ID, e.Distance)
		top.PushItem(e.ID, e.Distance)

		if top.Len() > ef {
			top.PopItem()
		}
	}

	for candidates.Len() > 0 {
		candidate := candidates.PopItem()

		worst := top.Top()
		if top.Len() >= ef && less(worst.Distance, worst.Node, candidate.Distance, candidate.Node) {
			break
		}

		node := h.nodes[candidate.Node]
		if level >= len(node.Connections) {
			continue
		}

		for _, n := range node.Connections[level] {
			if visited.Test(uint(n)) {
				continue
			}

			visited.Set(uint(n))

			d := distance(q, h.nodes[n].Vector)

			worst = top.Top()
			if top.Len() < ef || less(d, n, worst.Distance, worst.Node) {
				candidates.PushItem(n, d)
				top.PushItem(n, d)

				if top.Len() > ef {
					top.PopItem()
				}
			}
		}
	}

	out := make([]Result, top.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item := top.PopItem()
		out[i] = Result{ID: item.Node, Distance: item.Distance}
	}

	return out
}

// link adds second to the connections of first, pruning when the layer
// capacity is exceeded.
func (h *HNSW) link(first, second uint32, level int) {
	maxConnections := h.mmax
	if level == 0 {
		maxConnections = h.mmax0
	}

	node := h.nodes[first]
	node.Connections[level] = append(node.Connections[level], second)

	if len(node.Connections[level]) <= maxConnections {
		return
	}

	candidates := make([]Result, 0, len(node.Connections[level]))
	for _, id := range node.Connections[level] {
		candidates = append(candidates, Result{ID: id, Distance: distance(node.Vector, h.nodes[id].Vector)})
	}

	sortResults(candidates)

	node.Connections[level] = h.selectNeighbours(candidates, maxConnections)
}

// selectNeighbours picks at most m ids from candidates, which must be sorted.
func (h *HNSW) selectNeighbours(candidates []Result, m int) []uint32 {
	if !h.opts.Heuristic || len(candidates) <= m {
		return selectNeighboursSimple(candidates, m)
	}

	return h.selectNeighboursHeuristic(candidates, m)
}

func selectNeighboursSimple(candidates []Result, m int) []uint32 {
	n := min(m, len(candidates))

	ids := make([]uint32, n)
	for i := 0; i < n; i++ {
		ids[i] = candidates[i].ID
	}

	return ids
}

// selectNeighboursHeuristic keeps a candidate only if it is closer to the
// base than to every already selected neighbour, then tops up with the
// closest discarded ones.
func (h *HNSW) selectNeighboursHeuristic(candidates []Result, m int) []uint32 {
	selected := make([]uint32, 0, m)
	discarded := make([]uint32, 0, len(candidates))

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}

		keep := true

		for _, s := range selected {
			if distance(h.nodes[s].Vector, h.nodes[c.ID].Vector) < c.Distance {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, c.ID)
		} else {
			discarded = append(discarded, c.ID)
		}
	}

	for _, id := range discarded {
		if len(selected) >= m {
			break
		}

		selected = append(selected, id)
	}

	return selected
}

// Search returns up to k nearest nodes accepted by allow (nil accepts all),
// sorted by distance then node id. When filtering leaves fewer than k hits
// the candidate list grows until the whole graph has been considered.
func (h *HNSW) Search(q []float32, k int, ef int, allow func(id uint32) bool) ([]Result, error) {
	vec, err := h.prepare(q)
	if err != nil {
		return nil, err
	}

	if k <= 0 {
		return nil, nil
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if len(h.nodes) == 0 {
		return nil, nil
	}

	if ef <= 0 {
		ef = h.opts.EFSearch
	}

	ef = max(ef, k)

	entry := h.greedy(vec, h.ep, h.maxLevel, 0)

	for {
		found := h.searchLayer(vec, []Result{entry}, ef, 0)

		hits := found[:0:0]
		for _, r := range found {
			if allow == nil || allow(r.ID) {
				hits = append(hits, r)
			}
		}

		if len(hits) >= k || ef >= len(h.nodes) {
			if len(hits) > k {
				hits = hits[:k]
			}

			return hits, nil
		}

		ef *= 2
	}
}

// BruteSearch performs an exact search over every node.
func (h *HNSW) BruteSearch(q []float32, k int, allow func(id uint32) bool) ([]Result, error) {
	vec, err := h.prepare(q)
	if err != nil {
		return nil, err
	}

	if k <= 0 {
		return nil, nil
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	top := queue.NewMax(k + 1)

	for _, node := range h.nodes {
		if allow != nil && !allow(node.ID) {
			continue
		}

		d := distance(vec, node.Vector)

		if top.Len() < k {
			top.PushItem(node.ID, d)
			continue
		}

		worst := top.Top()
		if less(d, node.ID, worst.Distance, worst.Node) {
			top.PopItem()
			top.PushItem(node.ID, d)
		}
	}

	out := make([]Result, top.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item := top.PopItem()
		out[i] = Result{ID: item.Node, Distance: item.Distance}
	}

	return out, nil
}

func less(d1 float32, id1 uint32, d2 float32, id2 uint32) bool {
	if d1 == d2 {
		return id1 < id2
	}

	return d1 < d2
}

func sortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		return less(rs[i].Distance, rs[i].ID, rs[j].Distance, rs[j].ID)
	})
}
