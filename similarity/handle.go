package similarity

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/pagecorpus/embedding"
	"github.com/hupe1980/pagecorpus/hnsw"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
)

// stamp of the record a vector was computed for.
type recordStamp struct {
	version model.Version
	seq     uint64
}

func (s recordStamp) newerThan(o recordStamp) bool {
	if s.version != o.version {
		return s.version > o.version
	}
	return s.seq > o.seq
}

// handle is one immutable-by-build, incrementally extended graph. Two
// handles exist during a rebuild: the one serving and the one building.
type handle struct {
	mu sync.RWMutex

	stamp   Stamp
	graph   *hnsw.HNSW
	hnswFns []func(o *hnsw.Options)

	ids    []model.PageID // node -> page
	labels []string       // node -> label
	live   map[model.PageID]uint32
	seen   map[model.PageID]recordStamp

	tombstones *roaring.Bitmap
	postings   map[string]*roaring.Bitmap // base label -> nodes
}

func newHandle(stamp Stamp, dim int, hnswFns []func(o *hnsw.Options)) *handle {
	h := &handle{
		stamp:      stamp,
		hnswFns:    hnswFns,
		live:       map[model.PageID]uint32{},
		seen:       map[model.PageID]recordStamp{},
		tombstones: roaring.New(),
		postings:   map[string]*roaring.Bitmap{},
	}
	if dim > 0 {
		h.graph = hnsw.New(dim, hnswFns...)
	}

	return h
}

// add inserts or replaces the vector of a page. The caller holds h.mu.
func (h *handle) add(e embedding.Entry) error {
	rs := recordStamp{version: e.Version, seq: e.Seq}
	if prev, ok := h.seen[e.ID]; ok && !rs.newerThan(prev) {
		return embedding.ErrStale
	}

	if h.graph == nil {
		h.graph = hnsw.New(len(e.Vector), h.hnswFns...)
	}

	node, err := h.graph.Insert(e.Vector)
	if err != nil {
		return translateGraphError(err)
	}

	if old, ok := h.live[e.ID]; ok {
		h.tombstones.Add(old)
	}

	h.ids = append(h.ids, e.ID)
	h.labels = append(h.labels, e.Label)
	h.live[e.ID] = node
	h.seen[e.ID] = rs

	base, _ := label.Split(e.Label)
	p, ok := h.postings[base]
	if !ok {
		p = roaring.New()
		h.postings[base] = p
	}
	p.Add(node)

	if e.Version > h.stamp.Version {
		h.stamp.Version = e.Version
	}
	if e.Seq > h.stamp.Seq {
		h.stamp.Seq = e.Seq
	}
	h.stamp.Size = len(h.live)

	return nil
}

// remove drops a page deleted by the record with stamp rs. Vectors for records
// before rs are rejected afterwards. The caller holds h.mu.
func (h *handle) remove(id model.PageID, rs recordStamp) bool {
	if prev, ok := h.seen[id]; ok && !rs.newerThan(prev) {
		return false
	}
	h.seen[id] = rs

	node, ok := h.live[id]
	if !ok {
		return false
	}
	h.tombstones.Add(node)
	delete(h.live, id)
	h.stamp.Size = len(h.live)

	return true
}

// query runs a k-NN search restricted to live nodes and, when filter is
// non-nil, to the nodes it contains.
func (h *handle) query(vec []float32, k, ef int, filter *roaring.Bitmap) ([]Hit, Stamp, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stamp := h.stamp

	if len(h.live) == 0 || h.graph == nil {
		return nil, stamp, &EmptyIndexError{Stamp: stamp}
	}

	allow := func(id uint32) bool {
		if h.tombstones.Contains(id) {
			return false
		}
		return filter == nil || filter.Contains(id)
	}

	// over-fetch so page-id tie-breaking at the cut is exact
	fetch := min(2*k, len(h.live))

	res, err := h.graph.Search(vec, max(fetch, k), ef, allow)
	if err != nil {
		return nil, stamp, translateGraphError(err)
	}

	hits := make([]Hit, len(res))
	for i, r := range res {
		hits[i] = Hit{ID: h.ids[r.ID], Label: h.labels[r.ID], Score: r.Similarity()}
	}

	sortHits(hits)

	if len(hits) > k {
		hits = hits[:k]
	}

	return hits, stamp, nil
}

func (h *handle) filter(baseLabels []string) *roaring.Bitmap {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := roaring.New()
	for _, b := range baseLabels {
		if p, ok := h.postings[b]; ok {
			out.Or(p)
		}
	}

	return out
}

func (h *handle) snapshotStamp() Stamp {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.stamp
}

func (h *handle) contains(id model.PageID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.live[id]
	return ok
}

func translateGraphError(err error) error {
	var dm *hnsw.ErrDimensionMismatch
	switch {
	case errors.As(err, &dm):
		return fmt.Errorf("%w: expected %d, got %d", embedding.ErrDimensionMismatch, dm.Expected, dm.Actual)
	case errors.Is(err, hnsw.ErrInvalidVector):
		return fmt.Errorf("%w: %v", embedding.ErrInvalidVector, err)
	default:
		return err
	}
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
}
