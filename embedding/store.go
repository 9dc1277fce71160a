package embedding

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hupe1980/pagecorpus/model"
)

// Entry is one stored vector.
type Entry struct {
	ID      model.PageID
	Label   string
	Vector  []float32
	Version model.Version
	Seq     uint64
}

// newer reports whether e was computed for a later record than o.
func (e Entry) newer(o Entry) bool {
	if e.Version != o.Version {
		return e.Version > o.Version
	}
	return e.Seq >= o.Seq
}

// Store maps page ids to vectors. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	model   string
	dim     int
	entries map[model.PageID]Entry
}

// NewStore creates an empty store for vectors of one model. A zero dim is fixed by the
// first Put.
func NewStore(modelName string, dim int) *Store {
	return &Store{model: modelName, dim: dim, entries: map[model.PageID]Entry{}}
}

// Model returns the embedding model name.
func (s *Store) Model() string { return s.model }

// Dim returns the vector dimension, zero while empty and unset.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Validate checks a vector against dim. A zero dim accepts any length.
func Validate(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: component %d is %v", ErrInvalidVector, i, v)
		}
	}
	return nil
}

// Put stores e unless the store already holds a vector for a later record.
func (s *Store) Put(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := Validate(e.Vector, s.dim); err != nil {
		return err
	}
	if cur, ok := s.entries[e.ID]; ok && !e.newer(cur) {
		return fmt.Errorf("%w: %s seq %d is older than seq %d", ErrStale, e.ID, e.Seq, cur.Seq)
	}
	if s.dim == 0 {
		s.dim = len(e.Vector)
	}
	e.Vector = append([]float32(nil), e.Vector...)
	s.entries[e.ID] = e
	return nil
}

// Get returns the vector of a page.
func (s *Store) Get(id model.PageID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if ok {
		e.Vector = append([]float32(nil), e.Vector...)
	}
	return e, ok
}

// Delete removes the vector of a page.
func (s *Store) Delete(id model.PageID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

// Entries returns a copy of all entries sorted by page id.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		e.Vector = append([]float32(nil), e.Vector...)
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stamp returns the highest version and sequence among stored vectors.
func (s *Store) Stamp() (model.Version, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v model.Version
	var seq uint64
	for _, e := range s.entries {
		if e.Version > v || (e.Version == v && e.Seq > seq) {
			v, seq = e.Version, e.Seq
		}
	}
	return v, seq
}
