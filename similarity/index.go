// Package similarity serves cosine nearest-neighbour queries over page
// embeddings.
//
// Queries always run against a published handle. Rebuild constructs a second
// handle from a Source off to the side and publishes it with an atomic
// pointer swap; vectors added while the build runs are replayed onto the new
// handle first. An interrupted or failed build never swaps.
package similarity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"github.com/hupe1980/pagecorpus/embedding"
	"github.com/hupe1980/pagecorpus/hnsw"
	"github.com/hupe1980/pagecorpus/model"
	"golang.org/x/sync/singleflight"
)

// Hit is one query result.
type Hit struct {
	ID    model.PageID `json:"page_id"`
	Label string       `json:"label"`
	Score float32      `json:"score"`
}

// Stamp identifies the handle a query was answered from.
type Stamp struct {
	BuildID string        `json:"build_id"`
	Version model.Version `json:"version"`
	Seq     uint64        `json:"seq"`
	Size    int           `json:"size"`
	BuiltAt time.Time     `json:"built_at,omitzero"`
}

// Source provides the vectors a rebuild starts from.
type Source interface {
	Entries() []embedding.Entry
}

// SourceFunc adapts a function to Source.
type SourceFunc func() []embedding.Entry

// Entries implements Source.
func (f SourceFunc) Entries() []embedding.Entry { return f() }

// Options configures an Index.
type Options struct {
	// Dim fixes the vector dimension. Zero takes it from the first vector.
	Dim int
	// BatchSize is the number of inserts between cancellation checks.
	BatchSize int
	// EF is the search candidate list size.
	EF int
	// HNSW tunes the graph.
	HNSW []func(o *hnsw.Options)
	// Logger receives build events.
	Logger *slog.Logger
	// Now stamps builds.
	Now func() time.Time
}

// DefaultOptions are the defaults used by New.
var DefaultOptions = Options{
	BatchSize: 256,
	EF:        64,
	Now:       time.Now,
}

// Index is the double-buffered similarity index. It is safe for concurrent use.
type Index struct {
	current atomic.Pointer[handle]
	group   singleflight.Group
	source  Source
	opts    Options
	logger  *slog.Logger

	buildMu  sync.Mutex // one build at a time
	mu       sync.Mutex // serializes Add against the publish step of a build
	building bool
	replay   []replayOp
	builds   atomic.Int64
}

// replayOp is an Add or Remove that raced with a build.
type replayOp struct {
	entry  embedding.Entry
	remove bool
}

// New creates an empty index for version v. Source may be nil when only
// Build and Add are used.
func New(v model.Version, source Source, optFns ...func(o *Options)) *Index {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions.BatchSize
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ix := &Index{
		source: source,
		opts:   opts,
		logger: logger.With("component", "similarity"),
	}
	ix.current.Store(newHandle(Stamp{BuildID: uuid.NewString(), Version: v, BuiltAt: opts.Now()}, opts.Dim, opts.HNSW))

	return ix
}

// Stamp returns the stamp of the serving handle.
func (ix *Index) Stamp() Stamp { return ix.current.Load().snapshotStamp() }

// Len returns the number of searchable pages.
func (ix *Index) Len() int { return ix.Stamp().Size }

// Contains reports whether a page is searchable.
func (ix *Index) Contains(id model.PageID) bool { return ix.current.Load().contains(id) }

// Builds returns how many builds have been published.
func (ix *Index) Builds() int64 { return ix.builds.Load() }

// Add inserts or replaces the vector of one page in the serving handle.
// A vector computed for an older record than the indexed one is rejected
// with embedding.ErrStale, so a superseded vector is never served.
func (ix *Index) Add(_ context.Context, e embedding.Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	h := ix.current.Load()

	h.mu.Lock()
	err := h.add(e)
	h.mu.Unlock()

	if err != nil {
		return err
	}

	if ix.building {
		ix.replay = append(ix.replay, replayOp{entry: e})
	}

	return nil
}

// Remove makes a deleted page unsearchable. version and seq identify the
// deleting record; vectors computed for earlier records of the page are
// rejected afterwards. It reports whether a searchable vector was dropped.
func (ix *Index) Remove(id model.PageID, version model.Version, seq uint64) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	h := ix.current.Load()

	h.mu.Lock()
	removed := h.remove(id, recordStamp{version: version, seq: seq})
	h.mu.Unlock()

	if ix.building {
		ix.replay = append(ix.replay, replayOp{
			entry:  embedding.Entry{ID: id, Version: version, Seq: seq},
			remove: true,
		})
	}

	return removed
}

// QueryOption restricts a query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	baseLabels []string
	ef         int
}

// WithBaseLabels restricts hits to pages whose label has one of the given
// base labels.
func WithBaseLabels(bases ...string) QueryOption {
	return func(o *queryOptions) { o.baseLabels = append(o.baseLabels, bases...) }
}

// WithEF overrides the search candidate list size.
func WithEF(ef int) QueryOption {
	return func(o *queryOptions) { o.ef = ef }
}

// Query returns at most k hits sorted by score descending then page id
// ascending, together with the stamp of the handle that answered. Every hit
// belongs to that handle.
func (ix *Index) Query(vec []float32, k int, opts ...QueryOption) ([]Hit, Stamp, error) {
	qo := queryOptions{ef: ix.opts.EF}
	for _, fn := range opts {
		fn(&qo)
	}

	h := ix.current.Load()

	if k <= 0 {
		return nil, h.snapshotStamp(), nil
	}

	var filter *roaring.Bitmap
	if len(qo.baseLabels) > 0 {
		filter = h.filter(qo.baseLabels)
	}

	return h.query(vec, k, qo.ef, filter)
}

// Build replaces the serving handle with one built from entries. The result
// depends only on the entries and the graph seed.
func (ix *Index) Build(ctx context.Context, v model.Version, entries []embedding.Entry) (Stamp, error) {
	return ix.build(ctx, v, func() []embedding.Entry { return entries })
}

// Rebuild builds a new handle from the source and swaps it in. Concurrent
// calls share one execution and receive the same stamp.
func (ix *Index) Rebuild(ctx context.Context, v model.Version) (Stamp, error) {
	res, err, _ := ix.group.Do("rebuild", func() (any, error) {
		return ix.build(ctx, v, func() []embedding.Entry {
			if ix.source == nil {
				return nil
			}
			return ix.source.Entries()
		})
	})
	if err != nil {
		return Stamp{}, err
	}

	return res.(Stamp), nil
}

func (ix *Index) build(ctx context.Context, v model.Version, load func() []embedding.Entry) (Stamp, error) {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	start := time.Now()

	ix.mu.Lock()
	ix.building = true
	ix.replay = nil
	ix.mu.Unlock()

	abort := func() {
		ix.mu.Lock()
		ix.building = false
		ix.replay = nil
		ix.mu.Unlock()
	}

	// adds racing with the load are captured by the replay list
	entries := load()

	sorted := make([]embedding.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	stamp := Stamp{BuildID: uuid.NewString(), Version: v, BuiltAt: ix.opts.Now()}
	next := newHandle(stamp, ix.opts.Dim, ix.opts.HNSW)

	for i, e := range sorted {
		if i%ix.opts.BatchSize == 0 {
			if err := ctx.Err(); err != nil {
				abort()
				ix.logger.Info("build interrupted", "version", v, "inserted", i)
				return Stamp{}, err
			}
		}

		err := next.add(e)
		if errors.Is(err, embedding.ErrStale) {
			continue
		}

		if err != nil {
			abort()
			ix.logger.Error("build aborted", "version", v, "page", e.ID, "error", err)
			return Stamp{}, &CorruptionError{ID: e.ID, Err: err}
		}
	}

	next.stamp.Version = v

	ix.mu.Lock()
	for _, op := range ix.replay {
		if op.remove {
			next.remove(op.entry.ID, recordStamp{version: op.entry.Version, seq: op.entry.Seq})
			continue
		}
		// entries already covered by the source come back as stale
		if err := next.add(op.entry); err != nil && !errors.Is(err, embedding.ErrStale) {
			ix.logger.Warn("replayed vector dropped", "version", v, "page", op.entry.ID, "error", err)
		}
	}
	ix.current.Store(next)
	ix.building = false
	ix.replay = nil
	ix.mu.Unlock()

	ix.builds.Add(1)

	published := next.snapshotStamp()
	ix.logger.Info("index published",
		"build_id", published.BuildID,
		"version", published.Version,
		"size", published.Size,
		"duration", time.Since(start),
	)

	return published, nil
}
