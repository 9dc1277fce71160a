package pagecorpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/pagecorpus/blobstore"
	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/corpus"
	"github.com/hupe1980/pagecorpus/curated"
	"github.com/hupe1980/pagecorpus/embedding"
	"github.com/hupe1980/pagecorpus/internal/compress"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/manifest"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/similarity"
	"github.com/hupe1980/pagecorpus/suggest"
	"golang.org/x/sync/singleflight"
)

const (
	// LockFileName is the advisory lock held by an open curator.
	LockFileName = ".lock"
	// AliasFileName holds the label alias table under the dataset root.
	AliasFileName = "aliases.json"
)

// ToolVersion is stamped into manifests. Release builds set it with -ldflags.
var ToolVersion = "dev"

// Curator ties a dataset root together: the curated log of the open version,
// the embedding store and pipeline, the similarity index, suggestions,
// manifests and publishing.
//
// A Curator is safe for concurrent use. Appends and suggestions run in
// parallel; Rebuild excludes them while it swaps the version.
type Curator struct {
	root        string
	opts        options
	compression compress.Type
	logger      *Logger
	metrics     MetricsCollector

	lock    *fs.FileLock
	aliases *label.Table
	watcher *label.Watcher

	mu         sync.RWMutex // write-held while Rebuild swaps the version
	index      *curated.Index
	store      *embedding.Store
	pipeline   *embedding.Pipeline
	similarity *similarity.Index
	reranker   *suggest.Reranker
	generator  *manifest.Generator
	corpus     *corpus.Index

	group  singleflight.Group // coalesces Rebuild and RebuildIndex
	cancel context.CancelFunc
	closed atomic.Bool
}

// Open opens the dataset rooted at root, creating it when missing.
//
// Only one process may hold a dataset; a second Open fails with ErrLocked.
// Without WithVersion the newest version is opened, or v1 for a fresh root.
// Vectors saved by a previous session are loaded and made searchable, and
// every current page with an image but no vector is marked pending.
func Open(ctx context.Context, root string, optFns ...Option) (*Curator, error) {
	o := applyOptions(optFns)

	ct, err := compress.ParseType(o.compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := o.fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dataset root: %w", ErrIO, err)
	}

	lock, err := fs.Lock(filepath.Join(root, LockFileName))
	if err != nil {
		return nil, translateError(err)
	}

	c := &Curator{
		root:        root,
		opts:        o,
		compression: ct,
		logger:      o.logger,
		metrics:     o.metricsCollector,
		lock:        lock,
		cancel:      func() {},
	}

	ok := false
	defer func() {
		if !ok {
			c.release()
		}
	}()

	c.aliases = label.NewTable(o.fs, filepath.Join(root, AliasFileName))
	if err := c.aliases.Load(); err != nil {
		return nil, fmt.Errorf("%w: load aliases: %w", ErrIO, err)
	}

	v := o.version
	if !v.Valid() {
		latest, found, err := curated.LatestVersion(o.fs, root)
		if err != nil {
			return nil, fmt.Errorf("%w: list versions: %w", ErrIO, err)
		}

		v = 1
		if found {
			v = latest
		}
	}

	c.index, err = curated.Open(root, v, func(co *curated.Options) {
		co.FS = o.fs
		co.Logger = o.logger.Logger
		co.Aliases = c.aliases
		co.Now = o.now
		co.Create = true
	})
	if err != nil {
		return nil, translateError(err)
	}

	snapshot := embedding.SnapshotPath(c.index.Layout().Dir(), o.model)

	c.store, err = embedding.LoadOrNew(o.fs, snapshot, o.model, o.dim)
	if err != nil {
		return nil, translateError(err)
	}

	if n := c.pruneStore(c.index); n > 0 {
		c.logger.WarnContext(ctx, "dropped vectors of pages without a current record", "count", n)
	}

	c.similarity = similarity.New(v, similarity.SourceFunc(c.store.Entries), append([]func(*similarity.Options){
		func(so *similarity.Options) {
			so.Dim = c.store.Dim()
			so.Logger = o.logger.Logger
			so.Now = o.now
		},
	}, o.similarityOpts...)...)

	if c.store.Len() > 0 {
		if _, err := c.similarity.Build(ctx, v, c.store.Entries()); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// pages stay pending and return on the next rebuild
			c.logger.WarnContext(ctx, "similarity build from snapshot failed", "error", err)
		}
	}

	if o.embedder != nil {
		c.pipeline = embedding.NewPipeline(c.store, o.embedder, c.similarity, append(append([]func(*embedding.PipelineOptions){
			func(po *embedding.PipelineOptions) { po.Logger = o.logger.Logger },
		}, o.pipelineOpts...), c.chainOnResult)...)

		pctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.pipeline.Start(pctx)

		c.markUnembedded(c.index)
	}

	c.reranker = suggest.NewReranker(append([]func(*suggest.Options){
		func(so *suggest.Options) { so.Resolver = c.aliases },
	}, o.rerankOpts...)...)

	c.generator = manifest.NewGenerator(root, append([]func(*manifest.Options){
		func(mo *manifest.Options) {
			mo.FS = o.fs
			mo.Logger = o.logger.Logger
			mo.Now = o.now
			mo.Tool = manifest.Tool{Name: "pagecorpus", Version: ToolVersion}
		},
	}, o.manifestOpts...)...)

	if o.corpusIndex != "" {
		c.corpus, err = loadCorpusIndex(o.fs, o.corpusIndex)
		if err != nil {
			return nil, err
		}
	}

	if o.watchAlias {
		c.watcher, err = label.Watch(context.Background(), c.aliases, label.WithWatchLogger(o.logger.Logger))
		if err != nil {
			return nil, fmt.Errorf("%w: watch aliases: %w", ErrIO, err)
		}
	}

	ok = true

	c.logger.InfoContext(ctx, "dataset opened",
		"root", root,
		"version", v.String(),
		"pages", c.index.Len(),
		"vectors", c.store.Len(),
	)

	return c, nil
}

// chainOnResult hooks metrics and logging into the pipeline callback while
// keeping a callback set through WithPipelineOptions.
func (c *Curator) chainOnResult(po *embedding.PipelineOptions) {
	user := po.OnResult
	po.OnResult = func(job embedding.Job, err error) {
		c.metrics.RecordEmbedding(err)
		c.logger.LogEmbedding(context.Background(), job.ID, err)

		if user != nil {
			user(job, err)
		}
	}
}

func loadCorpusIndex(fsys fs.FileSystem, path string) (*corpus.Index, error) {
	data, err := fs.ReadFile(fsys, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: read corpus index: %w", ErrIO, err)
	}

	var ix corpus.Index
	if err := codec.Default.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("%w: decode corpus index %s: %w", ErrValidation, path, err)
	}

	return &ix, nil
}

func (c *Curator) snapshotPath(ix *curated.Index) string {
	return embedding.SnapshotPath(ix.Layout().Dir(), c.store.Model())
}

func (c *Curator) job(ix *curated.Index, rec *model.PageRecord) embedding.Job {
	return embedding.Job{
		ID:        rec.Key().ID(),
		Label:     rec.Label,
		ImagePath: ix.Layout().Abs(rec.ImagePath),
		Version:   ix.Version(),
		Seq:       rec.Seq,
	}
}

// pruneStore drops vectors of pages that have no current record in ix.
func (c *Curator) pruneStore(ix *curated.Index) int {
	current := map[model.PageID]struct{}{}
	for _, rec := range ix.CurrentRecords() {
		current[rec.Key().ID()] = struct{}{}
	}

	n := 0

	for _, e := range c.store.Entries() {
		if _, ok := current[e.ID]; !ok && c.store.Delete(e.ID) {
			n++
		}
	}

	return n
}

// markUnembedded marks current pages pending whose vector is missing or
// older than their record.
func (c *Curator) markUnembedded(ix *curated.Index) int {
	n := 0

	for _, rec := range ix.CurrentRecords() {
		if rec.ImagePath == "" {
			continue
		}

		e, ok := c.store.Get(rec.Key().ID())
		if ok && e.Version == ix.Version() && e.Seq >= rec.Seq {
			continue
		}

		c.pipeline.MarkPending(c.job(ix, &rec), embedding.ErrUnavailable)
		n++
	}

	return n
}

// Root returns the dataset root.
func (c *Curator) Root() string { return c.root }

// Version returns the open dataset version.
func (c *Curator) Version() model.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.index.Version()
}

// Aliases returns a snapshot of the alias table.
func (c *Curator) Aliases() label.Aliases { return c.aliases.Snapshot() }

// SetAlias maps alias onto canonical and saves aliases.json. Existing log
// lines keep their labels; the next Rebuild applies the mapping.
func (c *Curator) SetAlias(alias, canonical string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if err := c.aliases.Set(alias, canonical); err != nil {
		if errors.Is(err, label.ErrInvalidAlias) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}

		return fmt.Errorf("%w: save aliases: %w", ErrIO, err)
	}

	c.logger.Info("alias set", "alias", alias, "canonical", canonical)

	return nil
}

// Append adds a curated record to the open version. The label is
// canonicalized through the alias table; a record for an existing page
// supersedes it. Records with an image are handed to the embedding pipeline
// and become searchable asynchronously.
//
// A failed embedding never fails Append: the page is reported pending by
// Status and retried by Rebuild.
func (c *Curator) Append(ctx context.Context, rec model.PageRecord, opts ...curated.AppendOption) (curated.Receipt, error) {
	if c.closed.Load() {
		return curated.Receipt{}, ErrClosed
	}

	start := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	ix := c.index

	rcpt, err := ix.Append(ctx, rec, opts...)

	c.metrics.RecordAppend(time.Since(start), err)
	c.logger.LogAppend(ctx, rcpt.ID, rcpt.Label, rcpt.Superseded, err)

	if err != nil {
		return rcpt, translateError(err)
	}

	c.submit(ctx, ix, model.PageKey{Document: rcpt.ID.Document, Page: rcpt.ID.Page})

	return rcpt, nil
}

func (c *Curator) submit(ctx context.Context, ix *curated.Index, key model.PageKey) {
	if c.pipeline == nil {
		return
	}

	cur, ok := ix.Current(key)
	if !ok || cur.ImagePath == "" {
		return
	}

	job := c.job(ix, &cur)
	if err := c.pipeline.Submit(ctx, job); err != nil {
		c.pipeline.MarkPending(job, err)
		c.logger.WarnContext(ctx, "embedding not queued, page pending", "page", job.ID, "error", err)
	}
}

// Delete removes a page from the curated set. A tombstone record supersedes
// the page, so its history stays in the log; the page image, its vector and
// its similarity node are dropped.
func (c *Curator) Delete(ctx context.Context, key model.PageKey) (curated.Receipt, error) {
	if c.closed.Load() {
		return curated.Receipt{}, ErrClosed
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	rcpt, err := c.index.Delete(ctx, key)
	if rcpt.Seq > 0 {
		c.forget(rcpt)
	}

	c.logger.LogDelete(ctx, key, err)

	return rcpt, translateError(err)
}

// DeleteDocument removes every current page of a document.
func (c *Curator) DeleteDocument(ctx context.Context, document string) ([]curated.Receipt, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	rcpts, err := c.index.DeleteDocument(ctx, document)
	for _, r := range rcpts {
		c.forget(r)
		c.logger.LogDelete(ctx, model.PageKey{Document: r.ID.Document, Page: r.ID.Page}, nil)
	}

	return rcpts, translateError(err)
}

// forget drops everything derived from a deleted page.
func (c *Curator) forget(rcpt curated.Receipt) {
	id := model.PageKey{Document: rcpt.ID.Document, Page: rcpt.ID.Page}.ID()

	if c.pipeline != nil {
		c.pipeline.Forget(id, rcpt.ID.Version, rcpt.Seq)
	}

	c.store.Delete(id)
	c.similarity.Remove(id, rcpt.ID.Version, rcpt.Seq)
}

// Current returns the current record of a page.
func (c *Curator) Current(key model.PageKey) (model.PageRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.index.Current(key)
}

// History returns every record of a page in log order.
func (c *Curator) History(key model.PageKey) []model.PageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.index.History(key)
}

// Records returns the current records of the open version.
func (c *Curator) Records() []model.PageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.index.CurrentRecords()
}

// PageContext returns the labelling context of a page and of the page
// before it in the same document, for Suggest. Unknown pages give nil.
func (c *Curator) PageContext(key model.PageKey) (page, prev *suggest.Page) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if rec, ok := c.index.Current(key); ok {
		page = suggest.PageFromRecord(&rec)
	}

	if key.Page > 1 {
		if rec, ok := c.index.Current(model.PageKey{Document: key.Document, Page: key.Page - 1}); ok {
			prev = suggest.PageFromRecord(&rec)
		}
	}

	return page, prev
}

// Suggestions are ranked labels for a page together with the stamp of the
// similarity index that produced them.
type Suggestions struct {
	Items []suggest.Suggestion `json:"suggestions"`
	Stamp similarity.Stamp     `json:"stamp"`
}

// Suggest ranks labels for a page vector: the nearest searchable pages are
// fetched from the similarity index, then deduplicated by canonical label
// and boosted with the page context. page and prev may be nil.
func (c *Curator) Suggest(ctx context.Context, vec []float32, page, prev *suggest.Page) (*Suggestions, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	k := c.opts.candidates

	hits, stamp, err := c.similarity.Query(vec, k)

	c.metrics.RecordSuggest(k, time.Since(start), err)
	c.logger.LogQuery(ctx, k, len(hits), err)

	if err != nil {
		return nil, translateError(err)
	}

	return &Suggestions{
		Items: c.reranker.Rerank(hits, page, prev),
		Stamp: stamp,
	}, nil
}

// Neighbours returns the k nearest searchable pages without reranking.
func (c *Curator) Neighbours(ctx context.Context, vec []float32, k int, opts ...similarity.QueryOption) ([]similarity.Hit, similarity.Stamp, error) {
	if c.closed.Load() {
		return nil, similarity.Stamp{}, ErrClosed
	}

	if k <= 0 {
		return nil, similarity.Stamp{}, ErrInvalidK
	}

	if err := ctx.Err(); err != nil {
		return nil, similarity.Stamp{}, err
	}

	start := time.Now()

	hits, stamp, err := c.similarity.Query(vec, k, opts...)

	c.metrics.RecordSuggest(k, time.Since(start), err)
	c.logger.LogQuery(ctx, k, len(hits), err)

	return hits, stamp, translateError(err)
}

// RebuildResult summarizes a Rebuild.
type RebuildResult struct {
	Curated    curated.RebuildResult `json:"curated"`
	Similarity similarity.Stamp      `json:"similarity"`
	Healed     int                   `json:"healed"`
	Pending    int                   `json:"pending"`
}

// Rebuild compacts the open version into the next one and switches to it.
//
// Pending pages are retried first. Every current record is re-canonicalized
// through the alias table, vectors are carried over under the new version
// and the similarity index is rebuilt for it. The embedding snapshot is
// written into the new version. If the similarity build fails the new
// version is still opened and the previous index keeps serving.
//
// Concurrent calls share one execution: every caller gets the same result
// and only one new version is created.
func (c *Curator) Rebuild(ctx context.Context) (*RebuildResult, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	v, err, _ := c.group.Do("rebuild", func() (any, error) {
		return c.rebuild(ctx)
	})

	res, _ := v.(*RebuildResult)
	if res == nil {
		return nil, err
	}

	shared := *res

	return &shared, err
}

func (c *Curator) rebuild(ctx context.Context) (*RebuildResult, error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.index
	res := &RebuildResult{}

	finish := func(err error) (*RebuildResult, error) {
		to := res.Curated.To
		c.metrics.RecordRebuild(time.Since(start), err)
		c.logger.LogRebuild(ctx, old.Version(), to, time.Since(start), err)

		return res, translateError(err)
	}

	if c.pipeline != nil {
		if err := c.pipeline.Wait(ctx); err != nil {
			return finish(err)
		}

		healed, err := c.pipeline.Heal(ctx)
		res.Healed = healed

		if err != nil {
			return finish(err)
		}
	}

	next, cres, err := old.Rebuild(ctx, c.aliases)
	if err != nil {
		return finish(err)
	}

	res.Curated = cres
	res.Pending = c.restamp(next)

	c.index = next
	if err := old.Close(); err != nil {
		c.logger.WarnContext(ctx, "close previous version", "version", old.Version().String(), "error", err)
	}

	if err := c.saveEmbeddings(next); err != nil {
		return finish(err)
	}

	stamp, err := c.similarity.Rebuild(ctx, next.Version())
	res.Similarity = stamp

	return finish(err)
}

// restamp carries vectors over to the version ix. Pages whose vector is
// superseded by a newer record are dropped from the store and marked
// pending. It returns the number of pending pages.
func (c *Curator) restamp(ix *curated.Index) int {
	pending := 0
	current := map[model.PageID]struct{}{}

	for _, rec := range ix.CurrentRecords() {
		id := rec.Key().ID()
		current[id] = struct{}{}

		stale := c.pipeline != nil && c.pipeline.Status(id) == embedding.StatusPending

		if e, ok := c.store.Get(id); ok && !stale {
			_ = c.store.Put(embedding.Entry{
				ID:      id,
				Label:   rec.Label,
				Vector:  e.Vector,
				Version: ix.Version(),
				Seq:     rec.Seq,
			})

			continue
		}

		c.store.Delete(id)

		if rec.ImagePath != "" && c.pipeline != nil {
			c.pipeline.MarkPending(c.job(ix, &rec), embedding.ErrUnavailable)
			pending++
		}
	}

	for _, e := range c.store.Entries() {
		if _, ok := current[e.ID]; !ok {
			c.store.Delete(e.ID)
		}
	}

	return pending
}

// RebuildIndex retries pending pages and rebuilds the similarity index of
// the open version from the embedding store. Concurrent calls share one
// build. Queries keep hitting the previous index until the swap.
func (c *Curator) RebuildIndex(ctx context.Context) (similarity.Stamp, error) {
	if c.closed.Load() {
		return similarity.Stamp{}, ErrClosed
	}

	v, err, _ := c.group.Do("index", func() (any, error) {
		return c.rebuildIndex(ctx)
	})

	stamp, _ := v.(similarity.Stamp)

	return stamp, err
}

func (c *Curator) rebuildIndex(ctx context.Context) (similarity.Stamp, error) {
	start := time.Now()

	if c.pipeline != nil {
		if _, err := c.pipeline.Heal(ctx); err != nil {
			return similarity.Stamp{}, translateError(err)
		}
	}

	v := c.Version()

	stamp, err := c.similarity.Rebuild(ctx, v)

	c.metrics.RecordRebuild(time.Since(start), err)
	c.logger.LogRebuild(ctx, v, v, time.Since(start), err)

	return stamp, translateError(err)
}

// SaveEmbeddings writes the embedding snapshot of the open version.
func (c *Curator) SaveEmbeddings() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return translateError(c.saveEmbeddings(c.index))
}

func (c *Curator) saveEmbeddings(ix *curated.Index) error {
	if c.store.Len() == 0 && c.pipeline == nil {
		return nil
	}

	if err := c.store.Save(c.opts.fs, c.snapshotPath(ix), c.compression); err != nil {
		return fmt.Errorf("%w: save embeddings: %w", ErrIO, err)
	}

	return nil
}

// Manifest finalizes the open version: the embedding snapshot is saved and
// an immutable manifest with its document-level split is written. A second
// call for the same version fails with ErrManifestExists.
func (c *Curator) Manifest(ctx context.Context) (*manifest.Manifest, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ix := c.index

	exists, err := c.generator.Store().Exists(ix.Version())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	if exists {
		return nil, fmt.Errorf("%w: %s", ErrManifestExists, ix.Version())
	}

	if err := c.saveEmbeddings(ix); err != nil {
		return nil, err
	}

	stamp := c.similarity.Stamp()
	counts := c.embeddingCounts(ix)

	m, _, err := c.generator.Generate(ctx, ix, manifest.Extras{
		Embeddings: &counts,
		Similarity: &stamp,
		Corpus:     c.corpus,
	})

	buildID := ""
	if m != nil {
		buildID = m.BuildID
	}

	c.logger.LogManifest(ctx, ix.Version(), buildID, err)

	if err != nil {
		return nil, translateError(err)
	}

	return m, nil
}

// embeddingCounts classifies every current page of ix.
func (c *Curator) embeddingCounts(ix *curated.Index) manifest.EmbeddingCounts {
	counts := manifest.EmbeddingCounts{Model: c.store.Model()}

	for _, rec := range ix.CurrentRecords() {
		id := rec.Key().ID()

		switch {
		case c.similarity.Contains(id):
			counts.Searchable++
		case c.pipeline != nil && c.pipeline.Status(id) == embedding.StatusPending:
			counts.Pending++
		default:
			counts.Curated++
		}
	}

	return counts
}

// Publish uploads the finalized open version through the configured
// publisher and advances the published version pointer.
func (c *Curator) Publish(ctx context.Context) (*blobstore.PublishResult, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	if c.opts.publisher == nil {
		return nil, ErrNoPublisher
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	res, err := c.opts.publisher.Publish(ctx, c.root, c.index.Version())
	if err != nil {
		return nil, translateError(err)
	}

	return res, nil
}

// Export copies the image of every current page into dst/<label>/.
func (c *Curator) Export(ctx context.Context, dst string, maxPerLabel int) (curated.ExportResult, error) {
	if c.closed.Load() {
		return curated.ExportResult{}, ErrClosed
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	res, err := c.index.ExportTree(ctx, dst, maxPerLabel)

	return res, translateError(err)
}

// WaitEmbeddings blocks until every queued page was embedded or marked
// pending.
func (c *Curator) WaitEmbeddings(ctx context.Context) error {
	if c.pipeline == nil {
		return nil
	}

	return c.pipeline.Wait(ctx)
}

// Status is a point-in-time summary of the dataset.
type Status struct {
	Root       string                   `json:"root"`
	Version    model.Version            `json:"dataset_version"`
	Curated    curated.Stats            `json:"curated"`
	Embeddings manifest.EmbeddingCounts `json:"embeddings"`
	Pending    []model.PageID           `json:"pending,omitempty"`
	Similarity similarity.Stamp         `json:"similarity"`
	Aliases    int                      `json:"aliases"`
}

// Status reports page counts, searchability and the similarity stamp of the
// open version.
func (c *Curator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		Root:       c.root,
		Version:    c.index.Version(),
		Curated:    c.index.Stats(),
		Embeddings: c.embeddingCounts(c.index),
		Similarity: c.similarity.Stamp(),
		Aliases:    len(c.aliases.Snapshot()),
	}

	if c.pipeline != nil {
		for _, job := range c.pipeline.Pending() {
			s.Pending = append(s.Pending, job.ID)
		}
	}

	return s
}
