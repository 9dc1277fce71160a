package pagecorpus

import (
	"log/slog"
	"time"

	"github.com/hupe1980/pagecorpus/blobstore"
	"github.com/hupe1980/pagecorpus/embedding"
	"github.com/hupe1980/pagecorpus/internal/compress"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/manifest"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/similarity"
	"github.com/hupe1980/pagecorpus/suggest"
)

// DefaultCandidates is the number of neighbours Suggest asks the similarity
// index for before reranking.
const DefaultCandidates = 10

type options struct {
	version     model.Version
	embedder    embedding.Embedder
	model       string
	dim         int
	compression string
	candidates  int
	watchAlias  bool
	corpusIndex string
	publisher   *blobstore.Publisher

	pipelineOpts   []func(*embedding.PipelineOptions)
	similarityOpts []func(*similarity.Options)
	rerankOpts     []func(*suggest.Options)
	manifestOpts   []func(*manifest.Options)

	fs               fs.FileSystem
	now              func() time.Time
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open.
type Option func(*options)

// WithVersion opens an explicit dataset version. By default the newest
// existing version is opened, or v1 for a fresh dataset.
func WithVersion(v model.Version) Option {
	return func(o *options) {
		o.version = v
	}
}

// WithEmbedder connects the embedding collaborator. Without one, appended
// pages stay curated and never become searchable.
//
// modelName names the embedding snapshot file; dim fixes the vector size
// (zero takes it from the first vector).
func WithEmbedder(e embedding.Embedder, modelName string, dim int) Option {
	return func(o *options) {
		o.embedder = e
		o.model = modelName
		o.dim = dim
	}
}

// WithCompression sets the codec of embedding snapshots: "none", "lz4" or
// "zstd" (default). Unknown names make Open fail.
func WithCompression(name string) Option {
	return func(o *options) {
		o.compression = name
	}
}

// WithCandidates sets how many neighbours Suggest reranks.
func WithCandidates(k int) Option {
	return func(o *options) {
		o.candidates = k
	}
}

// WithAliasWatch reloads aliases.json whenever it changes on disk.
func WithAliasWatch() Option {
	return func(o *options) {
		o.watchAlias = true
	}
}

// WithCorpusIndex points at the corpus_index.json whose skip and error
// counts are carried into manifests.
func WithCorpusIndex(path string) Option {
	return func(o *options) {
		o.corpusIndex = path
	}
}

// WithPublisher enables Publish.
//
// Example with a local mirror:
//
//	store := blobstore.NewLocalStore("/srv/datasets")
//	c, _ := pagecorpus.Open(ctx, "./dataset",
//	    pagecorpus.WithPublisher(blobstore.NewPublisher(store, blobstore.NewBlobPointer(store))))
func WithPublisher(p *blobstore.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithPipelineOptions tunes the embedding pipeline.
func WithPipelineOptions(optFns ...func(*embedding.PipelineOptions)) Option {
	return func(o *options) {
		o.pipelineOpts = append(o.pipelineOpts, optFns...)
	}
}

// WithSimilarityOptions tunes the similarity index.
func WithSimilarityOptions(optFns ...func(*similarity.Options)) Option {
	return func(o *options) {
		o.similarityOpts = append(o.similarityOpts, optFns...)
	}
}

// WithRerankOptions tunes suggestion boosts and the result size.
func WithRerankOptions(optFns ...func(*suggest.Options)) Option {
	return func(o *options) {
		o.rerankOpts = append(o.rerankOpts, optFns...)
	}
}

// WithManifestOptions tunes manifests and splits.
func WithManifestOptions(optFns ...func(*manifest.Options)) Option {
	return func(o *options) {
		o.manifestOpts = append(o.manifestOpts, optFns...)
	}
}

// WithFileSystem replaces the filesystem, e.g. with fs.FaultyFS in tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithClock replaces time.Now for record and manifest stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pagecorpus.BasicMetricsCollector{}
//	c, _ := pagecorpus.Open(ctx, "./dataset", pagecorpus.WithMetricsCollector(metrics))
//	// ... use c ...
//	stats := metrics.GetStats()
//	fmt.Printf("Appends: %d, Avg latency: %dns\n", stats.AppendCount, stats.AppendAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		model:            "default",
		compression:      compress.ZSTD.String(),
		candidates:       DefaultCandidates,
		fs:               fs.Default,
		now:              time.Now,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}

	if o.logger == nil {
		o.logger = NoopLogger()
	}

	if o.fs == nil {
		o.fs = fs.Default
	}

	if o.candidates <= 0 {
		o.candidates = DefaultCandidates
	}

	return o
}
