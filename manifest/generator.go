package manifest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/corpus"
	"github.com/hupe1980/pagecorpus/curated"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/similarity"
)

// Snapshot is the read side of a curated index.
type Snapshot interface {
	Version() model.Version
	CurrentRecords() []model.PageRecord
	Stats() curated.Stats
}

// Extras are optional sections filled in by the caller.
type Extras struct {
	Embeddings *EmbeddingCounts
	Similarity *similarity.Stamp
	Corpus     *corpus.Index
}

// Options configures a Generator.
type Options struct {
	FS     fs.FileSystem
	Codec  codec.Codec
	Logger *slog.Logger
	Now    func() time.Time
	Tool   Tool
	Ratios Ratios
	Seed   int64
}

// DefaultOptions are the defaults used by NewGenerator.
var DefaultOptions = Options{
	Tool:   Tool{Name: "pagecorpus", Version: "dev"},
	Ratios: DefaultRatios,
	Seed:   DefaultSeed,
}

// Generator writes manifests and split files for the versions under one
// dataset root.
type Generator struct {
	root   string
	opts   Options
	store  *Store
	logger *slog.Logger
}

// NewGenerator creates a generator for the dataset rooted at root.
func NewGenerator(root string, optFns ...func(o *Options)) *Generator {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.FS == nil {
		opts.FS = fs.Default
	}

	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Generator{
		root:   root,
		opts:   opts,
		store:  NewStore(opts.FS, opts.Codec, root),
		logger: logger.With("component", "manifest"),
	}
}

// Store returns the manifest store.
func (g *Generator) Store() *Store { return g.store }

// Generate snapshots the curated index into an immutable manifest and
// writes the document-level split next to it.
func (g *Generator) Generate(ctx context.Context, snap Snapshot, extras Extras) (*Manifest, *Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	v := snap.Version()

	exists, err := g.store.Exists(v)
	if err != nil {
		return nil, nil, err
	}

	if exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrManifestExists, v)
	}

	records := snap.CurrentRecords()
	stats := snap.Stats()

	assignment, err := Assign(v, records, g.opts.Ratios, g.opts.Seed)
	if err != nil {
		return nil, nil, err
	}

	layout := curated.Layout{Root: g.root, Version: v}

	data, err := codec.MarshalIndent(g.opts.Codec, assignment)
	if err != nil {
		return nil, nil, err
	}

	if err := fs.WriteFileAtomic(g.opts.FS, layout.SplitsPath(), data, 0o644); err != nil {
		return nil, nil, fmt.Errorf("write splits: %w", err)
	}

	m := &Manifest{
		BuildID:        uuid.NewString(),
		CreatedAt:      g.opts.Now().UTC(),
		Tool:           g.opts.Tool,
		DatasetVersion: v,
		LogLines:       stats.Lines,
		CurrentPages:   stats.CurrentPages,
		InvalidLines:   stats.InvalidLines,
		Documents:      []string{},
		PerLabel:       map[string]int{},
		PerBaseLabel:   map[string]int{},
		PerTextSource:  map[string]int{},
		Embeddings:     extras.Embeddings,
		Similarity:     extras.Similarity,
		Split:          assignment.Summary(),
	}

	rel, err := filepath.Rel(layout.Dir(), layout.SplitsPath())
	if err == nil {
		m.Split.File = filepath.ToSlash(rel)
	}

	docs := map[string]struct{}{}
	for i := range records {
		r := &records[i]

		docs[r.Document] = struct{}{}
		m.PerLabel[r.Label]++
		m.PerBaseLabel[r.BaseLabel]++

		if r.TextSource != "" {
			m.PerTextSource[string(r.TextSource)]++
		}
	}

	for d := range docs {
		m.Documents = append(m.Documents, d)
	}
	sort.Strings(m.Documents)

	if extras.Corpus != nil {
		m.Ingest = &IngestCounts{
			SkippedDocs: extras.Corpus.Totals.SkippedDocs,
			PageErrors:  extras.Corpus.Totals.PageErrors,
		}
	}

	if err := g.store.Save(m); err != nil {
		// a split without its manifest would be overwritten by the next attempt
		if rerr := g.opts.FS.Remove(layout.SplitsPath()); rerr != nil && !os.IsNotExist(rerr) {
			g.logger.Error("remove orphaned split", "version", v, "error", rerr)
		}

		return nil, nil, err
	}

	g.logger.Info("manifest written",
		"version", v,
		"build_id", m.BuildID,
		"pages", m.CurrentPages,
		"documents", len(m.Documents),
		"train", m.Split.Counts[Train].Documents,
		"val", m.Split.Counts[Val].Documents,
		"test", m.Split.Counts[Test].Documents,
	)

	return m, assignment, nil
}
