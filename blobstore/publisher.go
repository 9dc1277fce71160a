package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagecorpus/curated"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/model"
)

// ErrNotFinalized is returned when a version without a manifest is published.
var ErrNotFinalized = errors.New("version has no manifest")

// PublishOptions configures a Publisher.
type PublishOptions struct {
	FS     fs.FileSystem
	Logger *slog.Logger
	// Images also uploads the page images of the version.
	Images bool
	// Concurrency bounds parallel uploads.
	Concurrency int
}

// DefaultPublishOptions are the defaults used by NewPublisher.
var DefaultPublishOptions = PublishOptions{
	Concurrency: 8,
}

// PublishResult describes one publish run.
type PublishResult struct {
	Version  model.Version `json:"version"`
	Files    []string      `json:"files"`
	Bytes    int64         `json:"bytes"`
	Advanced bool          `json:"advanced"`
}

// Publisher uploads finalized dataset versions.
type Publisher struct {
	store   BlobStore
	pointer VersionPointer
	opts    PublishOptions
	logger  *slog.Logger
}

// NewPublisher creates a publisher that writes into store and advances pointer.
func NewPublisher(store BlobStore, pointer VersionPointer, optFns ...func(o *PublishOptions)) *Publisher {
	opts := DefaultPublishOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.FS == nil {
		opts.FS = fs.Default
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Publisher{
		store:   store,
		pointer: pointer,
		opts:    opts,
		logger:  logger.With("component", "publisher"),
	}
}

// Pointer returns the version pointer.
func (p *Publisher) Pointer() VersionPointer { return p.pointer }

// Publish uploads version v of the dataset rooted at root and then advances
// the pointer. Blob names are the paths relative to root. The pointer is
// untouched when any upload fails.
func (p *Publisher) Publish(ctx context.Context, root string, v model.Version) (*PublishResult, error) {
	layout := curated.Layout{Root: root, Version: v}

	ok, err := fs.Exists(p.opts.FS, layout.ManifestPath())
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFinalized, v)
	}

	files, err := p.collect(layout)
	if err != nil {
		return nil, err
	}

	res := &PublishResult{Version: v, Files: make([]string, len(files))}
	sizes := make([]int64, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, rel := range files {
		name := path.Join(v.String(), rel)
		res.Files[i] = name

		g.Go(func() error {
			n, err := p.upload(gctx, layout.Abs(rel), name)
			if err != nil {
				return fmt.Errorf("upload %s: %w", name, err)
			}
			sizes[i] = n

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, n := range sizes {
		res.Bytes += n
	}

	res.Advanced, err = p.pointer.Advance(ctx, v)
	if err != nil {
		return nil, err
	}

	p.logger.Info("version published",
		"version", v,
		"files", len(res.Files),
		"bytes", res.Bytes,
		"advanced", res.Advanced,
	)

	return res, nil
}

func (p *Publisher) upload(ctx context.Context, src, name string) (int64, error) {
	f, err := p.opts.FS.OpenFile(src, os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w, err := p.store.Create(ctx, name)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, f)
	if err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		}
		return 0, err
	}

	return n, w.Close()
}

// collect lists the version files relative to the version directory.
func (p *Publisher) collect(layout curated.Layout) ([]string, error) {
	dirs := []string{curated.IndexDir, curated.ManifestsDir, curated.SplitsDir, "embeddings"}
	if p.opts.Images {
		dirs = append(dirs, curated.ImagesDir)
	}

	var files []string

	var walk func(abs, rel string) error
	walk = func(abs, rel string) error {
		entries, err := p.opts.FS.ReadDir(abs)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}

		for _, e := range entries {
			r := path.Join(rel, e.Name())
			if e.IsDir() {
				if err := walk(filepath.Join(abs, e.Name()), r); err != nil {
					return err
				}
				continue
			}

			if strings.HasPrefix(e.Name(), fs.TempPrefix) {
				continue
			}

			files = append(files, r)
		}

		return nil
	}

	for _, d := range dirs {
		if err := walk(layout.Abs(d), d); err != nil {
			return nil, err
		}
	}

	sort.Strings(files)

	return files, nil
}
