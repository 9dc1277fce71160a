package curated

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
)

// RebuildResult summarizes a compaction.
type RebuildResult struct {
	From      model.Version `json:"from"`
	To        model.Version `json:"to"`
	Lines     int           `json:"lines"`
	Records   int           `json:"records"`
	Relabeled int           `json:"relabeled"`
	Images    int           `json:"images"`
}

type rebuilt struct {
	next *Index
	res  RebuildResult
}

// Rebuild compacts the current view into the next free dataset version.
//
// Every current record is re-canonicalized through aliases, so base_label and
// page_in_form are derived again from the remapped label. Deleted pages are left
// out. Source lines of this version are never touched. The new version's log is
// written once, atomically; images are copied into the new version's tree. A
// cancelled rebuild removes the partial version.
//
// Concurrent calls on one index share a single execution and all receive the
// same new index and result.
func (ix *Index) Rebuild(ctx context.Context, aliases label.Resolver) (*Index, RebuildResult, error) {
	v, err, _ := ix.group.Do("rebuild", func() (any, error) {
		next, res, err := ix.rebuild(ctx, aliases)
		return rebuilt{next: next, res: res}, err
	})
	r := v.(rebuilt)
	return r.next, r.res, err
}

func (ix *Index) rebuild(ctx context.Context, aliases label.Resolver) (*Index, RebuildResult, error) {
	if aliases == nil {
		aliases = ix.opts.Aliases
	}
	latest, _, err := LatestVersion(ix.opts.FS, ix.layout.Root)
	if err != nil {
		return nil, RebuildResult{}, ioErr("list versions", ix.layout.Root, err)
	}
	target := max(latest, ix.layout.Version).Next()
	return ix.RebuildTo(ctx, target, aliases)
}

// RebuildTo is Rebuild with an explicit target version.
func (ix *Index) RebuildTo(ctx context.Context, target model.Version, aliases label.Resolver) (*Index, RebuildResult, error) {
	if aliases == nil {
		aliases = ix.opts.Aliases
	}
	res := RebuildResult{From: ix.layout.Version, To: target, Lines: ix.Len()}
	if !target.Valid() || target == ix.layout.Version {
		return nil, res, &ValidationError{Field: "dataset_version", Reason: "invalid rebuild target " + target.String()}
	}

	dst := Layout{Root: ix.layout.Root, Version: target}
	if ok, err := fs.Exists(ix.opts.FS, dst.Dir()); err != nil {
		return nil, res, ioErr("stat", dst.Dir(), err)
	} else if ok {
		return nil, res, fmt.Errorf("%w: %s", ErrVersionExists, target)
	}

	committed := false
	defer func() {
		if !committed {
			_ = ix.opts.FS.RemoveAll(dst.Dir())
		}
	}()

	// re-read the log so the compaction reflects what is durable on disk
	src, err := ix.load()
	if err != nil {
		return nil, res, err
	}
	res.Lines = len(src.records)

	var buf bytes.Buffer
	now := ix.opts.Now().UTC()
	var seq uint64
	for _, rec := range src.current() {
		if err := ctx.Err(); err != nil {
			return nil, res, err
		}

		c := label.Canonicalize(aliases, rec.Label)
		if c.Label != rec.Label {
			res.Relabeled++
		}
		srcImage := rec.ImagePath

		rec.Label, rec.BaseLabel, rec.PageInForm = c.Label, c.BaseLabel, c.PageInForm
		rec.Multipage = rec.Multipage || label.HasSuffix(rec.Label)
		if rec.AutoLabel != "" {
			rec.AutoLabel = label.Canonicalize(aliases, rec.AutoLabel).Label
		}
		rec.DatasetVersion = target
		seq++
		rec.Seq = seq
		if rec.AddedAt.IsZero() {
			rec.AddedAt = now
		}

		rec.ImagePath = ""
		if srcImage != "" {
			rel := ImageRel(rec.BaseLabel, rec.Document, rec.Page)
			from := ix.layout.Abs(srcImage)
			if ok, _ := fs.Exists(ix.opts.FS, from); ok {
				to := dst.Abs(rel)
				if err := ix.opts.FS.MkdirAll(filepath.Dir(to), 0o755); err != nil {
					return nil, res, ioErr("mkdir", filepath.Dir(to), err)
				}
				if err := fs.CopyFileAtomic(ix.opts.FS, from, to); err != nil {
					return nil, res, ioErr("copy image", to, err)
				}
				rec.ImagePath = rel
				res.Images++
			}
		}

		line, err := codec.MarshalLine(ix.opts.Codec, &rec)
		if err != nil {
			return nil, res, err
		}
		buf.Write(line)
		res.Records++
	}

	logPath := dst.LogPath()
	if err := ix.opts.FS.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, res, ioErr("mkdir", filepath.Dir(logPath), err)
	}
	if err := fs.WriteAtomic(ix.opts.FS, logPath, 0o644, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	}); err != nil {
		return nil, res, ioErr("write", logPath, err)
	}

	next, err := Open(ix.layout.Root, target, func(o *Options) {
		*o = ix.opts
		o.Aliases = aliases
		o.Create = false
	})
	if err != nil {
		return nil, res, err
	}
	committed = true

	ix.logger.Info("dataset rebuilt",
		"to", target.String(),
		"records", res.Records,
		"relabeled", res.Relabeled,
		"images", res.Images,
	)
	return next, res, nil
}
