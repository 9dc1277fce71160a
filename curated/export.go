package curated

import (
	"context"
	"path/filepath"

	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/label"
)

// ExportResult counts exported images per label.
type ExportResult struct {
	Labels  map[string]int `json:"labels"`
	Copied  int            `json:"copied"`
	Missing int            `json:"missing"`
	Capped  int            `json:"capped"`
}

// ExportTree copies the image of every current record into dst/<label>/, one folder per
// label, for training tools that expect a class-per-folder layout. maxPerLabel caps the
// images per label; zero means no cap. Records are taken in append order.
func (ix *Index) ExportTree(ctx context.Context, dst string, maxPerLabel int) (ExportResult, error) {
	res := ExportResult{Labels: map[string]int{}}
	for _, rec := range ix.CurrentRecords() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if rec.ImagePath == "" {
			res.Missing++
			continue
		}
		if maxPerLabel > 0 && res.Labels[rec.Label] >= maxPerLabel {
			res.Capped++
			continue
		}
		src := ix.layout.Abs(rec.ImagePath)
		if ok, _ := fs.Exists(ix.opts.FS, src); !ok {
			res.Missing++
			continue
		}
		dir := filepath.Join(dst, label.SafeName(rec.Label))
		if err := ix.opts.FS.MkdirAll(dir, 0o755); err != nil {
			return res, ioErr("mkdir", dir, err)
		}
		to := filepath.Join(dir, filepath.Base(src))
		if err := fs.CopyFileAtomic(ix.opts.FS, src, to); err != nil {
			return res, ioErr("export", to, err)
		}
		res.Labels[rec.Label]++
		res.Copied++
	}
	ix.logger.Info("export finished", "dst", dst, "copied", res.Copied, "missing", res.Missing, "capped", res.Capped)
	return res, nil
}
