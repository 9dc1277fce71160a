package curated

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/internal/textutil"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
)

// Receipt reports the outcome of an Append.
type Receipt struct {
	ID  model.RecordID `json:"id"`
	Seq uint64         `json:"seq"`
	// Label is the canonical label that was written.
	Label string `json:"label"`
	// Superseded is set when the page already had a current record.
	Superseded bool `json:"superseded"`
	// DedupConflict is set when the superseded record carried a different label.
	// It is informational; supersession resolves it.
	DedupConflict bool `json:"dedup_conflict"`
	// PreviousLabel is the label of the superseded record.
	PreviousLabel string `json:"previous_label,omitempty"`
}

type appendConfig struct {
	imageSrc string
}

// AppendOption configures a single Append.
type AppendOption func(*appendConfig)

// WithImage copies the rendered page image at src into the version's image tree.
func WithImage(src string) AppendOption {
	return func(c *appendConfig) { c.imageSrc = src }
}

// Append validates rec, canonicalizes its label and appends it to the log.
//
// The line is committed with a temp write, fsync and rename. If the page already has a
// current record, the new record supersedes it and the page image moves to the folder
// of the new base label; the stale copy is removed.
func (ix *Index) Append(ctx context.Context, rec model.PageRecord, opts ...AppendOption) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if ix.closed.Load() {
		return Receipt{}, ErrClosed
	}
	var cfg appendConfig
	for _, o := range opts {
		o(&cfg)
	}

	rec = rec.Clone()
	if err := ix.prepare(&rec); err != nil {
		return Receipt{}, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	old := ix.cur.Load()
	rec.Seq = old.seq() + 1
	rec.AddedAt = ix.opts.Now().UTC()

	rcpt := Receipt{ID: rec.ID(), Seq: rec.Seq, Label: rec.Label}
	var prev *model.PageRecord
	if i, ok := old.latest[rec.Key()]; ok {
		prev = &old.records[i]
		rcpt.Superseded = true
		rcpt.PreviousLabel = prev.Label
		rcpt.DedupConflict = prev.Label != rec.Label
	}

	img, err := ix.stageImage(&rec, prev, cfg.imageSrc)
	if err != nil {
		return Receipt{}, err
	}

	if err := ix.writeLine(&rec); err != nil {
		img.abort()
		return Receipt{}, err
	}

	ix.cur.Store(old.with(rec))

	// The log line is durable; image placement failures leave a record without its file.
	if err := img.commit(); err != nil {
		ix.logger.Error("image placement failed", "document", rec.Document, "page", rec.Page, "error", err)
		return rcpt, err
	}

	ix.logger.Debug("record appended",
		"document", rec.Document,
		"page", rec.Page,
		"label", rec.Label,
		"seq", rec.Seq,
		"superseded", rcpt.Superseded,
	)
	return rcpt, nil
}

// BatchFailure is one rejected record of a batch.
type BatchFailure struct {
	Index int
	Err   error
}

// BatchResult is the outcome of AppendBatch.
type BatchResult struct {
	Receipts []Receipt
	Failed   []BatchFailure
}

// AppendBatch appends records one by one. A failing record does not stop the batch;
// only context cancellation does.
func (ix *Index) AppendBatch(ctx context.Context, recs []model.PageRecord) (BatchResult, error) {
	var res BatchResult
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r, err := ix.Append(ctx, rec)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return res, err
			}
			res.Failed = append(res.Failed, BatchFailure{Index: i, Err: err})
			continue
		}
		res.Receipts = append(res.Receipts, r)
	}
	return res, nil
}

// prepare validates and canonicalizes rec in place.
func (ix *Index) prepare(rec *model.PageRecord) error {
	rec.Document = strings.TrimSpace(rec.Document)
	switch {
	case rec.Document == "":
		return &ValidationError{Field: "document", Reason: "required"}
	case rec.Page < 1:
		return &ValidationError{Field: "page", Reason: "must be >= 1"}
	case strings.TrimSpace(rec.Label) == "":
		return &ValidationError{Field: "label", Reason: "required"}
	case len(rec.Words) != len(rec.BoxesNorm):
		return &ValidationError{Field: "boxes_norm", Reason: "length must equal words"}
	case !rec.TextSource.Valid():
		return &ValidationError{Field: "text_source", Reason: "must be native or ocr"}
	case rec.DatasetVersion != 0 && rec.DatasetVersion != ix.layout.Version:
		return &ValidationError{Field: "dataset_version", Reason: "does not match the index version " + ix.layout.Version.String()}
	}
	for _, b := range rec.BoxesNorm {
		if !b.Normalized() {
			return &ValidationError{Field: "boxes_norm", Reason: "coordinates must be ordered ints in [0,1000]"}
		}
	}

	rec.Deleted = false
	if rec.RawLabel == "" {
		rec.RawLabel = rec.Label
	}
	c := label.Canonicalize(ix.opts.Aliases, rec.Label)
	rec.Label, rec.BaseLabel, rec.PageInForm = c.Label, c.BaseLabel, c.PageInForm
	if rec.AutoLabel != "" {
		rec.AutoLabel = label.Canonicalize(ix.opts.Aliases, rec.AutoLabel).Label
		rec.UpdatedLabel = rec.UpdatedLabel || rec.AutoLabel != rec.Label
	}
	rec.Multipage = rec.Multipage || label.HasSuffix(rec.Label)
	rec.Text = textutil.Normalize(rec.Text)
	rec.HeaderText = textutil.Normalize(rec.HeaderText)
	rec.TextLen = utf8.RuneCountInString(rec.Text)
	rec.DatasetVersion = ix.layout.Version
	return nil
}

// writeLine rewrites the log with rec appended.
//
// The whole log is copied into the temp file on every append, so an append costs
// O(log size). That keeps a crash from ever exposing a partial line without relying
// on O_APPEND semantics. Rebuild compacts the log when it grows.
func (ix *Index) writeLine(rec *model.PageRecord) error {
	line, err := codec.MarshalLine(ix.opts.Codec, rec)
	if err != nil {
		return &ValidationError{Field: "record", Reason: err.Error()}
	}
	path := ix.layout.LogPath()
	err = fs.WriteAtomic(ix.opts.FS, path, 0o644, func(w io.Writer) error {
		src, err := ix.opts.FS.OpenFile(path, os.O_RDONLY, 0)
		if err == nil {
			_, err = io.Copy(w, src)
			_ = src.Close()
			if err != nil {
				return err
			}
		} else if !os.IsNotExist(err) {
			return err
		}
		_, err = w.Write(line)
		return err
	})
	return ioErr("append", path, err)
}

// imageMove is a staged image placement, committed after the log line.
type imageMove struct {
	fsys  fs.FileSystem
	tmp   string // staged copy of a new image
	from  string // existing image to relocate
	to    string
	stale string // previous image to remove
}

func (m *imageMove) abort() {
	if m != nil && m.tmp != "" {
		_ = m.fsys.Remove(m.tmp)
	}
}

func (m *imageMove) commit() error {
	if m == nil {
		return nil
	}
	switch {
	case m.tmp != "":
		if err := m.fsys.Rename(m.tmp, m.to); err != nil {
			_ = m.fsys.Remove(m.tmp)
			return ioErr("place image", m.to, err)
		}
	case m.from != "" && m.from != m.to:
		if err := m.fsys.Rename(m.from, m.to); err != nil {
			return ioErr("move image", m.to, err)
		}
	}
	if err := fs.SyncDir(m.fsys, filepath.Dir(m.to)); err != nil {
		return ioErr("sync", filepath.Dir(m.to), err)
	}
	if m.stale != "" && m.stale != m.to {
		if err := m.fsys.Remove(m.stale); err != nil && !os.IsNotExist(err) {
			return ioErr("remove stale image", m.stale, err)
		}
	}
	return nil
}

// stageImage decides where the page image goes and stages new image bytes next to
// the target. It sets rec.ImagePath.
func (ix *Index) stageImage(rec *model.PageRecord, prev *model.PageRecord, src string) (*imageMove, error) {
	rel := ImageRel(rec.BaseLabel, rec.Document, rec.Page)
	m := &imageMove{fsys: ix.opts.FS, to: ix.layout.Abs(rel)}
	if prev != nil && prev.ImagePath != "" {
		m.stale = ix.layout.Abs(prev.ImagePath)
	}

	switch {
	case src != "":
		if err := ix.opts.FS.MkdirAll(filepath.Dir(m.to), 0o755); err != nil {
			return nil, ioErr("mkdir", filepath.Dir(m.to), err)
		}
		tmp, err := stageCopy(ix.opts.FS, src, filepath.Dir(m.to))
		if err != nil {
			return nil, err
		}
		m.tmp = tmp
	case m.stale != "":
		if ok, _ := fs.Exists(ix.opts.FS, m.stale); !ok {
			rec.ImagePath = ""
			return nil, nil
		}
		if err := ix.opts.FS.MkdirAll(filepath.Dir(m.to), 0o755); err != nil {
			return nil, ioErr("mkdir", filepath.Dir(m.to), err)
		}
		m.from = m.stale
	default:
		// no image for this page
		rec.ImagePath = ""
		return nil, nil
	}
	rec.ImagePath = rel
	return m, nil
}

// stageCopy copies src into a synced temp file inside dir and returns its path.
func stageCopy(fsys fs.FileSystem, src, dir string) (string, error) {
	in, err := fsys.OpenFile(src, os.O_RDONLY, 0)
	if err != nil {
		return "", ioErr("open image", src, err)
	}
	defer in.Close()

	tmp, err := fsys.CreateTemp(dir, fs.TempPrefix+"img-*")
	if err != nil {
		return "", ioErr("stage image", dir, err)
	}
	name := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(name)
		return "", ioErr("stage image", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(name)
		return "", ioErr("stage image", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(name)
		return "", ioErr("stage image", name, err)
	}
	return name, nil
}
