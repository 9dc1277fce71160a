package curated

import (
	"bufio"
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
	"golang.org/x/sync/singleflight"
)

// Options configures an Index.
type Options struct {
	FS     fs.FileSystem
	Codec  codec.Codec
	Logger *slog.Logger
	// Aliases resolves labels on append. Nil resolves every label to itself.
	Aliases label.Resolver
	// Now stamps added_at.
	Now func() time.Time
	// Create allows opening a version that has no log yet.
	Create bool
}

// DefaultOptions contains the default index options.
var DefaultOptions = Options{
	Create: true,
}

// view is an immutable snapshot of the log.
// records may share a backing array with later views; elements below len are never written again.
// latest holds live pages only; a tombstone removes its page from it.
type view struct {
	records    []model.PageRecord
	latest     map[model.PageKey]int
	invalid    int
	tombstones int
	lastSeq    uint64
}

// with returns a view extending v by rec.
func (v *view) with(rec model.PageRecord) *view {
	next := &view{
		records:    append(v.records, rec),
		latest:     make(map[model.PageKey]int, len(v.latest)+1),
		invalid:    v.invalid,
		tombstones: v.tombstones,
		lastSeq:    rec.Seq,
	}
	for k, i := range v.latest {
		next.latest[k] = i
	}
	if rec.Deleted {
		next.tombstones++
		delete(next.latest, rec.Key())
	} else {
		next.latest[rec.Key()] = len(next.records) - 1
	}
	return next
}

func (v *view) seq() uint64 { return v.lastSeq }

// current returns the winning records in their append order.
func (v *view) current() []model.PageRecord {
	pos := make([]int, 0, len(v.latest))
	for _, i := range v.latest {
		pos = append(pos, i)
	}
	sort.Ints(pos)
	out := make([]model.PageRecord, len(pos))
	for j, i := range pos {
		out[j] = v.records[i].Clone()
	}
	return out
}

// Index is the curated log of one dataset version.
type Index struct {
	layout Layout
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex // single writer
	closed atomic.Bool
	cur    atomic.Pointer[view]
	group  singleflight.Group
}

// Open opens the index of version v under root. Leftover temp files from interrupted
// writes are removed and lines that fail to parse are skipped and counted.
func Open(root string, v model.Version, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if !v.Valid() {
		return nil, &ValidationError{Field: "dataset_version", Reason: "must be >= 1"}
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Aliases == nil {
		opts.Aliases = label.Aliases(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ix := &Index{
		layout: Layout{Root: root, Version: v},
		opts:   opts,
		logger: opts.Logger.With("component", "curated", "version", v.String()),
	}

	logPath := ix.layout.LogPath()
	exists, err := fs.Exists(opts.FS, logPath)
	if err != nil {
		return nil, ioErr("stat", logPath, err)
	}
	if !exists && !opts.Create {
		return nil, ioErr("open", logPath, os.ErrNotExist)
	}
	if err := opts.FS.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, ioErr("mkdir", filepath.Dir(logPath), err)
	}
	if n, err := fs.RemoveTemps(opts.FS, filepath.Dir(logPath)); err != nil {
		return nil, ioErr("cleanup", filepath.Dir(logPath), err)
	} else if n > 0 {
		ix.logger.Warn("removed leftover temp files", "count", n)
	}

	vw, err := ix.load()
	if err != nil {
		return nil, err
	}
	ix.cur.Store(vw)
	if vw.invalid > 0 {
		ix.logger.Warn("skipped unparsable log lines", "count", vw.invalid)
	}
	return ix, nil
}

func (ix *Index) load() (*view, error) {
	vw := &view{latest: map[model.PageKey]int{}}
	path := ix.layout.LogPath()
	data, err := fs.ReadFile(ix.opts.FS, path)
	if err != nil {
		if os.IsNotExist(err) {
			return vw, nil
		}
		return nil, ioErr("read", path, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec model.PageRecord
		if err := ix.opts.Codec.Unmarshal(line, &rec); err != nil || rec.Document == "" || rec.Page < 1 {
			vw.invalid++
			continue
		}
		if rec.Seq == 0 {
			rec.Seq = vw.lastSeq + 1
		}
		vw.lastSeq = max(vw.lastSeq, rec.Seq)
		vw.records = append(vw.records, rec)
		if rec.Deleted {
			vw.tombstones++
			delete(vw.latest, rec.Key())
			continue
		}
		vw.latest[rec.Key()] = len(vw.records) - 1
	}
	if err := sc.Err(); err != nil {
		return nil, ioErr("read", path, err)
	}
	return vw, nil
}

// Version returns the dataset version of the index.
func (ix *Index) Version() model.Version { return ix.layout.Version }

// Layout returns the on-disk layout of the version.
func (ix *Index) Layout() Layout { return ix.layout }

// Len returns the number of log lines, superseded records included.
func (ix *Index) Len() int { return len(ix.cur.Load().records) }

// Seq returns the sequence number of the last appended record.
func (ix *Index) Seq() uint64 { return ix.cur.Load().seq() }

// Current returns the current record of a page. A deleted page has none.
func (ix *Index) Current(key model.PageKey) (model.PageRecord, bool) {
	vw := ix.cur.Load()
	i, ok := vw.latest[key]
	if !ok {
		return model.PageRecord{}, false
	}
	return vw.records[i].Clone(), true
}

// History returns every record of a page in append order, tombstones included.
func (ix *Index) History(key model.PageKey) []model.PageRecord {
	vw := ix.cur.Load()
	var out []model.PageRecord
	for i := range vw.records {
		if vw.records[i].Key() == key {
			out = append(out, vw.records[i].Clone())
		}
	}
	return out
}

// Records returns all log records in append order.
func (ix *Index) Records() []model.PageRecord {
	vw := ix.cur.Load()
	out := make([]model.PageRecord, len(vw.records))
	for i := range vw.records {
		out[i] = vw.records[i].Clone()
	}
	return out
}

// CurrentRecords returns the current record of every page, in the append order of the
// winning records.
func (ix *Index) CurrentRecords() []model.PageRecord {
	return ix.cur.Load().current()
}

// Stats summarizes the index.
type Stats struct {
	Version      model.Version  `json:"dataset_version"`
	Lines        int            `json:"lines"`
	CurrentPages int            `json:"current_pages"`
	Tombstones   int            `json:"tombstones"`
	InvalidLines int            `json:"invalid_lines"`
	Labels       map[string]int `json:"labels"`
}

// Stats returns counts over the current view.
func (ix *Index) Stats() Stats {
	vw := ix.cur.Load()
	s := Stats{
		Version:      ix.layout.Version,
		Lines:        len(vw.records),
		CurrentPages: len(vw.latest),
		Tombstones:   vw.tombstones,
		InvalidLines: vw.invalid,
		Labels:       map[string]int{},
	}
	for _, i := range vw.latest {
		s.Labels[vw.records[i].Label]++
	}
	return s
}

// Close marks the index closed. Appends fail afterwards; reads keep working.
func (ix *Index) Close() error {
	ix.closed.Store(true)
	return nil
}
