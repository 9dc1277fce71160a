package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/internal/textutil"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/pdf"
)

// File names written at the top of the output directory.
const (
	IndexFile    = "corpus_index.json"
	ProfilesFile = "label_profiles.json"
	// SourcePrefix prefixes the source reference of corpus records.
	SourcePrefix = "corpus:"
	defaultLabel = "Other"
)

// ErrNoGroundTruth is returned when the ground-truth directory holds no files.
var ErrNoGroundTruth = errors.New("no ground truth files found")

// Options configures a corpus build.
type Options struct {
	GroundTruthDir string
	PDFDir         string
	OutputDir      string

	// MaxDocs limits the number of ingested documents. Zero means no limit.
	MaxDocs int
	// FamilyMap renames ground-truth families.
	FamilyMap map[string]string
	// TopTerms is the profile length per label.
	TopTerms int
	// Concurrency is the number of documents extracted in parallel.
	Concurrency int
	// Registry adds registry-derived regex flags.
	Registry *textutil.Registry
	// Aliases canonicalizes ground-truth labels.
	Aliases label.Resolver

	FS     fs.FileSystem
	Codec  codec.Codec
	Logger *slog.Logger
}

// DefaultOptions contains the default build options.
var DefaultOptions = Options{
	TopTerms:    50,
	Concurrency: 4,
}

// Builder builds corpora.
type Builder struct {
	opts      Options
	extractor pdf.Extractor
	validator *GroundTruthValidator
	flags     *textutil.FlagSet
	logger    *slog.Logger
}

// NewBuilder creates a corpus builder that reads PDFs through extractor.
func NewBuilder(extractor pdf.Extractor, optFns ...func(o *Options)) (*Builder, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.GroundTruthDir == "" || opts.PDFDir == "" || opts.OutputDir == "" {
		return nil, errors.New("corpus: ground truth, pdf and output directories are required")
	}
	if extractor == nil {
		return nil, errors.New("corpus: extractor is required")
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
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.TopTerms <= 0 {
		opts.TopTerms = DefaultOptions.TopTerms
	}
	if opts.Aliases == nil {
		opts.Aliases = label.Aliases(nil)
	}

	v, err := NewGroundTruthValidator()
	if err != nil {
		return nil, err
	}
	return &Builder{
		opts:      opts,
		extractor: extractor,
		validator: v,
		flags:     textutil.NewFlagSet(opts.Registry),
		logger:    opts.Logger.With("component", "corpus"),
	}, nil
}

// job is one ground-truth document with its resolved PDF.
type job struct {
	gtPath  string
	pdfPath string
	gt      *GroundTruth
}

// extraction is the per-document result of the parallel stage.
type extraction struct {
	pages  map[int]pdf.Page
	errs   map[int]error
	docErr error
}

// Build runs a full corpus build and returns the written index.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	gtFiles, err := b.groundTruthFiles()
	if err != nil {
		return nil, err
	}

	staging := filepath.Join(filepath.Dir(filepath.Clean(b.opts.OutputDir)), fs.TempPrefix+"corpus-"+uuid.NewString())
	if err := b.opts.FS.MkdirAll(staging, 0o755); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = b.opts.FS.RemoveAll(staging)
		}
	}()

	w := newShardWriter(b.opts.FS, staging, b.opts.Codec)
	defer w.closeAll()

	idx := &Index{
		Documents: []DocumentEntry{},
		PerFamily: map[string]int{},
		PerLabel:  map[string]LabelEntry{},
	}
	terms := map[string]textutil.TermCounter{}

	// Jobs are resolved serially, extracted in parallel batches and written in order.
	jobs := make([]job, 0, len(gtFiles))
	for _, gtPath := range gtFiles {
		j, skip := b.resolve(gtPath)
		if skip != nil {
			idx.Skipped = append(idx.Skipped, *skip)
			b.logger.Warn("skipping document", "gt", skip.GroundTruth, "reason", skip.Reason, "detail", skip.Detail)
			continue
		}
		jobs = append(jobs, j)
	}

	batch := b.opts.Concurrency
	done := false
	for start := 0; start < len(jobs) && !done; start += batch {
		end := min(start+batch, len(jobs))
		results, err := b.extractBatch(ctx, jobs[start:end])
		if err != nil {
			return nil, err
		}
		for i, res := range results {
			if b.opts.MaxDocs > 0 && idx.Totals.Docs >= b.opts.MaxDocs {
				done = true
				break
			}
			if err := b.writeDocument(jobs[start+i], res, w, idx, terms); err != nil {
				return nil, err
			}
		}
	}

	if err := w.closeAll(); err != nil {
		return nil, err
	}

	idx.Totals.SkippedDocs = len(idx.Skipped)
	idx.Totals.PageErrors = len(idx.PageErrors)
	for k, e := range idx.PerLabel {
		e.File = w.rel(e.Family, e.Label)
		idx.PerLabel[k] = e
	}

	profiles := Profiles{}
	for key, c := range terms {
		profiles[key] = Profile{TopTerms: c.Top(b.opts.TopTerms)}
	}

	if err := b.writeJSON(filepath.Join(staging, IndexFile), idx); err != nil {
		return nil, err
	}
	if err := b.writeJSON(filepath.Join(staging, ProfilesFile), profiles); err != nil {
		return nil, err
	}

	if err := b.swap(staging); err != nil {
		return nil, err
	}
	committed = true

	b.logger.Info("corpus built",
		"docs", idx.Totals.Docs,
		"pages", idx.Totals.Pages,
		"skipped_docs", idx.Totals.SkippedDocs,
		"page_errors", idx.Totals.PageErrors,
		"labels", len(idx.PerLabel),
	)
	return idx, nil
}

func (b *Builder) groundTruthFiles() ([]string, error) {
	entries, err := b.opts.FS.ReadDir(b.opts.GroundTruthDir)
	if err != nil {
		return nil, fmt.Errorf("read ground truth dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), GroundTruthSuffix) {
			continue
		}
		files = append(files, filepath.Join(b.opts.GroundTruthDir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoGroundTruth, b.opts.GroundTruthDir)
	}
	sort.Strings(files)
	return files, nil
}

// resolve loads a ground-truth file and finds its PDF.
func (b *Builder) resolve(gtPath string) (job, *SkippedInput) {
	name := filepath.Base(gtPath)
	data, err := fs.ReadFile(b.opts.FS, gtPath)
	if err != nil {
		return job{}, &SkippedInput{GroundTruth: name, Reason: ReasonInvalidGroundTruth, Detail: err.Error()}
	}
	gt, err := b.validator.Decode(data)
	if err != nil {
		return job{}, &SkippedInput{GroundTruth: name, Reason: ReasonInvalidGroundTruth, Detail: err.Error()}
	}
	if len(gt.Pages) == 0 {
		return job{}, &SkippedInput{GroundTruth: name, Reason: ReasonNoPages}
	}

	candidates := make([]string, 0, 3)
	if gt.Document != "" {
		candidates = append(candidates, filepath.Base(gt.Document))
	}
	s := stem(gtPath)
	candidates = append(candidates, s+".PDF", s+".pdf")
	for _, c := range candidates {
		p := filepath.Join(b.opts.PDFDir, c)
		if ok, _ := fs.Exists(b.opts.FS, p); ok {
			return job{gtPath: gtPath, pdfPath: p, gt: gt}, nil
		}
	}
	return job{}, &SkippedInput{GroundTruth: name, Reason: ReasonMissingPDF, Detail: strings.Join(candidates, ", ")}
}

func (b *Builder) extractBatch(ctx context.Context, jobs []job) ([]extraction, error) {
	results := make([]extraction, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = b.extract(gctx, j)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// extract reads all labeled pages of one document. If the whole-document read fails,
// pages are retried one by one so a single bad page does not drop the document.
func (b *Builder) extract(ctx context.Context, j job) extraction {
	nums := make([]int, 0, len(j.gt.Pages))
	seen := map[int]struct{}{}
	for _, p := range j.gt.Pages {
		if _, dup := seen[p.Page]; dup {
			continue
		}
		seen[p.Page] = struct{}{}
		nums = append(nums, p.Page)
	}
	sort.Ints(nums)

	res := extraction{pages: map[int]pdf.Page{}, errs: map[int]error{}}
	pages, err := b.extractor.Pages(ctx, j.pdfPath, nums)
	if err == nil {
		for _, p := range pages {
			res.pages[p.Number] = p
		}
		return res
	}
	if ctx.Err() != nil {
		res.docErr = ctx.Err()
		return res
	}

	if _, cerr := b.extractor.PageCount(ctx, j.pdfPath); cerr != nil {
		res.docErr = cerr
		return res
	}
	for _, n := range nums {
		one, err := b.extractor.Pages(ctx, j.pdfPath, []int{n})
		if err != nil || len(one) != 1 {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			res.errs[n] = err
			continue
		}
		res.pages[n] = one[0]
	}
	return res
}

// writeDocument appends the pages of one document in page-ascending order.
func (b *Builder) writeDocument(j job, res extraction, w *shardWriter, idx *Index, terms map[string]textutil.TermCounter) error {
	gtName := filepath.Base(j.gtPath)
	docName := filepath.Base(j.pdfPath)
	if res.docErr != nil {
		idx.Skipped = append(idx.Skipped, SkippedInput{GroundTruth: gtName, Reason: ReasonUnreadablePDF, Detail: res.docErr.Error()})
		b.logger.Warn("skipping unreadable pdf", "pdf", docName, "error", res.docErr)
		return nil
	}

	gtPages := latestPerPage(j.gt.Pages)
	baseCount := map[string]int{}
	canon := make([]label.Canonical, len(gtPages))
	for i, p := range gtPages {
		canon[i] = label.Canonicalize(b.opts.Aliases, orDefault(p.Label))
		baseCount[canon[i].BaseLabel]++
	}

	written := 0
	for i, gp := range gtPages {
		if perr, failed := res.errs[gp.Page]; failed {
			idx.PageErrors = append(idx.PageErrors, PageError{Document: docName, Page: gp.Page, Error: perr.Error()})
			continue
		}
		page, ok := res.pages[gp.Page]
		if !ok {
			idx.PageErrors = append(idx.PageErrors, PageError{Document: docName, Page: gp.Page, Error: pdf.ErrPageOutOfRange.Error()})
			continue
		}

		family := b.family(gp.Family)
		c := canon[i]
		rec := b.record(docName, gtName, family, gp, c, page)
		rec.Multipage = label.HasSuffix(c.Label) || baseCount[c.BaseLabel] > 1

		if err := w.append(family, c.Label, rec); err != nil {
			return err
		}

		key := LabelKey(family, c.Label)
		e := idx.PerLabel[key]
		e.Family, e.Label = family, c.Label
		e.Count++
		idx.PerLabel[key] = e
		idx.PerFamily[family]++
		idx.Totals.Pages++

		tc, ok := terms[key]
		if !ok {
			tc = textutil.TermCounter{}
			terms[key] = tc
		}
		tc.AddText(rec.Text)
		written++
	}

	if written == 0 {
		idx.Skipped = append(idx.Skipped, SkippedInput{GroundTruth: gtName, Reason: ReasonNoPages, Detail: "no page could be extracted"})
		return nil
	}
	idx.Totals.Docs++
	idx.Documents = append(idx.Documents, DocumentEntry{GroundTruth: gtName, PDF: docName, Pages: written})
	return nil
}

// latestPerPage sorts pages ascending and keeps the last entry for each page number.
func latestPerPage(in []GroundTruthPage) []GroundTruthPage {
	pages := append([]GroundTruthPage(nil), in...)
	sort.SliceStable(pages, func(a, c int) bool { return pages[a].Page < pages[c].Page })
	out := pages[:0]
	for i, p := range pages {
		if i+1 < len(pages) && pages[i+1].Page == p.Page {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (b *Builder) record(docName, gtName, family string, gp GroundTruthPage, c label.Canonical, page pdf.Page) *model.PageRecord {
	text := textutil.Normalize(page.Text)
	rec := &model.PageRecord{
		Document:   docName,
		Page:       gp.Page,
		Family:     family,
		Label:      c.Label,
		BaseLabel:  c.BaseLabel,
		PageInForm: c.PageInForm,
		RawLabel:   gp.Label,
		Source:     SourcePrefix + gtName,
		Text:       text,
		HeaderText: textutil.Normalize(page.HeaderText),
		RegexFlags: b.flags.Match(text),
		TextSource: model.TextSourceNative,
		TextLen:    utf8.RuneCountInString(text),
	}
	if len(page.FontHist) > 0 {
		rec.FontHist = page.FontHist
	}
	if page.Width > 0 && page.Height > 0 {
		rec.PageSizePts = &model.PageSize{Width: page.Width, Height: page.Height}
	}
	return rec
}

func (b *Builder) family(raw string) string {
	f := strings.TrimSpace(raw)
	if f == "" {
		f = defaultLabel
	}
	if mapped, ok := b.opts.FamilyMap[f]; ok {
		return mapped
	}
	return f
}

func orDefault(l string) string {
	if strings.TrimSpace(l) == "" {
		return defaultLabel
	}
	return l
}

func (b *Builder) writeJSON(path string, v any) error {
	data, err := codec.MarshalIndent(b.opts.Codec, v)
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(b.opts.FS, path, append(data, '\n'), 0o644)
}

// swap replaces the output directory with the staging directory.
func (b *Builder) swap(staging string) error {
	out := filepath.Clean(b.opts.OutputDir)
	old := out + ".old-" + uuid.NewString()[:8]

	exists, err := fs.Exists(b.opts.FS, out)
	if err != nil {
		return err
	}
	if exists {
		if err := b.opts.FS.Rename(out, old); err != nil {
			return fmt.Errorf("move previous corpus aside: %w", err)
		}
	}
	if err := b.opts.FS.Rename(staging, out); err != nil {
		if exists {
			_ = b.opts.FS.Rename(old, out)
		}
		return fmt.Errorf("install corpus: %w", err)
	}
	if err := fs.SyncDir(b.opts.FS, filepath.Dir(out)); err != nil {
		return err
	}
	if exists {
		if err := b.opts.FS.RemoveAll(old); err != nil {
			b.logger.Warn("failed to remove previous corpus", "path", old, "error", err)
		}
	}
	return nil
}

// shardWriter keeps one buffered writer per label shard.
type shardWriter struct {
	fsys  fs.FileSystem
	root  string
	codec codec.Codec
	files map[string]*shard
}

type shard struct {
	f fs.File
	w *bufio.Writer
}

func newShardWriter(fsys fs.FileSystem, root string, c codec.Codec) *shardWriter {
	return &shardWriter{fsys: fsys, root: root, codec: c, files: map[string]*shard{}}
}

func (w *shardWriter) rel(family, lbl string) string {
	return filepath.ToSlash(filepath.Join(label.SafeName(family), label.SafeName(lbl)+".jsonl"))
}

func (w *shardWriter) append(family, lbl string, rec *model.PageRecord) error {
	rel := w.rel(family, lbl)
	s, ok := w.files[rel]
	if !ok {
		path := filepath.Join(w.root, filepath.FromSlash(rel))
		if err := w.fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := w.fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		s = &shard{f: f, w: bufio.NewWriter(f)}
		w.files[rel] = s
	}
	line, err := codec.MarshalLine(w.codec, rec)
	if err != nil {
		return err
	}
	_, err = s.w.Write(line)
	return err
}

func (w *shardWriter) closeAll() error {
	var errs []error
	keys := make([]string, 0, len(w.files))
	for k := range w.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := w.files[k]
		if err := s.w.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := s.f.Sync(); err != nil {
			errs = append(errs, err)
		}
		if err := s.f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(w.files, k)
	}
	return errors.Join(errs...)
}
