package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrPageOutOfRange is returned when a page number exceeds the document.
var ErrPageOutOfRange = errors.New("page out of range")

// Page holds the raw native features of one page. Text is not normalized.
type Page struct {
	Number     int
	Text       string
	HeaderText string
	FontHist   map[string]int
	Width      float64
	Height     float64
}

// Extractor reads native page features from a PDF.
type Extractor interface {
	// PageCount returns the number of pages of the document.
	PageCount(ctx context.Context, path string) (int, error)
	// Pages extracts the requested 1-based pages in the given order.
	Pages(ctx context.Context, path string, pages []int) ([]Page, error)
}

// Options configures the pdfcpu extractor.
type Options struct {
	// HeaderTopRatio is the fraction of the page height treated as the header band.
	HeaderTopRatio float64
	// Relaxed accepts PDFs that fail strict validation.
	Relaxed bool
}

// DefaultOptions contains the default extractor options.
var DefaultOptions = Options{
	HeaderTopRatio: 0.15,
	Relaxed:        true,
}

// PDFCPUExtractor implements Extractor on top of pdfcpu.
type PDFCPUExtractor struct {
	opts Options
}

// NewExtractor creates a pdfcpu-backed extractor.
func NewExtractor(optFns ...func(o *Options)) *PDFCPUExtractor {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HeaderTopRatio <= 0 || opts.HeaderTopRatio >= 1 {
		opts.HeaderTopRatio = DefaultOptions.HeaderTopRatio
	}
	return &PDFCPUExtractor{opts: opts}
}

func (e *PDFCPUExtractor) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if e.opts.Relaxed {
		conf.ValidationMode = model.ValidationRelaxed
	}
	return conf
}

// PageCount implements Extractor.
func (e *PDFCPUExtractor) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := api.PageCount(f, e.config())
	if err != nil {
		return 0, fmt.Errorf("page count %s: %w", path, err)
	}
	return n, nil
}

// Pages implements Extractor.
func (e *PDFCPUExtractor) Pages(ctx context.Context, path string, pages []int) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pctx, err := api.ReadValidateAndOptimize(f, e.config())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	dims, err := pctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("page dims %s: %w", path, err)
	}

	out := make([]Page, 0, len(pages))
	for _, nr := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if nr < 1 || nr > pctx.PageCount {
			return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, nr, pctx.PageCount)
		}
		p, err := e.page(pctx, nr, dims[nr-1])
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", path, nr, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (e *PDFCPUExtractor) page(pctx *model.Context, nr int, dim types.Dim) (Page, error) {
	p := Page{Number: nr, Width: dim.Width, Height: dim.Height, FontHist: map[string]int{}}

	r, err := pdfcpu.ExtractPageContent(pctx, nr)
	if err != nil {
		return p, err
	}
	if r == nil {
		// page without content stream
		return p, nil
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return p, err
	}

	fonts, err := pageFonts(pctx, nr)
	if err != nil {
		return p, err
	}

	features := Analyze(content, fonts, dim.Height, e.opts.HeaderTopRatio)
	features.Number, features.Width, features.Height = nr, dim.Width, dim.Height
	return features, nil
}

// pageFonts maps the page's font resource names to their base font names.
func pageFonts(pctx *model.Context, nr int) (map[string]string, error) {
	_, _, inh, err := pctx.PageDict(nr, true)
	if err != nil {
		return nil, err
	}
	fonts := map[string]string{}
	if inh == nil || inh.Resources == nil {
		return fonts, nil
	}
	obj, ok := inh.Resources.Find("Font")
	if !ok {
		return fonts, nil
	}
	fd, err := pctx.DereferenceDict(obj)
	if err != nil || fd == nil {
		return fonts, err
	}
	for name, ref := range fd {
		d, err := pctx.DereferenceDict(ref)
		if err != nil || d == nil {
			continue
		}
		if base := d.NameEntry("BaseFont"); base != nil {
			fonts[name] = stripSubsetTag(*base)
		}
	}
	return fonts, nil
}

// stripSubsetTag removes the "ABCDEF+" prefix of embedded font subsets.
func stripSubsetTag(name string) string {
	if i := strings.IndexByte(name, '+'); i == 6 {
		return name[i+1:]
	}
	return name
}

// Analyze turns a decoded content stream into page features.
// fonts maps resource names to base font names; runs whose baseline lies in the top
// headerRatio of height are collected into HeaderText.
func Analyze(content []byte, fonts map[string]string, height, headerRatio float64) Page {
	p := Page{FontHist: map[string]int{}}
	threshold := height * (1 - headerRatio)

	var text, header strings.Builder
	lastHeaderY, headerStarted := 0.0, false
	for _, run := range interpret(content, fonts) {
		text.WriteString(run.text)
		if run.text == "\n" {
			continue
		}
		if n := glyphs(run.text); n > 0 && run.font != "" {
			p.FontHist[run.font] += n
		}
		if height > 0 && run.y >= threshold {
			if headerStarted && run.y != lastHeaderY {
				header.WriteByte('\n')
			}
			header.WriteString(run.text)
			lastHeaderY, headerStarted = run.y, true
		}
	}
	p.Text = text.String()
	p.HeaderText = header.String()
	return p
}
