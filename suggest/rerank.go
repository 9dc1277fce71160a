// Package suggest turns similarity hits into ranked label suggestions.
package suggest

import (
	"sort"

	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/similarity"
)

// Boost names reported on a Suggestion.
const (
	BoostAutoLabel  = "auto_label"
	BoostPageNumber = "page_number"
	BoostContinuity = "continuity"
)

// Page is the labelling context of a page.
type Page struct {
	Label     string
	AutoLabel string
	RawLabel  string
}

// PageFromRecord builds the context from a curated record. A nil record
// gives nil.
func PageFromRecord(rec *model.PageRecord) *Page {
	if rec == nil {
		return nil
	}

	return &Page{Label: rec.Label, AutoLabel: rec.AutoLabel, RawLabel: rec.RawLabel}
}

// Suggestion is one ranked label.
type Suggestion struct {
	Rank      int          `json:"rank"`
	Label     string       `json:"label"`
	BaseLabel string       `json:"base_label"`
	Score     float32      `json:"score"`
	RawScore  float32      `json:"raw_score"`
	MatchID   model.PageID `json:"match_page_id"`
	Boosts    []string     `json:"boosts,omitempty"`
}

// Options configures a Reranker.
type Options struct {
	TopK            int
	AutoLabelBoost  float32
	PageNumberBoost float32
	ContinuityBoost float32
	// Resolver canonicalizes labels. Nil leaves labels unchanged.
	Resolver label.Resolver
}

// DefaultOptions are the defaults used by NewReranker.
var DefaultOptions = Options{
	TopK:            5,
	AutoLabelBoost:  0.03,
	PageNumberBoost: 0.02,
	ContinuityBoost: 0.02,
}

// Reranker canonicalizes, dedupes and re-scores hits with light priors.
type Reranker struct {
	opts Options
}

// NewReranker creates a Reranker.
func NewReranker(optFns ...func(o *Options)) *Reranker {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions.TopK
	}

	return &Reranker{opts: opts}
}

func (r *Reranker) canonical(l string) string {
	if r.opts.Resolver == nil {
		return l
	}
	return r.opts.Resolver.Resolve(l)
}

// Rerank merges hits by canonical label keeping the best raw score, applies
// boosts from the page and previous page context, sorts by score descending
// then label ascending and assigns ranks to the top K. Page and prev may be
// nil.
func (r *Reranker) Rerank(hits []similarity.Hit, page, prev *Page) []Suggestion {
	byLabel := make(map[string]*Suggestion, len(hits))
	order := make([]string, 0, len(hits))

	for _, h := range hits {
		can := r.canonical(h.Label)

		s, ok := byLabel[can]
		if !ok {
			base, _ := label.Split(can)
			s = &Suggestion{Label: can, BaseLabel: base, RawScore: h.Score, MatchID: h.ID}
			byLabel[can] = s
			order = append(order, can)
			continue
		}

		if h.Score > s.RawScore || (h.Score == s.RawScore && h.ID < s.MatchID) {
			s.RawScore = h.Score
			s.MatchID = h.ID
		}
	}

	var (
		autoCan      string
		expectedBase string
		pageHint     int
		hasHint      bool
		prevBase     string
	)

	if page != nil {
		al := page.AutoLabel
		if al == "" {
			al = page.Label
		}

		autoCan = r.canonical(al)
		expectedBase, _ = label.Split(autoCan)

		pageHint, hasHint = label.PageHint(page.RawLabel)
		if !hasHint && label.HasSuffix(autoCan) {
			_, pageHint = label.Split(autoCan)
			hasHint = true
		}
	}

	if prev != nil {
		pl := prev.Label
		if pl == "" {
			pl = prev.AutoLabel
		}

		if pl != "" {
			prevBase, _ = label.Split(r.canonical(pl))
		}
	}

	out := make([]Suggestion, 0, len(order))

	for _, can := range order {
		s := byLabel[can]
		s.Score = s.RawScore

		if autoCan != "" && can == autoCan {
			s.Score += r.opts.AutoLabelBoost
			s.Boosts = append(s.Boosts, BoostAutoLabel)
		}

		if hasHint && expectedBase != "" && label.HasSuffix(can) {
			if _, p := label.Split(can); p == pageHint && s.BaseLabel == expectedBase {
				s.Score += r.opts.PageNumberBoost
				s.Boosts = append(s.Boosts, BoostPageNumber)
			}
		}

		if prevBase != "" && s.BaseLabel == prevBase {
			s.Score += r.opts.ContinuityBoost
			s.Boosts = append(s.Boosts, BoostContinuity)
		}

		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Label < out[j].Label
		}
		return out[i].Score > out[j].Score
	})

	if len(out) > r.opts.TopK {
		out = out[:r.opts.TopK]
	}

	for i := range out {
		out[i].Rank = i + 1
	}

	return out
}
