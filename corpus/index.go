package corpus

import "github.com/hupe1980/pagecorpus/internal/textutil"

// Skip reasons recorded in the index.
const (
	ReasonMissingPDF         = "missing_pdf"
	ReasonInvalidGroundTruth = "invalid_ground_truth"
	ReasonNoPages            = "no_pages"
	ReasonUnreadablePDF      = "unreadable_pdf"
)

// Index is the content of corpus_index.json.
type Index struct {
	Documents  []DocumentEntry       `json:"documents"`
	Totals     Totals                `json:"totals"`
	PerFamily  map[string]int        `json:"per_family"`
	PerLabel   map[string]LabelEntry `json:"per_label"`
	Skipped    []SkippedInput        `json:"skipped,omitempty"`
	PageErrors []PageError           `json:"page_errors,omitempty"`
}

// DocumentEntry describes one ingested document.
type DocumentEntry struct {
	GroundTruth string `json:"gt"`
	PDF         string `json:"pdf"`
	Pages       int    `json:"pages"`
}

// Totals summarizes a build.
type Totals struct {
	Docs        int `json:"docs"`
	Pages       int `json:"pages"`
	SkippedDocs int `json:"skipped_docs"`
	PageErrors  int `json:"page_errors"`
}

// LabelEntry is the per-label shard summary.
type LabelEntry struct {
	Family string `json:"family"`
	Label  string `json:"label"`
	Count  int    `json:"count"`
	File   string `json:"file"`
}

// SkippedInput is a ground-truth file that contributed no pages.
type SkippedInput struct {
	GroundTruth string `json:"gt"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

// PageError is a page that failed extraction and was left out.
type PageError struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
	Error    string `json:"error"`
}

// Profile is one entry of label_profiles.json.
type Profile struct {
	TopTerms []textutil.TermCount `json:"top_terms"`
}

// Profiles maps "<family>/<label>" to its profile.
type Profiles map[string]Profile

// LabelKey returns the per-label index key.
func LabelKey(family, label string) string {
	return family + "/" + label
}
