package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Version identifies an immutable dataset snapshot (v1, v2, ...).
// The zero value is not a valid version.
type Version int

// String returns the on-disk form of the version ("v3").
func (v Version) String() string {
	return "v" + strconv.Itoa(int(v))
}

// Valid reports whether v can name a dataset version.
func (v Version) Valid() bool { return v > 0 }

// Next returns the version following v.
func (v Version) Next() Version { return v + 1 }

// ParseVersion parses "v3" or "3".
func ParseVersion(s string) (Version, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid dataset version %q", s)
	}
	return Version(n), nil
}

// PageKey is the logical identity of a page inside one dataset version.
type PageKey struct {
	Document string
	Page     int
}

// ID returns the string page id ("<document>#<page>").
func (k PageKey) ID() PageID {
	return PageID(k.Document + "#" + strconv.Itoa(k.Page))
}

// PageID is the string form of a PageKey.
type PageID string

// Key splits the page id back into its PageKey.
func (id PageID) Key() (PageKey, error) {
	s := string(id)
	i := strings.LastIndexByte(s, '#')
	if i <= 0 {
		return PageKey{}, fmt.Errorf("invalid page id %q", s)
	}
	page, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return PageKey{}, fmt.Errorf("invalid page id %q: %w", s, err)
	}
	return PageKey{Document: s[:i], Page: page}, nil
}

// RecordID identifies a logical record: (document, page, dataset_version).
type RecordID struct {
	Document string  `json:"document"`
	Page     int     `json:"page"`
	Version  Version `json:"dataset_version"`
}

// String returns a string representation of the RecordID.
func (r RecordID) String() string {
	return fmt.Sprintf("%s#%d@%s", r.Document, r.Page, r.Version)
}

// TextSource records where page text came from.
type TextSource string

const (
	TextSourceNative TextSource = "native"
	TextSourceOCR    TextSource = "ocr"
)

// Valid reports whether s is a known text source. Empty is allowed.
func (s TextSource) Valid() bool {
	switch s {
	case "", TextSourceNative, TextSourceOCR:
		return true
	default:
		return false
	}
}

// BBox is a box as [x0, y0, x1, y1].
type BBox [4]int

// Normalized reports whether all coordinates are inside [0,1000] and ordered.
func (b BBox) Normalized() bool {
	for _, c := range b {
		if c < 0 || c > 1000 {
			return false
		}
	}
	return b[0] <= b[2] && b[1] <= b[3]
}

// Word is one token with its pixel box.
type Word struct {
	Text string `json:"text"`
	BBox BBox   `json:"bbox"`
}

// ImageSize describes a rendered page image.
type ImageSize struct {
	WidthPx  int `json:"width_px"`
	HeightPx int `json:"height_px"`
	DPI      int `json:"dpi,omitempty"`
}

// PageSize is the page size in PDF points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageRecord is one curated training example for a single PDF page.
type PageRecord struct {
	Document     string `json:"document"`
	Page         int    `json:"page"`
	Family       string `json:"family,omitempty"`
	Label        string `json:"label"`
	AutoLabel    string `json:"auto_label,omitempty"`
	UpdatedLabel bool   `json:"updated_label"`
	BaseLabel    string `json:"base_label"`
	PageInForm   int    `json:"page_in_form"`
	Multipage    bool   `json:"multipage"`
	RawLabel     string `json:"raw_label,omitempty"`
	Source       string `json:"source,omitempty"`

	Text       string         `json:"text"`
	HeaderText string         `json:"header_text,omitempty"`
	RegexFlags []string       `json:"regex_flags,omitempty"`
	FontHist   map[string]int `json:"font_hist,omitempty"`

	ImagePath   string     `json:"image_path,omitempty"`
	ImageSize   *ImageSize `json:"image_size,omitempty"`
	Words       []Word     `json:"words,omitempty"`
	BoxesNorm   []BBox     `json:"boxes_norm,omitempty"`
	PageSizePts *PageSize  `json:"page_size_pts,omitempty"`
	TextSource  TextSource `json:"text_source,omitempty"`
	TextLen     int        `json:"text_len"`

	AddedBy        string    `json:"added_by,omitempty"`
	AddedAt        time.Time `json:"added_at,omitzero"`
	DatasetVersion Version   `json:"dataset_version,omitempty"`
	Seq            uint64    `json:"seq,omitempty"`

	// Deleted marks a tombstone: the page left the curated set at this record.
	Deleted bool `json:"deleted,omitempty"`
}

// Key returns the logical page identity.
func (r *PageRecord) Key() PageKey {
	return PageKey{Document: r.Document, Page: r.Page}
}

// ID returns the record id (document, page, dataset_version).
func (r *PageRecord) ID() RecordID {
	return RecordID{Document: r.Document, Page: r.Page, Version: r.DatasetVersion}
}

// Clone returns a deep copy of the record.
func (r *PageRecord) Clone() PageRecord {
	c := *r
	if r.RegexFlags != nil {
		c.RegexFlags = append([]string(nil), r.RegexFlags...)
	}
	if r.FontHist != nil {
		c.FontHist = make(map[string]int, len(r.FontHist))
		for k, v := range r.FontHist {
			c.FontHist[k] = v
		}
	}
	if r.ImageSize != nil {
		is := *r.ImageSize
		c.ImageSize = &is
	}
	if r.Words != nil {
		c.Words = append([]Word(nil), r.Words...)
	}
	if r.BoxesNorm != nil {
		c.BoxesNorm = append([]BBox(nil), r.BoxesNorm...)
	}
	if r.PageSizePts != nil {
		ps := *r.PageSizePts
		c.PageSizePts = &ps
	}
	return c
}
