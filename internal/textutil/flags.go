package textutil

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Pattern is a named regular expression evaluated against normalized page text.
type Pattern struct {
	Name string
	RE   *regexp.Regexp
}

// BuiltinPatterns is the fixed pattern set applied to every page.
var BuiltinPatterns = []Pattern{
	{Name: "has_form_number", RE: regexp.MustCompile(`\bform\s*\d{3,5}[a-z-]*\b`)},
	{Name: "has_schedule", RE: regexp.MustCompile(`\bschedule\s+[a-z0-9]{1,3}\b`)},
	{Name: "has_omb_number", RE: regexp.MustCompile(`\bomb\s+no\.?\s*\d{4}-\d{4}\b`)},
	{Name: "has_tax_year", RE: regexp.MustCompile(`\b(19|20)\d{2}\b`)},
	{Name: "has_ssn", RE: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{Name: "has_ein", RE: regexp.MustCompile(`\b\d{2}-\d{7}\b`)},
	{Name: "has_page_of", RE: regexp.MustCompile(`\bpage\s+\d+\s+of\s+\d+\b`)},
	{Name: "has_treasury", RE: regexp.MustCompile(`department of the treasury`)},
	{Name: "has_continuation", RE: regexp.MustCompile(`\b(continued|continuation)\b`)},
}

// Registry describes known families and labels. It extends the pattern set with
// has_form_<code> and has_schedule_<code> flags.
type Registry struct {
	Families       []string            `json:"families"`
	LabelsByFamily map[string][]string `json:"labels_by_family"`
}

// FlagSet is a compiled, ordered pattern set.
type FlagSet struct {
	patterns []Pattern
}

// NewFlagSet compiles the built-in patterns plus the registry-derived ones.
func NewFlagSet(reg *Registry) *FlagSet {
	ps := append([]Pattern(nil), BuiltinPatterns...)
	if reg != nil {
		ps = append(ps, registryPatterns(reg)...)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	// drop duplicate names, keeping the first
	out := ps[:0]
	for i, p := range ps {
		if i > 0 && p.Name == ps[i-1].Name {
			continue
		}
		out = append(out, p)
	}
	return &FlagSet{patterns: out}
}

// Names returns the pattern names in evaluation order.
func (fs *FlagSet) Names() []string {
	names := make([]string, len(fs.patterns))
	for i, p := range fs.patterns {
		names[i] = p.Name
	}
	return names
}

// Match returns the sorted names of all patterns matching text.
func (fs *FlagSet) Match(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, p := range fs.patterns {
		if p.RE.MatchString(text) {
			out = append(out, p.Name)
		}
	}
	return out
}

func registryPatterns(reg *Registry) []Pattern {
	forms := map[string]struct{}{}
	for _, fam := range reg.Families {
		if isDigits(fam) {
			forms[fam] = struct{}{}
		}
	}
	schedules := map[string]struct{}{}
	for _, labels := range reg.LabelsByFamily {
		for _, l := range labels {
			if code := scheduleCode(l); code != "" {
				schedules[code] = struct{}{}
			}
		}
	}

	var ps []Pattern
	for code := range forms {
		ps = append(ps, Pattern{
			Name: "has_form_" + code,
			RE:   regexp.MustCompile(fmt.Sprintf(`\bform\s*%s\b`, regexp.QuoteMeta(code))),
		})
	}
	for code := range schedules {
		lc := strings.ToLower(code)
		ps = append(ps, Pattern{
			Name: "has_schedule_" + lc,
			RE:   regexp.MustCompile(fmt.Sprintf(`\bschedule\s*%s\b`, regexp.QuoteMeta(lc))),
		})
	}
	return ps
}

func scheduleCode(l string) string {
	for _, marker := range []string{"Schedule_", "SCHEDULE_"} {
		if i := strings.Index(l, marker); i >= 0 {
			rest := l[i+len(marker):]
			if j := strings.IndexByte(rest, '_'); j >= 0 {
				rest = rest[:j]
			}
			return strings.ToUpper(rest)
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
