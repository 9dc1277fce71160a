// Package textutil holds the text normalization, tokenization and pattern flag helpers
// shared by the corpus builder and the curated index.
package textutil

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var tokenRE = regexp.MustCompile(`[a-z0-9_]+`)

// MinTermLen is the shortest token counted as a profile term.
const MinTermLen = 3

// Stopwords is the fixed stopword list used for label profiles.
var Stopwords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "of": {}, "a": {}, "to": {}, "in": {}, "on": {},
	"for": {}, "by": {}, "with": {}, "is": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"this": {}, "that": {}, "from": {}, "an": {}, "it": {},
}

// Normalize lowercases s and collapses runs of whitespace into a single space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Tokenize splits normalized text into [a-z0-9_]+ tokens.
func Tokenize(s string) []string {
	return tokenRE.FindAllString(s, -1)
}

// IsTerm reports whether tok counts toward a label profile.
func IsTerm(tok string) bool {
	if len(tok) < MinTermLen {
		return false
	}
	_, stop := Stopwords[tok]
	return !stop
}

// TermCount is one entry of a profile.
type TermCount struct {
	Term  string
	Count int
}

// MarshalJSON encodes the pair as ["term", count].
func (tc TermCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{tc.Term, tc.Count})
}

// UnmarshalJSON decodes a ["term", count] pair.
func (tc *TermCount) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &tc.Term); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &tc.Count)
}

// TermCounter accumulates term frequencies.
type TermCounter map[string]int

// AddText tokenizes text and counts every profile term.
func (c TermCounter) AddText(text string) {
	for _, tok := range Tokenize(text) {
		if IsTerm(tok) {
			c[tok]++
		}
	}
}

// Top returns the n most frequent terms; ties are broken lexicographically.
func (c TermCounter) Top(n int) []TermCount {
	out := make([]TermCount, 0, len(c))
	for t, n := range c {
		out = append(out, TermCount{Term: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
