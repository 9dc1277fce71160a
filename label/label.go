package label

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	suffixRE   = regexp.MustCompile(`^(.+)_P(\d+)$`)
	pageTokRE  = regexp.MustCompile(`\bP(\d+)\b`)
	unsafeRE   = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	defaultPIF = 1
)

// Split returns the base label and page-in-form of l.
// A label without a "_P<n>" suffix is page 1 of itself.
func Split(l string) (base string, page int) {
	m := suffixRE.FindStringSubmatch(l)
	if m == nil {
		return l, defaultPIF
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return l, defaultPIF
	}
	return m[1], n
}

// HasSuffix reports whether l carries an explicit "_P<n>" suffix.
func HasSuffix(l string) bool {
	return suffixRE.MatchString(l)
}

// PageHint extracts a "P<n>" token from a raw label, if any.
func PageHint(raw string) (int, bool) {
	m := pageTokRE.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// SafeName sanitizes a string for use as a directory or file name.
func SafeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return unsafeRE.ReplaceAllString(s, "_")
}
