package label

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		base string
		page int
	}{
		{"1040_2021", "1040_2021", 1},
		{"1040_2021_P2", "1040_2021", 2},
		{"Schedule_C_P10", "Schedule_C", 10},
		{"W2_P0", "W2_P0", 1},
		{"_P3", "_P3", 1},
		{"A_P3_P4", "A_P3", 4},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			base, page := Split(tt.in)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.page, page)
		})
	}
}

func TestResolve(t *testing.T) {
	a := Aliases{
		"1040-2021":   "1040_2021",
		"f1040":       "1040-2021",
		"loop_a":      "loop_b",
		"loop_b":      "loop_a",
		"self":        "self",
		"1040_2021_2": "1040_2021_P2",
	}

	assert.Equal(t, "1040_2021", a.Resolve("1040-2021"))
	assert.Equal(t, "1040_2021", a.Resolve("f1040"))
	assert.Equal(t, "1040_2021", a.Resolve("1040_2021"))
	assert.Equal(t, "unknown", a.Resolve(" unknown "))
	assert.Equal(t, "self", a.Resolve("self"))
	assert.Equal(t, "loop_a", a.Resolve("loop_a"))
	assert.Equal(t, "loop_a", a.Resolve("loop_b"))
	assert.Equal(t, "1040_2021", Aliases(nil).Resolve("1040_2021"))
}

func TestCanonicalizeIdempotent(t *testing.T) {
	a := Aliases{"f1040_p2": "1040_2021_P2", "old": "f1040_p2", "x": "y", "y": "x"}
	for _, in := range []string{"old", "f1040_p2", "1040_2021_P2", "W2", "Schedule_B_P3", "x", "y"} {
		first := Canonicalize(a, in)
		second := Canonicalize(a, first.Label)
		assert.Equal(t, first, second, in)
	}

	c := Canonicalize(a, "old")
	assert.Equal(t, "1040_2021_P2", c.Label)
	assert.Equal(t, "1040_2021", c.BaseLabel)
	assert.Equal(t, 2, c.PageInForm)

	c = Canonicalize(nil, "W2")
	assert.Equal(t, Canonical{Label: "W2", BaseLabel: "W2", PageInForm: 1}, c)
}

func TestPageHint(t *testing.T) {
	n, ok := PageHint("1040 P2 page")
	require.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = PageHint("1040_P2")
	assert.False(t, ok)

	_, ok = PageHint("no hint")
	assert.False(t, ok)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a_b_c.pdf", SafeName("a/b c.pdf"))
	assert.Equal(t, "_", SafeName("   "))
	assert.Equal(t, "Form-1040_2021", SafeName("Form-1040_2021"))
}

func TestTableSetAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")

	tbl := NewTable(nil, path)
	require.NoError(t, tbl.Load())
	assert.Empty(t, tbl.Snapshot())

	require.NoError(t, tbl.Set("f1040", "1040_2021"))
	require.NoError(t, tbl.Set("1040", "1040_2021"))
	assert.Equal(t, "1040_2021", tbl.Resolve("f1040"))

	reopened := NewTable(nil, path)
	require.NoError(t, reopened.Load())
	assert.Equal(t, Aliases{"f1040": "1040_2021", "1040": "1040_2021"}, reopened.Snapshot())
	assert.Equal(t, []string{"1040", "f1040"}, reopened.Snapshot().Keys())

	require.ErrorIs(t, tbl.Set("x", "x"), ErrInvalidAlias)
	require.ErrorIs(t, tbl.Set("", "x"), ErrInvalidAlias)
}

func TestTableLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	tbl := NewStaticTable(Aliases{"a": "b"})
	tbl.path = path
	require.Error(t, tbl.Load())
	assert.Equal(t, "b", tbl.Resolve("a"), "failed load keeps previous aliases")
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	tbl := NewTable(nil, path)
	require.NoError(t, tbl.Load())

	reloaded := make(chan Aliases, 8)
	w, err := Watch(context.Background(), tbl, WithOnReload(func(a Aliases) { reloaded <- a }))
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	writer := NewTable(nil, path)
	require.NoError(t, writer.Set("f1040", "1040_2021"))

	require.Eventually(t, func() bool {
		return tbl.Resolve("f1040") == "1040_2021"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchInMemoryTable(t *testing.T) {
	_, err := Watch(context.Background(), NewTable(nil, ""))
	require.Error(t, err)
}
