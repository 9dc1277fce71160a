package label

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/internal/fs"
)

// maxAliasHops bounds alias chain resolution.
const maxAliasHops = 16

// ErrInvalidAlias is returned for empty or self-referencing alias entries.
var ErrInvalidAlias = errors.New("invalid alias")

// Aliases maps a label to its canonical label. The zero value resolves every label to itself.
type Aliases map[string]string

// Resolve returns the canonical form of l, following alias chains.
// A cycle resolves to its lexicographically smallest member, so every label on the
// cycle resolves to the same value.
func (a Aliases) Resolve(l string) string {
	l = strings.TrimSpace(l)
	if len(a) == 0 {
		return l
	}
	path := make([]string, 0, 2)
	for i := 0; i < maxAliasHops; i++ {
		next, ok := a[l]
		if !ok || next == l {
			return l
		}
		path = append(path, l)
		for j, p := range path {
			if p == next {
				return minString(path[j:])
			}
		}
		l = next
	}
	return l
}

func minString(ss []string) string {
	m := ss[0]
	for _, s := range ss[1:] {
		if s < m {
			m = s
		}
	}
	return m
}

// Clone returns a copy of the map.
func (a Aliases) Clone() Aliases {
	c := make(Aliases, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Keys returns the alias names in sorted order.
func (a Aliases) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolver resolves a label to its canonical form.
type Resolver interface {
	Resolve(l string) string
}

// Canonical is the result of canonicalizing a label.
type Canonical struct {
	Label      string
	BaseLabel  string
	PageInForm int
}

// Canonicalize resolves l through r and derives base label and page-in-form.
// Passing the result's Label back through Canonicalize yields the same result.
func Canonicalize(r Resolver, l string) Canonical {
	if r == nil {
		r = Aliases(nil)
	}
	can := r.Resolve(l)
	base, page := Split(can)
	return Canonical{Label: can, BaseLabel: base, PageInForm: page}
}

// Table is a concurrency-safe alias table optionally backed by a JSON file.
type Table struct {
	fsys  fs.FileSystem
	path  string
	codec codec.Codec

	mu      sync.Mutex // serializes Set/Load
	current atomic.Pointer[Aliases]
}

// NewTable creates a table backed by path. An empty path keeps the table in memory.
func NewTable(fsys fs.FileSystem, path string) *Table {
	if fsys == nil {
		fsys = fs.Default
	}
	t := &Table{fsys: fsys, path: path, codec: codec.Default}
	empty := Aliases{}
	t.current.Store(&empty)
	return t
}

// NewStaticTable creates an in-memory table with the given aliases.
func NewStaticTable(a Aliases) *Table {
	t := NewTable(nil, "")
	c := a.Clone()
	t.current.Store(&c)
	return t
}

// Path returns the backing file path.
func (t *Table) Path() string { return t.path }

// Snapshot returns the current alias map. Callers must not mutate it.
func (t *Table) Snapshot() Aliases {
	return *t.current.Load()
}

// Resolve implements Resolver.
func (t *Table) Resolve(l string) string {
	return t.Snapshot().Resolve(l)
}

// Load reads the backing file. A missing file leaves an empty table.
func (t *Table) Load() error {
	if t.path == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := fs.ReadFile(t.fsys, t.path)
	if err != nil {
		if os.IsNotExist(err) {
			empty := Aliases{}
			t.current.Store(&empty)
			return nil
		}
		return err
	}
	var a Aliases
	if err := t.codec.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("parse aliases %s: %w", t.path, err)
	}
	if a == nil {
		a = Aliases{}
	}
	t.current.Store(&a)
	return nil
}

// Set merges alias → canonical and persists the table.
func (t *Table) Set(alias, canonical string) error {
	alias, canonical = strings.TrimSpace(alias), strings.TrimSpace(canonical)
	if alias == "" || canonical == "" || alias == canonical {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidAlias, alias, canonical)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.Snapshot().Clone()
	next[alias] = canonical

	if t.path != "" {
		data, err := codec.MarshalIndent(t.codec, next)
		if err != nil {
			return err
		}
		if err := fs.WriteFileAtomic(t.fsys, t.path, data, 0o644); err != nil {
			return err
		}
	}
	t.current.Store(&next)
	return nil
}
