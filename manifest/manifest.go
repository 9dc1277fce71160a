// Package manifest snapshots a curated dataset version into an immutable
// manifest and a leak-free document-level train/val/test split.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/pagecorpus/codec"
	"github.com/hupe1980/pagecorpus/curated"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/similarity"
)

const (
	// CurrentFileName names the pointer to the newest manifest under the dataset root.
	CurrentFileName = "CURRENT"
	// SchemaVersion is the manifest format version.
	SchemaVersion = 1
)

var (
	// ErrManifestExists is returned when a manifest for the version was already written.
	ErrManifestExists = errors.New("manifest already exists")
	// ErrNoManifest is returned by Current when no manifest was written yet.
	ErrNoManifest = errors.New("no manifest")
)

// Tool identifies the program that wrote a manifest.
type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// EmbeddingCounts reports page searchability at manifest time.
type EmbeddingCounts struct {
	Model      string `json:"model,omitempty"`
	Curated    int    `json:"curated"`
	Pending    int    `json:"pending"`
	Searchable int    `json:"searchable"`
}

// IngestCounts reports corpus build failures carried into the dataset.
type IngestCounts struct {
	SkippedDocs int `json:"skipped_docs"`
	PageErrors  int `json:"page_errors"`
}

// Manifest describes one dataset version.
type Manifest struct {
	SchemaVersion  int               `json:"schema_version"`
	BuildID        string            `json:"build_id"`
	CreatedAt      time.Time         `json:"created_at"`
	Tool           Tool              `json:"tool"`
	DatasetVersion model.Version     `json:"dataset_version"`
	LogLines       int               `json:"log_lines"`
	CurrentPages   int               `json:"current_pages"`
	InvalidLines   int               `json:"invalid_lines"`
	Documents      []string          `json:"documents"`
	PerLabel       map[string]int    `json:"per_label"`
	PerBaseLabel   map[string]int    `json:"per_base_label"`
	PerTextSource  map[string]int    `json:"per_text_source,omitempty"`
	Embeddings     *EmbeddingCounts  `json:"embeddings,omitempty"`
	Similarity     *similarity.Stamp `json:"similarity,omitempty"`
	Ingest         *IngestCounts     `json:"ingest,omitempty"`
	Split          SplitSummary      `json:"split"`
}

// Store reads and writes manifests of the versions under a dataset root.
type Store struct {
	fs    fs.FileSystem
	codec codec.Codec
	root  string
	mu    sync.Mutex
}

// NewStore creates a new manifest store.
func NewStore(fsys fs.FileSystem, c codec.Codec, root string) *Store {
	if fsys == nil {
		fsys = fs.Default
	}

	if c == nil {
		c = codec.Default
	}

	return &Store{
		fs:    fsys,
		codec: c,
		root:  root,
	}
}

func (s *Store) layout(v model.Version) curated.Layout {
	return curated.Layout{Root: s.root, Version: v}
}

// Exists reports whether the manifest of v was written.
func (s *Store) Exists(v model.Version) (bool, error) {
	return fs.Exists(s.fs, s.layout(v).ManifestPath())
}

// Load loads the manifest of version v.
func (s *Store) Load(v model.Version) (*Manifest, error) {
	data, err := fs.ReadFile(s.fs, s.layout(v).ManifestPath())
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := s.codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", v, err)
	}

	if m.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported manifest schema version: %d (expected %d)", m.SchemaVersion, SchemaVersion)
	}

	return &m, nil
}

// Current loads the newest manifest named by the CURRENT pointer.
func (s *Store) Current() (*Manifest, error) {
	data, err := fs.ReadFile(s.fs, filepath.Join(s.root, CurrentFileName))
	if os.IsNotExist(err) {
		return nil, ErrNoManifest
	}

	if err != nil {
		return nil, err
	}

	v, err := model.ParseVersion(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid %s pointer: %w", CurrentFileName, err)
	}

	return s.Load(v)
}

// Save writes the manifest of m.DatasetVersion once. A second write of the
// same version fails with ErrManifestExists. The CURRENT pointer advances
// only forward.
func (s *Store) Save(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.layout(m.DatasetVersion).ManifestPath()

	exists, err := fs.Exists(s.fs, path)
	if err != nil {
		return err
	}

	if exists {
		return fmt.Errorf("%w: %s", ErrManifestExists, m.DatasetVersion)
	}

	m.SchemaVersion = SchemaVersion

	data, err := codec.MarshalIndent(s.codec, m)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if err := fs.WriteFileAtomic(s.fs, path, data, 0o644); err != nil {
		return err
	}

	return s.advanceCurrent(m.DatasetVersion)
}

func (s *Store) advanceCurrent(v model.Version) error {
	currentPath := filepath.Join(s.root, CurrentFileName)

	data, err := fs.ReadFile(s.fs, currentPath)
	if err == nil {
		if prev, perr := model.ParseVersion(strings.TrimSpace(string(data))); perr == nil && prev >= v {
			return nil
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	return fs.WriteFileAtomic(s.fs, currentPath, []byte(v.String()+"\n"), 0o644)
}
