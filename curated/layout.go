package curated

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
)

// Directory names inside a version directory.
const (
	IndexDir     = "index"
	ImagesDir    = "images"
	ManifestsDir = "manifests"
	SplitsDir    = "splits"
)

// Layout resolves paths of one dataset version.
type Layout struct {
	Root    string
	Version model.Version
}

// Dir returns <root>/v<N>.
func (l Layout) Dir() string { return filepath.Join(l.Root, l.Version.String()) }

// LogPath returns <root>/v<N>/index/v<N>.jsonl.
func (l Layout) LogPath() string {
	return filepath.Join(l.Dir(), IndexDir, l.Version.String()+".jsonl")
}

// ManifestPath returns <root>/v<N>/manifests/v<N>.json.
func (l Layout) ManifestPath() string {
	return filepath.Join(l.Dir(), ManifestsDir, l.Version.String()+".json")
}

// SplitsPath returns <root>/v<N>/splits/v<N>_splits.json.
func (l Layout) SplitsPath() string {
	return filepath.Join(l.Dir(), SplitsDir, l.Version.String()+"_splits.json")
}

// ImageRel returns the image path of a page relative to the version directory.
func ImageRel(baseLabel, document string, page int) string {
	name := label.SafeName(document) + "_" + strconv.Itoa(page) + ".png"
	return filepath.ToSlash(filepath.Join(ImagesDir, label.SafeName(baseLabel), name))
}

// Abs returns the absolute path of a version-relative path.
func (l Layout) Abs(rel string) string {
	return filepath.Join(l.Dir(), filepath.FromSlash(rel))
}

// Versions lists the dataset versions under root in ascending order.
// A directory counts as a version only when it holds a log file.
func Versions(fsys fs.FileSystem, root string) ([]model.Version, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	entries, err := fsys.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []model.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := model.ParseVersion(e.Name())
		if err != nil || e.Name() != v.String() {
			continue
		}
		if ok, _ := fs.Exists(fsys, Layout{Root: root, Version: v}.LogPath()); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// LatestVersion returns the highest existing version, or false when there is none.
func LatestVersion(fsys fs.FileSystem, root string) (model.Version, bool, error) {
	vs, err := Versions(fsys, root)
	if err != nil || len(vs) == 0 {
		return 0, false, err
	}
	return vs[len(vs)-1], true, nil
}
