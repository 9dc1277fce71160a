package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/pagecorpus/internal/fs"
)

// LocalStore implements BlobStore on a local directory. Writes are atomic
// through a temp file and rename.
type LocalStore struct {
	root string
	fs   fs.FileSystem
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string, optFns ...func(s *LocalStore)) *LocalStore {
	s := &LocalStore{root: root, fs: fs.Default}
	for _, fn := range optFns {
		fn(s)
	}

	return s
}

// WithFileSystem swaps the filesystem, e.g. for fault injection.
func WithFileSystem(fsys fs.FileSystem) func(s *LocalStore) {
	return func(s *LocalStore) { s.fs = fsys }
}

func (s *LocalStore) path(name string) (string, error) {
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", errors.New("blobstore: empty blob name")
	}

	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Open opens a blob for reading.
func (s *LocalStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if ra, ok := f.(io.ReaderAt); ok {
		return &localBlob{ReaderAt: ra, c: f, size: info.Size()}, nil
	}

	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	return &memoryBlob{r: bytes.NewReader(data)}, nil
}

// Create creates a blob that appears under name once closed.
func (s *LocalStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(p)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	f, err := s.fs.CreateTemp(dir, fs.TempPrefix+filepath.Base(p)+"-*")
	if err != nil {
		return nil, err
	}

	return &localWritableBlob{fs: s.fs, f: f, path: p}, nil
}

// Put writes a blob atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.path(name)
	if err != nil {
		return err
	}

	return fs.WriteFileAtomic(s.fs, p, data, 0o644)
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// List returns the names under the root starting with prefix. Temp files of
// unfinished writes are skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	names := []string{}

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := s.fs.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}

		for _, e := range entries {
			name := path.Join(rel, e.Name())
			if e.IsDir() {
				if err := walk(filepath.Join(dir, e.Name()), name); err != nil {
					return err
				}
				continue
			}

			if strings.HasPrefix(e.Name(), fs.TempPrefix) {
				continue
			}

			if strings.HasPrefix(name, prefix) {
				names = append(names, name)
			}
		}

		return nil
	}

	if err := walk(s.root, ""); err != nil {
		return nil, err
	}

	sort.Strings(names)

	return names, nil
}

type localBlob struct {
	io.ReaderAt
	c    io.Closer
	size int64
}

func (b *localBlob) Close() error { return b.c.Close() }
func (b *localBlob) Size() int64  { return b.size }

type localWritableBlob struct {
	fs   fs.FileSystem
	f    fs.File
	path string
	done bool
}

func (w *localWritableBlob) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *localWritableBlob) Close() error {
	if w.done {
		return errors.New("blobstore: already closed")
	}
	w.done = true

	tmp := w.f.Name()

	if err := w.f.Sync(); err != nil {
		w.f.Close()
		w.fs.Remove(tmp)
		return err
	}

	if err := w.f.Close(); err != nil {
		w.fs.Remove(tmp)
		return err
	}

	if err := w.fs.Rename(tmp, w.path); err != nil {
		w.fs.Remove(tmp)
		return err
	}

	return fs.SyncDir(w.fs, filepath.Dir(w.path))
}
