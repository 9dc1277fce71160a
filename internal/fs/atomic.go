package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// TempPrefix marks temp files created by WriteAtomic.
const TempPrefix = ".tmp-"

// WriteAtomic replaces path with the bytes produced by write.
//
// The content is written to a temp file next to path, fsynced, renamed over path and the
// parent directory is fsynced. On any error the temp file is removed and path is untouched.
func WriteAtomic(fsys FileSystem, path string, perm os.FileMode, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := fsys.CreateTemp(dir, TempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	if err := write(f); err != nil {
		f.Close()
		fsys.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		fsys.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		fsys.Remove(tmpPath)
		return err
	}
	if perm != 0 {
		if err := os.Chmod(tmpPath, perm); err != nil && !errors.Is(err, os.ErrNotExist) {
			fsys.Remove(tmpPath)
			return err
		}
	}

	if err := fsys.Rename(tmpPath, path); err != nil {
		fsys.Remove(tmpPath)
		return err
	}

	return SyncDir(fsys, dir)
}

// WriteFileAtomic is WriteAtomic for an in-memory payload.
func WriteFileAtomic(fsys FileSystem, path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(fsys, path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// CopyFileAtomic copies src to dst with WriteAtomic semantics.
func CopyFileAtomic(fsys FileSystem, src, dst string) error {
	in, err := fsys.OpenFile(src, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer in.Close()

	return WriteAtomic(fsys, dst, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// SyncDir fsyncs a directory so a completed rename survives a crash.
func SyncDir(fsys FileSystem, dir string) error {
	d, err := fsys.OpenFile(dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !isSyncUnsupported(err) {
		return err
	}
	return nil
}

// RemoveTemps deletes temp files left in dir by interrupted WriteAtomic calls.
func RemoveTemps(fsys FileSystem, dir string) (int, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), TempPrefix) {
			continue
		}
		if err := fsys.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func isSyncUnsupported(err error) bool {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return errors.Is(pe.Err, errors.ErrUnsupported) || strings.Contains(pe.Err.Error(), "invalid argument")
	}
	return false
}
