package fs

import (
	"errors"
	"os"
)

// ErrLocked is returned when another process holds the dataset lock.
var ErrLocked = errors.New("dataset is locked by another process")

// FileLock is a held advisory lock.
type FileLock struct {
	f *os.File
}
