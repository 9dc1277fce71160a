package similarity

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pagecorpus/model"
)

var (
	// ErrEmptyIndex is matched by EmptyIndexError.
	ErrEmptyIndex = errors.New("similarity index is empty")
	// ErrCorruption is matched by CorruptionError.
	ErrCorruption = errors.New("similarity index corruption")
)

// EmptyIndexError is returned by Query when no searchable vector exists.
type EmptyIndexError struct {
	Stamp Stamp
}

func (e *EmptyIndexError) Error() string {
	return fmt.Sprintf("similarity index %s is empty", e.Stamp.Version)
}

// Is matches ErrEmptyIndex.
func (e *EmptyIndexError) Is(target error) bool { return target == ErrEmptyIndex }

// CorruptionError aborts a build. The previously published handle keeps serving.
type CorruptionError struct {
	ID  model.PageID
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("similarity index corruption at %s: %v", e.ID, e.Err)
}

// Unwrap returns both ErrCorruption and the cause.
func (e *CorruptionError) Unwrap() []error { return []error{ErrCorruption, e.Err} }
