package embedding

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pagecorpus/model"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidVector is returned for empty vectors or vectors with NaN or Inf components.
	ErrInvalidVector = errors.New("invalid vector")
	// ErrStale is returned when a vector is older than the stored one.
	ErrStale = errors.New("stale vector")
	// ErrCorruptSnapshot is returned when a snapshot fails its integrity checks.
	ErrCorruptSnapshot = errors.New("corrupt embedding snapshot")
	// ErrUnavailable marks a page whose embedding could not be computed yet.
	ErrUnavailable = errors.New("embedding unavailable")
	// ErrPipelineClosed is returned by Submit after Close.
	ErrPipelineClosed = errors.New("embedding pipeline closed")
)

// UnavailableError reports a page left pending by the embedding pipeline.
type UnavailableError struct {
	ID  model.PageID
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("embedding unavailable for %s: %v", e.ID, e.Err)
}

// Unwrap returns both ErrUnavailable and the cause.
func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }
