package pagecorpus

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pagecorpus/blobstore"
	"github.com/hupe1980/pagecorpus/curated"
	"github.com/hupe1980/pagecorpus/embedding"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/manifest"
	"github.com/hupe1980/pagecorpus/similarity"
)

var (
	// ErrValidation is returned for malformed page records. Nothing is written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a page or blob does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmptyIndex is returned by Suggest while no page is searchable.
	ErrEmptyIndex = errors.New("similarity index is empty")
	// ErrIndexCorruption is returned when a similarity build hits an unusable vector.
	// The previous index keeps serving.
	ErrIndexCorruption = errors.New("similarity index corruption")
	// ErrEmbeddingUnavailable marks pages left pending by the embedding collaborator.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrInvalidVector is returned for query vectors of the wrong shape.
	ErrInvalidVector = errors.New("invalid vector")
	// ErrIO is returned for storage failures. Nothing is retried.
	ErrIO = errors.New("storage failure")
	// ErrLocked is returned by Open when another process holds the dataset.
	ErrLocked = errors.New("dataset is locked by another process")
	// ErrClosed is returned by operations on a closed curator.
	ErrClosed = errors.New("curator is closed")
	// ErrManifestExists is returned when the version already has a manifest.
	ErrManifestExists = errors.New("manifest already exists")
	// ErrNotFinalized is returned when a version without manifest is published.
	ErrNotFinalized = errors.New("version has no manifest")
	// ErrNoPublisher is returned by Publish when no blob store is configured.
	ErrNoPublisher = errors.New("no publisher configured")
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ValidationError names the offending field of a rejected record.
type ValidationError = curated.ValidationError

// translateError maps package errors onto the public sentinels. The original
// error stays reachable through errors.Is and errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var sentinel error

	switch {
	case errors.Is(err, curated.ErrValidation):
		sentinel = ErrValidation
	case errors.Is(err, curated.ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		sentinel = ErrNotFound
	case errors.Is(err, curated.ErrClosed), errors.Is(err, embedding.ErrPipelineClosed):
		sentinel = ErrClosed
	case errors.Is(err, similarity.ErrEmptyIndex):
		sentinel = ErrEmptyIndex
	case errors.Is(err, similarity.ErrCorruption), errors.Is(err, embedding.ErrCorruptSnapshot):
		sentinel = ErrIndexCorruption
	case errors.Is(err, embedding.ErrUnavailable):
		sentinel = ErrEmbeddingUnavailable
	case errors.Is(err, embedding.ErrDimensionMismatch), errors.Is(err, embedding.ErrInvalidVector):
		sentinel = ErrInvalidVector
	case errors.Is(err, fs.ErrLocked):
		sentinel = ErrLocked
	case errors.Is(err, manifest.ErrManifestExists):
		sentinel = ErrManifestExists
	case errors.Is(err, blobstore.ErrNotFinalized):
		sentinel = ErrNotFinalized
	}

	if sentinel == nil {
		var ioe *curated.IOError
		if errors.As(err, &ioe) {
			sentinel = ErrIO
		}
	}

	if sentinel == nil || errors.Is(err, sentinel) {
		return err
	}

	return fmt.Errorf("%w: %w", sentinel, err)
}
