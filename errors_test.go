package pagecorpus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/pagecorpus/blobstore"
	"github.com/hupe1980/pagecorpus/curated"
	"github.com/hupe1980/pagecorpus/embedding"
	"github.com/hupe1980/pagecorpus/internal/fs"
	"github.com/hupe1980/pagecorpus/manifest"
	"github.com/hupe1980/pagecorpus/similarity"
	"github.com/stretchr/testify/assert"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"validation", &curated.ValidationError{Field: "page", Reason: "must be >= 1"}, ErrValidation},
		{"not found", fmt.Errorf("open: %w", blobstore.ErrNotFound), ErrNotFound},
		{"closed index", curated.ErrClosed, ErrClosed},
		{"closed pipeline", embedding.ErrPipelineClosed, ErrClosed},
		{"empty", &similarity.EmptyIndexError{}, ErrEmptyIndex},
		{"corruption", &similarity.CorruptionError{ID: "a.pdf#1"}, ErrIndexCorruption},
		{"unavailable", &embedding.UnavailableError{ID: "a.pdf#1", Err: errors.New("down")}, ErrEmbeddingUnavailable},
		{"dimension", embedding.ErrDimensionMismatch, ErrInvalidVector},
		{"locked", fmt.Errorf("%w: /data/.lock", fs.ErrLocked), ErrLocked},
		{"manifest", manifest.ErrManifestExists, ErrManifestExists},
		{"not finalized", blobstore.ErrNotFinalized, ErrNotFinalized},
		{"io", &curated.IOError{Op: "write", Path: "v1.jsonl", Err: errors.New("disk full")}, ErrIO},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := translateError(c.in)
			assert.ErrorIs(t, got, c.want)
			assert.ErrorIs(t, got, c.in)
		})
	}
}

func TestTranslateErrorPassThrough(t *testing.T) {
	assert.NoError(t, translateError(nil))

	plain := errors.New("plain")
	assert.Same(t, plain, translateError(plain))

	already := fmt.Errorf("%w: x", ErrValidation)
	assert.Same(t, already, translateError(already))
}
