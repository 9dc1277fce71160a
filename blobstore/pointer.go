package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/pagecorpus/model"
)

// LatestName is the blob holding the newest published version.
const LatestName = "LATEST"

// ErrConcurrentPublish is returned when another publisher advanced the
// pointer to the same version first.
var ErrConcurrentPublish = errors.New("concurrent publish of the same version")

// VersionPointer names the newest fully published version.
type VersionPointer interface {
	// Current returns the published version; ok is false before the first publish.
	Current(ctx context.Context) (v model.Version, ok bool, err error)
	// Advance moves the pointer to v. It reports false without error when the
	// pointer already names v or a newer version.
	Advance(ctx context.Context, v model.Version) (bool, error)
}

// BlobPointer keeps the pointer in a LATEST blob of the store it points into.
type BlobPointer struct {
	store BlobStore
	name  string
	mu    sync.Mutex
}

// NewBlobPointer creates a pointer stored as LATEST in store.
func NewBlobPointer(store BlobStore) *BlobPointer {
	return &BlobPointer{store: store, name: LatestName}
}

// Current implements VersionPointer.
func (p *BlobPointer) Current(ctx context.Context) (model.Version, bool, error) {
	data, err := ReadAll(ctx, p.store, p.name)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, err
	}

	v, err := model.ParseVersion(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s pointer: %w", p.name, err)
	}

	return v, true, nil
}

// Advance implements VersionPointer. It serializes advances inside one
// process only.
func (p *BlobPointer) Advance(ctx context.Context, v model.Version) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok, err := p.Current(ctx)
	if err != nil {
		return false, err
	}

	if ok && cur >= v {
		return false, nil
	}

	if err := p.store.Put(ctx, p.name, []byte(v.String()+"\n")); err != nil {
		return false, err
	}

	return true, nil
}
