package s3

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hupe1980/pagecorpus/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()

	store, err := New(ctx, bucket, withPrefix(fmt.Sprintf("test-pagecorpus-%d/", time.Now().UnixNano())))
	require.NoError(t, err)

	t.Run("Create and Read", func(t *testing.T) {
		name := "v1/embeddings/clip.vec"
		data := make([]byte, 1024*1024)
		_, _ = rand.Read(data)

		w, err := store.Create(ctx, name)
		require.NoError(t, err)
		n, err := w.Write(data)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
		require.NoError(t, w.Close())

		blobs, err := store.List(ctx, "v1/")
		require.NoError(t, err)
		assert.Contains(t, blobs, name)

		r, err := store.Open(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), r.Size())

		buf := make([]byte, 100)
		n, err = r.ReadAt(buf, 1024)
		require.NoError(t, err)
		assert.Equal(t, 100, n)
		assert.Equal(t, data[1024:1124], buf)

		require.NoError(t, store.Delete(ctx, name))
		require.NoError(t, r.Close())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Open(ctx, "nonexistent")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}
