package minio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/pagecorpus/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	s := NewStore(nil, "bucket", "datasets/forms/")
	assert.Equal(t, "datasets/forms/v1/index/v1.jsonl", s.key("v1/index/v1.jsonl"))

	s = NewStore(nil, "bucket", "")
	assert.Equal(t, "LATEST", s.key("LATEST"))
}

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	ctx := context.Background()

	store, err := Dial(ctx, Config{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "test-pagecorpus",
		Prefix:    "test-prefix/",
	})
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.txt", data))

	blob, err := store.Open(ctx, "test.txt")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(buf[:n]))
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.txt")

	require.NoError(t, store.Delete(ctx, "test.txt"))

	_, err = store.Open(ctx, "test.txt")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	wb, err := store.Create(ctx, "stream.txt")
	require.NoError(t, err)
	_, err = wb.Write([]byte("streamed data"))
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	blob, err = store.Open(ctx, "stream.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(13), blob.Size())
	require.NoError(t, blob.Close())

	_ = store.Delete(ctx, "stream.txt")

	t.Run("Publish", func(t *testing.T) {
		root := t.TempDir()
		manifest := filepath.Join(root, "v1", "manifests", "v1.json")
		require.NoError(t, os.MkdirAll(filepath.Dir(manifest), 0o755))
		require.NoError(t, os.WriteFile(manifest, []byte(`{}`), 0o644))

		pub := blobstore.NewPublisher(store, blobstore.NewBlobPointer(store))
		res, err := pub.Publish(ctx, root, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1/manifests/v1.json"}, res.Files)

		for _, name := range append(res.Files, blobstore.LatestName) {
			_ = store.Delete(ctx, name)
		}
	})
}
