// Package blobstore publishes dataset versions to object storage for
// downstream consumers.
//
// BlobStore is the interface for reading and writing published files.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local filesystem
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Publishing
//
// A Publisher copies the index log, manifest, split file and embedding
// snapshots of one version (optionally its page images) into a store and
// then advances a VersionPointer. Consumers read the pointer first, so they
// never observe a partially uploaded version:
//
//	pub := blobstore.NewPublisher(store, blobstore.NewBlobPointer(store))
//	res, err := pub.Publish(ctx, "dataset", model.Version(3))
package blobstore
