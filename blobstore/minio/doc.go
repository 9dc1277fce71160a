// Package minio publishes dataset versions to MinIO and other
// S3-compatible object stores (Ceph, Garage, SeaweedFS).
//
// # Basic Usage
//
//	store, err := minio.Dial(ctx, minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "datasets",
//	    Prefix:    "forms/",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pub := blobstore.NewPublisher(store, blobstore.NewBlobPointer(store))
//
// The pointer blob is last-writer-wins; run a single publisher per prefix.
package minio
