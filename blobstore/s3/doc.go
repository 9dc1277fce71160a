// Package s3 publishes dataset versions to Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "datasets/forms/"
//	    o.Region = "us-east-1"
//	})
//
//	pointer := s3.NewVersionPointer(dynamodb.NewFromConfig(cfg), "pagecorpus-versions", "s3://my-bucket/datasets/forms/")
//	pub := blobstore.NewPublisher(store, pointer)
//
// # Features
//
//   - Multipart uploads with CRC32C checksums
//   - Range reads
//   - Automatic pagination for listing
//   - DynamoDB conditional writes for the published version pointer
package s3
