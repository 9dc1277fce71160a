package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/hupe1980/pagecorpus"
	"github.com/hupe1980/pagecorpus/blobstore"
	"github.com/hupe1980/pagecorpus/blobstore/minio"
	"github.com/hupe1980/pagecorpus/blobstore/s3"
	"github.com/hupe1980/pagecorpus/embedding"
	"github.com/hupe1980/pagecorpus/hnsw"
	"github.com/hupe1980/pagecorpus/internal/config"
	"github.com/hupe1980/pagecorpus/manifest"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/similarity"
	"github.com/hupe1980/pagecorpus/suggest"
)

// openCurator opens the configured dataset. withPublisher connects the
// configured blob store.
func openCurator(ctx context.Context, cfg *config.Config, withPublisher bool) (*pagecorpus.Curator, error) {
	opts := []pagecorpus.Option{
		pagecorpus.WithLogger(logger),
		pagecorpus.WithCompression(cfg.Embedding.Compression),
		pagecorpus.WithCandidates(cfg.Similarity.Candidates),
		pagecorpus.WithPipelineOptions(func(o *embedding.PipelineOptions) {
			o.Workers = cfg.Embedding.Workers
			o.QueueSize = cfg.Embedding.QueueSize
			o.RateLimit = cfg.Embedding.RateLimit
			o.Burst = cfg.Embedding.Burst
			o.Attempts = cfg.Embedding.Attempts
			o.RetryDelay = cfg.Embedding.RetryDelay
			o.CallTimeout = cfg.Embedding.CallTimeout
		}),
		pagecorpus.WithSimilarityOptions(func(o *similarity.Options) {
			o.EF = cfg.Similarity.EF
			o.HNSW = append(o.HNSW, func(h *hnsw.Options) {
				h.M = cfg.Similarity.M
			})
		}),
		pagecorpus.WithRerankOptions(func(o *suggest.Options) {
			o.TopK = cfg.Suggest.TopK
			o.AutoLabelBoost = cfg.Suggest.AutoLabelBoost
			o.PageNumberBoost = cfg.Suggest.PageNumberBoost
			o.ContinuityBoost = cfg.Suggest.ContinuityBoost
		}),
		pagecorpus.WithManifestOptions(func(o *manifest.Options) {
			o.Ratios = manifest.Ratios{Train: cfg.Split.Train, Val: cfg.Split.Val, Test: cfg.Split.Test}
			o.Seed = cfg.Split.Seed
		}),
	}

	if cfg.Dataset.Version > 0 {
		opts = append(opts, pagecorpus.WithVersion(model.Version(cfg.Dataset.Version)))
	}

	if cfg.Dataset.WatchAlias {
		opts = append(opts, pagecorpus.WithAliasWatch())
	}

	if cfg.Dataset.CorpusIndex != "" {
		opts = append(opts, pagecorpus.WithCorpusIndex(cfg.Dataset.CorpusIndex))
	}

	if len(cfg.Embedding.Command) > 0 {
		e, err := newCommandEmbedder(cfg.Embedding.Command)
		if err != nil {
			return nil, err
		}

		opts = append(opts, pagecorpus.WithEmbedder(e, cfg.Embedding.Model, cfg.Embedding.Dim))
	} else {
		// vectors saved by an earlier session stay searchable
		opts = append(opts, pagecorpus.WithEmbedder(nil, cfg.Embedding.Model, cfg.Embedding.Dim))
	}

	if withPublisher {
		p, err := newPublisher(ctx, cfg.Publish)
		if err != nil {
			return nil, err
		}

		opts = append(opts, pagecorpus.WithPublisher(p))
	}

	return pagecorpus.Open(ctx, cfg.Dataset.Root, opts...)
}

// newPublisher builds the blob store and version pointer of the backend.
func newPublisher(ctx context.Context, cfg config.PublishConfig) (*blobstore.Publisher, error) {
	var (
		store   blobstore.BlobStore
		pointer blobstore.VersionPointer
	)

	switch cfg.Backend {
	case "local":
		if cfg.Local.Dir == "" {
			return nil, fmt.Errorf("publish.local.dir is required")
		}

		store = blobstore.NewLocalStore(cfg.Local.Dir)
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("publish.s3.bucket is required")
		}

		s, err := s3.New(ctx, cfg.S3.Bucket, func(o *s3.Options) {
			o.Prefix = cfg.S3.Prefix
			o.Region = cfg.S3.Region
		})
		if err != nil {
			return nil, err
		}

		store = s

		if cfg.S3.PointerTable != "" {
			var loadFns []func(*awsconfig.LoadOptions) error
			if cfg.S3.Region != "" {
				loadFns = append(loadFns, awsconfig.WithRegion(cfg.S3.Region))
			}

			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadFns...)
			if err != nil {
				return nil, fmt.Errorf("load aws config: %w", err)
			}

			pointer = s3.NewVersionPointer(dynamodb.NewFromConfig(awsCfg), cfg.S3.PointerTable, cfg.S3.Dataset)
		}
	case "minio":
		s, err := minio.Dial(ctx, minio.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			Prefix:    cfg.MinIO.Prefix,
			Secure:    cfg.MinIO.Secure,
			Region:    cfg.MinIO.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}

		store = s
	default:
		return nil, pagecorpus.ErrNoPublisher
	}

	if pointer == nil {
		pointer = blobstore.NewBlobPointer(store)
	}

	return blobstore.NewPublisher(store, pointer, func(o *blobstore.PublishOptions) {
		o.Logger = logger.Logger
		o.Images = cfg.Images
		o.Concurrency = cfg.Concurrency
	}), nil
}
