// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "obs1A/caches/")
//
//	c, err := cache.New(ds, func(o *cache.Options) { o.Store = store })
//
// # Features
//
//   - Range reads for streaming merges
//   - Multipart uploads through feature/s3/manager for large cache files
//   - Uploads are aborted, never half-committed, when a write fails
//   - Automatic pagination for listing
package s3
