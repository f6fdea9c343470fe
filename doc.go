// Package knncache computes, persists and reuses the nearest training
// neighbors of query points for a cached k-nearest-neighbors regressor.
//
// The root package holds the pieces shared by every subpackage: the error
// taxonomy, the structured Logger and the MetricsCollector hooks.
//
// # Packages
//
//	distance   Euclidean metric in vector, row/row and row/query form
//	dataset    immutable feature matrix, targets, content hash and loaders
//	neighbors  brute-force finder for the 256 nearest neighbors
//	cache      memoizing neighbor cache backed by a blobstore
//	knn        k-nearest-neighbors estimator and leave-one-out k search
//	shard      piece planning, piece builds and piece merges
//	ledger     completion records for piece builds
//	blobstore  local, in-memory, S3 and MinIO storage
//	observability  Prometheus MetricsCollector
//
// # Quick Start
//
//	ds, _ := dataset.Load(ctx, "features.csv", dataset.LoadOptions{})
//	store, _ := blobstore.NewLocalStore("./caches")
//	c, _ := cache.New(ds, func(o *cache.Options) { o.Store = store })
//	_, _ = c.Merge(ctx, "-merged")
//	est := knn.New(c)
//	v, _ := est.EstimateRow(ctx, 12, 0)
//
// # Errors
//
// Every error returned by the subpackages matches exactly one of the
// sentinels below through errors.Is:
//
//	ErrInvalidArgument, ErrInsufficientNeighbors, ErrFileFormat,
//	ErrCacheIntegrity, ErrDatasetMismatch
//
// I/O errors are wrapped with context and are never retried.
package knncache
