// Package blobstore provides storage abstraction for cache files and
// ledger entries.
//
// BlobStore is the interface for reading and writing blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with mmap reads and temp-file + rename writes
//   - MemoryStore: In-memory, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Writes
//
// A cache file is either written completely or not at all:
//
//	w, err := store.Create(ctx, name)
//	if _, err := w.Write(data); err != nil {
//	    _ = w.Abort(ctx)
//	    return err
//	}
//	return w.Close()
package blobstore
