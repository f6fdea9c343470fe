package resource

import (
	"context"

	"github.com/hupe1980/knncache/blobstore"
)

// LimitStore wraps store so that writes to blobs it creates are throttled
// by c. Reads pass through. With no IO limit store is returned unchanged.
func LimitStore(store blobstore.BlobStore, c *Controller) blobstore.BlobStore {
	if store == nil || c == nil || c.ioLimiter == nil {
		return store
	}
	return &limitedStore{BlobStore: store, rc: c}
}

type limitedStore struct {
	blobstore.BlobStore
	rc *Controller
}

func (s *limitedStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	wb, err := s.BlobStore.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &limitedBlob{WritableBlob: wb, rc: s.rc, ctx: ctx}, nil
}

func (s *limitedStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	return s.BlobStore.Put(ctx, name, data)
}

// limitedBlob is a WritableBlob whose writes wait for IO tokens.
type limitedBlob struct {
	blobstore.WritableBlob
	rc  *Controller
	ctx context.Context
}

func (w *limitedBlob) Write(p []byte) (int, error) {
	if err := w.rc.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.WritableBlob.Write(p)
}
