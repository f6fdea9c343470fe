// Package resource bounds what concurrent piece builds may consume.
//
// A Controller manages three resources:
//
//   - Piece slots: a weighted semaphore limiting concurrently built pieces
//   - Memory: a budget for the in-memory caches of running pieces
//   - IO: a token bucket throttling cache file writes
//
// # Usage
//
//	rc := resource.NewController(resource.Config{
//	    MaxPieces:        4,
//	    MemoryLimitBytes: 8 << 30,
//	})
//
//	if err := rc.AcquirePiece(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleasePiece()
//
//	if err := rc.AcquireMemory(ctx, estimate); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(estimate)
//
// AcquireMemory blocks until enough of the budget is free; a single request
// larger than the whole budget fails immediately with ErrMemoryLimitExceeded.
// A nil *Controller imposes no limits.
package resource
