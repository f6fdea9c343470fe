package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation can never fit.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MaxPieces is the maximum number of pieces built at once.
	// If 0, defaults to 1.
	MaxPieces int64

	// MemoryLimitBytes is the budget for piece caches.
	// If 0, memory is only tracked.
	MemoryLimitBytes int64

	// IOLimitBytesPerSec throttles cache file writes. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages piece slots, memory and write bandwidth.
type Controller struct {
	cfg Config

	pieceSem *semaphore.Weighted

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxPieces <= 0 {
		cfg.MaxPieces = 1
	}

	c := &Controller{
		cfg:      cfg,
		pieceSem: semaphore.NewWeighted(cfg.MaxPieces),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquirePiece reserves a piece slot, blocking until one is free or ctx is
// done.
func (c *Controller) AcquirePiece(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.pieceSem.Acquire(ctx, 1)
}

// TryAcquirePiece reserves a piece slot without blocking.
func (c *Controller) TryAcquirePiece() bool {
	if c == nil {
		return true
	}
	return c.pieceSem.TryAcquire(1)
}

// ReleasePiece releases a piece slot.
func (c *Controller) ReleasePiece() {
	if c == nil {
		return
	}
	c.pieceSem.Release(1)
}

// AcquireMemory reserves bytes of the memory budget, blocking until they
// are available or ctx is done.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if bytes > c.cfg.MemoryLimitBytes {
			return ErrMemoryLimitExceeded
		}
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory reserves memory without blocking.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireIO waits until the IO limit allows n bytes. Requests larger than
// one second of bandwidth are split.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
