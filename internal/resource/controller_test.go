package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knncache/blobstore"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(context.Background(), 50))
	assert.Equal(t, int64(50), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(context.Background(), 40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Would exceed the budget: blocks until the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.AcquireMemory(ctx, 20)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())
	assert.False(t, c.TryAcquireMemory(20))

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())
	assert.True(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())

	// Larger than the whole budget never fits.
	assert.ErrorIs(t, c.AcquireMemory(context.Background(), 101), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestController_MemoryUnblocksOnRelease(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	require.NoError(t, c.AcquireMemory(context.Background(), 10))

	done := make(chan error, 1)
	go func() { done <- c.AcquireMemory(context.Background(), 5) }()

	select {
	case <-done:
		t.Fatal("acquire should block while the budget is used")
	case <-time.After(20 * time.Millisecond):
	}

	c.ReleaseMemory(10)
	require.NoError(t, <-done)
	assert.Equal(t, int64(5), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(context.Background(), 1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Pieces(t *testing.T) {
	c := NewController(Config{MaxPieces: 2})

	require.NoError(t, c.AcquirePiece(t.Context()))
	require.NoError(t, c.AcquirePiece(t.Context()))
	assert.False(t, c.TryAcquirePiece())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquirePiece(ctx))

	c.ReleasePiece()
	assert.True(t, c.TryAcquirePiece())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquirePiece(context.Background()))
	assert.True(t, c.TryAcquirePiece())
	c.ReleasePiece()
	assert.NoError(t, c.AcquireMemory(context.Background(), 10))
	assert.True(t, c.TryAcquireMemory(10))
	c.ReleaseMemory(10)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.NoError(t, c.AcquireIO(context.Background(), 1<<20))
}

func TestController_IOSplitsLargeRequests(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	// Twice the burst: must be split instead of failing.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.AcquireIO(ctx, 3<<19))
}

func TestLimitStore(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()

	assert.Same(t, mem, LimitStore(mem, NewController(Config{})))

	store := LimitStore(mem, NewController(Config{IOLimitBytesPerSec: 1 << 20}))
	require.NotSame(t, mem, store)

	w, err := store.Create(ctx, "a.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, store.Put(ctx, "b.csv", []byte("world")))

	data, err := blobstore.ReadAll(ctx, store, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, names)
}
