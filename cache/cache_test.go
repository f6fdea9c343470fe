package cache

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/blobstore"
	"github.com/hupe1980/knncache/dataset"
	"github.com/hupe1980/knncache/neighbors"
	"github.com/hupe1980/knncache/testutil"
)

const scenarioHash = "c00ba7b1b8e08fc798dbe84a785289e2f29c0042"

func scenario() *dataset.Dataset {
	return testutil.Line([]float64{0, 1, 2, 10}, []float64{0, 10, 20, 100})
}

func withStore(store blobstore.BlobStore, suffix string) func(o *Options) {
	return func(o *Options) {
		o.Store = store
		o.Suffix = suffix
	}
}

func populate(t *testing.T, c *Cache) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < c.Dataset().Len(); i++ {
		_, err := c.ApplyRow(ctx, i)
		require.NoError(t, err)
	}
}

func TestCache_PassThrough(t *testing.T) {
	ctx := context.Background()
	metrics := &knncache.BasicMetricsCollector{}
	c, err := New(scenario(), func(o *Options) { o.Metrics = metrics })
	require.NoError(t, err)
	assert.False(t, c.Cached())

	for i := 0; i < 2; i++ {
		ys, err := c.Apply(ctx, []float64{0.5}, -1)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 10, 20, 100}, ys)
	}
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Fresh, c.State())
	assert.Equal(t, int64(2), metrics.GetStats().QueryCount)
	assert.Equal(t, int64(0), metrics.GetStats().QueryCached)

	_, err = c.Merge(ctx, "")
	assert.ErrorIs(t, err, ErrNoStore)
	assert.ErrorIs(t, err, knncache.ErrInvalidArgument)
	_, err = c.Write(ctx)
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestCache_ApplyMemoizes(t *testing.T) {
	ctx := context.Background()
	metrics := &knncache.BasicMetricsCollector{}
	c, err := New(scenario(), withStore(blobstore.NewMemoryStore(), ""), func(o *Options) {
		o.Metrics = metrics
	})
	require.NoError(t, err)
	assert.True(t, c.Cached())
	assert.Equal(t, scenarioHash, c.Hash())
	assert.Equal(t, Fresh, c.State())

	ys, err := c.ApplyRow(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 100}, ys)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, Populated, c.State())
	assert.True(t, c.Contains([]float64{0}))
	assert.False(t, c.Contains([]float64{1}))

	// The key is the query alone: a different omit gets the stored list.
	ys, err = c.Apply(ctx, []float64{0}, -1)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 100}, ys)
	assert.Equal(t, 1, c.Len())

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.QueryCount)
	assert.Equal(t, int64(1), stats.QueryCached)

	// -0 and 0 differ bitwise and are separate entries.
	_, err = c.Apply(ctx, []float64{math.Copysign(0, -1)}, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestCache_ApplyErrors(t *testing.T) {
	ctx := context.Background()
	c, err := New(scenario(), withStore(blobstore.NewMemoryStore(), ""))
	require.NoError(t, err)

	_, err = c.Apply(ctx, []float64{1, 2}, -1)
	var dm *knncache.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 1, dm.Expected)

	_, err = c.ApplyRow(ctx, 4)
	var rr *knncache.RowRangeError
	require.ErrorAs(t, err, &rr)
	assert.ErrorIs(t, err, knncache.ErrInvalidArgument)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Fresh, c.State())
}

func TestCache_WriteScenarioFile(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c, err := New(scenario(), withStore(store, "-1"))
	require.NoError(t, err)

	_, err = c.ApplyRow(ctx, 0)
	require.NoError(t, err)

	n, err := c.Write(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, Flushed, c.State())
	assert.Equal(t, scenarioHash+"-1.csv", c.FileName("-1"))

	data, err := blobstore.ReadAll(ctx, store, scenarioHash+"-1.csv")
	require.NoError(t, err)

	want := "#knncache v=2 hash=" + scenarioHash + " dims=1 neighbors=256\n" +
		scenarioHeader() +
		"0|3|10|20|100" + strings.Repeat("|", neighbors.MaxNeighbors-3) + "\n"
	assert.Equal(t, want, string(data))
}

func TestCache_WriteMergeRoundTrip(t *testing.T) {
	ds := testutil.NewRNG(7).Dataset(300, 3)

	for _, tc := range []struct {
		name        string
		compression Compression
		format      Format
	}{
		{"v2", CompressionNone, FormatV2},
		{"v2-zstd", CompressionZstd, FormatV2},
		{"v2-lz4", CompressionLZ4, FormatV2},
		{"legacy", CompressionNone, FormatLegacy},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store, err := blobstore.NewLocalStore(t.TempDir())
			require.NoError(t, err)

			opts := func(o *Options) {
				o.Compression = tc.compression
				o.Format = tc.format
			}
			src, err := New(ds, withStore(store, "-2"), opts)
			require.NoError(t, err)
			populate(t, src)

			n, err := src.Write(ctx)
			require.NoError(t, err)
			assert.Equal(t, ds.Len(), n)

			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{ds.Hash() + "-2.csv" + tc.compression.Ext()}, names)

			dst, err := New(ds, withStore(store, "-merged"), opts)
			require.NoError(t, err)
			read, err := dst.Merge(ctx, "-2")
			require.NoError(t, err)
			assert.Equal(t, ds.Len(), read)
			assert.Equal(t, ds.Len(), dst.Len())
			assert.Equal(t, Merged, dst.State())

			for i := 0; i < ds.Len(); i++ {
				want, ok := src.Lookup(ds.Xs.Row(i))
				require.True(t, ok)
				got, ok := dst.Lookup(ds.Xs.Row(i))
				require.True(t, ok, "row %d", i)
				require.Len(t, got, neighbors.MaxNeighbors)
				assert.Equal(t, want, got, "row %d", i)
			}

			// Merging again reads everything and adds nothing.
			read, err = dst.Merge(ctx, "-2")
			require.NoError(t, err)
			assert.Equal(t, ds.Len(), read)
			assert.Equal(t, ds.Len(), dst.Len())
		})
	}
}

func TestCache_MergeDetectsCompression(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	ds := scenario()

	src, err := New(ds, withStore(store, "-1"), func(o *Options) { o.Compression = CompressionZstd })
	require.NoError(t, err)
	populate(t, src)
	_, err = src.Write(ctx)
	require.NoError(t, err)

	dst, err := New(ds, withStore(store, "-merged"))
	require.NoError(t, err)
	read, err := dst.Merge(ctx, "-1")
	require.NoError(t, err)
	assert.Equal(t, 4, read)
}

func TestCache_WriteIsDeterministic(t *testing.T) {
	ctx := context.Background()
	ds := testutil.NewRNG(3).Dataset(50, 2)
	store := blobstore.NewMemoryStore()

	forward, err := New(ds, withStore(store, "-a"))
	require.NoError(t, err)
	populate(t, forward)

	backward, err := New(ds, withStore(store, "-b"))
	require.NoError(t, err)
	for i := ds.Len() - 1; i >= 0; i-- {
		_, err := backward.ApplyRow(ctx, i)
		require.NoError(t, err)
	}

	_, err = forward.Write(ctx)
	require.NoError(t, err)
	_, err = backward.Write(ctx)
	require.NoError(t, err)

	a, err := blobstore.ReadAll(ctx, store, forward.FileName("-a"))
	require.NoError(t, err)
	b, err := blobstore.ReadAll(ctx, store, backward.FileName("-b"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCache_MergeKeepsExistingEntries(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	ds := scenario()

	file := "#knncache v=2 hash=" + scenarioHash + " dims=1 neighbors=256\n" +
		scenarioHeader() +
		"0|1|-7" + strings.Repeat("|", neighbors.MaxNeighbors-1) + "\n" +
		"5|2|1|2" + strings.Repeat("|", neighbors.MaxNeighbors-2) + "\n"
	require.NoError(t, store.Put(ctx, scenarioHash+"-x.csv", []byte(file)))

	c, err := New(ds, withStore(store, ""))
	require.NoError(t, err)
	_, err = c.ApplyRow(ctx, 0)
	require.NoError(t, err)

	read, err := c.Merge(ctx, "-x")
	require.NoError(t, err)
	assert.Equal(t, 2, read)
	assert.Equal(t, 2, c.Len())

	ys, ok := c.Lookup([]float64{0})
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20, 100}, ys)

	ys, ok = c.Lookup([]float64{5})
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, ys)
}

func scenarioHeader() string {
	var b strings.Builder
	b.WriteString("t1|n")
	for j := 1; j <= neighbors.MaxNeighbors; j++ {
		b.WriteString("|y" + strconv.Itoa(j))
	}
	b.WriteString("\n")
	return b.String()
}

func TestCache_MergeLegacyFile(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	var b strings.Builder
	b.WriteString("t1")
	for j := 1; j <= neighbors.MaxNeighbors; j++ {
		b.WriteString("|y" + strconv.Itoa(j))
	}
	b.WriteString("\n0|10|20|100")
	for j := 3; j < neighbors.MaxNeighbors; j++ {
		b.WriteString("|-1")
	}
	b.WriteString("\n")
	require.NoError(t, store.Put(ctx, scenarioHash+"-old.csv", []byte(b.String())))

	c, err := New(scenario(), withStore(store, ""))
	require.NoError(t, err)
	read, err := c.Merge(ctx, "-old")
	require.NoError(t, err)
	assert.Equal(t, 1, read)

	ys, ok := c.Lookup([]float64{0})
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20, 100}, ys)
}

func TestCache_MergeFormatErrorLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	file := "#knncache v=2 hash=" + scenarioHash + " dims=1 neighbors=256\n" +
		scenarioHeader() +
		"5|2|1|2" + strings.Repeat("|", neighbors.MaxNeighbors-2) + "\n" +
		"6|1|1\n"
	require.NoError(t, store.Put(ctx, scenarioHash+"-bad.csv", []byte(file)))

	c, err := New(scenario(), withStore(store, ""))
	require.NoError(t, err)
	_, err = c.ApplyRow(ctx, 1)
	require.NoError(t, err)

	_, err = c.Merge(ctx, "-bad")
	require.ErrorIs(t, err, knncache.ErrFileFormat)
	var fe *knncache.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 4, fe.Line)
	assert.Equal(t, scenarioHash+"-bad.csv", fe.Name)

	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Contains([]float64{5}))
	assert.Equal(t, Populated, c.State())
}

func TestCache_MergeDatasetMismatch(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	a, err := New(scenario(), withStore(store, ""))
	require.NoError(t, err)
	populate(t, a)
	_, err = a.Write(ctx)
	require.NoError(t, err)

	other := testutil.Line([]float64{0, 1, 2, 11}, []float64{0, 10, 20, 100})
	b, err := New(other, withStore(store, ""))
	require.NoError(t, err)

	data, err := blobstore.ReadAll(ctx, store, a.FileName(""))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, b.FileName("-copy"), data))

	_, err = b.Merge(ctx, "-copy")
	require.ErrorIs(t, err, knncache.ErrDatasetMismatch)
	var dm *knncache.DatasetMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, scenarioHash, dm.Got)
	assert.Equal(t, other.Hash(), dm.Want)
	assert.Equal(t, 0, b.Len())

	// Same hash, wrong feature count.
	file := "#knncache v=2 hash=" + other.Hash() + " dims=2 neighbors=256\n"
	require.NoError(t, store.Put(ctx, b.FileName("-dims"), []byte(file)))
	_, err = b.Merge(ctx, "-dims")
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.GotDims)
	assert.Equal(t, 1, dm.WantDims)
}

func TestCache_MergeMissingFile(t *testing.T) {
	c, err := New(scenario(), withStore(blobstore.NewMemoryStore(), ""))
	require.NoError(t, err)

	_, err = c.Merge(context.Background(), "-7")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Equal(t, Fresh, c.State())
}

func TestCache_PartialNeighborLists(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	ds := testutil.NewRNG(11).Dataset(20, 2)

	c, err := New(ds, withStore(store, ""))
	require.NoError(t, err)
	populate(t, c)
	_, err = c.Write(ctx)
	require.NoError(t, err)

	m, err := New(ds, withStore(store, "-merged"))
	require.NoError(t, err)
	_, err = m.Merge(ctx, "")
	require.NoError(t, err)

	for i := 0; i < ds.Len(); i++ {
		ys, ok := m.Lookup(ds.Xs.Row(i))
		require.True(t, ok)
		assert.Len(t, ys, ds.Len()-1)
		assert.Equal(t, testutil.Targets(ds, testutil.ExactNearest(ds, ds.Xs.Row(i), i, neighbors.MaxNeighbors)), ys)
	}
}

type failingStore struct {
	*blobstore.MemoryStore
}

func (s failingStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	wb, err := s.MemoryStore.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &failingBlob{WritableBlob: wb}, nil
}

type failingBlob struct {
	blobstore.WritableBlob
}

func (b *failingBlob) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestCache_WriteFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	store := failingStore{MemoryStore: blobstore.NewMemoryStore()}
	metrics := &knncache.BasicMetricsCollector{}

	c, err := New(scenario(), withStore(store, ""), func(o *Options) { o.Metrics = metrics })
	require.NoError(t, err)
	populate(t, c)

	_, err = c.Write(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, Populated, c.State())
	assert.Equal(t, int64(1), metrics.GetStats().WriteErrors)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCache_ConcurrentApply(t *testing.T) {
	ctx := context.Background()
	ds := testutil.NewRNG(5).Dataset(400, 3)
	c, err := New(ds, withStore(blobstore.NewMemoryStore(), ""))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < ds.Len(); i++ {
				_, err := c.ApplyRow(ctx, i)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, ds.Len(), c.Len())
	for _, i := range []int{0, 17, 399} {
		ys, ok := c.Lookup(ds.Xs.Row(i))
		require.True(t, ok)
		want := testutil.Targets(ds, testutil.ExactNearest(ds, ds.Xs.Row(i), i, neighbors.MaxNeighbors))
		assert.Equal(t, want, ys)
	}
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	_, err = ParseCompression("gzip")
	assert.ErrorIs(t, err, knncache.ErrInvalidArgument)
}
