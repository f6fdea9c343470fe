package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/blobstore"
	"github.com/hupe1980/knncache/dataset"
	"github.com/hupe1980/knncache/distance"
	"github.com/hupe1980/knncache/internal/compress"
	"github.com/hupe1980/knncache/neighbors"
)

// Compression selects the codec applied to cache files.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionZstd = compress.Zstd
	CompressionLZ4  = compress.LZ4
)

// ParseCompression parses "none", "zstd" or "lz4".
func ParseCompression(s string) (Compression, error) {
	t, err := compress.ParseType(s)
	if err != nil {
		return t, fmt.Errorf("%w: %v", knncache.ErrInvalidArgument, err)
	}
	return t, nil
}

// ErrNoStore is returned by Merge and Write on a pass-through cache.
var ErrNoStore = knncache.ErrNoStore

// State is the lifecycle state of a Cache.
type State uint8

const (
	// Fresh is a cache with nothing inserted since construction.
	Fresh State = iota
	// Populated means Apply inserted at least one entry.
	Populated
	// Merged means the last mutation was a Merge.
	Merged
	// Flushed means the entries were written by Write.
	Flushed
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Populated:
		return "populated"
	case Merged:
		return "merged"
	case Flushed:
		return "flushed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Options contains configuration options for the cache.
type Options struct {
	// Store persists cache files. A nil store makes the cache pass-through.
	Store blobstore.BlobStore

	// Suffix is appended to the content hash in the name of the file Write
	// produces, e.g. "-3" for piece 3 or "-merged".
	Suffix string

	// Compression is applied by Write. Merge detects the codec from the
	// file name.
	Compression Compression

	// Format is the layout produced by Write.
	Format Format

	// Metric ranks neighbors. Defaults to distance.Euclidean.
	Metric distance.Metric

	// Logger receives write and merge events. Defaults to a no-op logger.
	Logger *knncache.Logger

	// Metrics receives query, write and merge measurements.
	Metrics knncache.MetricsCollector
}

// DefaultOptions contains the default configuration options for the cache.
var DefaultOptions = Options{
	Compression: CompressionNone,
	Format:      FormatV2,
	Metric:      distance.Euclidean{},
}

// Cache memoizes neighbor lists keyed by the exact query vector.
// It is safe for concurrent use. Returned neighbor lists are shared and
// must not be modified.
type Cache struct {
	ds     *dataset.Dataset
	finder *neighbors.Finder
	opts   Options
	hash   string
	logger *knncache.Logger

	mu      sync.RWMutex
	entries map[key][]float64
	state   State
}

// New creates a cache over ds. It performs no I/O. When a store is set the
// dataset content hash is computed here.
func New(ds *dataset.Dataset, optFns ...func(o *Options)) (*Cache, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Metric == nil {
		opts.Metric = distance.Euclidean{}
	}
	if opts.Logger == nil {
		opts.Logger = knncache.NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = knncache.NoopMetricsCollector{}
	}
	if opts.Format != FormatV2 && opts.Format != FormatLegacy {
		return nil, fmt.Errorf("%w: unknown cache format %v", knncache.ErrInvalidArgument, opts.Format)
	}

	finder, err := neighbors.New(ds, func(o *neighbors.Options) {
		o.Metric = opts.Metric
	})
	if err != nil {
		return nil, err
	}

	c := &Cache{
		ds:      ds,
		finder:  finder,
		opts:    opts,
		logger:  opts.Logger,
		entries: make(map[key][]float64),
	}
	if opts.Store != nil {
		c.hash = ds.Hash()
		c.logger = opts.Logger.WithHash(c.hash)
	}
	return c, nil
}

// Dataset returns the dataset the cache answers queries for.
func (c *Cache) Dataset() *dataset.Dataset { return c.ds }

// Cached reports whether the cache memoizes (a store is configured).
func (c *Cache) Cached() bool { return c.opts.Store != nil }

// Hash returns the dataset content hash.
func (c *Cache) Hash() string {
	if c.hash != "" {
		return c.hash
	}
	return c.ds.Hash()
}

// Suffix returns the file suffix used by Write.
func (c *Cache) Suffix() string { return c.opts.Suffix }

// FileName returns the name of the cache file for suffix.
func (c *Cache) FileName(suffix string) string {
	return c.Hash() + suffix + ".csv" + c.opts.Compression.Ext()
}

// State returns the lifecycle state.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Contains reports whether query has an entry.
func (c *Cache) Contains(query []float64) bool {
	_, ok := c.Lookup(query)
	return ok
}

// Lookup returns the entry for query without computing it.
func (c *Cache) Lookup(query []float64) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ys, ok := c.entries[keyOf(query)]
	return ys, ok
}

// Apply returns the targets of the nearest rows to query, skipping row omit.
//
// In cached mode the result is memoized by the exact query value and the
// omitted row is not part of the key: a later call with the same query and
// a different omit gets the stored list. Concurrent first calls for one key
// may both compute; the first insert wins.
func (c *Cache) Apply(ctx context.Context, query []float64, omit int) ([]float64, error) {
	start := time.Now()

	if c.opts.Store == nil {
		ys, err := c.finder.Nearest(ctx, query, omit)
		c.opts.Metrics.RecordQuery(false, time.Since(start), err)
		return ys, err
	}

	k := keyOf(query)
	c.mu.RLock()
	ys, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		c.opts.Metrics.RecordQuery(true, time.Since(start), nil)
		return ys, nil
	}

	ys, err := c.finder.Nearest(ctx, query, omit)
	if err != nil {
		c.opts.Metrics.RecordQuery(false, time.Since(start), err)
		return nil, err
	}

	c.mu.Lock()
	if prev, ok := c.entries[k]; ok {
		ys = prev
	} else {
		c.entries[k] = ys
		c.state = Populated
	}
	c.mu.Unlock()

	c.opts.Metrics.RecordQuery(false, time.Since(start), nil)
	return ys, nil
}

// ApplyRow is Apply for an existing row, omitting the row itself.
func (c *Cache) ApplyRow(ctx context.Context, row int) ([]float64, error) {
	if err := c.ds.Xs.CheckRow(row); err != nil {
		return nil, err
	}
	return c.Apply(ctx, c.ds.Xs.Row(row), row)
}

// Merge reads the cache file for suffix and inserts every entry whose key
// is not present yet. It returns the number of records read from the file.
//
// The file is parsed completely before anything is inserted, so a
// malformed file leaves the cache untouched.
func (c *Cache) Merge(ctx context.Context, suffix string) (int, error) {
	if c.opts.Store == nil {
		return 0, ErrNoStore
	}
	start := time.Now()

	name, recs, err := c.read(ctx, suffix)
	if err != nil {
		c.logger.LogMerge(ctx, name, 0, 0, err)
		c.opts.Metrics.RecordMerge(0, 0, time.Since(start), err)
		return 0, err
	}

	added := 0
	c.mu.Lock()
	for _, r := range recs {
		if _, ok := c.entries[r.k]; ok {
			continue
		}
		c.entries[r.k] = r.ys
		added++
	}
	c.state = Merged
	c.mu.Unlock()

	c.logger.LogMerge(ctx, name, len(recs), added, nil)
	c.opts.Metrics.RecordMerge(len(recs), added, time.Since(start), nil)
	return len(recs), nil
}

// candidates lists the file names tried for suffix, configured codec first.
func (c *Cache) candidates(suffix string) []string {
	base := c.Hash() + suffix + ".csv"
	names := []string{base + c.opts.Compression.Ext()}
	for _, t := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		if t != c.opts.Compression {
			names = append(names, base+t.Ext())
		}
	}
	return names
}

func (c *Cache) read(ctx context.Context, suffix string) (string, []record, error) {
	names := c.candidates(suffix)
	for _, name := range names {
		blob, err := c.opts.Store.Open(ctx, name)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return name, nil, fmt.Errorf("open cache %s: %w", name, err)
		}
		recs, err := c.decode(ctx, name, blob)
		return name, recs, err
	}
	return names[0], nil, fmt.Errorf("open cache %s: %w", names[0], blobstore.ErrNotFound)
}

func (c *Cache) decode(ctx context.Context, name string, blob blobstore.Blob) ([]record, error) {
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", name, err)
	}
	defer rc.Close()

	zr, err := compress.NewReader(rc, compress.FromName(name))
	if err != nil {
		return nil, &knncache.FormatError{Name: name, Reason: err.Error()}
	}
	defer zr.Close()

	return readFile(ctx, name, zr, c.hash, c.ds.Dims())
}

// Write stores every entry in the cache file for the configured suffix,
// replacing any previous file, and returns the number of records written.
// Records are written in ascending key order. Either the whole file is
// committed or nothing is.
func (c *Cache) Write(ctx context.Context) (int, error) {
	if c.opts.Store == nil {
		return 0, ErrNoStore
	}
	start := time.Now()
	name := c.FileName(c.opts.Suffix)

	recs := c.snapshot()
	err := c.write(ctx, name, recs)

	c.logger.WithSuffix(c.opts.Suffix).LogWrite(ctx, name, len(recs), time.Since(start), err)
	c.opts.Metrics.RecordWrite(len(recs), time.Since(start), err)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.state = Flushed
	c.mu.Unlock()
	return len(recs), nil
}

func (c *Cache) snapshot() []record {
	c.mu.RLock()
	recs := make([]record, 0, len(c.entries))
	for k, ys := range c.entries {
		recs = append(recs, record{k: k, ys: ys})
	}
	c.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].k < recs[j].k })
	return recs
}

func (c *Cache) write(ctx context.Context, name string, recs []record) error {
	wb, err := c.opts.Store.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("create cache %s: %w", name, err)
	}

	abort := func(err error) error {
		_ = wb.Abort(context.WithoutCancel(ctx))
		return fmt.Errorf("write cache %s: %w", name, err)
	}

	zw, err := compress.NewWriter(wb, c.opts.Compression)
	if err != nil {
		return abort(err)
	}
	if err := writeFile(ctx, zw, c.opts.Format, c.hash, c.ds.Dims(), recs); err != nil {
		return abort(err)
	}
	if err := zw.Close(); err != nil {
		return abort(err)
	}
	if err := wb.Close(); err != nil {
		return fmt.Errorf("commit cache %s: %w", name, err)
	}
	return nil
}
