// Package neighbors finds the nearest training rows of a query point by
// exhaustive scan.
package neighbors

import (
	"context"
	"fmt"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/dataset"
	"github.com/hupe1980/knncache/distance"
	"github.com/hupe1980/knncache/internal/queue"
)

// MaxNeighbors is the number of neighbors kept per query.
const MaxNeighbors = 256

// cancelCheckInterval is the number of rows scanned between context checks.
const cancelCheckInterval = 1 << 16

// Neighbor is a training row and its distance to the query.
type Neighbor struct {
	Index    int
	Distance float64
}

// Options contains configuration options for the finder.
type Options struct {
	// Metric ranks candidate rows. Defaults to distance.Euclidean.
	Metric distance.Metric

	// MaxNeighbors caps the neighbor list length. Defaults to MaxNeighbors;
	// smaller values are meant for tests.
	MaxNeighbors int
}

// DefaultOptions contains the default configuration options for the finder.
var DefaultOptions = Options{
	Metric:       distance.Euclidean{},
	MaxNeighbors: MaxNeighbors,
}

// Finder answers nearest-neighbor queries over an immutable dataset.
// It is safe for concurrent use.
type Finder struct {
	ds   *dataset.Dataset
	opts Options
}

// New creates a Finder over ds.
func New(ds *dataset.Dataset, optFns ...func(o *Options)) (*Finder, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: nil dataset", knncache.ErrInvalidArgument)
	}
	if opts.Metric == nil {
		opts.Metric = distance.Euclidean{}
	}
	if opts.MaxNeighbors <= 0 || opts.MaxNeighbors > MaxNeighbors {
		return nil, &knncache.InvalidKError{K: opts.MaxNeighbors, Max: MaxNeighbors}
	}
	return &Finder{ds: ds, opts: opts}, nil
}

// Dataset returns the dataset the finder scans.
func (f *Finder) Dataset() *dataset.Dataset { return f.ds }

// Metric returns the metric the finder ranks by.
func (f *Finder) Metric() distance.Metric { return f.opts.Metric }

// Nearest returns the targets of the nearest rows to query in ascending
// (distance, row index) order, skipping row omit. An omit outside the row
// range skips nothing. The list has min(MaxNeighbors, eligible rows) entries.
func (f *Finder) Nearest(ctx context.Context, query []float64, omit int) ([]float64, error) {
	nn, err := f.NearestIndices(ctx, query, omit)
	if err != nil {
		return nil, err
	}
	ys := make([]float64, len(nn))
	for i, n := range nn {
		ys[i] = f.ds.Ys[n.Index]
	}
	return ys, nil
}

// NearestIndices is Nearest returning row indices and distances.
func (f *Finder) NearestIndices(ctx context.Context, query []float64, omit int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	xs := f.ds.Xs
	if len(query) != xs.Cols() {
		return nil, &knncache.DimensionMismatchError{Expected: xs.Cols(), Actual: len(query)}
	}

	n := xs.Rows()
	k := f.opts.MaxNeighbors
	if n < k {
		k = n
	}
	top := queue.NewMax(k)
	m := f.opts.Metric

	for i := 0; i < n; i++ {
		if i%cancelCheckInterval == cancelCheckInterval-1 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if i == omit {
			continue
		}
		top.Offer(queue.Item{Index: i, Distance: m.Distance(xs.Row(i), query)}, k)
	}

	items := top.Sorted()
	out := make([]Neighbor, len(items))
	for i, it := range items {
		out[i] = Neighbor{Index: it.Index, Distance: it.Distance}
	}
	return out, nil
}
