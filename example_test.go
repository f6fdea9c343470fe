package knncache_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/knncache/blobstore"
	"github.com/hupe1980/knncache/cache"
	"github.com/hupe1980/knncache/dataset"
	"github.com/hupe1980/knncache/knn"
	"github.com/hupe1980/knncache/shard"
)

func exampleDataset() *dataset.Dataset {
	xs, err := dataset.FromRows([][]float64{{0}, {1}, {2}, {10}})
	if err != nil {
		log.Fatal(err)
	}
	ds, err := dataset.New(xs, []float64{0, 10, 20, 100}, []string{"x"})
	if err != nil {
		log.Fatal(err)
	}
	return ds
}

// Example_estimate estimates a query from its two nearest rows without
// persisting anything.
func Example_estimate() {
	c, err := cache.New(exampleDataset())
	if err != nil {
		log.Fatal(err)
	}

	v, err := knn.New(c).Estimate(context.Background(), 2, []float64{0.5}, -1)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(v)
	// Output: 5
}

// Example_shards builds two pieces, merges them and reuses the merged cache.
func Example_shards() {
	ctx := context.Background()
	ds := exampleDataset()
	store := blobstore.NewMemoryStore()

	b, err := shard.NewBuilder(ds, func(o *shard.Options) {
		o.Pieces = 2
		o.Store = store
	})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := b.BuildAll(ctx); err != nil {
		log.Fatal(err)
	}
	report, err := b.Merge(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(report.Read, report.Written)

	c, err := cache.New(ds, func(o *cache.Options) { o.Store = store })
	if err != nil {
		log.Fatal(err)
	}
	if _, err := c.Merge(ctx, shard.MergedSuffix); err != nil {
		log.Fatal(err)
	}
	v, err := knn.New(c).EstimateRow(ctx, 2, 3)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(c.State(), v)
	// Output:
	// [2 2] 4
	// merged 15
}
