package knn

import (
	"context"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/cache"
	"github.com/hupe1980/knncache/neighbors"
)

// Estimator is a k-nearest-neighbors regressor over a cache.
// It is safe for concurrent use.
type Estimator struct {
	c *cache.Cache
}

// New returns an estimator reading neighbor lists from c.
func New(c *cache.Cache) *Estimator {
	return &Estimator{c: c}
}

// Cache returns the underlying cache.
func (e *Estimator) Cache() *cache.Cache { return e.c }

// Estimate returns the mean target of the k nearest rows to query,
// skipping row omit.
func (e *Estimator) Estimate(ctx context.Context, k int, query []float64, omit int) (float64, error) {
	if err := checkK(k); err != nil {
		return 0, err
	}
	ys, err := e.c.Apply(ctx, query, omit)
	if err != nil {
		return 0, err
	}
	return mean(ys, k)
}

// EstimateRow is the leave-one-out estimate of an existing row.
func (e *Estimator) EstimateRow(ctx context.Context, k int, row int) (float64, error) {
	if err := checkK(k); err != nil {
		return 0, err
	}
	ys, err := e.c.ApplyRow(ctx, row)
	if err != nil {
		return 0, err
	}
	return mean(ys, k)
}

// Smooth re-estimates an existing row from its own target and the targets
// of its k-1 nearest other rows.
func (e *Estimator) Smooth(ctx context.Context, k int, row int) (float64, error) {
	if err := checkK(k); err != nil {
		return 0, err
	}
	ys, err := e.c.ApplyRow(ctx, row)
	if err != nil {
		return 0, err
	}
	if len(ys) < k-1 {
		return 0, &knncache.InsufficientNeighborsError{K: k - 1, Available: len(ys)}
	}
	sum := e.c.Dataset().Ys[row]
	for _, y := range ys[:k-1] {
		sum += y
	}
	return sum / float64(k), nil
}

func checkK(k int) error {
	if k < 1 || k > neighbors.MaxNeighbors {
		return &knncache.InvalidKError{K: k, Max: neighbors.MaxNeighbors}
	}
	return nil
}

// mean averages the first k values, summing left to right.
func mean(ys []float64, k int) (float64, error) {
	if len(ys) < k {
		return 0, &knncache.InsufficientNeighborsError{K: k, Available: len(ys)}
	}
	var sum float64
	for _, y := range ys[:k] {
		sum += y
	}
	return sum / float64(k), nil
}
