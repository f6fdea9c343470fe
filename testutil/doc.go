// Package testutil provides testing utilities for knncache.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating reproducible datasets and computing
// reference nearest-neighbor lists by full sort.
//
// # Random Datasets
//
//	rng := testutil.NewRNG(seed)
//	ds := rng.Dataset(1000, 8)        // uniform features, positive targets
//	ds := rng.TiedDataset(1000, 2, 4) // small integer grid, many distance ties
//
// # Reference Neighbors
//
//	want := testutil.ExactNearest(ds, query, omit, 256)
package testutil
