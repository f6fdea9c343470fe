// Package dataset holds the immutable numeric training data shared by every
// neighbor computation: a dense row-major feature matrix, the parallel target
// vector and the feature names.
//
// A Dataset is never mutated after construction. Its content hash namespaces
// cache files so that a cache built for one version of the data is never
// applied to another.
//
// Loaders read CSV, Parquet and Arrow IPC files:
//
//	ds, err := dataset.Load(ctx, "obs1A/features.parquet", dataset.LoadOptions{Target: "price"})
package dataset
