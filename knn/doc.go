// Package knn estimates targets as the plain mean of the k nearest
// neighbors' targets, reading neighbor lists through a cache.Cache.
//
// # Usage
//
//	est := knn.New(c)
//	v, err := est.Estimate(ctx, 5, query, -1) // new point
//	v, err = est.EstimateRow(ctx, 5, 42)      // leave-one-out for row 42
//
// LeaveOneOut scores every k in 1..kMax from a single neighbor list per
// row, and BestK picks the k with the lowest RMSE.
package knn
