// Package distance provides the distance metric used to rank neighbors.
//
// # Supported Metrics
//
//   - Euclidean: sqrt(sum((a_k-b_k)^2)), accumulated left to right
//
// # Usage
//
//	d, err := distance.Between(distance.Euclidean{}, a, b)
//	d, err := distance.Rows(distance.Euclidean{}, xs, i, j)
//	d, err := distance.RowToQuery(distance.Euclidean{}, xs, row, q)
//
// The row forms read rows through dataset.Matrix views and never copy, so
// they return bit-identical results to the vector form.
package distance
