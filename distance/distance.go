package distance

import (
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/dataset"
)

// Metric computes the distance between two equally sized vectors.
// Implementations may assume len(a) == len(b); the package-level forms check.
type Metric interface {
	Distance(a, b []float64) float64
}

// Euclidean is the L2 metric.
type Euclidean struct{}

// Distance implements Metric.
func (Euclidean) Distance(a, b []float64) float64 {
	return math.Sqrt(SquaredEuclidean(a, b))
}

func (Euclidean) String() string { return "euclidean" }

// SquaredEuclidean returns sum((a_k-b_k)^2) accumulated strictly left to right.
// Assumes vectors are the same length (caller's responsibility).
func SquaredEuclidean(a, b []float64) float64 {
	var sum float64
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return sum
}

// Parse returns the metric with the given name.
func Parse(name string) (Metric, error) {
	switch strings.ToLower(name) {
	case "", "euclidean", "l2":
		return Euclidean{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported metric %q", knncache.ErrInvalidArgument, name)
	}
}

// Between is the vector form.
func Between(m Metric, a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &knncache.DimensionMismatchError{Expected: len(a), Actual: len(b)}
	}
	return m.Distance(a, b), nil
}

// Rows is the row/row form: the distance between rows i and j of xs.
func Rows(m Metric, xs *dataset.Matrix, i, j int) (float64, error) {
	if err := xs.CheckRow(i); err != nil {
		return 0, err
	}
	if err := xs.CheckRow(j); err != nil {
		return 0, err
	}
	return m.Distance(xs.Row(i), xs.Row(j)), nil
}

// RowToQuery is the row/query form: the distance between row of xs and q.
func RowToQuery(m Metric, xs *dataset.Matrix, row int, q []float64) (float64, error) {
	if err := xs.CheckRow(row); err != nil {
		return 0, err
	}
	if len(q) != xs.Cols() {
		return 0, &knncache.DimensionMismatchError{Expected: xs.Cols(), Actual: len(q)}
	}
	return m.Distance(xs.Row(row), q), nil
}
