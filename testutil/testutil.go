package testutil

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/knncache/dataset"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0,1).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// UniformVector returns a vector with values in [0, 1).
func (r *RNG) UniformVector(dimensions int) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec := make([]float64, dimensions)
	for j := range vec {
		vec[j] = r.rand.Float64()
	}
	return vec
}

// Dataset generates n rows of d uniform features in [0, 1) with targets
// drawn from a log-normal distribution, roughly shaped like sale prices.
func (r *RNG) Dataset(n, d int) *dataset.Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, n*d)
	for i := range data {
		data[i] = r.rand.Float64()
	}
	ys := make([]float64, n)
	for i := range ys {
		ys[i] = math.Round(math.Exp(12 + r.rand.NormFloat64()*0.5))
	}
	return mustDataset(n, d, data, ys)
}

// TiedDataset generates n rows of d features drawn from the integers
// [0, levels). With few levels most distances tie, which exercises the
// row-index tie break. Targets are the row indices.
func (r *RNG) TiedDataset(n, d, levels int) *dataset.Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, n*d)
	for i := range data {
		data[i] = float64(r.rand.Intn(levels))
	}
	ys := make([]float64, n)
	for i := range ys {
		ys[i] = float64(i)
	}
	return mustDataset(n, d, data, ys)
}

// Line returns the dataset with feature i and target ys[i] for each row.
func Line(xs []float64, ys []float64) *dataset.Dataset {
	return mustDataset(len(xs), 1, append([]float64(nil), xs...), append([]float64(nil), ys...))
}

func mustDataset(n, d int, data, ys []float64) *dataset.Dataset {
	xs, err := dataset.NewMatrix(n, d, data)
	if err != nil {
		panic(err)
	}
	ds, err := dataset.New(xs, ys, nil)
	if err != nil {
		panic(err)
	}
	return ds
}

// Neighbor is a reference neighbor.
type Neighbor struct {
	Index    int
	Distance float64
}

// ExactNearest computes the k nearest rows to q by Euclidean distance using
// a full stable sort over row order. Row omit is skipped.
func ExactNearest(ds *dataset.Dataset, q []float64, omit, k int) []Neighbor {
	all := make([]Neighbor, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		if i == omit {
			continue
		}
		var sum float64
		for j, v := range ds.Xs.Row(i) {
			d := v - q[j]
			sum += d * d
		}
		all = append(all, Neighbor{Index: i, Distance: math.Sqrt(sum)})
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].Distance < all[b].Distance })
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// Targets maps reference neighbors to their target values.
func Targets(ds *dataset.Dataset, nn []Neighbor) []float64 {
	ys := make([]float64, len(nn))
	for i, n := range nn {
		ys[i] = ds.Ys[n.Index]
	}
	return ys
}
