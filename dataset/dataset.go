package dataset

import (
	"crypto/sha1" //nolint:gosec // file names must stay compatible with existing caches
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"

	"github.com/hupe1980/knncache"
)

// Dataset is a feature matrix with its parallel target vector.
type Dataset struct {
	Xs    *Matrix
	Ys    []float64
	Names []string

	hashOnce sync.Once
	hash     string
}

// New validates the shapes and returns a Dataset.
// If names is nil, features are named t1..td.
func New(xs *Matrix, ys []float64, names []string) (*Dataset, error) {
	if xs == nil {
		return nil, fmt.Errorf("%w: nil feature matrix", knncache.ErrInvalidArgument)
	}
	if len(ys) != xs.Rows() {
		return nil, &knncache.DimensionMismatchError{Expected: xs.Rows(), Actual: len(ys)}
	}
	if names == nil {
		names = make([]string, xs.Cols())
		for j := range names {
			names[j] = fmt.Sprintf("t%d", j+1)
		}
	}
	if len(names) != xs.Cols() {
		return nil, &knncache.DimensionMismatchError{Expected: xs.Cols(), Actual: len(names)}
	}
	return &Dataset{Xs: xs, Ys: ys, Names: names}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.Xs.Rows() }

// Dims returns the number of features.
func (d *Dataset) Dims() int { return d.Xs.Cols() }

// Hash returns the content hash, computing it on first use.
func (d *Dataset) Hash() string {
	d.hashOnce.Do(func() {
		d.hash = ContentHash(d.Xs, d.Ys)
	})
	return d.hash
}

// ContentHash returns the SHA-1 digest of the dataset as 40 lowercase hex
// characters. For every row the target is hashed first, then the features,
// each as an 8-byte big-endian IEEE-754 value.
func ContentHash(xs *Matrix, ys []float64) string {
	h := sha1.New() //nolint:gosec
	var buf [8]byte
	put := func(v float64) {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	for i := 0; i < xs.Rows(); i++ {
		put(ys[i])
		for _, v := range xs.Row(i) {
			put(v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
