package knncache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for dimension mismatches, out-of-range k,
	// out-of-range rows and other caller or configuration mistakes.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientNeighbors is returned when fewer neighbors are available
	// than the caller requested.
	ErrInsufficientNeighbors = errors.New("insufficient neighbors")

	// ErrFileFormat is returned when a cache or dataset file is malformed.
	ErrFileFormat = errors.New("file format error")

	// ErrCacheIntegrity is returned when record counts do not balance after a
	// merge or a piece build. It signals a bug, not a transient fault.
	ErrCacheIntegrity = errors.New("cache integrity error")

	// ErrDatasetMismatch is returned when a cache file was built for a
	// different dataset than the one it is applied to.
	ErrDatasetMismatch = errors.New("dataset mismatch")

	// ErrNoStore is returned by persistence operations on a pass-through cache.
	ErrNoStore = fmt.Errorf("%w: cache has no store", ErrInvalidArgument)
)

// DimensionMismatchError indicates a vector/matrix dimensionality mismatch.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrInvalidArgument }

// RowRangeError indicates a row index outside [0, Rows).
type RowRangeError struct {
	Row  int
	Rows int
}

func (e *RowRangeError) Error() string {
	return fmt.Sprintf("row %d out of range [0, %d)", e.Row, e.Rows)
}

func (e *RowRangeError) Unwrap() error { return ErrInvalidArgument }

// InvalidKError indicates a neighbor count outside [1, Max].
type InvalidKError struct {
	K   int
	Max int
}

func (e *InvalidKError) Error() string {
	return fmt.Sprintf("k must be in [1, %d], got %d", e.Max, e.K)
}

func (e *InvalidKError) Unwrap() error { return ErrInvalidArgument }

// InsufficientNeighborsError indicates that a neighbor list is shorter than k.
type InsufficientNeighborsError struct {
	K         int
	Available int
}

func (e *InsufficientNeighborsError) Error() string {
	return fmt.Sprintf("insufficient neighbors: need %d, have %d", e.K, e.Available)
}

func (e *InsufficientNeighborsError) Unwrap() error { return ErrInsufficientNeighbors }

// FormatError describes a malformed line in a cache or dataset file.
//
// Line is 1-based and counts every physical line including headers.
type FormatError struct {
	Name   string
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Name, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFileFormat }

// IntegrityError reports a record-count imbalance.
type IntegrityError struct {
	Op       string
	Expected int
	Actual   int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s out of balance: expected %d records, got %d", e.Op, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error { return ErrCacheIntegrity }

// DatasetMismatchError reports a cache file whose embedded identity does not
// match the dataset it is merged into.
type DatasetMismatchError struct {
	Name     string
	Want     string
	Got      string
	WantDims int
	GotDims  int
}

func (e *DatasetMismatchError) Error() string {
	if e.Want != e.Got {
		return fmt.Sprintf("%s: built for dataset %s, expected %s", e.Name, e.Got, e.Want)
	}
	return fmt.Sprintf("%s: built for %d dimensions, expected %d", e.Name, e.GotDims, e.WantDims)
}

func (e *DatasetMismatchError) Unwrap() error { return ErrDatasetMismatch }
