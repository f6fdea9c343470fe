package dataset

import (
	"fmt"

	"github.com/hupe1980/knncache"
)

// Matrix is a dense row-major float64 matrix.
//
// Row returns views into the backing slice; callers must treat them as
// read-only.
type Matrix struct {
	data []float64
	rows int
	cols int
}

// NewMatrix wraps data as a rows x cols matrix without copying.
func NewMatrix(rows, cols int, data []float64) (*Matrix, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: negative shape %dx%d", knncache.ErrInvalidArgument, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, &knncache.DimensionMismatchError{Expected: rows * cols, Actual: len(data)}
	}
	return &Matrix{data: data, rows: rows, cols: cols}, nil
}

// FromRows copies a slice of equally sized rows into a new Matrix.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return &Matrix{}, nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for _, r := range rows {
		if len(r) != cols {
			return nil, &knncache.DimensionMismatchError{Expected: cols, Actual: len(r)}
		}
		data = append(data, r...)
	}
	return &Matrix{data: data, rows: len(rows), cols: cols}, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Row returns row i as a capacity-limited view of the backing slice.
// It panics if i is out of range; use CheckRow first for untrusted input.
func (m *Matrix) Row(i int) []float64 {
	off := i * m.cols
	return m.data[off : off+m.cols : off+m.cols]
}

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) float64 {
	return m.data[i*m.cols+j]
}

// CheckRow reports a *knncache.RowRangeError if i is not a valid row index.
func (m *Matrix) CheckRow(i int) error {
	if i < 0 || i >= m.rows {
		return &knncache.RowRangeError{Row: i, Rows: m.rows}
	}
	return nil
}
