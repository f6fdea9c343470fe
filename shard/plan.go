package shard

import (
	"fmt"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/internal/conv"
)

// MergedSuffix is the file suffix of the merged cache.
const MergedSuffix = "-merged"

// Plan assigns rows to pieces round robin.
type Plan struct {
	Pieces int
}

// Suffix returns the file suffix of piece p.
func Suffix(p int) string {
	return "-" + strconv.Itoa(p)
}

// PieceOf returns the 1-based piece of row.
func (p Plan) PieceOf(row int) int {
	return row%p.Pieces + 1
}

// CheckPiece reports whether piece is a valid piece number.
func (p Plan) CheckPiece(piece int) error {
	if piece < 1 || piece > p.Pieces {
		return fmt.Errorf("%w: piece %d not in [1, %d]", knncache.ErrInvalidArgument, piece, p.Pieces)
	}
	return nil
}

// Rows returns the rows of piece among n rows.
func (p Plan) Rows(piece, n int) *roaring.Bitmap {
	rows := roaring.New()
	for r := piece - 1; r < n; r += p.Pieces {
		rows.Add(uint32(r))
	}
	return rows
}

// Validate checks that the pieces of n rows are disjoint and cover every
// row exactly once.
func (p Plan) Validate(n int) error {
	if p.Pieces < 1 {
		return fmt.Errorf("%w: pieces must be positive, got %d", knncache.ErrInvalidArgument, p.Pieces)
	}
	if _, err := conv.IntToUint32(n); err != nil {
		return fmt.Errorf("plan %d rows: %w", n, err)
	}

	union := roaring.New()
	for piece := 1; piece <= p.Pieces; piece++ {
		rows := p.Rows(piece, n)
		if union.Intersects(rows) {
			return &knncache.IntegrityError{
				Op:       fmt.Sprintf("plan piece %d", piece),
				Expected: int(union.GetCardinality() + rows.GetCardinality()),
				Actual:   int(roaring.Or(union, rows).GetCardinality()),
			}
		}
		union.Or(rows)
	}

	all := roaring.New()
	all.AddRange(0, uint64(n))
	if !union.Equals(all) {
		return &knncache.IntegrityError{Op: "plan", Expected: n, Actual: int(union.GetCardinality())}
	}
	return nil
}
