package shard

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/knncache"
)

// PieceReport is the balance report of one piece build.
type PieceReport struct {
	Piece  int
	Pieces int
	// Rows is the dataset size.
	Rows int
	// InPiece is the number of rows computed.
	InPiece int
	// NotInPiece is the number of rows skipped as belonging to other pieces.
	NotInPiece int
	// Records is the number of records written. It is below InPiece only
	// when rows of the piece share a feature vector.
	Records int
	Blob    string
	RunID   string
	Elapsed time.Duration
}

func (r PieceReport) check() error {
	if r.InPiece+r.NotInPiece != r.Rows {
		return &knncache.IntegrityError{
			Op:       fmt.Sprintf("piece %d", r.Piece),
			Expected: r.Rows,
			Actual:   r.InPiece + r.NotInPiece,
		}
	}
	return nil
}

func (r PieceReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "wrote piece %d of %d with %d records\n", r.Piece, r.Pieces, r.Records)
	fmt.Fprintf(&b, "computed %d rows in piece\n", r.InPiece)
	fmt.Fprintf(&b, "skipped %d rows not in piece\n", r.NotInPiece)
	fmt.Fprintf(&b, "read %d rows\n", r.Rows)
	fmt.Fprintf(&b, "wrote %s in %s\n", r.Blob, r.Elapsed.Round(time.Millisecond))
	return b.String()
}

// MergeReport is the balance report of a merge.
type MergeReport struct {
	Pieces int
	// Read holds the records read per piece, index 0 for piece 1.
	Read    []int
	Total   int
	Written int
	Blob    string
	Elapsed time.Duration
}

func (r MergeReport) String() string {
	var b strings.Builder
	b.WriteString("merge\n")
	for i, n := range r.Read {
		fmt.Fprintf(&b, "added %d records from piece %d\n", n, i+1)
	}
	fmt.Fprintf(&b, "wrote %d records; should have written %d\n", r.Written, r.Total)
	return b.String()
}
