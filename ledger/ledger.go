package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/knncache"
)

// Entry describes one completed piece build.
type Entry struct {
	// Hash is the dataset content hash.
	Hash string `json:"hash"`
	// Piece is the 1-based piece number.
	Piece int `json:"piece"`
	// Pieces is the piece count of the plan the piece belongs to.
	Pieces int `json:"pieces"`
	// Records is the number of records written to the piece file.
	Records int `json:"records"`
	// Rows is the number of dataset rows assigned to the piece.
	Rows int `json:"rows"`
	// Blob is the name of the piece file.
	Blob string `json:"blob"`
	// RunID identifies the process run that built the piece.
	RunID       string    `json:"run_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Validate checks the fields a merge relies on.
func (e Entry) Validate() error {
	switch {
	case e.Hash == "":
		return fmt.Errorf("%w: ledger entry has no hash", knncache.ErrInvalidArgument)
	case e.Pieces < 1 || e.Piece < 1 || e.Piece > e.Pieces:
		return fmt.Errorf("%w: ledger entry piece %d of %d", knncache.ErrInvalidArgument, e.Piece, e.Pieces)
	case e.Records < 0 || e.Rows < 0:
		return fmt.Errorf("%w: ledger entry has negative counts", knncache.ErrInvalidArgument)
	}
	return nil
}

// Ledger stores piece completion records. Recording a piece again replaces
// the previous entry.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	// Entries returns the entries for hash sorted by piece.
	Entries(ctx context.Context, hash string) ([]Entry, error)
}

// ErrNotRecorded is returned by Lookup when a piece has no entry.
var ErrNotRecorded = errors.New("piece not recorded")

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Lookup returns the entry for piece.
func Lookup(entries []Entry, piece int) (Entry, error) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Piece >= piece })
	if i < len(entries) && entries[i].Piece == piece {
		return entries[i], nil
	}
	return Entry{}, fmt.Errorf("piece %d: %w", piece, ErrNotRecorded)
}

// SortEntries orders entries by piece.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Piece < entries[j].Piece })
}
