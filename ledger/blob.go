package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/blobstore"
	"github.com/hupe1980/knncache/internal/codec"
)

// BlobLedger keeps entries as JSON blobs in a BlobStore.
type BlobLedger struct {
	store blobstore.BlobStore
	codec codec.Codec
}

// BlobOptions contains configuration options for a BlobLedger.
type BlobOptions struct {
	// Encoding names the JSON codec ("go-json" or "json").
	Encoding string
}

// NewBlobLedger creates a ledger writing into store.
func NewBlobLedger(store blobstore.BlobStore, optFns ...func(o *BlobOptions)) (*BlobLedger, error) {
	var opts BlobOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	c, ok := codec.ByName(opts.Encoding)
	if !ok {
		return nil, fmt.Errorf("%w: unknown ledger encoding %q", knncache.ErrInvalidArgument, opts.Encoding)
	}
	return &BlobLedger{store: store, codec: c}, nil
}

func dir(hash string) string {
	return hash + ".ledger/"
}

// EntryName returns the blob name of a piece entry.
func EntryName(hash string, piece int) string {
	return dir(hash) + strconv.Itoa(piece) + ".json"
}

// Record implements Ledger.
func (l *BlobLedger) Record(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	data, err := l.codec.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	if err := l.store.Put(ctx, EntryName(e.Hash, e.Piece), data); err != nil {
		return fmt.Errorf("record piece %d: %w", e.Piece, err)
	}
	return nil
}

// Entries implements Ledger.
func (l *BlobLedger) Entries(ctx context.Context, hash string) ([]Entry, error) {
	names, err := l.store.List(ctx, dir(hash))
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := blobstore.ReadAll(ctx, l.store, name)
		if err != nil {
			return nil, fmt.Errorf("read ledger %s: %w", name, err)
		}
		var e Entry
		if err := l.codec.Unmarshal(data, &e); err != nil {
			return nil, &knncache.FormatError{Name: name, Reason: err.Error()}
		}
		if e.Hash != hash {
			continue
		}
		entries = append(entries, e)
	}
	SortEntries(entries)
	return entries, nil
}
