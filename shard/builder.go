package shard

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/blobstore"
	"github.com/hupe1980/knncache/cache"
	"github.com/hupe1980/knncache/dataset"
	"github.com/hupe1980/knncache/internal/conv"
	"github.com/hupe1980/knncache/internal/resource"
	"github.com/hupe1980/knncache/knn"
	"github.com/hupe1980/knncache/ledger"
	"github.com/hupe1980/knncache/neighbors"
)

// Options contains configuration options for the builder.
type Options struct {
	// Pieces is the number of pieces. Required.
	Pieces int

	// Store holds piece and merged cache files. Required.
	Store blobstore.BlobStore

	// Compression is applied to written cache files.
	Compression cache.Compression

	// Format is the layout of written cache files.
	Format cache.Format

	// Ledger, if set, receives an entry per finished piece and is checked
	// by Merge.
	Ledger ledger.Ledger

	// RunID tags ledger entries. Defaults to a fresh UUIDv7.
	RunID string

	// ProgressInterval is the minimum time between progress log lines.
	ProgressInterval time.Duration

	// Workers is the number of goroutines computing rows of one piece.
	Workers int

	// MaxConcurrentPieces bounds BuildAll.
	MaxConcurrentPieces int

	// MemoryLimitBytes bounds the estimated memory of the caches BuildAll
	// holds at once. 0 means unlimited.
	MemoryLimitBytes int64

	// IOLimitBytesPerSec throttles cache file writes. 0 means unlimited.
	IOLimitBytesPerSec int64

	Logger  *knncache.Logger
	Metrics knncache.MetricsCollector
}

// DefaultOptions contains the default configuration options for the builder.
var DefaultOptions = Options{
	Compression:         cache.CompressionNone,
	Format:              cache.FormatV2,
	ProgressInterval:    30 * time.Second,
	Workers:             1,
	MaxConcurrentPieces: 1,
}

// Builder builds and merges the pieces of one dataset's cache.
type Builder struct {
	ds     *dataset.Dataset
	opts   Options
	plan   Plan
	rc     *resource.Controller
	store  blobstore.BlobStore
	logger *knncache.Logger
}

// NewBuilder creates a builder for ds.
func NewBuilder(ds *dataset.Dataset, optFns ...func(o *Options)) (*Builder, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: nil dataset", knncache.ErrInvalidArgument)
	}
	if opts.Store == nil {
		return nil, knncache.ErrNoStore
	}
	plan := Plan{Pieces: opts.Pieces}
	if err := plan.Validate(ds.Len()); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxConcurrentPieces < 1 {
		opts.MaxConcurrentPieces = 1
	}
	if opts.RunID == "" {
		opts.RunID = ledger.NewRunID()
	}
	if opts.Logger == nil {
		opts.Logger = knncache.NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = knncache.NoopMetricsCollector{}
	}

	rc := resource.NewController(resource.Config{
		MaxPieces:          int64(opts.MaxConcurrentPieces),
		MemoryLimitBytes:   opts.MemoryLimitBytes,
		IOLimitBytesPerSec: opts.IOLimitBytesPerSec,
	})

	return &Builder{
		ds:     ds,
		opts:   opts,
		plan:   plan,
		rc:     rc,
		store:  resource.LimitStore(opts.Store, rc),
		logger: opts.Logger.WithHash(ds.Hash()),
	}, nil
}

// Plan returns the piece plan.
func (b *Builder) Plan() Plan { return b.plan }

// RunID returns the identifier recorded in ledger entries.
func (b *Builder) RunID() string { return b.opts.RunID }

func (b *Builder) newCache(suffix string, logger *knncache.Logger) (*cache.Cache, error) {
	return cache.New(b.ds, func(o *cache.Options) {
		o.Store = b.store
		o.Suffix = suffix
		o.Compression = b.opts.Compression
		o.Format = b.opts.Format
		o.Logger = logger
		o.Metrics = b.opts.Metrics
	})
}

// BuildPiece computes the neighbor list of every row in piece and writes
// the piece file. Nothing is written if any row fails.
func (b *Builder) BuildPiece(ctx context.Context, piece int) (PieceReport, error) {
	if err := b.plan.CheckPiece(piece); err != nil {
		return PieceReport{}, err
	}
	start := time.Now()
	n := b.ds.Len()
	log := b.logger.WithPiece(piece, b.plan.Pieces)

	c, err := b.newCache(Suffix(piece), log)
	if err != nil {
		return PieceReport{}, err
	}
	est := knn.New(c)

	rows := b.plan.Rows(piece, n).ToArray()
	total := len(rows)
	workers := min(b.opts.Workers, max(total, 1))

	var done atomic.Int64
	progress := &rate.Sometimes{Interval: b.opts.ProgressInterval}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; i < total; i += workers {
				row := int(rows[i])
				if _, err := est.EstimateRow(gctx, 1, row); err != nil {
					return fmt.Errorf("piece %d row %d: %w", piece, row, err)
				}
				d := int(done.Add(1))
				progress.Do(func() {
					log.LogProgress(gctx, d, total, row, time.Since(start))
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.ErrorContext(ctx, "piece failed", "error", err)
		return PieceReport{}, err
	}

	report := PieceReport{
		Piece:   piece,
		Pieces:  b.plan.Pieces,
		Rows:    n,
		InPiece: int(done.Load()),
		RunID:   b.opts.RunID,
	}
	for r := 0; r < n; r++ {
		if b.plan.PieceOf(r) != piece {
			report.NotInPiece++
		}
	}
	if err := report.check(); err != nil {
		return report, err
	}

	records, err := c.Write(ctx)
	if err != nil {
		return report, err
	}
	report.Records = records
	report.Blob = c.FileName(c.Suffix())
	report.Elapsed = time.Since(start)

	if b.opts.Ledger != nil {
		if err := b.opts.Ledger.Record(ctx, ledger.Entry{
			Hash:        b.ds.Hash(),
			Piece:       piece,
			Pieces:      b.plan.Pieces,
			Records:     records,
			Rows:        report.InPiece,
			Blob:        report.Blob,
			RunID:       b.opts.RunID,
			CompletedAt: time.Now().UTC(),
		}); err != nil {
			return report, err
		}
	}

	b.opts.Metrics.RecordPiece(piece, records, report.Elapsed)
	log.InfoContext(ctx, "piece written",
		"records", records,
		"in_piece", report.InPiece,
		"not_in_piece", report.NotInPiece,
		"rows", n,
		"elapsed", report.Elapsed.Round(time.Millisecond),
	)
	return report, nil
}

// EstimateMemory returns the approximate bytes a cache holding rows entries
// of d features occupies.
func EstimateMemory(rows, d int) int64 {
	const mapOverhead = 64
	perEntry := 8*d + 8*neighbors.MaxNeighbors + mapOverhead
	return int64(rows) * int64(perEntry)
}

// BuildAll builds every piece in this process. Each piece has its own cache
// and file. The first error cancels the pieces still running.
func (b *Builder) BuildAll(ctx context.Context) ([]PieceReport, error) {
	reports := make([]PieceReport, b.plan.Pieces)
	n := b.ds.Len()

	g, gctx := errgroup.WithContext(ctx)
	for piece := 1; piece <= b.plan.Pieces; piece++ {
		g.Go(func() error {
			if err := b.rc.AcquirePiece(gctx); err != nil {
				return err
			}
			defer b.rc.ReleasePiece()

			rows, err := conv.Uint64ToInt(b.plan.Rows(piece, n).GetCardinality())
			if err != nil {
				return err
			}
			mem := EstimateMemory(rows, b.ds.Dims())
			if err := b.rc.AcquireMemory(gctx, mem); err != nil {
				return fmt.Errorf("%w: piece %d needs %d bytes: %w", knncache.ErrInvalidArgument, piece, mem, err)
			}
			defer b.rc.ReleaseMemory(mem)

			r, err := b.BuildPiece(gctx, piece)
			reports[piece-1] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

// Merge combines pieces 1..Pieces into the merged cache file. Every record
// read must be written; with a ledger, every piece must be recorded with
// the record count read back from its file.
func (b *Builder) Merge(ctx context.Context) (MergeReport, error) {
	start := time.Now()
	log := b.logger.WithSuffix(MergedSuffix)

	c, err := b.newCache(MergedSuffix, log)
	if err != nil {
		return MergeReport{}, err
	}

	var entries []ledger.Entry
	if b.opts.Ledger != nil {
		if entries, err = b.opts.Ledger.Entries(ctx, b.ds.Hash()); err != nil {
			return MergeReport{}, err
		}
	}

	report := MergeReport{
		Pieces: b.plan.Pieces,
		Read:   make([]int, b.plan.Pieces),
	}
	for piece := 1; piece <= b.plan.Pieces; piece++ {
		var entry ledger.Entry
		if b.opts.Ledger != nil {
			if entry, err = ledger.Lookup(entries, piece); err != nil {
				return report, fmt.Errorf("%w: %w", knncache.ErrCacheIntegrity, err)
			}
			if entry.Pieces != b.plan.Pieces {
				return report, &knncache.IntegrityError{
					Op:       fmt.Sprintf("piece %d plan", piece),
					Expected: b.plan.Pieces,
					Actual:   entry.Pieces,
				}
			}
		}

		read, err := c.Merge(ctx, Suffix(piece))
		if err != nil {
			return report, fmt.Errorf("merge piece %d: %w", piece, err)
		}
		if b.opts.Ledger != nil && read != entry.Records {
			return report, &knncache.IntegrityError{
				Op:       fmt.Sprintf("piece %d", piece),
				Expected: entry.Records,
				Actual:   read,
			}
		}
		report.Read[piece-1] = read
		report.Total += read
		log.DebugContext(ctx, "piece merged", "piece", piece, "records", read)
	}

	if c.Len() != report.Total {
		return report, &knncache.IntegrityError{Op: "merge", Expected: report.Total, Actual: c.Len()}
	}

	written, err := c.Write(ctx)
	if err != nil {
		return report, err
	}
	report.Written = written
	report.Blob = c.FileName(MergedSuffix)
	report.Elapsed = time.Since(start)
	if written != report.Total {
		return report, &knncache.IntegrityError{Op: "merge", Expected: report.Total, Actual: written}
	}

	log.InfoContext(ctx, "pieces merged",
		"pieces", report.Pieces,
		"records", written,
		"elapsed", report.Elapsed.Round(time.Millisecond),
	)
	return report, nil
}
