// Command knncache builds, merges and queries kNN neighbor caches.
//
//	knncache --action=3 --pieces=8 --obs=1A --dataDir=./data
//	knncache --action=merge --pieces=8 --obs=1A --dataDir=./data
//	knncache --action=estimate --k=12 --row=0 --obs=1A
//
// See Config for the flags and their KNNCACHE_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/cache"
	"github.com/hupe1980/knncache/dataset"
	"github.com/hupe1980/knncache/knn"
	"github.com/hupe1980/knncache/observability"
	"github.com/hupe1980/knncache/shard"
)

// Exit codes
const (
	ExitOK = iota
	ExitIO
	ExitInvalidArgument
	ExitFileFormat
	ExitIntegrity
	ExitDatasetMismatch
	ExitInsufficientNeighbors
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, knncache.ErrInvalidArgument):
		return ExitInvalidArgument
	case errors.Is(err, knncache.ErrFileFormat):
		return ExitFileFormat
	case errors.Is(err, knncache.ErrCacheIntegrity):
		return ExitIntegrity
	case errors.Is(err, knncache.ErrDatasetMismatch):
		return ExitDatasetMismatch
	case errors.Is(err, knncache.ErrInsufficientNeighbors):
		return ExitInsufficientNeighbors
	default:
		return ExitIO
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := LoadConfig(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return ExitOK
	}
	if err == nil {
		err = ValidateConfig(&cfg)
	}
	if err != nil {
		fmt.Fprintf(stderr, "knncache: %v\n", err)
		return ExitCode(err)
	}

	logger, err := newLogger(&cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "knncache: %v\n", err)
		return ExitCode(err)
	}

	var metrics knncache.MetricsCollector = knncache.NoopMetricsCollector{}
	if cfg.MetricsFile != "" {
		reg := prometheus.NewRegistry()
		pc, err := observability.NewPrometheusCollector(reg)
		if err != nil {
			logger.Error("metrics setup failed", "error", err)
			return ExitIO
		}
		metrics = pc
		defer func() {
			if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
				logger.Error("metrics write failed", "file", cfg.MetricsFile, "error", err)
			}
		}()
	}

	d := &driver{cfg: cfg, logger: logger, metrics: metrics, out: stdout}
	if err := d.run(ctx); err != nil {
		logger.Error("run failed", "action", cfg.Action, "error", err)
		return ExitCode(err)
	}
	return ExitOK
}

type driver struct {
	cfg     Config
	logger  *knncache.Logger
	metrics knncache.MetricsCollector
	out     io.Writer

	ds *dataset.Dataset
	be backends
}

func (d *driver) run(ctx context.Context) error {
	ds, err := loadDataset(ctx, &d.cfg)
	if err != nil {
		return err
	}
	d.ds = ds
	d.logger.InfoContext(ctx, "dataset loaded", "rows", ds.Len(), "dims", ds.Dims(), "hash", ds.Hash())

	if d.be, err = openBackends(ctx, &d.cfg); err != nil {
		return err
	}

	switch d.cfg.Action {
	case "merge":
		return d.merge(ctx)
	case "all":
		return d.all(ctx)
	case "estimate":
		return d.estimate(ctx)
	case "search":
		return d.search(ctx)
	default:
		piece, _ := d.cfg.Piece()
		return d.piece(ctx, piece)
	}
}

func (d *driver) builder() (*shard.Builder, error) {
	compression, err := cache.ParseCompression(d.cfg.Compression)
	if err != nil {
		return nil, err
	}
	format, err := cache.ParseFormat(d.cfg.Format)
	if err != nil {
		return nil, err
	}
	return shard.NewBuilder(d.ds, func(o *shard.Options) {
		o.Pieces = d.cfg.Pieces
		o.Store = d.be.store
		o.Compression = compression
		o.Format = format
		o.Ledger = d.be.ledger
		o.RunID = d.cfg.RunID
		o.ProgressInterval = d.cfg.ProgressInterval
		o.Workers = d.cfg.Workers
		o.MaxConcurrentPieces = d.cfg.Parallel
		o.MemoryLimitBytes = d.cfg.MemoryLimit
		o.IOLimitBytesPerSec = d.cfg.IOLimit
		o.Logger = d.logger
		o.Metrics = d.metrics
	})
}

func (d *driver) piece(ctx context.Context, piece int) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	report, err := b.BuildPiece(ctx, piece)
	if err != nil {
		return err
	}
	fmt.Fprint(d.out, report.String())
	return nil
}

func (d *driver) merge(ctx context.Context) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	report, err := b.Merge(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(d.out, report.String())
	return nil
}

func (d *driver) all(ctx context.Context) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	reports, err := b.BuildAll(ctx)
	if err != nil {
		return err
	}
	for _, r := range reports {
		fmt.Fprint(d.out, r.String())
	}
	report, err := b.Merge(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(d.out, report.String())
	return nil
}

// estimator loads the merged cache when there is one. Without it the
// estimator computes neighbor lists on demand.
func (d *driver) estimator(ctx context.Context) (*knn.Estimator, error) {
	c, err := cache.New(d.ds, func(o *cache.Options) {
		o.Store = d.be.store
		o.Suffix = shard.MergedSuffix
		o.Logger = d.logger
		o.Metrics = d.metrics
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.Merge(ctx, shard.MergedSuffix); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		d.logger.WarnContext(ctx, "no merged cache, computing neighbors", "file", c.FileName(shard.MergedSuffix))
	}
	return knn.New(c), nil
}

func (d *driver) estimate(ctx context.Context) error {
	est, err := d.estimator(ctx)
	if err != nil {
		return err
	}

	var v float64
	if d.cfg.Row >= 0 {
		v, err = est.EstimateRow(ctx, d.cfg.K, d.cfg.Row)
	} else {
		q, perr := ParseQuery(d.cfg.Query)
		if perr != nil {
			return perr
		}
		v, err = est.Estimate(ctx, d.cfg.K, q, -1)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "estimate k=%d: %s\n", d.cfg.K, strconv.FormatFloat(v, 'g', -1, 64))
	return nil
}

func (d *driver) search(ctx context.Context) error {
	est, err := d.estimator(ctx)
	if err != nil {
		return err
	}
	scores, err := knn.LeaveOneOut(ctx, est, nil, d.cfg.KMax)
	if err != nil {
		return err
	}
	best, err := knn.BestK(scores)
	if err != nil {
		return err
	}
	for _, s := range scores {
		fmt.Fprintf(d.out, "k=%d rmse=%s n=%d\n", s.K, strconv.FormatFloat(s.RMSE, 'g', -1, 64), s.N)
	}
	fmt.Fprintf(d.out, "best k=%d rmse=%s\n", best.K, strconv.FormatFloat(best.RMSE, 'g', -1, 64))
	return nil
}
