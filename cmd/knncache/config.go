package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/cache"
)

const envPrefix = "KNNCACHE"

// Config validation errors
var (
	ErrInvalidAction      = fmt.Errorf("%w: action must be a piece number, merge, all, estimate or search", knncache.ErrInvalidArgument)
	ErrInvalidPieces      = fmt.Errorf("%w: pieces must be positive", knncache.ErrInvalidArgument)
	ErrInvalidPiece       = fmt.Errorf("%w: piece must be in 1..pieces", knncache.ErrInvalidArgument)
	ErrMissingDataset     = fmt.Errorf("%w: obs or dataset must be set", knncache.ErrInvalidArgument)
	ErrInvalidStorage     = fmt.Errorf("%w: storage must be local, s3 or minio", knncache.ErrInvalidArgument)
	ErrMissingBucket      = fmt.Errorf("%w: bucket is required for remote storage", knncache.ErrInvalidArgument)
	ErrMissingEndpoint    = fmt.Errorf("%w: endpoint is required for minio storage", knncache.ErrInvalidArgument)
	ErrInvalidLedger      = fmt.Errorf("%w: ledger must be none, blob or dynamodb", knncache.ErrInvalidArgument)
	ErrMissingLedgerTable = fmt.Errorf("%w: ledger-table is required for the dynamodb ledger", knncache.ErrInvalidArgument)
	ErrInvalidWorkers     = fmt.Errorf("%w: workers and parallel must be positive", knncache.ErrInvalidArgument)
	ErrInvalidLogFormat   = fmt.Errorf("%w: log-format must be 'json' or 'text'", knncache.ErrInvalidArgument)
	ErrInvalidLogLevel    = fmt.Errorf("%w: log-level must be debug, info, warn, or error", knncache.ErrInvalidArgument)
	ErrMissingQuery       = fmt.Errorf("%w: estimate needs row or query", knncache.ErrInvalidArgument)
)

// Config is the driver configuration. Every field can be set through a
// KNNCACHE_* environment variable (or a .env file) and overridden by the
// matching flag.
type Config struct {
	Action  string `envconfig:"ACTION"`
	Obs     string `envconfig:"OBS"`
	DataDir string `envconfig:"DATA_DIR" default:"./data"`
	Dataset string `envconfig:"DATASET"`
	Target  string `envconfig:"TARGET" default:"price"`

	K      int    `envconfig:"K" default:"1"`
	KMax   int    `envconfig:"KMAX" default:"64"`
	Pieces int    `envconfig:"PIECES" default:"1"`
	Row    int    `envconfig:"ROW" default:"-1"`
	Query  string `envconfig:"QUERY"`

	Storage   string `envconfig:"STORAGE" default:"local"`
	Bucket    string `envconfig:"BUCKET"`
	Prefix    string `envconfig:"PREFIX"`
	Endpoint  string `envconfig:"ENDPOINT"`
	Region    string `envconfig:"REGION"`
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
	Insecure  bool   `envconfig:"INSECURE"`

	Compression string `envconfig:"COMPRESSION" default:"none"`
	Format      string `envconfig:"FORMAT" default:"v2"`

	Workers          int           `envconfig:"WORKERS" default:"1"`
	Parallel         int           `envconfig:"PARALLEL" default:"1"`
	MemoryLimit      int64         `envconfig:"MEMORY_LIMIT" default:"0"`
	IOLimit          int64         `envconfig:"IO_LIMIT" default:"0"`
	ProgressInterval time.Duration `envconfig:"PROGRESS_INTERVAL" default:"30s"`

	Ledger      string `envconfig:"LEDGER" default:"none"`
	LedgerTable string `envconfig:"LEDGER_TABLE"`
	RunID       string `envconfig:"RUN_ID"`

	MetricsFile string `envconfig:"METRICS_FILE"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		DataDir:          "./data",
		Target:           "price",
		K:                1,
		KMax:             64,
		Pieces:           1,
		Row:              -1,
		Storage:          "local",
		Compression:      "none",
		Format:           "v2",
		Workers:          1,
		Parallel:         1,
		ProgressInterval: 30 * time.Second,
		Ledger:           "none",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadConfig reads the .env file named by KNNCACHE_ENV_FILE (default
// ".env", optional), the KNNCACHE_* environment and then args.
func LoadConfig(args []string, stderr io.Writer) (Config, error) {
	envFile := os.Getenv(envPrefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", knncache.ErrInvalidArgument, err)
	}

	fset := flag.NewFlagSet("knncache", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVar(&cfg.Action, "action", cfg.Action, "piece number N, merge, all, estimate or search")
	fset.StringVar(&cfg.Obs, "obs", cfg.Obs, "dataset id; files live under <dataDir>/obs<obs>")
	fset.StringVar(&cfg.DataDir, "dataDir", cfg.DataDir, "data directory")
	fset.StringVar(&cfg.Dataset, "dataset", cfg.Dataset, "dataset file, overrides the obs lookup")
	fset.StringVar(&cfg.Target, "target", cfg.Target, "target column")
	fset.IntVar(&cfg.K, "k", cfg.K, "number of neighbors for estimate")
	fset.IntVar(&cfg.KMax, "kmax", cfg.KMax, "largest k tried by search")
	fset.IntVar(&cfg.Pieces, "pieces", cfg.Pieces, "number of pieces")
	fset.IntVar(&cfg.Row, "row", cfg.Row, "row to estimate")
	fset.StringVar(&cfg.Query, "query", cfg.Query, "comma separated query vector to estimate")
	fset.StringVar(&cfg.Storage, "storage", cfg.Storage, "cache storage: local, s3 or minio")
	fset.StringVar(&cfg.Bucket, "bucket", cfg.Bucket, "bucket for remote storage")
	fset.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "key prefix for remote storage")
	fset.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "endpoint for S3-compatible storage")
	fset.StringVar(&cfg.Region, "region", cfg.Region, "storage region")
	fset.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "use plain HTTP for minio")
	fset.StringVar(&cfg.Compression, "compression", cfg.Compression, "cache file compression: none, zstd or lz4")
	fset.StringVar(&cfg.Format, "format", cfg.Format, "cache file format: v2 or legacy")
	fset.IntVar(&cfg.Workers, "workers", cfg.Workers, "goroutines per piece")
	fset.IntVar(&cfg.Parallel, "parallel", cfg.Parallel, "pieces built at once by action all")
	fset.Int64Var(&cfg.MemoryLimit, "memory-limit", cfg.MemoryLimit, "memory budget in bytes for action all, 0 for none")
	fset.Int64Var(&cfg.IOLimit, "io-limit", cfg.IOLimit, "cache write budget in bytes per second, 0 for none")
	fset.DurationVar(&cfg.ProgressInterval, "progress", cfg.ProgressInterval, "minimum time between progress lines")
	fset.StringVar(&cfg.Ledger, "ledger", cfg.Ledger, "piece ledger: none, blob or dynamodb")
	fset.StringVar(&cfg.LedgerTable, "ledger-table", cfg.LedgerTable, "DynamoDB ledger table")
	fset.StringVar(&cfg.RunID, "run-id", cfg.RunID, "run identifier recorded in the ledger")
	fset.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to this textfile on exit")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fset.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "json or text")
	if err := fset.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, err
		}
		return cfg, fmt.Errorf("%w: %w", knncache.ErrInvalidArgument, err)
	}
	if fset.NArg() > 0 {
		return cfg, fmt.Errorf("%w: unexpected arguments %v", knncache.ErrInvalidArgument, fset.Args())
	}
	return cfg, nil
}

// Piece returns the piece number when Action is one.
func (c *Config) Piece() (int, bool) {
	p, err := strconv.Atoi(c.Action)
	return p, err == nil
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	switch cfg.Action {
	case "merge", "all", "search":
	case "estimate":
		if cfg.Row < 0 && cfg.Query == "" {
			return ErrMissingQuery
		}
	default:
		p, ok := cfg.Piece()
		if !ok {
			return ErrInvalidAction
		}
		if p < 1 || p > cfg.Pieces {
			return ErrInvalidPiece
		}
	}
	if cfg.Pieces < 1 {
		return ErrInvalidPieces
	}
	if cfg.Obs == "" && cfg.Dataset == "" {
		return ErrMissingDataset
	}
	switch cfg.Storage {
	case "local":
	case "s3":
		if cfg.Bucket == "" {
			return ErrMissingBucket
		}
	case "minio":
		if cfg.Bucket == "" {
			return ErrMissingBucket
		}
		if cfg.Endpoint == "" {
			return ErrMissingEndpoint
		}
	default:
		return ErrInvalidStorage
	}
	switch cfg.Ledger {
	case "none", "blob":
	case "dynamodb":
		if cfg.LedgerTable == "" {
			return ErrMissingLedgerTable
		}
	default:
		return ErrInvalidLedger
	}
	if cfg.Workers < 1 || cfg.Parallel < 1 {
		return ErrInvalidWorkers
	}
	if _, err := cache.ParseCompression(cfg.Compression); err != nil {
		return err
	}
	if _, err := cache.ParseFormat(cfg.Format); err != nil {
		return err
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return ErrInvalidLogFormat
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug", "info", "warn", "error":
	default:
		return 0, ErrInvalidLogLevel
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, ErrInvalidLogLevel
	}
	return level, nil
}

// ParseQuery parses a comma separated vector.
func ParseQuery(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	q := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: query component %d: %w", knncache.ErrInvalidArgument, i+1, err)
		}
		q[i] = v
	}
	return q, nil
}

func newLogger(cfg *Config, w io.Writer) (*knncache.Logger, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.LogFormat == "json" {
		return knncache.NewJSONLogger(w, level), nil
	}
	return knncache.NewTextLogger(w, level), nil
}
