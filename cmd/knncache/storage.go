package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/knncache/blobstore"
	miniostore "github.com/hupe1980/knncache/blobstore/minio"
	s3store "github.com/hupe1980/knncache/blobstore/s3"
	"github.com/hupe1980/knncache/dataset"
	"github.com/hupe1980/knncache/ledger"
	ddbledger "github.com/hupe1980/knncache/ledger/dynamodb"
)

var datasetExts = []string{".csv", ".parquet", ".arrow"}

func obsDir(cfg *Config) string {
	if cfg.Obs == "" {
		return ""
	}
	return "obs" + cfg.Obs
}

// DatasetPath resolves the dataset file: --dataset if set, else the first
// existing <dataDir>/obs<obs>/features.{csv,parquet,arrow}.
func DatasetPath(cfg *Config) (string, error) {
	if cfg.Dataset != "" {
		return cfg.Dataset, nil
	}
	dir := filepath.Join(cfg.DataDir, obsDir(cfg))
	for _, ext := range datasetExts {
		p := filepath.Join(dir, "features"+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no features file in %s: %w", dir, fs.ErrNotExist)
}

func loadDataset(ctx context.Context, cfg *Config) (*dataset.Dataset, error) {
	p, err := DatasetPath(cfg)
	if err != nil {
		return nil, err
	}
	return dataset.Load(ctx, p, dataset.LoadOptions{Target: cfg.Target})
}

// CachePrefix is the location of cache files: a directory for local
// storage and a key prefix for remote storage.
func CachePrefix(cfg *Config) string {
	if cfg.Storage == "local" {
		return filepath.Join(cfg.DataDir, obsDir(cfg), "caches")
	}
	return path.Join(cfg.Prefix, obsDir(cfg), "caches")
}

type backends struct {
	store  blobstore.BlobStore
	ledger ledger.Ledger
}

func loadAWS(ctx context.Context, cfg *Config, awsCfg *aws.Config) error {
	if awsCfg.Credentials != nil {
		return nil
	}
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	c, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	*awsCfg = c
	return nil
}

func openBackends(ctx context.Context, cfg *Config) (backends, error) {
	var (
		b      backends
		awsCfg aws.Config
	)
	prefix := CachePrefix(cfg)

	switch cfg.Storage {
	case "local":
		store, err := blobstore.NewLocalStore(prefix)
		if err != nil {
			return b, err
		}
		b.store = store
	case "s3":
		if err := loadAWS(ctx, cfg, &awsCfg); err != nil {
			return b, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		b.store = s3store.NewStore(client, cfg.Bucket, prefix)
	case "minio":
		creds := credentials.NewEnvMinio()
		if cfg.AccessKey != "" {
			creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
		}
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  creds,
			Secure: !cfg.Insecure,
			Region: cfg.Region,
		})
		if err != nil {
			return b, fmt.Errorf("minio client: %w", err)
		}
		b.store = miniostore.NewStore(client, cfg.Bucket, prefix)
	default:
		return b, ErrInvalidStorage
	}

	switch cfg.Ledger {
	case "none":
	case "blob":
		l, err := ledger.NewBlobLedger(b.store)
		if err != nil {
			return b, err
		}
		b.ledger = l
	case "dynamodb":
		if err := loadAWS(ctx, cfg, &awsCfg); err != nil {
			return b, err
		}
		b.ledger = ddbledger.New(dynamodb.NewFromConfig(awsCfg), cfg.LedgerTable)
	default:
		return b, ErrInvalidLedger
	}
	return b, nil
}
