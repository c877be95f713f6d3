package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/imgbatch/metrics"
)

// Ledger storage backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// StorageConfig selects and configures a ledger storage backend.
type StorageConfig struct {
	// Backend is "fs" (default) or "s3".
	Backend string
	// Path is a directory for fs, "bucket/prefix" for s3.
	Path string
	// Region, Endpoint and S3PathStyle apply to s3 only.
	Region      string
	Endpoint    string
	S3PathStyle bool
}

// NewFactory returns a Lode store factory for the configured backend.
// The same factory serves the write path and the read path.
func NewFactory(ctx context.Context, sc StorageConfig) (lode.StoreFactory, error) {
	if sc.Path == "" {
		return nil, errors.New("ledger path is required")
	}

	switch sc.Backend {
	case BackendFS, "":
		return lode.NewFSFactory(sc.Path), nil
	case BackendS3:
		bucket, prefix := ParseS3Path(sc.Path)
		return NewS3Factory(ctx, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       sc.Region,
			Endpoint:     sc.Endpoint,
			UsePathStyle: sc.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q (must be fs or s3)", sc.Backend)
	}
}

// Open builds a ledger sink for one batch on the configured backend.
func Open(ctx context.Context, sc StorageConfig, cfg Config, collector *metrics.Collector) (*Sink, error) {
	factory, err := NewFactory(ctx, sc)
	if err != nil {
		return nil, err
	}
	client, err := NewLodeClientWithFactory(cfg, factory)
	if err != nil {
		return nil, err
	}
	return NewSink(cfg, client, collector), nil
}
