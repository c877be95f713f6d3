package lode

import (
	"context"
	"errors"

	"github.com/justapithecus/lode/lode"
)

// ErrMissingPartition is returned when a record lacks a partition key value.
var ErrMissingPartition = errors.New("ledger record rejected: empty partition key")

// LodeClient is a real Lode-backed implementation of Client.
// Uses Lode's HiveLayout with partition keys: day/batch_id/record_kind.
type LodeClient struct {
	dataset lode.Dataset
	config  Config
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if cfg.Day == "" || cfg.BatchID == "" {
		return nil, ErrMissingPartition
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{dataset: ds, config: cfg}, nil
}

// WriteTasks writes task records in a single Lode snapshot.
func (c *LodeClient) WriteTasks(ctx context.Context, records []TaskRecord) error {
	if len(records) == 0 {
		return nil
	}
	items := make([]any, 0, len(records))
	for _, r := range records {
		items = append(items, r.toMap())
	}
	if _, err := c.dataset.Write(ctx, items, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindTask))
	}
	return nil
}

// WriteSummary writes the summary record in its own Lode snapshot.
func (c *LodeClient) WriteSummary(ctx context.Context, record SummaryRecord) error {
	if _, err := c.dataset.Write(ctx, []any{record.toMap()}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindSummary))
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

func (c *LodeClient) partitionPath(kind string) string {
	return c.config.Dataset + "/day=" + c.config.Day + "/batch_id=" + c.config.BatchID + "/record_kind=" + kind
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
