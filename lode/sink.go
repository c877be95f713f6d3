// Package lode persists the batch task ledger to Lode.
//
// Every batch writes one record per task and one summary record to a
// Hive-partitioned dataset keyed by day, batch_id and record_kind.
package lode

import (
	"context"
	"time"

	"github.com/pithecene-io/imgbatch/metrics"
	"github.com/pithecene-io/imgbatch/types"
)

// DefaultDataset is the Lode dataset ID used by imgbatch.
const DefaultDataset = "imgbatch"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "batch_id", "record_kind"}

// DeriveDay computes the partition day from batch start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds ledger configuration. All partition keys are required.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Day is the partition key derived from batch start time (YYYY-MM-DD UTC).
	Day string
	// BatchID is the partition key for the batch identifier.
	BatchID string
}

// ConfigFor derives a ledger Config from batch metadata.
func ConfigFor(meta *types.BatchMeta) Config {
	return Config{
		Dataset: DefaultDataset,
		Day:     meta.Day(),
		BatchID: meta.BatchID,
	}
}

// Client abstracts the Lode storage client.
// LodeClient is the real implementation; tests may use stubs.
type Client interface {
	// WriteTasks writes task records. Must preserve ordering within the call.
	WriteTasks(ctx context.Context, records []TaskRecord) error

	// WriteSummary writes the batch summary record.
	WriteSummary(ctx context.Context, record SummaryRecord) error

	// Close releases client resources.
	Close() error
}

// Sink writes a finished batch to the ledger and records per-call write
// metrics on the collector.
type Sink struct {
	config    Config
	client    Client
	collector *metrics.Collector
}

// NewSink creates a ledger sink. collector may be nil.
func NewSink(config Config, client Client, collector *metrics.Collector) *Sink {
	return &Sink{
		config:    config,
		client:    client,
		collector: collector,
	}
}

// WriteBatch writes every task outcome, then the summary. The summary is
// skipped when the task write fails so a summary always implies its tasks.
func (s *Sink) WriteBatch(ctx context.Context, result *types.BatchResult, snap metrics.Snapshot) error {
	if len(result.Outcomes) > 0 {
		records := make([]TaskRecord, 0, len(result.Outcomes))
		for _, o := range result.Outcomes {
			records = append(records, NewTaskRecord(o, s.config))
		}
		if err := s.record(s.client.WriteTasks(ctx, records)); err != nil {
			return err
		}
	}
	return s.record(s.client.WriteSummary(ctx, NewSummaryRecord(result, snap, s.config)))
}

func (s *Sink) record(err error) error {
	if err != nil {
		s.collector.IncLedgerWriteFailure()
		return err
	}
	s.collector.IncLedgerWriteSuccess()
	return nil
}

// Close releases the underlying client.
func (s *Sink) Close() error {
	return s.client.Close()
}
