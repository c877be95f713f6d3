// Package types defines core domain types for the imgbatch pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// BatchMeta carries the identity of one batch invocation.
// Every log line, report and ledger record of the batch is keyed by BatchID.
type BatchMeta struct {
	// BatchID uniquely identifies the invocation.
	BatchID string
	// StartedAt is the wall-clock start of the batch.
	StartedAt time.Time
}

// NewBatchMeta returns metadata with a fresh random batch id.
func NewBatchMeta(now time.Time) *BatchMeta {
	return &BatchMeta{
		BatchID:   uuid.New().String(),
		StartedAt: now,
	}
}

// Validate checks that the batch has an identity and a start time.
func (m *BatchMeta) Validate() error {
	if m == nil {
		return errors.New("batch metadata is required")
	}
	if m.BatchID == "" {
		return errors.New("batch_id must be non-empty")
	}
	if m.StartedAt.IsZero() {
		return errors.New("started_at must be set")
	}
	return nil
}

// Day returns the UTC partition day (YYYY-MM-DD) of the batch start.
func (m *BatchMeta) Day() string {
	return m.StartedAt.UTC().Format("2006-01-02")
}
