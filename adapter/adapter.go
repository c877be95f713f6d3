// Package adapter defines the notification boundary for finished batches.
//
// Adapters publish batch completion events to downstream systems.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/imgbatch/types"
)

// EventTypeBatchCompleted is the event_type of every published event.
const EventTypeBatchCompleted = "batch_completed"

// Batch outcomes carried by BatchCompletedEvent.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
)

// DefaultBackoff is the delay before the first retry; it doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// BatchCompletedEvent is the payload published when a batch finishes.
type BatchCompletedEvent struct {
	ContractVersion string  `json:"contract_version"`
	EventType       string  `json:"event_type"` // always "batch_completed"
	BatchID         string  `json:"batch_id"`
	Day             string  `json:"day"`
	Source          string  `json:"source"`
	Dest            string  `json:"dest"`
	Scale           float64 `json:"scale"`
	Outcome         string  `json:"outcome"` // success or partial
	Total           int     `json:"total"`
	Succeeded       int     `json:"succeeded"`
	Failed          int     `json:"failed"`
	DurationMs      int64   `json:"duration_ms"`
	Timestamp       string  `json:"timestamp"` // ISO 8601
	LedgerPath      string  `json:"ledger_path,omitempty"`
}

// NewBatchCompletedEvent builds the event for a finished batch.
// ledgerPath is empty when no ledger was written.
func NewBatchCompletedEvent(result *types.BatchResult, ledgerPath string, now time.Time) *BatchCompletedEvent {
	event := &BatchCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventTypeBatchCompleted,
		Source:          result.SourceRoot,
		Dest:            result.DestRoot,
		Scale:           result.Scale,
		Outcome:         OutcomeSuccess,
		Total:           result.Total(),
		Succeeded:       result.Succeeded(),
		Failed:          result.Failed(),
		DurationMs:      result.Duration.Milliseconds(),
		Timestamp:       now.UTC().Format(time.RFC3339),
		LedgerPath:      ledgerPath,
	}
	if result.Failed() > 0 {
		event.Outcome = OutcomePartial
	}
	if result.Meta != nil {
		event.BatchID = result.Meta.BatchID
		event.Day = result.Meta.Day()
	}
	return event
}

// Adapter publishes batch completion events to a downstream system.
// Implementations are single-use per batch.
type Adapter interface {
	// Publish sends a batch completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *BatchCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Retry calls attempt up to 1+retries times with exponential backoff between
// calls, starting at backoff. It stops early when attempt succeeds, when
// permanent reports the error as non-retriable, or when ctx is done.
// name prefixes returned errors.
func Retry(
	ctx context.Context,
	name string,
	retries int,
	backoff time.Duration,
	permanent func(error) bool,
	attempt func(context.Context) error,
) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		// No wait before the first attempt.
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff << (i - 1)):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
