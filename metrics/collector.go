// Package metrics provides per-batch metrics collection.
//
// The Collector accumulates counters during a single batch. It is a leaf package
// with no internal dependencies: stage names and failure kinds are plain strings.
package metrics

import (
	"sync"
	"time"
)

// StageStats aggregates durations observed for one stage.
type StageStats struct {
	Count int64
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average duration, or zero when nothing was observed.
func (s StageStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Snapshot is an immutable point-in-time view of all batch metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Task lifecycle
	TasksDispatched int64
	TasksSucceeded  int64
	TasksFailed     int64
	FailedByKind    map[string]int64

	// Stages, keyed by stage name
	Stages map[string]StageStats

	// Output
	BytesWritten int64

	// Lode / Storage
	LedgerWriteSuccess int64
	LedgerWriteFailure int64

	// Dimensions (informational, set at construction)
	BatchID       string
	LedgerBackend string
}

// Collector accumulates metrics during a single batch.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	tasksDispatched int64
	tasksSucceeded  int64
	tasksFailed     int64
	failedByKind    map[string]int64

	stages map[string]StageStats

	bytesWritten int64

	ledgerWriteSuccess int64
	ledgerWriteFailure int64

	batchID       string
	ledgerBackend string
}

// NewCollector creates a Collector with dimension labels.
// ledgerBackend is empty when no ledger is configured.
func NewCollector(batchID, ledgerBackend string) *Collector {
	return &Collector{
		failedByKind:  make(map[string]int64),
		stages:        make(map[string]StageStats),
		batchID:       batchID,
		ledgerBackend: ledgerBackend,
	}
}

// --- Task lifecycle ---

// IncTaskDispatched records a task handed to the pipeline.
func (c *Collector) IncTaskDispatched() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.tasksDispatched++
	c.mu.Unlock()
}

// IncTaskSucceeded records a task that reached succeeded.
func (c *Collector) IncTaskSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.tasksSucceeded++
	c.mu.Unlock()
}

// IncTaskFailed records a failed task under its error kind.
func (c *Collector) IncTaskFailed(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.tasksFailed++
	c.failedByKind[kind]++
	c.mu.Unlock()
}

// --- Stages ---

// ObserveStage records one completed stage execution, successful or not.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	s := c.stages[stage]
	s.Count++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
	c.stages[stage] = s
	c.mu.Unlock()
}

// AddBytesWritten records encoded output bytes persisted to disk.
func (c *Collector) AddBytesWritten(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesWritten += n
	c.mu.Unlock()
}

// --- Lode / Storage ---
// Ledger counters are per-call, not per-record.

// IncLedgerWriteSuccess records a successful ledger write (per-call).
func (c *Collector) IncLedgerWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ledgerWriteSuccess++
	c.mu.Unlock()
}

// IncLedgerWriteFailure records a failed ledger write (per-call).
func (c *Collector) IncLedgerWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ledgerWriteFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	failed := make(map[string]int64, len(c.failedByKind))
	for k, v := range c.failedByKind {
		failed[k] = v
	}
	stages := make(map[string]StageStats, len(c.stages))
	for k, v := range c.stages {
		stages[k] = v
	}

	return Snapshot{
		TasksDispatched: c.tasksDispatched,
		TasksSucceeded:  c.tasksSucceeded,
		TasksFailed:     c.tasksFailed,
		FailedByKind:    failed,

		Stages: stages,

		BytesWritten: c.bytesWritten,

		LedgerWriteSuccess: c.ledgerWriteSuccess,
		LedgerWriteFailure: c.ledgerWriteFailure,

		BatchID:       c.batchID,
		LedgerBackend: c.ledgerBackend,
	}
}
