package lode

import (
	"time"

	"github.com/pithecene-io/imgbatch/metrics"
	"github.com/pithecene-io/imgbatch/types"
)

// RecordKind discriminator values. record_kind is also the last Hive
// partition key, so task and summary records land in separate partitions.
const (
	RecordKindTask    = "task"
	RecordKindSummary = "summary"
)

// TaskRecord is the storage format for one terminal pipeline task.
type TaskRecord struct {
	// Record discriminator
	RecordKind string `json:"record_kind"`

	Seq          int64            `json:"seq"`
	Path         string           `json:"path"`
	State        string           `json:"state"`
	DestPath     string           `json:"dest_path,omitempty"`
	SourceWidth  int              `json:"source_width,omitempty"`
	SourceHeight int              `json:"source_height,omitempty"`
	DestWidth    int              `json:"dest_width,omitempty"`
	DestHeight   int              `json:"dest_height,omitempty"`
	StageMs      map[string]int64 `json:"stage_ms,omitempty"`
	FailedStage  string           `json:"failed_stage,omitempty"`
	ErrorKind    string           `json:"error_kind,omitempty"`
	Error        string           `json:"error,omitempty"`

	// Partition keys (used by Lode HiveLayout)
	Day     string `json:"day"`
	BatchID string `json:"batch_id"`
}

// SummaryRecord is the storage format for the batch summary.
type SummaryRecord struct {
	// Record discriminator
	RecordKind string `json:"record_kind"`

	StartedAt    string           `json:"started_at"`
	Source       string           `json:"source"`
	Dest         string           `json:"dest"`
	Scale        float64          `json:"scale"`
	Total        int              `json:"total"`
	Succeeded    int              `json:"succeeded"`
	Failed       int              `json:"failed"`
	DurationMs   int64            `json:"duration_ms"`
	BytesWritten int64            `json:"bytes_written"`
	FailedByKind map[string]int64 `json:"failed_by_kind,omitempty"`
	StageMeanMs  map[string]int64 `json:"stage_mean_ms,omitempty"`

	// Partition keys
	Day     string `json:"day"`
	BatchID string `json:"batch_id"`
}

// NewTaskRecord converts a task outcome to its storage format.
func NewTaskRecord(o types.TaskOutcome, cfg Config) TaskRecord {
	r := TaskRecord{
		RecordKind: RecordKindTask,
		Seq:        o.Seq,
		Path:       o.Path,
		State:      string(o.State),
		Day:        cfg.Day,
		BatchID:    cfg.BatchID,
	}
	if o.Spec != nil {
		r.DestPath = o.Spec.DestPath
		r.SourceWidth = o.Spec.SourceWidth
		r.SourceHeight = o.Spec.SourceHeight
		r.DestWidth = o.Spec.DestWidth
		r.DestHeight = o.Spec.DestHeight
	}
	if len(o.Durations) > 0 {
		r.StageMs = make(map[string]int64, len(o.Durations))
		for stage, d := range o.Durations {
			r.StageMs[string(stage)] = d.Milliseconds()
		}
	}
	if o.Err != nil {
		r.FailedStage = string(o.FailedStage)
		r.ErrorKind = types.ErrorKind(o.Err)
		r.Error = o.Err.Error()
	}
	return r
}

// NewSummaryRecord converts a batch result and metrics snapshot to the
// summary storage format.
func NewSummaryRecord(result *types.BatchResult, snap metrics.Snapshot, cfg Config) SummaryRecord {
	r := SummaryRecord{
		RecordKind:   RecordKindSummary,
		Source:       result.SourceRoot,
		Dest:         result.DestRoot,
		Scale:        result.Scale,
		Total:        result.Total(),
		Succeeded:    result.Succeeded(),
		Failed:       result.Failed(),
		DurationMs:   result.Duration.Milliseconds(),
		BytesWritten: snap.BytesWritten,
		FailedByKind: snap.FailedByKind,
		Day:          cfg.Day,
		BatchID:      cfg.BatchID,
	}
	if result.Meta != nil {
		r.StartedAt = result.Meta.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(snap.Stages) > 0 {
		r.StageMeanMs = make(map[string]int64, len(snap.Stages))
		for name, s := range snap.Stages {
			r.StageMeanMs[name] = s.Mean().Milliseconds()
		}
	}
	return r
}

// toMap converts a task record to a map for Lode's JSONL codec.
// Lode's HiveLayout extracts partition keys from map fields.
func (r TaskRecord) toMap() map[string]any {
	m := map[string]any{
		"record_kind": r.RecordKind,
		"seq":         r.Seq,
		"path":        r.Path,
		"state":       r.State,
		"day":         r.Day,
		"batch_id":    r.BatchID,
	}
	if r.DestPath != "" {
		m["dest_path"] = r.DestPath
		m["source_width"] = r.SourceWidth
		m["source_height"] = r.SourceHeight
		m["dest_width"] = r.DestWidth
		m["dest_height"] = r.DestHeight
	}
	if r.StageMs != nil {
		m["stage_ms"] = r.StageMs
	}
	if r.Error != "" {
		m["failed_stage"] = r.FailedStage
		m["error_kind"] = r.ErrorKind
		m["error"] = r.Error
	}
	return m
}

// toMap converts a summary record to a map for Lode's JSONL codec.
func (r SummaryRecord) toMap() map[string]any {
	m := map[string]any{
		"record_kind":   r.RecordKind,
		"started_at":    r.StartedAt,
		"source":        r.Source,
		"dest":          r.Dest,
		"scale":         r.Scale,
		"total":         r.Total,
		"succeeded":     r.Succeeded,
		"failed":        r.Failed,
		"duration_ms":   r.DurationMs,
		"bytes_written": r.BytesWritten,
		"day":           r.Day,
		"batch_id":      r.BatchID,
	}
	if len(r.FailedByKind) > 0 {
		m["failed_by_kind"] = r.FailedByKind
	}
	if len(r.StageMeanMs) > 0 {
		m["stage_mean_ms"] = r.StageMeanMs
	}
	return m
}
