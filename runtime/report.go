package runtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/imgbatch/metrics"
	"github.com/pithecene-io/imgbatch/types"
)

// Report formats accepted by WriteBatchReport.
const (
	ReportFormatJSON    = "json"
	ReportFormatYAML    = "yaml"
	ReportFormatMsgpack = "msgpack"
)

// BatchReport is the structured report written by --report.
type BatchReport struct {
	BatchID    string  `json:"batch_id" yaml:"batch_id" msgpack:"batch_id"`
	StartedAt  string  `json:"started_at" yaml:"started_at" msgpack:"started_at"`
	Source     string  `json:"source" yaml:"source" msgpack:"source"`
	Dest       string  `json:"dest" yaml:"dest" msgpack:"dest"`
	Scale      float64 `json:"scale" yaml:"scale" msgpack:"scale"`
	ExitCode   int     `json:"exit_code" yaml:"exit_code" msgpack:"exit_code"`
	DurationMs int64   `json:"duration_ms" yaml:"duration_ms" msgpack:"duration_ms"`
	Total      int     `json:"total" yaml:"total" msgpack:"total"`
	Succeeded  int     `json:"succeeded" yaml:"succeeded" msgpack:"succeeded"`
	Failed     int     `json:"failed" yaml:"failed" msgpack:"failed"`

	Tasks   []ReportTask   `json:"tasks" yaml:"tasks" msgpack:"tasks"`
	Metrics *ReportMetrics `json:"metrics" yaml:"metrics" msgpack:"metrics"`
}

// ReportTask is one task line of the report.
type ReportTask struct {
	Seq         int64             `json:"seq" yaml:"seq" msgpack:"seq"`
	Path        string            `json:"path" yaml:"path" msgpack:"path"`
	State       string            `json:"state" yaml:"state" msgpack:"state"`
	Spec        *types.ResizeSpec `json:"spec,omitempty" yaml:"spec,omitempty" msgpack:"spec,omitempty"`
	StageMs     map[string]int64  `json:"stage_ms,omitempty" yaml:"stage_ms,omitempty" msgpack:"stage_ms,omitempty"`
	FailedStage string            `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty" msgpack:"failed_stage,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty" yaml:"error_kind,omitempty" msgpack:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty" yaml:"error,omitempty" msgpack:"error,omitempty"`
}

// ReportMetrics holds the metrics snapshot in the report.
type ReportMetrics struct {
	TasksDispatched    int64                  `json:"tasks_dispatched" yaml:"tasks_dispatched" msgpack:"tasks_dispatched"`
	TasksSucceeded     int64                  `json:"tasks_succeeded" yaml:"tasks_succeeded" msgpack:"tasks_succeeded"`
	TasksFailed        int64                  `json:"tasks_failed" yaml:"tasks_failed" msgpack:"tasks_failed"`
	FailedByKind       map[string]int64       `json:"failed_by_kind,omitempty" yaml:"failed_by_kind,omitempty" msgpack:"failed_by_kind,omitempty"`
	Stages             map[string]ReportStage `json:"stages" yaml:"stages" msgpack:"stages"`
	BytesWritten       int64                  `json:"bytes_written" yaml:"bytes_written" msgpack:"bytes_written"`
	LedgerWriteSuccess int64                  `json:"ledger_write_success" yaml:"ledger_write_success" msgpack:"ledger_write_success"`
	LedgerWriteFailure int64                  `json:"ledger_write_failure" yaml:"ledger_write_failure" msgpack:"ledger_write_failure"`
}

// ReportStage holds per-stage timing in the report.
type ReportStage struct {
	Count   int64 `json:"count" yaml:"count" msgpack:"count"`
	TotalMs int64 `json:"total_ms" yaml:"total_ms" msgpack:"total_ms"`
	MeanMs  int64 `json:"mean_ms" yaml:"mean_ms" msgpack:"mean_ms"`
	MaxMs   int64 `json:"max_ms" yaml:"max_ms" msgpack:"max_ms"`
}

// BuildBatchReport composes a BatchReport from a BatchResult and metrics snapshot.
// The exitCode is the process exit code that will be returned to the caller.
func BuildBatchReport(result *types.BatchResult, snap metrics.Snapshot, exitCode int) *BatchReport {
	report := &BatchReport{
		Source:     result.SourceRoot,
		Dest:       result.DestRoot,
		Scale:      result.Scale,
		ExitCode:   exitCode,
		DurationMs: result.Duration.Milliseconds(),
		Total:      result.Total(),
		Succeeded:  result.Succeeded(),
		Failed:     result.Failed(),
		Tasks:      make([]ReportTask, 0, len(result.Outcomes)),
		Metrics:    buildReportMetrics(snap),
	}
	if result.Meta != nil {
		report.BatchID = result.Meta.BatchID
		report.StartedAt = result.Meta.StartedAt.UTC().Format(time.RFC3339Nano)
	}

	for _, o := range result.Outcomes {
		task := ReportTask{
			Seq:   o.Seq,
			Path:  o.Path,
			State: string(o.State),
			Spec:  o.Spec,
		}
		if len(o.Durations) > 0 {
			task.StageMs = make(map[string]int64, len(o.Durations))
			for stage, d := range o.Durations {
				task.StageMs[string(stage)] = d.Milliseconds()
			}
		}
		if o.Err != nil {
			task.FailedStage = string(o.FailedStage)
			task.ErrorKind = types.ErrorKind(o.Err)
			task.Error = o.Err.Error()
		}
		report.Tasks = append(report.Tasks, task)
	}

	return report
}

func buildReportMetrics(snap metrics.Snapshot) *ReportMetrics {
	m := &ReportMetrics{
		TasksDispatched:    snap.TasksDispatched,
		TasksSucceeded:     snap.TasksSucceeded,
		TasksFailed:        snap.TasksFailed,
		FailedByKind:       snap.FailedByKind,
		Stages:             make(map[string]ReportStage, len(snap.Stages)),
		BytesWritten:       snap.BytesWritten,
		LedgerWriteSuccess: snap.LedgerWriteSuccess,
		LedgerWriteFailure: snap.LedgerWriteFailure,
	}
	names := make([]string, 0, len(snap.Stages))
	for name := range snap.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := snap.Stages[name]
		m.Stages[name] = ReportStage{
			Count:   s.Count,
			TotalMs: s.Total.Milliseconds(),
			MeanMs:  s.Mean().Milliseconds(),
			MaxMs:   s.Max.Milliseconds(),
		}
	}
	return m
}

// ValidReportFormat reports whether format is accepted by WriteBatchReport.
func ValidReportFormat(format string) bool {
	switch format {
	case ReportFormatJSON, ReportFormatYAML, ReportFormatMsgpack:
		return true
	default:
		return false
	}
}

// WriteBatchReport writes the report in format to the specified path.
// If path is "-", writes to stderr.
func WriteBatchReport(report *BatchReport, path, format string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeBatchReportTo(report, format, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := writeBatchReportTo(report, format, &buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeBatchReportTo encodes report to any writer.
func writeBatchReportTo(report *BatchReport, format string, w io.Writer) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case ReportFormatJSON, "":
		data, err = json.MarshalIndent(report, "", "  ")
		data = append(data, '\n')
	case ReportFormatYAML:
		data, err = yaml.Marshal(report)
	case ReportFormatMsgpack:
		data, err = msgpack.Marshal(report)
	default:
		return fmt.Errorf("unknown report format %q (want json, yaml or msgpack)", format)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = w.Write(data)
	return err
}
