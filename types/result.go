package types

import (
	"sort"
	"time"
)

// TaskOutcome is the terminal record of one pipeline task.
type TaskOutcome struct {
	Seq       int64
	Path      string
	State     TaskState
	Spec      *ResizeSpec
	Durations map[Stage]time.Duration
	// Err is nil for succeeded tasks.
	Err error
	// FailedStage is the state the task was in when it failed.
	FailedStage TaskState
}

// Succeeded reports whether the task wrote its output.
func (o TaskOutcome) Succeeded() bool { return o.State == TaskSucceeded }

// OutcomeOf snapshots a terminal task.
func OutcomeOf(t *PipelineTask) TaskOutcome {
	durations := make(map[Stage]time.Duration, len(t.Durations))
	for k, v := range t.Durations {
		durations[k] = v
	}
	return TaskOutcome{
		Seq:         t.Seq,
		Path:        t.Path,
		State:       t.State,
		Spec:        t.Spec,
		Durations:   durations,
		Err:         t.Err,
		FailedStage: t.FailedStage,
	}
}

// TaskFailure identifies a failed source file and its cause.
type TaskFailure struct {
	Seq  int64
	Path string
	Err  error
}

// BatchResult is the aggregate outcome of one invocation.
type BatchResult struct {
	Meta *BatchMeta
	// Scale is the factor the batch was run with.
	Scale float64
	// SourceRoot and DestRoot are the directories the batch ran against.
	SourceRoot string
	DestRoot   string
	// Outcomes holds one entry per discovered file, ordered by Seq.
	Outcomes []TaskOutcome
	// Duration is the wall-clock time from discovery to the final join.
	Duration time.Duration
}

// NewBatchResult builds a result from outcomes collected in any order.
func NewBatchResult(meta *BatchMeta, outcomes []TaskOutcome) *BatchResult {
	sorted := make([]TaskOutcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	return &BatchResult{Meta: meta, Outcomes: sorted}
}

// Total returns the number of tasks in the batch.
func (r *BatchResult) Total() int { return len(r.Outcomes) }

// Succeeded returns the number of tasks that wrote their output.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed tasks.
func (r *BatchResult) Failed() int {
	return r.Total() - r.Succeeded()
}

// Failures lists failed tasks in sequence order.
func (r *BatchResult) Failures() []TaskFailure {
	var out []TaskFailure
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			out = append(out, TaskFailure{Seq: o.Seq, Path: o.Path, Err: o.Err})
		}
	}
	return out
}
