package types

import (
	"fmt"
	"time"
)

// Stage names a unit of per-image work executed on the stage pool.
type Stage string

// Pipeline stages in execution order.
const (
	StageDecode    Stage = "decode"
	StageTransform Stage = "transform"
	StagePersist   Stage = "persist"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageDecode, StageTransform, StagePersist}

// TaskState is a node in the per-task state machine:
//
//	dispatched -> decoding -> transforming -> persisting -> succeeded
//
// with every non-terminal state able to move to failed.
type TaskState string

// Task states.
const (
	TaskDispatched   TaskState = "dispatched"
	TaskDecoding     TaskState = "decoding"
	TaskTransforming TaskState = "transforming"
	TaskPersisting   TaskState = "persisting"
	TaskSucceeded    TaskState = "succeeded"
	TaskFailed       TaskState = "failed"
)

// IsTerminal reports whether no transition leaves this state.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// next is the only forward edge out of each non-terminal state.
var next = map[TaskState]TaskState{
	TaskDispatched:   TaskDecoding,
	TaskDecoding:     TaskTransforming,
	TaskTransforming: TaskPersisting,
	TaskPersisting:   TaskSucceeded,
}

// StateForStage returns the state a task is in while running stage.
func StateForStage(stage Stage) TaskState {
	switch stage {
	case StageDecode:
		return TaskDecoding
	case StageTransform:
		return TaskTransforming
	case StagePersist:
		return TaskPersisting
	default:
		return TaskFailed
	}
}

// PipelineTask is the unit of work for one source file.
// A task is handed between the coordinator and stage workers one stage at a
// time, so it is never accessed by two goroutines concurrently.
type PipelineTask struct {
	// Seq is the dispatch-order sequence index, starting at 1.
	Seq int64
	// Path is the source file path.
	Path string
	// State is the current state machine node.
	State TaskState
	// Durations records elapsed time per completed stage.
	Durations map[Stage]time.Duration
	// Spec is set once the resize plan is computed.
	Spec *ResizeSpec
	// Err is the terminal error for failed tasks.
	Err error
	// FailedStage is the state the task was in when it failed.
	FailedStage TaskState
}

// NewPipelineTask creates a dispatched task.
func NewPipelineTask(seq int64, path string) *PipelineTask {
	return &PipelineTask{
		Seq:       seq,
		Path:      path,
		State:     TaskDispatched,
		Durations: make(map[Stage]time.Duration, len(Stages)),
	}
}

// Advance moves the task along its single forward edge to want.
func (t *PipelineTask) Advance(want TaskState) error {
	if t.State.IsTerminal() {
		return fmt.Errorf("task %d: no transition out of terminal state %s", t.Seq, t.State)
	}
	if next[t.State] != want {
		return fmt.Errorf("task %d: invalid transition %s -> %s", t.Seq, t.State, want)
	}
	t.State = want
	return nil
}

// Fail moves the task to failed, recording err and the state it failed in.
func (t *PipelineTask) Fail(err error) error {
	if t.State.IsTerminal() {
		return fmt.Errorf("task %d: no transition out of terminal state %s", t.Seq, t.State)
	}
	t.FailedStage = t.State
	t.State = TaskFailed
	t.Err = err
	return nil
}

// Record stores the elapsed time of a completed stage.
func (t *PipelineTask) Record(stage Stage, d time.Duration) {
	t.Durations[stage] = d
}
