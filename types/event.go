package types

import "time"

// StagePhase marks whether a stage event opens or closes a stage.
type StagePhase string

// Stage phases.
const (
	PhaseStart  StagePhase = "start"
	PhaseFinish StagePhase = "finish"
)

// StageEvent is emitted at entry and exit of every stage execution.
// Log lines, metrics and the progress view are all derived from it.
type StageEvent struct {
	Seq   int64
	Path  string
	Stage Stage
	Phase StagePhase
	// Worker is the 1-based identity of the pool worker running the stage.
	Worker int
	// Elapsed is the stage duration; zero on start events.
	Elapsed time.Duration
	// Err is set on finish events of failed stages.
	Err error
}

// StageObserver receives stage events. Implementations must be safe for
// concurrent use; events arrive from every worker.
type StageObserver func(StageEvent)
