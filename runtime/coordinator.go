// Package runtime coordinates a batch: discovery, dispatch of one pipeline
// task per image, the final join and result aggregation.
package runtime

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pithecene-io/imgbatch/catalog"
	"github.com/pithecene-io/imgbatch/log"
	"github.com/pithecene-io/imgbatch/metrics"
	"github.com/pithecene-io/imgbatch/plan"
	"github.com/pithecene-io/imgbatch/stage"
	"github.com/pithecene-io/imgbatch/types"
)

// ErrBatchRunning is returned when Run is called while a batch is in progress.
var ErrBatchRunning = errors.New("coordinator is already running a batch")

// TaskObserver is called once per task when it reaches a terminal state.
// Calls arrive concurrently from task goroutines.
type TaskObserver func(types.TaskOutcome)

// Config configures a Coordinator.
type Config struct {
	// Meta is the batch identity. If nil, a fresh one is created per Run.
	Meta *types.BatchMeta
	// Workers is the stage pool size. Values < 1 use runtime.NumCPU().
	Workers int
	// MaxInFlight bounds tasks holding decoded buffers at once.
	// Values < 1 use 2 x Workers.
	MaxInFlight int
	// Quality is the JPEG quality. Zero uses stage.DefaultQuality.
	Quality int
	// Clean deletes every file under the destination before dispatch.
	Clean bool
	// Logger receives batch and stage lines. If nil, logging is disabled.
	Logger *log.Logger
	// Collector receives task and stage metrics. Optional (nil-safe).
	Collector *metrics.Collector
	// StageObserver receives every stage start/finish event. Optional.
	StageObserver types.StageObserver
	// TaskObserver receives every terminal task outcome. Optional.
	TaskObserver TaskObserver
	// Runner overrides the stage executor (for testing).
	// If nil, a stage.Executor on a fresh pool of Workers is used.
	Runner stage.Runner
}

// Coordinator runs batches. A Coordinator runs one batch at a time.
type Coordinator struct {
	config Config
	logger *log.Logger

	// seq hands out dispatch sequence indexes, starting at 1 per batch.
	seq     atomic.Int64
	running atomic.Bool
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(config Config) *Coordinator {
	logger := config.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Coordinator{config: config, logger: logger}
}

// Run resizes every image under source by scale into dest.
//
// The returned error is non-nil only when the batch could not start: a
// missing source root (*types.NotFoundError) or an unusable destination
// (*types.IOError). Per-task failures are reported in the result and never
// affect sibling tasks. Run returns only after every dispatched task has
// reached a terminal state.
//
// Cancelling ctx fails the tasks that have not yet started decoding; tasks
// already in flight run to completion.
func (c *Coordinator) Run(ctx context.Context, source, dest string, scale float64) (*types.BatchResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrBatchRunning
	}
	defer c.running.Store(false)

	meta := c.config.Meta
	if meta == nil {
		meta = types.NewBatchMeta(time.Now())
	}
	start := time.Now()

	paths, err := catalog.Discover(source)
	if err != nil {
		c.logger.Error("discovery failed", map[string]any{
			"source": source,
			"error":  err.Error(),
		})
		return nil, err
	}

	if err := prepareDest(dest, c.config.Clean); err != nil {
		c.logger.Error("destination unusable", map[string]any{
			"dest":  dest,
			"error": err.Error(),
		})
		return nil, err
	}

	workers, maxInFlight := c.limits()
	runner := c.config.Runner
	if runner == nil {
		pool := stage.NewPool(workers)
		defer pool.Close()
		runner = stage.NewExecutor(stage.ExecutorConfig{
			Pool:     pool,
			Logger:   c.logger,
			Metrics:  c.config.Collector,
			Observer: c.config.StageObserver,
			Quality:  c.config.Quality,
		})
	}

	c.logger.Info("starting batch", map[string]any{
		"source":        source,
		"dest":          dest,
		"scale":         scale,
		"files":         len(paths),
		"workers":       workers,
		"max_in_flight": maxInFlight,
	})

	c.seq.Store(0)
	outcomes := make([]types.TaskOutcome, len(paths))
	sem := semaphore.NewWeighted(int64(maxInFlight))

	var g errgroup.Group
	for _, path := range paths {
		task := types.NewPipelineTask(c.seq.Add(1), path)
		c.config.Collector.IncTaskDispatched()
		g.Go(func() error {
			outcome := c.runTask(ctx, runner, sem, task, dest, scale)
			outcomes[task.Seq-1] = outcome
			c.observe(outcome)
			return nil
		})
	}
	// Tasks never return errors; Wait is the single join point.
	_ = g.Wait()

	result := types.NewBatchResult(meta, outcomes)
	result.Scale = scale
	result.SourceRoot = source
	result.DestRoot = dest
	result.Duration = time.Since(start)

	c.logger.Info("batch completed", map[string]any{
		"total":       result.Total(),
		"succeeded":   result.Succeeded(),
		"failed":      result.Failed(),
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// limits resolves the pool size and in-flight bound.
func (c *Coordinator) limits() (workers, maxInFlight int) {
	workers = stage.ResolveWorkers(c.config.Workers)
	maxInFlight = c.config.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 2 * workers
	}
	return workers, maxInFlight
}

// runTask drives one task through decode, transform and persist.
// It always returns a terminal outcome.
func (c *Coordinator) runTask(
	ctx context.Context,
	runner stage.Runner,
	sem *semaphore.Weighted,
	task *types.PipelineTask,
	dest string,
	scale float64,
) types.TaskOutcome {
	if err := ctx.Err(); err != nil {
		return c.fail(task, err)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return c.fail(task, err)
	}
	defer sem.Release(1)

	// Once a slot is held the task runs to a terminal state regardless of ctx.
	ctx = context.WithoutCancel(ctx)

	if err := task.Advance(types.TaskDecoding); err != nil {
		return c.fail(task, err)
	}
	src, err := runner.Decode(ctx, task)
	if err != nil {
		return c.fail(task, err)
	}

	spec := plan.Plan(src.Width, src.Height, scale, dest, filepath.Base(task.Path))
	task.Spec = &spec

	if err := task.Advance(types.TaskTransforming); err != nil {
		return c.fail(task, err)
	}
	img, err := runner.Transform(ctx, task, src, spec)
	if err != nil {
		return c.fail(task, err)
	}

	if err := task.Advance(types.TaskPersisting); err != nil {
		return c.fail(task, err)
	}
	if err := runner.Persist(ctx, task, img, spec); err != nil {
		return c.fail(task, err)
	}

	if err := task.Advance(types.TaskSucceeded); err != nil {
		return c.fail(task, err)
	}
	c.config.Collector.IncTaskSucceeded()
	return types.OutcomeOf(task)
}

func (c *Coordinator) fail(task *types.PipelineTask, err error) types.TaskOutcome {
	_ = task.Fail(err)
	kind := types.ErrorKind(err)
	c.config.Collector.IncTaskFailed(kind)
	c.logger.Warn("task failed", map[string]any{
		"seq":        task.Seq,
		"path":       task.Path,
		"state":      string(task.FailedStage),
		"error_kind": kind,
		"error":      err.Error(),
	})
	return types.OutcomeOf(task)
}

func (c *Coordinator) observe(outcome types.TaskOutcome) {
	if c.config.TaskObserver != nil {
		c.config.TaskObserver(outcome)
	}
}

// prepareDest creates dest if needed and, when clean is set, removes every
// file beneath it. Directories are kept.
func prepareDest(dest string, clean bool) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return types.NewIOError("mkdir", dest, err)
	}
	if !clean {
		return nil
	}
	return filepath.WalkDir(dest, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return types.NewIOError("clean", path, err)
		}
		if d.IsDir() {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return types.NewIOError("clean", path, err)
		}
		return nil
	})
}
