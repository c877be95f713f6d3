package stage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"

	"github.com/pithecene-io/imgbatch/iox"
	"github.com/pithecene-io/imgbatch/log"
	"github.com/pithecene-io/imgbatch/metrics"
	"github.com/pithecene-io/imgbatch/types"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// errZeroArea is wrapped in EncodeError when asked to persist an empty image.
var errZeroArea = errors.New("zero-area image cannot be encoded as JPEG")

// Runner executes the three stages of one pipeline task.
// *Executor is the production implementation.
type Runner interface {
	Decode(ctx context.Context, task *types.PipelineTask) (*types.SourceImage, error)
	Transform(ctx context.Context, task *types.PipelineTask, src *types.SourceImage, spec types.ResizeSpec) (*types.ProcessedImage, error)
	Persist(ctx context.Context, task *types.PipelineTask, img *types.ProcessedImage, spec types.ResizeSpec) error
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Pool runs stage work. Required.
	Pool *Pool
	// Logger receives stage start/finish lines. Nil disables logging.
	Logger *log.Logger
	// Metrics receives stage durations and bytes written. Optional.
	Metrics *metrics.Collector
	// Observer receives every stage event. Optional.
	Observer types.StageObserver
	// Quality is the JPEG quality in [1,100]. Zero means DefaultQuality.
	Quality int
}

// Executor runs decode, transform and persist on its pool.
// Stages are not cancelable once started: ctx is accepted for symmetry with
// the Runner interface and is not consulted by the stage work itself.
type Executor struct {
	pool     *Pool
	logger   *log.Logger
	metrics  *metrics.Collector
	observer types.StageObserver
	quality  int
}

var _ Runner = (*Executor)(nil)

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	quality := cfg.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}
	if quality > 100 {
		quality = 100
	}
	return &Executor{
		pool:     cfg.Pool,
		logger:   logger,
		metrics:  cfg.Metrics,
		observer: cfg.Observer,
		quality:  quality,
	}
}

// Decode reads and decodes task.Path on a pool worker.
// Unreadable or malformed files yield *types.DecodeError.
func (e *Executor) Decode(_ context.Context, task *types.PipelineTask) (*types.SourceImage, error) {
	var src *types.SourceImage
	err := e.run(task, types.StageDecode, task.Path, func() error {
		var derr error
		src, derr = decodeFile(task.Path)
		return derr
	})
	return src, err
}

func decodeFile(path string) (*types.SourceImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.DecodeError{Path: path, Err: err}
	}
	defer iox.DiscardClose(f)

	pixels, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, &types.DecodeError{Path: path, Err: err}
	}
	b := pixels.Bounds()
	return &types.SourceImage{
		Path:   path,
		Pixels: pixels,
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
	}, nil
}

// Transform resamples src to the spec's dimensions with Catmull-Rom on a pool
// worker. The source buffer is only read. A zero width or height yields an
// empty image; negative dimensions yield *types.TransformError.
func (e *Executor) Transform(_ context.Context, task *types.PipelineTask, src *types.SourceImage, spec types.ResizeSpec) (*types.ProcessedImage, error) {
	var out *types.ProcessedImage
	err := e.run(task, types.StageTransform, task.Path, func() error {
		var terr error
		out, terr = resample(task.Path, src, spec)
		return terr
	})
	return out, err
}

func resample(path string, src *types.SourceImage, spec types.ResizeSpec) (*types.ProcessedImage, error) {
	if src == nil || src.Pixels == nil {
		return nil, &types.TransformError{Path: path, Err: errors.New("no source pixels")}
	}
	if spec.DestWidth < 0 || spec.DestHeight < 0 {
		return nil, &types.TransformError{
			Path: path,
			Err:  fmt.Errorf("negative destination size %dx%d", spec.DestWidth, spec.DestHeight),
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, spec.DestWidth, spec.DestHeight))
	srcBounds := src.Pixels.Bounds()
	if !dst.Rect.Empty() && !srcBounds.Empty() {
		draw.CatmullRom.Scale(dst, dst.Rect, src.Pixels, srcBounds, draw.Src, nil)
	}
	return &types.ProcessedImage{Pixels: dst, DestPath: spec.DestPath}, nil
}

// Persist encodes img as JPEG and writes it to spec.DestPath on a pool worker.
// The bytes go to a temp file in the destination directory which is synced
// and renamed into place; on any failure the temp file is removed and the
// destination is left untouched.
func (e *Executor) Persist(_ context.Context, task *types.PipelineTask, img *types.ProcessedImage, spec types.ResizeSpec) error {
	return e.run(task, types.StagePersist, spec.DestPath, func() error {
		n, err := writeJPEG(img, spec.DestPath, e.quality)
		if err != nil {
			return err
		}
		e.metrics.AddBytesWritten(n)
		return nil
	})
}

func writeJPEG(img *types.ProcessedImage, dest string, quality int) (written int64, err error) {
	if w, h := img.Bounds(); w == 0 || h == 0 {
		return 0, &types.EncodeError{Path: dest, Err: errZeroArea}
	}

	dir, base := filepath.Split(dest)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return 0, types.NewIOError("create", dest, err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			iox.DiscardClose(f)
			iox.DiscardRemove(tmp)
		}
	}()

	cw := &iox.CountingWriter{W: f}
	bw := bufio.NewWriter(cw)
	if err := jpeg.Encode(bw, img.Pixels, &jpeg.Options{Quality: quality}); err != nil {
		return 0, &types.EncodeError{Path: dest, Err: err}
	}
	if err := bw.Flush(); err != nil {
		return 0, types.NewIOError("write", dest, err)
	}
	if err := f.Sync(); err != nil {
		return 0, types.NewIOError("sync", dest, err)
	}
	if err := f.Close(); err != nil {
		iox.DiscardRemove(tmp)
		committed = true
		return 0, types.NewIOError("close", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		iox.DiscardRemove(tmp)
		committed = true
		return 0, types.NewIOError("rename", dest, err)
	}
	committed = true
	return cw.N, nil
}

// run executes fn on a pool worker, bracketing it with stage events and
// recording the elapsed time on the task and the collector. A panic in fn
// becomes the stage's typed error for path.
func (e *Executor) run(task *types.PipelineTask, stage types.Stage, path string, fn func() error) error {
	var err error
	submitErr := e.pool.Submit(func(worker int) {
		e.emit(types.StageEvent{
			Seq:    task.Seq,
			Path:   task.Path,
			Stage:  stage,
			Phase:  types.PhaseStart,
			Worker: worker,
		})

		start := time.Now()
		err = recovered(stage, path, fn)
		elapsed := time.Since(start)

		task.Record(stage, elapsed)
		e.metrics.ObserveStage(string(stage), elapsed)
		e.emit(types.StageEvent{
			Seq:     task.Seq,
			Path:    task.Path,
			Stage:   stage,
			Phase:   types.PhaseFinish,
			Worker:  worker,
			Elapsed: elapsed,
			Err:     err,
		})
	})
	if submitErr != nil {
		return fmt.Errorf("%s stage for %s: %w", stage, task.Path, submitErr)
	}
	return err
}

func recovered(stage types.Stage, path string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = stageError(stage, path, fmt.Errorf("panic: %v", r))
		}
	}()
	return fn()
}

func stageError(stage types.Stage, path string, err error) error {
	switch stage {
	case types.StageDecode:
		return &types.DecodeError{Path: path, Err: err}
	case types.StageTransform:
		return &types.TransformError{Path: path, Err: err}
	default:
		return &types.EncodeError{Path: path, Err: err}
	}
}

func (e *Executor) emit(ev types.StageEvent) {
	e.logger.Stage(ev)
	if e.observer != nil {
		e.observer(ev)
	}
}
