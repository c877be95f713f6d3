package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imgbatch/adapter"
	redisadapter "github.com/pithecene-io/imgbatch/adapter/redis"
	"github.com/pithecene-io/imgbatch/adapter/webhook"
	"github.com/pithecene-io/imgbatch/cli/tui"
	"github.com/pithecene-io/imgbatch/lode"
	"github.com/pithecene-io/imgbatch/log"
	"github.com/pithecene-io/imgbatch/metrics"
	"github.com/pithecene-io/imgbatch/runtime"
	"github.com/pithecene-io/imgbatch/types"
)

// Exit codes for the run command.
const (
	exitSuccess      = 0
	exitTaskFailures = 1
	exitAborted      = 2
	exitConfigError  = 3
)

// RunCommand returns the run command.
// This is the only command that writes images.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Resize every image under a source directory into a destination directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to imgbatch.yaml (flags override its values)",
			},
			// Batch flags
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source directory, scanned recursively for png/jpg/jpeg",
			},
			&cli.StringFlag{
				Name:  "dest",
				Usage: "Destination directory (created if absent)",
			},
			&cli.Float64Flag{
				Name:  "scale",
				Usage: "Uniform scale factor (> 0)",
				Value: 1.0,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Stage pool size (0 = number of CPUs)",
			},
			&cli.IntFlag{
				Name:  "max-in-flight",
				Usage: "Max tasks holding decoded images at once (0 = 2 x workers)",
			},
			&cli.IntFlag{
				Name:  "quality",
				Usage: "JPEG quality 1-100 (0 = default)",
			},
			&cli.BoolFlag{
				Name:  "clean",
				Usage: "Delete every file under dest before processing",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the result summary",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show live progress (requires a terminal on stderr)",
			},
			// Report flags
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a batch report to this path (- for stderr)",
			},
			&cli.StringFlag{
				Name:  "report-format",
				Usage: "Report format: json, yaml, msgpack",
				Value: runtime.ReportFormatJSON,
			},
			// Ledger flags
			&cli.StringFlag{
				Name:  "ledger-backend",
				Usage: "Task ledger backend: fs or s3",
				Value: lode.BackendFS,
			},
			&cli.StringFlag{
				Name:  "ledger-path",
				Usage: "Task ledger path (fs: directory, s3: bucket/prefix); empty disables the ledger",
			},
			&cli.StringFlag{
				Name:  "ledger-s3-region",
				Usage: "AWS region for the s3 ledger (default chain if empty)",
			},
			&cli.StringFlag{
				Name:  "ledger-s3-endpoint",
				Usage: "Custom S3 endpoint for S3-compatible providers",
			},
			&cli.BoolFlag{
				Name:  "ledger-s3-path-style",
				Usage: "Use path-style S3 addressing",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Completion notification: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Webhook endpoint or redis:// URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel",
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Webhook header as Key=Value (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-attempt notification timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Notification retries after the first attempt",
				Value: webhook.DefaultRetries,
			},
		},
		Action: runAction,
	}
}

// ledgerChoice holds resolved ledger configuration.
type ledgerChoice struct {
	backend   string
	path      string
	region    string
	endpoint  string
	pathStyle bool
}

// adapterChoice holds resolved notification configuration.
type adapterChoice struct {
	typ     string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

// runOptions is the fully resolved configuration of one run.
type runOptions struct {
	source       string
	dest         string
	scale        float64
	workers      int
	maxInFlight  int
	quality      int
	clean        bool
	logLevel     string
	quiet        bool
	tui          bool
	reportPath   string
	reportFormat string
	ledger       ledgerChoice
	adapter      adapterChoice
}

func runAction(c *cli.Context) error {
	opts, err := loadRunOptions(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitConfigError)
	}

	level, err := log.ParseLevel(opts.logLevel)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitConfigError)
	}

	if opts.tui && !isStderrTTY() {
		fmt.Fprintln(c.App.ErrWriter, "Warning: --tui ignored, stderr is not a terminal")
		opts.tui = false
	}

	meta := types.NewBatchMeta(time.Now())
	logger := log.NewLogger(meta, level)
	if opts.tui {
		logger = logger.WithOutput(io.Discard)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode, err := executeBatch(ctx, c.App.Writer, opts, meta, logger)
	if err != nil {
		return err
	}
	return cli.Exit("", exitCode)
}

// executeBatch runs one batch and its post-run outputs. The returned error
// is a cli.ExitCoder for configuration and precondition failures.
func executeBatch(ctx context.Context, out io.Writer, opts runOptions, meta *types.BatchMeta, logger *log.Logger) (int, error) {
	collector := metrics.NewCollector(meta.BatchID, ledgerBackendName(opts.ledger))

	var sink *lode.Sink
	if opts.ledger.path != "" {
		s, err := lode.Open(ctx, lode.StorageConfig{
			Backend:     opts.ledger.backend,
			Path:        opts.ledger.path,
			Region:      opts.ledger.region,
			Endpoint:    opts.ledger.endpoint,
			S3PathStyle: opts.ledger.pathStyle,
		}, lode.ConfigFor(meta), collector)
		if err != nil {
			return 0, cli.Exit(fmt.Sprintf("failed to open ledger: %v", err), exitConfigError)
		}
		defer func() { _ = s.Close() }()
		sink = s
	}

	notifier, err := buildAdapter(opts.adapter)
	if err != nil {
		return 0, cli.Exit(fmt.Sprintf("failed to create adapter: %v", err), exitConfigError)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	config := runtime.Config{
		Meta:        meta,
		Workers:     opts.workers,
		MaxInFlight: opts.maxInFlight,
		Quality:     opts.quality,
		Clean:       opts.clean,
		Logger:      logger,
		Collector:   collector,
	}

	var progress *tui.Progress
	if opts.tui {
		progress = tui.StartProgress(os.Stderr, meta.BatchID)
		config.StageObserver = progress.ObserveStage
		config.TaskObserver = progress.ObserveTask
	}

	result, runErr := runtime.NewCoordinator(config).Run(ctx, opts.source, opts.dest, opts.scale)
	if progress != nil {
		if err := progress.Finish(result); err != nil {
			logger.Warn("progress view failed", map[string]any{"error": err.Error()})
		}
	}
	if runErr != nil {
		return 0, cli.Exit(fmt.Sprintf("batch aborted: %v", runErr), exitAborted)
	}

	exitCode := exitCodeFor(result)

	// Post-run outputs must not be lost to an interrupt that arrived
	// after the join.
	postCtx := context.WithoutCancel(ctx)

	if sink != nil {
		if err := sink.WriteBatch(postCtx, result, collector.Snapshot()); err != nil {
			logger.Error("ledger write failed", map[string]any{
				"error":      err.Error(),
				"error_kind": lode.ErrorKind(err),
			})
		}
	}

	if opts.reportPath != "" {
		report := runtime.BuildBatchReport(result, collector.Snapshot(), exitCode)
		if err := runtime.WriteBatchReport(report, opts.reportPath, opts.reportFormat); err != nil {
			logger.Error("report write failed", map[string]any{"error": err.Error(), "path": opts.reportPath})
		}
	}

	if notifier != nil {
		event := adapter.NewBatchCompletedEvent(result, opts.ledger.path, time.Now())
		if err := notifier.Publish(postCtx, event); err != nil {
			logger.Error("notification failed", map[string]any{"error": err.Error(), "adapter": opts.adapter.typ})
		}
	}

	if !opts.quiet {
		printBatchResult(out, result)
	}

	return exitCode, nil
}

func ledgerBackendName(l ledgerChoice) string {
	if l.path == "" {
		return ""
	}
	if l.backend == "" {
		return lode.BackendFS
	}
	return l.backend
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(a adapterChoice) (adapter.Adapter, error) {
	switch a.typ {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     a.url,
			Headers: a.headers,
			Timeout: a.timeout,
			Retries: a.retries,
		})
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:     a.url,
			Channel: a.channel,
			Timeout: a.timeout,
			Retries: a.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q (must be webhook or redis)", a.typ)
	}
}

// exitCodeFor maps a completed batch to its exit code.
func exitCodeFor(result *types.BatchResult) int {
	if result.Failed() > 0 {
		return exitTaskFailures
	}
	return exitSuccess
}

func printBatchResult(w io.Writer, result *types.BatchResult) {
	batchID := ""
	if result.Meta != nil {
		batchID = result.Meta.BatchID
	}

	fmt.Fprintf(w, "\n=== Batch Result ===\n")
	fmt.Fprintf(w, "Batch ID:     %s\n", batchID)
	fmt.Fprintf(w, "Source:       %s\n", result.SourceRoot)
	fmt.Fprintf(w, "Dest:         %s\n", result.DestRoot)
	fmt.Fprintf(w, "Scale:        %g\n", result.Scale)
	fmt.Fprintf(w, "Total:        %d\n", result.Total())
	fmt.Fprintf(w, "Succeeded:    %d\n", result.Succeeded())
	fmt.Fprintf(w, "Failed:       %d\n", result.Failed())
	fmt.Fprintf(w, "Duration:     %s\n", result.Duration.Round(time.Millisecond))

	failures := result.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(w, "\n=== Failures ===\n")
	for _, f := range failures {
		fmt.Fprintf(w, "  - %s: %v\n", f.Path, f.Err)
	}
}

// errNoSource and errNoDest are returned when neither a flag nor the
// config file names a directory.
var (
	errNoSource = errors.New("source directory is required (--source or source:)")
	errNoDest   = errors.New("destination directory is required (--dest or dest:)")
)
