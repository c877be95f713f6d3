package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imgbatch/cli/render"
	"github.com/pithecene-io/imgbatch/cli/tui"
	"github.com/pithecene-io/imgbatch/lode"
)

// SummaryCommand returns the summary command.
// It reads the latest batch summary record back from the task ledger.
func SummaryCommand() *cli.Command {
	flags := append(ReadOnlyFlags(),
		&cli.StringFlag{
			Name:     "ledger-path",
			Usage:    "Task ledger path (fs: directory, s3: bucket/prefix)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "ledger-backend",
			Usage: "Task ledger backend: fs or s3",
			Value: lode.BackendFS,
		},
		&cli.StringFlag{
			Name:  "ledger-s3-region",
			Usage: "AWS region for the s3 ledger",
		},
		&cli.StringFlag{
			Name:  "ledger-s3-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "ledger-s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
		&cli.StringFlag{
			Name:  "batch-id",
			Usage: "Batch to show (default: most recent)",
		},
	)

	return &cli.Command{
		Name:   "summary",
		Usage:  "Show a batch summary from the task ledger",
		Flags:  flags,
		Action: summaryAction,
	}
}

func summaryAction(c *cli.Context) error {
	factory, err := lode.NewFactory(c.Context, lode.StorageConfig{
		Backend:     c.String("ledger-backend"),
		Path:        c.String("ledger-path"),
		Region:      c.String("ledger-s3-region"),
		Endpoint:    c.String("ledger-s3-endpoint"),
		S3PathStyle: c.Bool("ledger-s3-path-style"),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ds, err := lode.NewReadDataset(lode.DefaultDataset, factory)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	record, err := lode.QueryLatestSummary(c.Context, ds, c.String("batch-id"))
	if err != nil {
		if errors.Is(err, lode.ErrNoSummaryFound) || errors.Is(err, lode.ErrNotFound) {
			return cli.Exit(err.Error(), exitTaskFailures)
		}
		return fmt.Errorf("query summary: %w", err)
	}

	if c.Bool("tui") {
		return tui.RunSummaryTUI(record)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	return r.Render(record)
}
