// Package cmd provides CLI commands for the imgbatch binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imgbatch/cli/render"
	"github.com/pithecene-io/imgbatch/cli/tui"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (run, summary only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can give an explicit error
// instead of a generic "flag not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// rejectTUI returns a usage error when --tui is set on a command without
// a TUI view.
func rejectTUI(c *cli.Context, view string) error {
	if c.Bool("tui") && !tui.IsTUISupported(view) {
		return cli.Exit(tui.UnsupportedError(view).Error(), exitConfigError)
	}
	return nil
}

// isStderrTTY reports whether stderr is attached to a terminal.
func isStderrTTY() bool {
	return render.IsTTY(os.Stderr)
}
