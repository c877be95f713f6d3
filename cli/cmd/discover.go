package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imgbatch/catalog"
	"github.com/pithecene-io/imgbatch/cli/render"
	"github.com/pithecene-io/imgbatch/types"
)

// DiscoveredFile is one row of the discover command output.
// Seq is the sequence index the file would be dispatched with.
type DiscoveredFile struct {
	Seq  int64  `json:"seq" yaml:"seq"`
	Path string `json:"path" yaml:"path"`
}

// DiscoverCommand returns the discover command.
// It lists eligible source files without touching any output.
func DiscoverCommand() *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "List the images a run would process, in dispatch order",
		ArgsUsage: "<source>",
		Flags:     ReadOnlyFlags(),
		Action:    discoverAction,
	}
}

func discoverAction(c *cli.Context) error {
	if err := rejectTUI(c, "discover"); err != nil {
		return err
	}
	if c.NArg() != 1 {
		return cli.Exit("discover requires exactly one <source> argument", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	paths, err := catalog.Discover(c.Args().First())
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return cli.Exit(err.Error(), exitAborted)
		}
		return fmt.Errorf("discover: %w", err)
	}

	files := make([]DiscoveredFile, len(paths))
	for i, p := range paths {
		files[i] = DiscoveredFile{Seq: int64(i + 1), Path: p}
	}
	return r.Render(files)
}
