package cmd

import (
	"bytes"
	"flag"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestRejectTUI(t *testing.T) {
	tests := []struct {
		name    string
		view    string
		tui     bool
		wantErr bool
	}{
		{"discover with tui", "discover", true, true},
		{"version with tui", "version", true, true},
		{"summary with tui", "summary", true, false},
		{"discover without tui", "discover", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{}
			if tt.tui {
				args = append(args, "--tui")
			}
			c, _ := newTestCLIContext(t, ReadOnlyFlags(), args)
			err := rejectTUI(c, tt.view)
			if (err != nil) != tt.wantErr {
				t.Fatalf("rejectTUI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				assertExitCode(t, err, exitConfigError)
			}
		})
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Result depends on the environment; the call must not panic.
	_ = isStderrTTY()
}

// newTestCLIContext builds a cli.Context with flags parsed from args and an
// app writer captured in the returned buffer.
func newTestCLIContext(t *testing.T, flags []cli.Flag, args []string) (*cli.Context, *bytes.Buffer) {
	t.Helper()

	set := flag.NewFlagSet(t.Name(), flag.ContinueOnError)
	for _, f := range flags {
		if err := f.Apply(set); err != nil {
			t.Fatalf("apply flag %v: %v", f.Names(), err)
		}
	}
	if err := set.Parse(args); err != nil {
		t.Fatalf("parse args %v: %v", args, err)
	}

	var out bytes.Buffer
	app := &cli.App{Writer: &out, ErrWriter: &out}
	c := cli.NewContext(app, set, nil)
	c.Context = t.Context()
	return c, &out
}

func assertExitCode(t *testing.T, err error, want int) {
	t.Helper()
	coder, ok := err.(cli.ExitCoder)
	if !ok {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	if coder.ExitCode() != want {
		t.Errorf("exit code = %d, want %d (%v)", coder.ExitCode(), want, err)
	}
}
