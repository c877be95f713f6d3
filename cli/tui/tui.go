package tui

import (
	"fmt"
	"strings"
)

// Views that support --tui.
const (
	ViewRun     = "run"
	ViewSummary = "summary"
)

// IsTUISupported returns true if the command supports TUI mode.
func IsTUISupported(view string) bool {
	switch view {
	case ViewRun, ViewSummary:
		return true
	default:
		return false
	}
}

// SupportedTUIViews returns the commands that support TUI mode.
func SupportedTUIViews() []string {
	return []string{ViewRun, ViewSummary}
}

// UnsupportedError is the message for --tui on a command without a view.
func UnsupportedError(view string) error {
	return fmt.Errorf("--tui is not supported for %s (supported: %s)", view, strings.Join(SupportedTUIViews(), ", "))
}
