package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SummaryModel is a Bubble Tea model for a ledger batch summary record.
type SummaryModel struct {
	record   map[string]any
	width    int
	height   int
	quitting bool
}

// NewSummaryModel creates a summary model for a decoded summary record.
func NewSummaryModel(record map[string]any) SummaryModel {
	return SummaryModel{record: record}
}

// Init implements tea.Model.
func (m SummaryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m SummaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m SummaryModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Batch " + stringField(m.record, "batch_id")))
	b.WriteString("\n")

	for _, f := range []string{"started_at", "source", "dest", "scale", "duration_ms", "bytes_written"} {
		b.WriteString(LabelStyle.Render(f + ":"))
		b.WriteString(ValueStyle.Render(stringField(m.record, f)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	boxes := []string{
		renderStatBox("Total", intField(m.record, "total"), highlightColor),
		renderStatBox("Succeeded", intField(m.record, "succeeded"), successColor),
		renderStatBox("Failed", intField(m.record, "failed"), errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	if kinds, ok := m.record["failed_by_kind"].(map[string]any); ok && len(kinds) > 0 {
		b.WriteString(TitleStyle.Render("Failures by kind"))
		b.WriteString("\n")
		for _, k := range sortedKeys(kinds) {
			b.WriteString(LabelStyle.Render(k + ":"))
			b.WriteString(ErrorStyle.Render(stringField(kinds, k)))
			b.WriteString("\n")
		}
	}

	if stages, ok := m.record["stage_mean_ms"].(map[string]any); ok && len(stages) > 0 {
		b.WriteString(TitleStyle.Render("Mean stage time (ms)"))
		b.WriteString("\n")
		for _, k := range sortedKeys(stages) {
			b.WriteString(LabelStyle.Render(k + ":"))
			b.WriteString(WarningStyle.Render(stringField(stages, k)))
			b.WriteString("\n")
		}
	}

	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

// RunSummaryTUI runs the summary view until the user quits.
func RunSummaryTUI(record map[string]any) error {
	p := tea.NewProgram(NewSummaryModel(record), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderSummaryStatic renders the summary view without a program.
func RenderSummaryStatic(record map[string]any) string {
	m := NewSummaryModel(record)
	m.width = 80
	m.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// stringField formats a decoded JSON value. Whole floats print without a
// fractional part.
func stringField(m map[string]any, k string) string {
	switch v := m[k].(type) {
	case nil:
		return ""
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func intField(m map[string]any, k string) int {
	switch v := m[k].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
