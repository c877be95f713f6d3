package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/imgbatch/types"
)

// maxRecentFailures bounds the failure list shown under the counters.
const maxRecentFailures = 5

// StageMsg carries one stage start/finish event into the model.
type StageMsg types.StageEvent

// TaskMsg carries one terminal task outcome into the model.
type TaskMsg types.TaskOutcome

// DoneMsg ends the progress view. Result is nil when the batch aborted.
type DoneMsg struct {
	Result *types.BatchResult
}

// ProgressModel is a Bubble Tea model for live batch progress.
type ProgressModel struct {
	batchID   string
	seen      map[int64]struct{}
	active    map[types.Stage]int
	succeeded int
	failed    int
	failures  []types.TaskFailure
	done      bool
	aborted   bool
	elapsed   time.Duration
	width     int
}

// NewProgressModel creates an empty progress model for a batch.
func NewProgressModel(batchID string) ProgressModel {
	return ProgressModel{
		batchID: batchID,
		seen:    make(map[int64]struct{}),
		active:  make(map[types.Stage]int, len(types.Stages)),
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case StageMsg:
		m.seen[msg.Seq] = struct{}{}
		stage := msg.Stage
		switch msg.Phase {
		case types.PhaseStart:
			m.active[stage]++
		case types.PhaseFinish:
			if m.active[stage] > 0 {
				m.active[stage]--
			}
		}
		return m, nil

	case TaskMsg:
		m.seen[msg.Seq] = struct{}{}
		if msg.State == types.TaskSucceeded {
			m.succeeded++
			return m, nil
		}
		m.failed++
		m.failures = append(m.failures, types.TaskFailure{Seq: msg.Seq, Path: msg.Path, Err: msg.Err})
		if len(m.failures) > maxRecentFailures {
			m.failures = m.failures[len(m.failures)-maxRecentFailures:]
		}
		return m, nil

	case DoneMsg:
		m.done = true
		if msg.Result == nil {
			m.aborted = true
		} else {
			m.elapsed = msg.Result.Duration
		}
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("imgbatch " + m.batchID))
	b.WriteString("\n")

	boxes := []string{
		renderStatBox("Seen", len(m.seen), highlightColor),
		renderStatBox("Succeeded", m.succeeded, successColor),
		renderStatBox("Failed", m.failed, errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	stages := make([]string, 0, len(types.Stages))
	for _, s := range types.Stages {
		stages = append(stages, fmt.Sprintf("%s %d", s, m.active[s]))
	}
	b.WriteString(LabelStyle.Render("In flight:"))
	b.WriteString(ValueStyle.Render(strings.Join(stages, "  ")))
	b.WriteString("\n")

	for _, f := range m.failures {
		line := fmt.Sprintf("#%d %s: %v", f.Seq, f.Path, f.Err)
		if m.width > 0 && len(line) > m.width {
			line = line[:m.width]
		}
		b.WriteString(ErrorStyle.Render(line))
		b.WriteString("\n")
	}

	switch {
	case m.aborted:
		b.WriteString(ErrorStyle.Render("batch aborted"))
		b.WriteString("\n")
	case m.done:
		b.WriteString(StateStyle(string(types.TaskSucceeded)).Render(
			fmt.Sprintf("done in %s", m.elapsed.Round(time.Millisecond))))
		b.WriteString("\n")
	}

	return b.String()
}

// Progress drives a ProgressModel from coordinator observer callbacks.
// ObserveStage and ObserveTask are safe for concurrent use.
type Progress struct {
	program *tea.Program
	done    chan error
}

// StartProgress starts rendering batch progress to out. The view reads no
// input and installs no signal handler; interrupts stay with the caller.
func StartProgress(out io.Writer, batchID string) *Progress {
	p := &Progress{
		program: tea.NewProgram(
			NewProgressModel(batchID),
			tea.WithOutput(out),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		),
		done: make(chan error, 1),
	}
	go func() {
		_, err := p.program.Run()
		p.done <- err
	}()
	return p
}

// ObserveStage forwards a stage event to the view.
func (p *Progress) ObserveStage(ev types.StageEvent) {
	p.program.Send(StageMsg(ev))
}

// ObserveTask forwards a terminal task outcome to the view.
func (p *Progress) ObserveTask(o types.TaskOutcome) {
	p.program.Send(TaskMsg(o))
}

// Finish renders the final frame and waits for the view to exit.
// result may be nil when the batch aborted before dispatch.
func (p *Progress) Finish(result *types.BatchResult) error {
	p.program.Send(DoneMsg{Result: result})
	return <-p.done
}
