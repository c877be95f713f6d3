package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/imgbatch/types"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		view string
		want bool
	}{
		{"run", true},
		{"summary", true},
		{"discover", false},
		{"version", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.view, func(t *testing.T) {
			if got := IsTUISupported(tt.view); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.view, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	for _, v := range SupportedTUIViews() {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestUnsupportedError(t *testing.T) {
	err := UnsupportedError("discover")
	if !strings.Contains(err.Error(), "discover") || !strings.Contains(err.Error(), "summary") {
		t.Errorf("unexpected message: %v", err)
	}
}

func apply(m ProgressModel, msgs ...tea.Msg) (ProgressModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(ProgressModel)
	}
	return m, cmd
}

func TestProgressModel_CountsStagesAndOutcomes(t *testing.T) {
	m, _ := apply(NewProgressModel("b-1"),
		StageMsg{Seq: 1, Stage: types.StageDecode, Phase: types.PhaseStart},
		StageMsg{Seq: 2, Stage: types.StageDecode, Phase: types.PhaseStart},
		StageMsg{Seq: 1, Stage: types.StageDecode, Phase: types.PhaseFinish},
		StageMsg{Seq: 1, Stage: types.StageTransform, Phase: types.PhaseStart},
	)

	if len(m.seen) != 2 {
		t.Errorf("seen = %d, want 2", len(m.seen))
	}
	if m.active[types.StageDecode] != 1 {
		t.Errorf("active decode = %d, want 1", m.active[types.StageDecode])
	}
	if m.active[types.StageTransform] != 1 {
		t.Errorf("active transform = %d, want 1", m.active[types.StageTransform])
	}

	m, _ = apply(m,
		TaskMsg{Seq: 1, Path: "a.png", State: types.TaskSucceeded},
		TaskMsg{Seq: 2, Path: "b.jpg", State: types.TaskFailed, Err: errors.New("corrupt")},
	)
	if m.succeeded != 1 || m.failed != 1 {
		t.Errorf("succeeded=%d failed=%d, want 1/1", m.succeeded, m.failed)
	}

	view := m.View()
	if !strings.Contains(view, "b.jpg") || !strings.Contains(view, "corrupt") {
		t.Errorf("view should list the failure, got:\n%s", view)
	}
	if !strings.Contains(view, "decode 1") {
		t.Errorf("view should show active stages, got:\n%s", view)
	}
}

func TestProgressModel_FinishNeverGoesNegative(t *testing.T) {
	m, _ := apply(NewProgressModel("b-1"),
		StageMsg{Seq: 1, Stage: types.StagePersist, Phase: types.PhaseFinish},
	)
	if m.active[types.StagePersist] != 0 {
		t.Errorf("active persist = %d, want 0", m.active[types.StagePersist])
	}
}

func TestProgressModel_KeepsRecentFailures(t *testing.T) {
	m := NewProgressModel("b-1")
	for i := range maxRecentFailures + 3 {
		m, _ = apply(m, TaskMsg{Seq: int64(i + 1), State: types.TaskFailed, Err: errors.New("x")})
	}
	if len(m.failures) != maxRecentFailures {
		t.Fatalf("failures = %d, want %d", len(m.failures), maxRecentFailures)
	}
	if m.failures[0].Seq != 4 {
		t.Errorf("oldest kept failure seq = %d, want 4", m.failures[0].Seq)
	}
	if m.failed != maxRecentFailures+3 {
		t.Errorf("failed = %d, want %d", m.failed, maxRecentFailures+3)
	}
}

func TestProgressModel_DoneQuits(t *testing.T) {
	tests := []struct {
		name   string
		result *types.BatchResult
		want   string
	}{
		{"completed", &types.BatchResult{Duration: 1500 * time.Millisecond}, "done in 1.5s"},
		{"aborted", nil, "batch aborted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, cmd := apply(NewProgressModel("b-1"), DoneMsg{Result: tt.result})
			if cmd == nil {
				t.Fatal("expected quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("expected tea.QuitMsg")
			}
			if !strings.Contains(m.View(), tt.want) {
				t.Errorf("view should contain %q, got:\n%s", tt.want, m.View())
			}
		})
	}
}

func TestProgress_FinishReturns(t *testing.T) {
	var out bytes.Buffer
	p := StartProgress(&out, "b-1")
	p.ObserveStage(types.StageEvent{Seq: 1, Stage: types.StageDecode, Phase: types.PhaseStart})
	p.ObserveTask(types.TaskOutcome{Seq: 1, Path: "a.png", State: types.TaskSucceeded})

	done := make(chan error, 1)
	go func() { done <- p.Finish(&types.BatchResult{}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Finish did not return")
	}
}

func TestRenderSummaryStatic(t *testing.T) {
	record := map[string]any{
		"batch_id":       "b-42",
		"source":         "/in",
		"dest":           "/out",
		"scale":          0.5,
		"total":          float64(4),
		"succeeded":      float64(3),
		"failed":         float64(1),
		"failed_by_kind": map[string]any{"decode": float64(1)},
		"stage_mean_ms":  map[string]any{"decode": float64(2), "persist": float64(5)},
	}

	got := RenderSummaryStatic(record)
	for _, want := range []string{"b-42", "/in", "0.5", "Succeeded", "decode", "persist"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary view missing %q:\n%s", want, got)
		}
	}
}

func TestSummaryModel_QuitKey(t *testing.T) {
	m := NewSummaryModel(map[string]any{})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if next.(SummaryModel).View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestFieldHelpers(t *testing.T) {
	m := map[string]any{"n": float64(3), "f": 0.25, "s": "x"}
	if got := stringField(m, "n"); got != "3" {
		t.Errorf("stringField(n) = %q, want 3", got)
	}
	if got := stringField(m, "f"); got != "0.25" {
		t.Errorf("stringField(f) = %q, want 0.25", got)
	}
	if got := stringField(m, "missing"); got != "" {
		t.Errorf("stringField(missing) = %q, want empty", got)
	}
	if got := intField(m, "n"); got != 3 {
		t.Errorf("intField(n) = %d, want 3", got)
	}
	if got := intField(m, "s"); got != 0 {
		t.Errorf("intField(s) = %d, want 0", got)
	}
}
