package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/claude-refine/internal/domain"
	"github.com/hochfrequenz/claude-refine/internal/loop"
)

type fakeStore struct {
	executions []*domain.Execution
	results    map[string][]*domain.ExecutionResult
}

func (f *fakeStore) ListExecutions(limit int) ([]*domain.Execution, error) {
	return f.executions, nil
}

func (f *fakeStore) ListResults(executionID string) ([]*domain.ExecutionResult, error) {
	return f.results[executionID], nil
}

func testStore() *fakeStore {
	return &fakeStore{
		executions: []*domain.Execution{
			{ID: "exec_aaaa1111", Request: "write a csv parser", Status: domain.ExecutionCompleted, CreatedAt: time.Now()},
			{ID: "exec_bbbb2222", Request: "write a rate limiter", Status: domain.ExecutionRunning, CreatedAt: time.Now()},
		},
		results: map[string][]*domain.ExecutionResult{
			"exec_aaaa1111": {
				{
					ExecutionID: "exec_aaaa1111_r1",
					TaskID:      "task_cccc3333",
					Status:      domain.ResultImproved,
					Output: domain.CodeOutput{
						Files:    map[string]string{"parser.py": "pass"},
						Metadata: map[string]string{"fixes_applied": "2"},
					},
				},
			},
		},
	}
}

func sized(m Model) Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func TestViewShowsExecutions(t *testing.T) {
	m := sized(NewModel(testStore()))
	updated, _ := m.Update(refreshMsg{executions: testStore().executions})
	m = updated.(Model)

	view := m.View()
	if !strings.Contains(view, "exec_aaaa1111") {
		t.Errorf("expected execution id in view, got:\n%s", view)
	}
	if !strings.Contains(view, "write a csv parser") {
		t.Errorf("expected request text in view")
	}
}

func TestViewEmptyState(t *testing.T) {
	m := sized(NewModel(testStore()))
	view := m.View()
	if !strings.Contains(view, "No executions yet") {
		t.Errorf("expected empty state hint, got:\n%s", view)
	}
}

func TestSelectionMovesWithinBounds(t *testing.T) {
	m := sized(NewModel(testStore()))
	updated, _ := m.Update(refreshMsg{executions: testStore().executions})
	m = updated.(Model)

	// Moving down past the end stays on the last row
	for i := 0; i < 5; i++ {
		updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
		m = updated.(Model)
	}
	if m.selectedRow != 1 {
		t.Errorf("expected selectedRow 1, got %d", m.selectedRow)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	m = updated.(Model)
	if m.selectedRow != 0 {
		t.Errorf("expected selectedRow 0, got %d", m.selectedRow)
	}
}

func TestQuitKey(t *testing.T) {
	m := sized(NewModel(testStore()))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}

func TestEventFeedBounded(t *testing.T) {
	m := sized(NewModel(testStore()))
	for i := 0; i < maxEventLog+50; i++ {
		updated, _ := m.Update(EventMsg(loop.Event{Step: loop.StepReviewing, Round: 1}))
		m = updated.(Model)
	}
	if len(m.events) != maxEventLog {
		t.Errorf("expected event log capped at %d, got %d", maxEventLog, len(m.events))
	}
}

func TestLiveTabShowsEvents(t *testing.T) {
	m := sized(NewModel(testStore()))
	updated, _ := m.Update(EventMsg(loop.Event{Step: loop.StepConverged, Round: 2, Message: "no actionable issues"}))
	m = updated.(Model)
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(Model)

	view := m.View()
	if !strings.Contains(view, "no actionable issues") {
		t.Errorf("expected event message in live tab, got:\n%s", view)
	}
}
