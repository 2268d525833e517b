// Package tui renders a terminal dashboard over past executions and
// live improvement-loop events.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/claude-refine/internal/domain"
	"github.com/hochfrequenz/claude-refine/internal/loop"
)

// maxEventLog bounds the live event feed kept in memory
const maxEventLog = 200

// Store is the read side of the ledger the dashboard needs
type Store interface {
	ListExecutions(limit int) ([]*domain.Execution, error)
	ListResults(executionID string) ([]*domain.ExecutionResult, error)
}

// Model is the TUI application model
type Model struct {
	store Store

	// Data
	executions []*domain.Execution
	results    []*domain.ExecutionResult
	events     []loop.Event

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int

	// Refresh
	lastRefresh time.Time
	loadErr     error
}

// EventMsg carries a live loop event into the model
type EventMsg loop.Event

type tickMsg time.Time

type refreshMsg struct {
	executions []*domain.Execution
	err        error
}

type resultsMsg struct {
	results []*domain.ExecutionResult
}

// NewModel creates a new TUI model backed by the given store
func NewModel(store Store) Model {
	return Model{store: store}
}

// Init starts the refresh loop
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		execs, err := m.store.ListExecutions(50)
		return refreshMsg{executions: execs, err: err}
	}
}

func (m Model) loadResultsCmd(executionID string) tea.Cmd {
	return func() tea.Msg {
		results, err := m.store.ListResults(executionID)
		if err != nil {
			return resultsMsg{}
		}
		return resultsMsg{results: results}
	}
}

// selectedExecution returns the execution under the cursor, or nil
func (m Model) selectedExecution() *domain.Execution {
	if m.selectedRow < 0 || m.selectedRow >= len(m.executions) {
		return nil
	}
	return m.executions[m.selectedRow]
}

func (m *Model) appendEvent(e loop.Event) {
	m.events = append(m.events, e)
	if len(m.events) > maxEventLog {
		m.events = m.events[len(m.events)-maxEventLog:]
	}
}
