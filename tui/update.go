package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/claude-refine/internal/loop"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		case "j", "down":
			if m.selectedRow < len(m.executions)-1 {
				m.selectedRow++
			}
			if exec := m.selectedExecution(); exec != nil {
				return m, m.loadResultsCmd(exec.ID)
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			if exec := m.selectedExecution(); exec != nil {
				return m, m.loadResultsCmd(exec.ID)
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % 2
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case refreshMsg:
		m.loadErr = msg.err
		if msg.err == nil {
			m.executions = msg.executions
			m.lastRefresh = time.Now()
			if m.selectedRow >= len(m.executions) && len(m.executions) > 0 {
				m.selectedRow = len(m.executions) - 1
			}
			if exec := m.selectedExecution(); exec != nil {
				return m, m.loadResultsCmd(exec.ID)
			}
		}

	case resultsMsg:
		m.results = msg.results

	case EventMsg:
		m.appendEvent(loop.Event(msg))
	}

	return m, nil
}
