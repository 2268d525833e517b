package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hochfrequenz/claude-refine/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	completedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	selectedStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	tabActiveStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	running := 0
	for _, e := range m.executions {
		if e.Status == domain.ExecutionRunning {
			running++
		}
	}
	header := fmt.Sprintf(" Claude Refine │ Executions: %d │ Running: %d ",
		len(m.executions), running)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	switch m.activeTab {
	case 0:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderExecutions()))
		b.WriteString("\n")
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderRounds()))
		b.WriteString("\n")
	case 1:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderEvents()))
		b.WriteString("\n")
	}

	status := " q quit │ r refresh │ j/k select │ tab switch "
	if m.loadErr != nil {
		status = warningStyle.Render(" " + m.loadErr.Error() + " ")
	} else if !m.lastRefresh.IsZero() {
		status += dimmedStyle.Render(fmt.Sprintf("│ refreshed %s ago", time.Since(m.lastRefresh).Round(time.Second)))
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(status))

	return b.String()
}

func (m Model) renderTabs() string {
	tabs := []string{"Executions", "Live"}
	parts := make([]string, len(tabs))
	for i, name := range tabs {
		if i == m.activeTab {
			parts[i] = tabActiveStyle.Render(" " + name + " ")
		} else {
			parts[i] = tabInactiveStyle.Render(" " + name + " ")
		}
	}
	return strings.Join(parts, "│")
}

func (m Model) renderExecutions() string {
	if len(m.executions) == 0 {
		return dimmedStyle.Render("No executions yet. Run `claude-refine generate` to start one.")
	}

	var b strings.Builder
	b.WriteString("Recent executions\n")
	for i, e := range m.executions {
		line := fmt.Sprintf("%-16s %-10s %s  %s",
			e.ID,
			statusStyle(e.Status).Render(string(e.Status)),
			e.CreatedAt.Format("2006-01-02 15:04"),
			truncate(e.Request, m.width-50))
		if i == m.selectedRow {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderRounds() string {
	exec := m.selectedExecution()
	if exec == nil || len(m.results) == 0 {
		return dimmedStyle.Render("No round results for the selected execution.")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Rounds for %s\n", exec.ID))
	for _, r := range m.results {
		files := make([]string, 0, len(r.Output.Files))
		for name := range r.Output.Files {
			files = append(files, name)
		}
		sort.Strings(files)
		b.WriteString(fmt.Sprintf("  %-20s %-9s fixes:%-3s %6s  %s\n",
			r.ExecutionID,
			string(r.Status),
			orDash(r.Output.Metadata["fixes_applied"]),
			r.Output.Elapsed.Round(time.Second),
			truncate(strings.Join(files, ", "), m.width-60)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderEvents() string {
	if len(m.events) == 0 {
		return dimmedStyle.Render("No live events. Start an execution with --serve or watch mode.")
	}

	var b strings.Builder
	b.WriteString("Live loop events\n")
	visible := m.events
	max := m.height - 10
	if max > 0 && len(visible) > max {
		visible = visible[len(visible)-max:]
	}
	for _, e := range visible {
		style := dimmedStyle
		switch e.Step {
		case "warning":
			style = warningStyle
		case "converged":
			style = completedStyle
		case "budget_exhausted", "fixing":
			style = runningStyle
		}
		b.WriteString(fmt.Sprintf("  r%d %s %s\n",
			e.Round, style.Render(string(e.Step)), truncate(e.Message, m.width-30)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusStyle(s domain.ExecutionStatus) lipgloss.Style {
	switch s {
	case domain.ExecutionRunning:
		return runningStyle
	case domain.ExecutionCompleted:
		return completedStyle
	case domain.ExecutionFailed:
		return failedStyle
	}
	return dimmedStyle
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
