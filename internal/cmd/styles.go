package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/tradeflow/internal/plan"
)

// styles holds the lipgloss styles of the terminal output
type styles struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Key     lipgloss.Style
	Status  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Border  lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")), // Purple
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Key: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")),
		Status: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")), // Cyan
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")), // Green
		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")), // Yellow
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")), // Red
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2),
	}
}

// status renders a plan or step status in its colour.
func (s styles) status(st string) string {
	switch st {
	case string(plan.StatusCompleted):
		return s.Success.Render(st)
	case string(plan.StatusFailed):
		return s.Error.Render(st)
	case string(plan.StatusExecuting), string(plan.StepRunning):
		return s.Status.Render(st)
	case string(plan.StepPending), string(plan.StatusDraft):
		return s.Muted.Render(st)
	default:
		return s.Warning.Render(st)
	}
}
