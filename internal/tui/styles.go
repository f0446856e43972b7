package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)
	runningStyle = lipgloss.NewStyle().Foreground(primaryColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	summaryStyle = lipgloss.NewStyle().MarginTop(1).Bold(true)
)
