package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent      = lipgloss.Color("#6AE3FF")
	accentAlt   = lipgloss.Color("#9B8CFF")
	textBright  = lipgloss.Color("#E7EDF4")
	textMuted   = lipgloss.Color("#A8B3C4")
	doneColor   = lipgloss.Color("#34D399")
	errorColor  = lipgloss.Color("#FF6B6B")
	borderColor = lipgloss.Color("#2D3A4A")
)

var (
	fieldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7FA7C9"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textBright)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(textMuted)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(textMuted)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	stepPendingStyle = lipgloss.NewStyle().
				Foreground(textMuted)

	stepActiveStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	stepDoneStyle = lipgloss.NewStyle().
			Foreground(doneColor)

	metricValueStyle = lipgloss.NewStyle().
				Foreground(textBright)

	tabActiveStyle = lipgloss.NewStyle().
			Foreground(textBright).
			Background(lipgloss.Color("#1B3A47")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(textMuted).
				Padding(0, 2)

	noticeStyle = lipgloss.NewStyle().
			Foreground(accentAlt)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)
