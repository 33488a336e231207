package main

import "github.com/charmbracelet/lipgloss"

// Plain-mode styles. lipgloss drops the colors when output is not a terminal.
var (
	stageStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6AE3FF"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7CE38B")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A93A6"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)
