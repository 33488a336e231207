package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/genai-analyzer/demo/internal/models"
)

// View renders the whole screen.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	cfg := m.sess.Config()
	items := m.sess.Items()

	sections := []string{
		m.viewHeader(),
		m.viewFiles(items),
		m.viewStatus(),
	}
	if m.state.Running || m.state.Done || m.state.Error != "" {
		sections = append(sections, m.viewStepper())
		if p := m.viewProgress(cfg); p != "" {
			sections = append(sections, p)
		}
		if metrics := m.viewMetrics(cfg); metrics != "" {
			sections = append(sections, metrics)
		}
	}
	if m.resultsVisible() {
		sections = append(sections, m.viewResults(cfg, items))
	}
	if cfg.Debug {
		sections = append(sections, viewDebug(cfg))
	}
	if m.notice != "" {
		sections = append(sections, noticeStyle.Render(m.notice))
	}
	sections = append(sections, m.viewHelp())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) viewHeader() string {
	lines := m.field.Render(m.width, headerRows)
	for i, l := range lines {
		lines[i] = fieldStyle.Render(l)
	}

	title := titleStyle.Render("GenAI Analyzer")
	mode := "simulated run"
	if m.state.Live {
		mode = "live run"
	}
	sub := subtitleStyle.Render(mode)
	if m.opts.Subtitle != "" {
		sub = subtitleStyle.Render(mode + " - " + m.opts.Subtitle)
	}

	if len(lines) >= 3 {
		lines[1] = " " + title
		lines[2] = " " + sub
	}
	return strings.Join(lines, "\n")
}

func (m *Model) viewFiles(items []models.UploadedItem) string {
	if len(items) == 0 {
		return panelStyle.Render(subtitleStyle.Render("No files. Pass paths on the command line to add them."))
	}
	var lines []string
	for i, it := range items {
		marker := "  "
		if i == m.cursor {
			marker = stepActiveStyle.Render("> ")
		}
		if it.Error != "" {
			lines = append(lines, fmt.Sprintf("%s%s  %s", marker, it.Name, errorStyle.Render(it.Error)))
			continue
		}
		mime := it.MIME
		if mime == "" {
			mime = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%s%s  %s", marker, it.Name,
			subtitleStyle.Render(fmt.Sprintf("%.1f KB  %s", float64(it.Size)/1024, mime))))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) viewStatus() string {
	text := m.state.StatusText()
	if m.state.Error != "" {
		return errorStyle.Render(text)
	}
	return statusStyle.Render(text)
}

func (m *Model) viewStepper() string {
	steps := make([]string, len(models.Stages))
	for i, name := range models.Stages {
		switch m.state.StageStatus(i) {
		case models.StageDone:
			steps[i] = stepDoneStyle.Render("✓ " + name)
		case models.StageActive:
			steps[i] = stepActiveStyle.Render("● " + name)
		default:
			steps[i] = stepPendingStyle.Render("○ " + name)
		}
	}
	return strings.Join(steps, "  ")
}

func (m *Model) viewProgress(cfg models.RunConfiguration) string {
	if !m.state.Running {
		return ""
	}
	switch cfg.ProgressStyle {
	case models.ProgressBar, "":
		return m.progress.ViewAs(float64(m.state.Percent) / 100)
	case models.ProgressSpinner:
		return m.spinner.View() + " " + statusStyle.Render("Working...")
	case models.ProgressSimple:
		return statusStyle.Render("Processing...")
	}
	return ""
}

func (m *Model) viewMetrics(cfg models.RunConfiguration) string {
	var parts []string
	if cfg.ShowElapsed {
		elapsed := models.ElapsedLabel(m.state.Elapsed(m.opts.Now()))
		parts = append(parts, "Elapsed: "+metricValueStyle.Render(elapsed))
	}
	if cfg.ShowTPS && m.state.Running {
		parts = append(parts, "Tokens/sec: "+metricValueStyle.Render(fmt.Sprintf("%.0f", m.state.Throughput)))
	}
	return statusStyle.Render(strings.Join(parts, "    "))
}

func (m *Model) viewResults(cfg models.RunConfiguration, items []models.UploadedItem) string {
	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if resultsTab(i) == m.tab {
			tabs[i] = tabActiveStyle.Render(name)
		} else {
			tabs[i] = tabInactiveStyle.Render(name)
		}
	}

	var body []string
	switch m.tab {
	case tabSummary:
		body = summaryLines(cfg, m.state)
	case tabAnalysis:
		body = analysisLines(items)
	case tabChunks:
		body = chunkLines(cfg, items)
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
		"",
		strings.Join(body, "\n"),
	))
}

func viewDebug(cfg models.RunConfiguration) string {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	return panelStyle.Render(subtitleStyle.Render(string(data)))
}

func (m *Model) viewHelp() string {
	keys := []string{"a: analyze"}
	if m.state.Running {
		keys = append(keys, "c: cancel")
	} else {
		keys = append(keys, "r: reset")
		if m.sess.Batch().Len() > 0 {
			keys = append(keys, "up/down d: remove file")
		}
	}
	if m.resultsVisible() {
		keys = append(keys, "t/x/z: export txt/json/zip", "tab: switch results")
	}
	keys = append(keys, "q: quit")
	return helpStyle.Render(strings.Join(keys, " | "))
}
