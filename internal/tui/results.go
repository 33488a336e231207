package tui

import (
	"fmt"
	"strings"

	"github.com/genai-analyzer/demo/internal/models"
	"github.com/genai-analyzer/demo/internal/runner"
)

// resultsTab selects what the results panel shows.
type resultsTab int

const (
	tabSummary resultsTab = iota
	tabAnalysis
	tabChunks
)

var tabNames = []string{"Summary", "Analysis", "Chunks"}

func (t resultsTab) String() string { return tabNames[t] }

func (t resultsTab) next() resultsTab {
	return (t + 1) % resultsTab(len(tabNames))
}

// summaryLines shows the run result, or the persona placeholder when the
// runner produced none.
func summaryLines(cfg models.RunConfiguration, st models.RunState) []string {
	if strings.TrimSpace(st.Result) == "" {
		return runner.SummaryLines(cfg.Role)
	}
	return strings.Split(st.Result, "\n")
}

// analysisLines lists every analyzable file.
func analysisLines(items []models.UploadedItem) []string {
	return runner.AnalysisLines(analyzable(items))
}

// chunkLines describes the tiling settings and the images they apply to.
func chunkLines(cfg models.RunConfiguration, items []models.UploadedItem) []string {
	var lines []string
	ch := cfg.Chunking
	if ch.Enabled {
		lines = append(lines, fmt.Sprintf("Max dim: %dpx  Aspect: %s  Overlap: %d%%", ch.MaxDim, ch.Aspect, ch.Overlap))
		if ch.SaveChunks {
			lines = append(lines, "Chunks saved to "+ch.OutputDir)
		}
	} else {
		lines = append(lines, "Chunking disabled")
	}

	var images []string
	for _, it := range analyzable(items) {
		if it.PreviewRef != "" {
			images = append(images, it.Name)
		}
	}
	if len(images) == 0 {
		return append(lines, "No image previews available")
	}
	for _, name := range images {
		lines = append(lines, "  [#] "+name)
	}
	return lines
}

func analyzable(items []models.UploadedItem) []models.UploadedItem {
	var out []models.UploadedItem
	for _, it := range items {
		if it.Analyzable() {
			out = append(out, it)
		}
	}
	return out
}
