package runner

import (
	"fmt"
	"strings"

	"github.com/genai-analyzer/demo/internal/models"
)

// SummaryLines is the placeholder summary for a persona.
func SummaryLines(role models.Role) []string {
	return []string{
		fmt.Sprintf("Summary for role: %s", role),
		"- Key insights extracted from content...",
		"- Opportunities and risks highlighted...",
		fmt.Sprintf("- Recommended next steps tailored to %s...", role),
	}
}

// AnalysisLines is the placeholder per-file analysis.
func AnalysisLines(items []models.UploadedItem) []string {
	lines := []string{fmt.Sprintf("Combined analysis across %d files:", len(items))}
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("- %s - %s - %d KB", item.Name, item.MIME, item.SizeKB()))
	}
	return lines
}

// PlaceholderResult is what a simulated run reports on completion.
func PlaceholderResult(items []models.UploadedItem, cfg models.RunConfiguration) string {
	var b strings.Builder
	b.WriteString(strings.Join(SummaryLines(cfg.Role), "\n"))
	b.WriteString("\n\n")
	b.WriteString(strings.Join(AnalysisLines(items), "\n"))
	if cfg.Chunking.Enabled {
		fmt.Fprintf(&b, "\n\nChunking: max %dpx, aspect %s, overlap %d%%",
			cfg.Chunking.MaxDim, cfg.Chunking.Aspect, cfg.Chunking.Overlap)
	}
	return b.String()
}
