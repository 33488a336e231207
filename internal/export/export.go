// Package export builds the downloadable artifacts of a run: a text summary,
// a JSON description of the configuration and a placeholder archive.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
)

var logger = logging.New("Export")

// Format names an export artifact.
type Format string

const (
	FormatText Format = "txt"
	FormatJSON Format = "json"
	FormatZip  Format = "zip"
)

// Formats lists every export format in menu order.
var Formats = []Format{FormatText, FormatJSON, FormatZip}

const (
	placeholderSummary = "- High-level findings..."
	placeholderZip     = "This would contain chunks and results in a ZIP."
)

// ParseFormat accepts a format name or a file extension with its dot.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "."))
	switch f {
	case FormatText, FormatJSON, FormatZip:
		return f, nil
	case "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown export format %q", name)
}

// Payload is one artifact ready to be written or served.
type Payload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Source is the state an export is produced from.
type Source struct {
	Config models.RunConfiguration
	Files  []models.FileRef
	Result string
}

// SourceFrom collects the analyzable items of a batch into a Source.
func SourceFrom(cfg models.RunConfiguration, items []models.UploadedItem, result string) Source {
	src := Source{Config: cfg, Result: result}
	for _, item := range items {
		if !item.Analyzable() {
			continue
		}
		src.Files = append(src.Files, models.FileRef{Name: item.Name, Size: item.Size})
	}
	return src
}

// Build produces the payload for a format.
func Build(format Format, src Source) (Payload, error) {
	switch format {
	case FormatText:
		return Text(src), nil
	case FormatJSON:
		return JSON(src)
	case FormatZip:
		return Zip(), nil
	}
	return Payload{}, fmt.Errorf("unknown export format %q", format)
}

// Text renders summary.txt.
func Text(src Source) Payload {
	names := make([]string, 0, len(src.Files))
	for _, f := range src.Files {
		names = append(names, f.Name)
	}
	summary := src.Result
	if strings.TrimSpace(summary) == "" {
		summary = placeholderSummary
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s\n", src.Config.Role)
	fmt.Fprintf(&b, "Mode: %s\n", src.Config.Mode)
	fmt.Fprintf(&b, "Files: %s\n", strings.Join(names, ", "))
	b.WriteString("\nSummary:\n")
	b.WriteString(summary)

	return Payload{
		Filename:    "summary.txt",
		ContentType: "text/plain;charset=utf-8",
		Data:        []byte(b.String()),
	}
}

// ChunkingDocument is the chunking block of analysis.json.
type ChunkingDocument struct {
	MaxDim     int    `json:"maxDim"`
	Aspect     string `json:"aspect"`
	Overlap    int    `json:"overlap"`
	SaveChunks bool   `json:"saveChunks"`
	OutputDir  string `json:"outputDir"`
}

// Document is the shape of analysis.json. Chunking is null when disabled.
type Document struct {
	Role        models.Role       `json:"role"`
	Mode        models.Mode       `json:"mode"`
	Prompt      string            `json:"prompt"`
	VisionModel string            `json:"visionModel"`
	TextModel   string            `json:"textModel"`
	Chunking    *ChunkingDocument `json:"chunking"`
	Files       []models.FileRef  `json:"files"`
	Result      string            `json:"result,omitempty"`
}

// NewDocument describes a source as analysis.json.
func NewDocument(src Source) Document {
	cfg := src.Config
	doc := Document{
		Role:        cfg.Role,
		Mode:        cfg.Mode,
		Prompt:      cfg.Prompt,
		VisionModel: cfg.VisionModel,
		TextModel:   cfg.TextModel,
		Files:       src.Files,
		Result:      src.Result,
	}
	if doc.Files == nil {
		doc.Files = []models.FileRef{}
	}
	if cfg.Chunking.Enabled {
		doc.Chunking = &ChunkingDocument{
			MaxDim:     cfg.Chunking.MaxDim,
			Aspect:     cfg.Chunking.Aspect,
			Overlap:    cfg.Chunking.Overlap,
			SaveChunks: cfg.Chunking.SaveChunks,
			OutputDir:  cfg.Chunking.OutputDir,
		}
	}
	return doc
}

// ApplyTo copies the document's configuration fields onto base. Display
// options are not exported and keep base's values.
func (d Document) ApplyTo(base models.RunConfiguration) models.RunConfiguration {
	cfg := base
	cfg.Role = d.Role
	cfg.Mode = d.Mode
	cfg.Prompt = d.Prompt
	cfg.VisionModel = d.VisionModel
	cfg.TextModel = d.TextModel
	cfg.Chunking.Enabled = d.Chunking != nil
	if d.Chunking != nil {
		cfg.Chunking.MaxDim = d.Chunking.MaxDim
		cfg.Chunking.Aspect = d.Chunking.Aspect
		cfg.Chunking.Overlap = d.Chunking.Overlap
		cfg.Chunking.SaveChunks = d.Chunking.SaveChunks
		cfg.Chunking.OutputDir = d.Chunking.OutputDir
	}
	return cfg
}

// JSON renders analysis.json with two-space indentation.
func JSON(src Source) (Payload, error) {
	data, err := json.MarshalIndent(NewDocument(src), "", "  ")
	if err != nil {
		return Payload{}, fmt.Errorf("failed to encode analysis: %w", err)
	}
	return Payload{
		Filename:    "analysis.json",
		ContentType: "application/json",
		Data:        data,
	}, nil
}

// ParseJSON reads an analysis.json back.
func ParseJSON(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return doc, nil
}

// Zip renders the placeholder results.zip. No archive is built.
func Zip() Payload {
	return Payload{
		Filename:    "results.zip",
		ContentType: "application/octet-stream",
		Data:        []byte(placeholderZip),
	}
}

// Save writes the payload into dir, creating it if needed, and returns the
// written path.
func Save(dir string, p Payload) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, p.Filename)
	if err := os.WriteFile(path, p.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p.Filename, err)
	}
	logger.Infof("wrote %s (%d bytes)", path, len(p.Data))
	return path, nil
}
