package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every RunConfiguration validation failure.
var ErrInvalidConfig = errors.New("invalid run configuration")

// Mode selects what the analysis produces.
type Mode string

const (
	ModeAnalyze   Mode = "Analyze"
	ModeDescribe  Mode = "Describe"
	ModeSummarize Mode = "Summarize"
	ModeAll       Mode = "All"
)

// Modes lists the selectable modes in display order.
var Modes = []Mode{ModeAnalyze, ModeDescribe, ModeSummarize, ModeAll}

// Role is the persona the results are tailored to.
type Role string

const (
	RoleMarketing    Role = "Marketing"
	RoleProductOwner Role = "Product Owner"
)

// Roles lists the selectable personas.
var Roles = []Role{RoleMarketing, RoleProductOwner}

// ProgressStyle controls how run progress is drawn.
type ProgressStyle string

const (
	ProgressBar     ProgressStyle = "Bar"
	ProgressSpinner ProgressStyle = "Spinner"
	ProgressSimple  ProgressStyle = "Simple"
	ProgressNone    ProgressStyle = "None"
)

// ProgressStyles lists the selectable progress styles.
var ProgressStyles = []ProgressStyle{ProgressBar, ProgressSpinner, ProgressSimple, ProgressNone}

// Model choices offered for each slot.
var (
	VisionModels = []string{"gpt-4o-mini", "gpt-4o", "claude-3.7-sonnet"}
	TextModels   = []string{"gpt-4.1-mini", "gpt-4.1", "claude-3.7-haiku"}
	Aspects      = []string{"1:1", "4:3", "16:9"}
)

// Chunking bounds.
const (
	MinChunkDim  = 256
	MaxChunkDim  = 2048
	ChunkDimStep = 64
	MaxOverlap   = 40
)

// ChunkingConfig describes how large images are tiled before analysis.
type ChunkingConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" msgpack:"enabled"`
	MaxDim     int    `json:"maxDim" yaml:"max_dim" msgpack:"maxDim"`
	Aspect     string `json:"aspect" yaml:"aspect" msgpack:"aspect"`
	Overlap    int    `json:"overlap" yaml:"overlap" msgpack:"overlap"`
	SaveChunks bool   `json:"saveChunks" yaml:"save_chunks" msgpack:"saveChunks"`
	OutputDir  string `json:"outputDir" yaml:"output_dir" msgpack:"outputDir"`
}

// RunConfiguration is the set of options a run is started with. Runners take
// a copy at start; later edits never reach an in-flight run.
type RunConfiguration struct {
	Mode        Mode           `json:"mode" yaml:"mode" msgpack:"mode"`
	Role        Role           `json:"role" yaml:"role" msgpack:"role"`
	Prompt      string         `json:"prompt" yaml:"prompt" msgpack:"prompt"`
	VisionModel string         `json:"visionModel" yaml:"vision_model" msgpack:"visionModel"`
	TextModel   string         `json:"textModel" yaml:"text_model" msgpack:"textModel"`
	Chunking    ChunkingConfig `json:"chunking" yaml:"chunking" msgpack:"chunking"`

	// Display options
	ProgressStyle ProgressStyle `json:"progressStyle" yaml:"progress_style" msgpack:"progressStyle"`
	ShowTPS       bool          `json:"showTps" yaml:"show_tps" msgpack:"showTps"`
	ShowElapsed   bool          `json:"showElapsed" yaml:"show_elapsed" msgpack:"showElapsed"`
	Debug         bool          `json:"debug" yaml:"debug" msgpack:"debug"`
}

// DefaultRunConfiguration returns the options a fresh session starts with.
func DefaultRunConfiguration() RunConfiguration {
	return RunConfiguration{
		Mode:        ModeAnalyze,
		Role:        RoleMarketing,
		VisionModel: "gpt-4o-mini",
		TextModel:   "gpt-4.1-mini",
		Chunking: ChunkingConfig{
			Enabled:   false,
			MaxDim:    1024,
			Aspect:    "1:1",
			Overlap:   10,
			OutputDir: "/downloads",
		},
		ProgressStyle: ProgressBar,
		ShowTPS:       true,
		ShowElapsed:   true,
	}
}

// Validate enforces the same ranges the option widgets allow.
func (c RunConfiguration) Validate() error {
	if !contains(Modes, c.Mode) {
		return fmt.Errorf("%w: mode %q", ErrInvalidConfig, c.Mode)
	}
	if strings.TrimSpace(string(c.Role)) == "" {
		return fmt.Errorf("%w: role is empty", ErrInvalidConfig)
	}
	if !contains(VisionModels, c.VisionModel) {
		return fmt.Errorf("%w: vision model %q", ErrInvalidConfig, c.VisionModel)
	}
	if !contains(TextModels, c.TextModel) {
		return fmt.Errorf("%w: text model %q", ErrInvalidConfig, c.TextModel)
	}
	if c.ProgressStyle != "" && !contains(ProgressStyles, c.ProgressStyle) {
		return fmt.Errorf("%w: progress style %q", ErrInvalidConfig, c.ProgressStyle)
	}

	ch := c.Chunking
	if ch.MaxDim < MinChunkDim || ch.MaxDim > MaxChunkDim || (ch.MaxDim-MinChunkDim)%ChunkDimStep != 0 {
		return fmt.Errorf("%w: chunk max dimension %d must be %d..%d in steps of %d",
			ErrInvalidConfig, ch.MaxDim, MinChunkDim, MaxChunkDim, ChunkDimStep)
	}
	if !contains(Aspects, ch.Aspect) {
		return fmt.Errorf("%w: aspect %q", ErrInvalidConfig, ch.Aspect)
	}
	if ch.Overlap < 0 || ch.Overlap > MaxOverlap {
		return fmt.Errorf("%w: overlap %d must be 0..%d", ErrInvalidConfig, ch.Overlap, MaxOverlap)
	}
	return nil
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
