package models

import "strings"

// Stage names in execution order. Indices into this slice are what RunState
// tracks.
var Stages = []string{
	"Upload",
	"Chunking",
	"Per-chunk analysis",
	"Merge",
	"Summarize",
	"Save",
}

// StageCount is the length of the fixed sequence.
const StageCount = 6

// LastStage is the index of the final stage.
const LastStage = StageCount - 1

// DefaultStageDurations is the simulated duration of each stage in milliseconds.
var DefaultStageDurations = []int{1200, 2500, 3500, 1000, 1500, 800}

// stageAliases maps backend stage names onto the fixed sequence.
var stageAliases = map[string]int{
	"upload":             0,
	"uploading":          0,
	"chunking":           1,
	"chunk":              1,
	"analysis":           2,
	"analyze":            2,
	"per-chunk":          2,
	"per-chunk analysis": 2,
	"per_chunk":          2,
	"merge":              3,
	"merging":            3,
	"summarize":          4,
	"summary":            4,
	"save":               5,
	"saving":             5,
}

// StageIndex resolves a backend stage name. Unknown names report false.
func StageIndex(name string) (int, bool) {
	i, ok := stageAliases[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// StageName returns the display name for an index, or "" when out of range.
func StageName(i int) string {
	if i < 0 || i >= len(Stages) {
		return ""
	}
	return Stages[i]
}

// BackendStageNames are the names the reference backend emits, one per stage.
var BackendStageNames = []string{"upload", "chunking", "analysis", "merge", "summarize", "save"}
