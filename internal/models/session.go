package models

import (
	"fmt"
	"time"
)

// RunPhase is the position of a live run in its job lifecycle. Simulated runs
// only use Idle, Running and the terminal phases.
type RunPhase string

const (
	PhaseIdle                   RunPhase = "idle"
	PhaseRunning                RunPhase = "running"
	PhaseCheckingHealth         RunPhase = "checking-health"
	PhaseAwaitingUpload         RunPhase = "awaiting-upload"
	PhaseAwaitingAnalyzeTrigger RunPhase = "awaiting-analyze-trigger"
	PhaseAnalyzing              RunPhase = "analyzing"
	PhaseDone                   RunPhase = "done"
	PhaseFailed                 RunPhase = "failed"
	PhaseCanceled               RunPhase = "canceled"
)

// Terminal reports whether no further transitions happen from this phase.
func (p RunPhase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseCanceled
}

// StageStatus is how one stepper entry is drawn.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageActive  StageStatus = "active"
	StageDone    StageStatus = "done"
)

// RunState is the record of the current run. Runners own the live copy and
// hand out value snapshots.
type RunState struct {
	RunID      string    `json:"runId,omitempty"`
	StageIndex int       `json:"stageIndex"` // -1 when no stage is active
	Percent    int       `json:"percent"`    // 0-100, for the active stage
	Running    bool      `json:"running"`
	Canceled   bool      `json:"canceled"`
	Done       bool      `json:"done"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	Result     string    `json:"result,omitempty"`

	Throughput float64  `json:"throughput,omitempty"` // tokens/sec, display only
	Message    string   `json:"message,omitempty"`
	JobID      string   `json:"jobId,omitempty"`
	Phase      RunPhase `json:"phase"`
	Live       bool     `json:"live"`
}

// NewRunState returns the idle state.
func NewRunState() RunState {
	return RunState{StageIndex: -1, Phase: PhaseIdle}
}

// StatusText is the one-line status shown above the stepper.
func (s RunState) StatusText() string {
	switch {
	case s.Running:
		if name := StageName(s.StageIndex); name != "" {
			return "Running: " + name
		}
		return "Running: starting"
	case s.Done:
		return "Completed"
	case s.Error != "":
		return "Error: " + s.Error
	default:
		return "Idle"
	}
}

// StageStatus classifies stage i relative to the active pointer.
func (s RunState) StageStatus(i int) StageStatus {
	switch {
	case s.Done && i <= s.StageIndex:
		return StageDone
	case i < s.StageIndex:
		return StageDone
	case i == s.StageIndex && s.Running:
		return StageActive
	default:
		return StagePending
	}
}

// Elapsed is the wall time since start, frozen once the run finished.
func (s RunState) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.FinishedAt.IsZero() {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// Terminal reports whether the run has ended one way or another.
func (s RunState) Terminal() bool {
	return s.Done || s.Error != "" || (s.Canceled && !s.Running && s.StageIndex < 0)
}

// Outcome is the label stored in run history.
func (s RunState) Outcome() string {
	switch {
	case s.Done:
		return "completed"
	case s.Error != "":
		return "failed"
	case s.Canceled:
		return "canceled"
	default:
		return "idle"
	}
}

// ElapsedLabel formats elapsed seconds like "12.3s".
func ElapsedLabel(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
