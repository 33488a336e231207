package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RoleAPI is the role code understood by the analysis backend.
type RoleAPI string

const (
	RoleAPIMarketing RoleAPI = "marketing"
	RoleAPIPO        RoleAPI = "po"
	// RoleAPIFree is sent when a persona has no backend code.
	RoleAPIFree RoleAPI = "free"
)

// ModeAPI is the mode code understood by the analysis backend.
type ModeAPI string

const (
	ModeAPIAnalyze   ModeAPI = "analyze"
	ModeAPIDescribe  ModeAPI = "describe"
	ModeAPISummarize ModeAPI = "summarize"
	ModeAPIAll       ModeAPI = "all"
)

// API maps a persona to its backend code.
func (r Role) API() RoleAPI {
	switch r {
	case RoleMarketing:
		return RoleAPIMarketing
	case RoleProductOwner:
		return RoleAPIPO
	default:
		return RoleAPIFree
	}
}

// API maps a mode to its backend code. Anything unrecognised means "all".
func (m Mode) API() ModeAPI {
	switch m {
	case ModeAnalyze:
		return ModeAPIAnalyze
	case ModeDescribe:
		return ModeAPIDescribe
	case ModeSummarize:
		return ModeAPISummarize
	default:
		return ModeAPIAll
	}
}

// Valid reports whether the code is one the backend accepts.
func (m ModeAPI) Valid() bool {
	switch m {
	case ModeAPIAnalyze, ModeAPIDescribe, ModeAPISummarize, ModeAPIAll:
		return true
	}
	return false
}

// Valid reports whether the code is one the backend accepts.
func (r RoleAPI) Valid() bool {
	switch r {
	case RoleAPIMarketing, RoleAPIPO, RoleAPIFree:
		return true
	}
	return false
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	OK           bool         `json:"ok"`
	GridChunking GridChunking `json:"gridChunking"`
}

// GridChunking is the backend's grid chunking status. The contract types it
// as a string ("on", "enabled", ...); a JSON bool is accepted as well.
type GridChunking string

const (
	GridChunkingOn  GridChunking = "on"
	GridChunkingOff GridChunking = "off"
)

// GridChunkingFrom renders a server-side switch as the wire string.
func GridChunkingFrom(enabled bool) GridChunking {
	if enabled {
		return GridChunkingOn
	}
	return GridChunkingOff
}

// UnmarshalJSON accepts a string, a bool or null.
func (g *GridChunking) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*g = GridChunking(strings.TrimSpace(s))
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("gridChunking must be a string or bool, got %s", data)
	}
	*g = GridChunkingFrom(b)
	return nil
}

// Enabled reads the status loosely. Empty and the usual negative words mean off.
func (g GridChunking) Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(string(g))) {
	case "", "off", "false", "disabled", "no", "none", "0":
		return false
	}
	return true
}

// UploadResponse is the body of POST /api/upload.
type UploadResponse struct {
	JobID string `json:"jobId"`
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	JobID  string  `json:"jobId"`
	Role   RoleAPI `json:"role,omitempty"`
	Prompt string  `json:"prompt,omitempty"`
	Mode   ModeAPI `json:"mode,omitempty"`
}

// NewAnalyzeRequest builds the analyze body for a job. A non-blank prompt
// wins over the persona; the mode is always sent.
func NewAnalyzeRequest(jobID string, cfg RunConfiguration) AnalyzeRequest {
	req := AnalyzeRequest{JobID: jobID, Mode: cfg.Mode.API()}
	if prompt := strings.TrimSpace(cfg.Prompt); prompt != "" {
		req.Prompt = prompt
	} else {
		req.Role = cfg.Role.API()
	}
	return req
}
