package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRunConfigurationIsValid(t *testing.T) {
	cfg := DefaultRunConfiguration()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeAnalyze, cfg.Mode)
	assert.Equal(t, RoleMarketing, cfg.Role)
	assert.Equal(t, "gpt-4o-mini", cfg.VisionModel)
	assert.Equal(t, "gpt-4.1-mini", cfg.TextModel)
	assert.False(t, cfg.Chunking.Enabled)
	assert.Equal(t, 1024, cfg.Chunking.MaxDim)
	assert.Equal(t, "1:1", cfg.Chunking.Aspect)
	assert.Equal(t, 10, cfg.Chunking.Overlap)
	assert.Equal(t, "/downloads", cfg.Chunking.OutputDir)
}

func TestRunConfigurationValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunConfiguration)
		wantErr bool
	}{
		{"defaults", func(*RunConfiguration) {}, false},
		{"max dim lower bound", func(c *RunConfiguration) { c.Chunking.MaxDim = 256 }, false},
		{"max dim upper bound", func(c *RunConfiguration) { c.Chunking.MaxDim = 2048 }, false},
		{"max dim off step", func(c *RunConfiguration) { c.Chunking.MaxDim = 1000 }, true},
		{"max dim too small", func(c *RunConfiguration) { c.Chunking.MaxDim = 192 }, true},
		{"overlap too large", func(c *RunConfiguration) { c.Chunking.Overlap = 41 }, true},
		{"negative overlap", func(c *RunConfiguration) { c.Chunking.Overlap = -1 }, true},
		{"unknown aspect", func(c *RunConfiguration) { c.Chunking.Aspect = "3:2" }, true},
		{"unknown mode", func(c *RunConfiguration) { c.Mode = "Translate" }, true},
		{"unknown vision model", func(c *RunConfiguration) { c.VisionModel = "llava" }, true},
		{"empty role", func(c *RunConfiguration) { c.Role = " " }, true},
		{"custom role", func(c *RunConfiguration) { c.Role = "Engineer" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfiguration()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRoleAndModeMapping(t *testing.T) {
	assert.Equal(t, RoleAPIMarketing, RoleMarketing.API())
	assert.Equal(t, RoleAPIPO, RoleProductOwner.API())
	assert.Equal(t, RoleAPIFree, Role("Engineer").API())

	assert.Equal(t, ModeAPIAnalyze, ModeAnalyze.API())
	assert.Equal(t, ModeAPIDescribe, ModeDescribe.API())
	assert.Equal(t, ModeAPISummarize, ModeSummarize.API())
	assert.Equal(t, ModeAPIAll, ModeAll.API())
}

func TestNewAnalyzeRequestPromptWinsOverRole(t *testing.T) {
	cfg := DefaultRunConfiguration()
	cfg.Role = RoleProductOwner
	cfg.Mode = ModeSummarize

	req := NewAnalyzeRequest("job-1", cfg)
	assert.Equal(t, RoleAPIPO, req.Role)
	assert.Empty(t, req.Prompt)
	assert.Equal(t, ModeAPISummarize, req.Mode)

	cfg.Prompt = "  list the risks  "
	req = NewAnalyzeRequest("job-1", cfg)
	assert.Equal(t, "list the risks", req.Prompt)
	assert.Empty(t, req.Role)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobId":"job-1","prompt":"list the risks","mode":"summarize"}`, string(body))
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, ev Event)
		wantErr bool
	}{
		{
			name:    "stage",
			payload: `{"type":"stage","stage":"chunking"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, EventStage, ev.Type)
				assert.Equal(t, "chunking", ev.Stage)
			},
		},
		{
			name:    "progress",
			payload: `{"type":"progress","current":3,"total":4,"message":"tile 3"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, 3.0, ev.Current)
				assert.Equal(t, 4.0, ev.Total)
				assert.Equal(t, "tile 3", ev.Message)
			},
		},
		{
			name:    "tokens prefers rate",
			payload: `{"type":"tokens","rate":42.5,"tokens":10,"total":300}`,
			check: func(t *testing.T, ev Event) {
				v, ok := ev.Throughput()
				assert.True(t, ok)
				assert.Equal(t, 42.5, v)
				require.NotNil(t, ev.TokenTotal)
				assert.Equal(t, 300.0, *ev.TokenTotal)
				assert.Zero(t, ev.Total)
			},
		},
		{
			name:    "tokens without rate",
			payload: `{"type":"tokens","tokens":17}`,
			check: func(t *testing.T, ev Event) {
				v, ok := ev.Throughput()
				assert.True(t, ok)
				assert.Equal(t, 17.0, v)
			},
		},
		{
			name:    "done without result",
			payload: `{"type":"done"}`,
			check: func(t *testing.T, ev Event) {
				assert.False(t, ev.HasResult())
				assert.False(t, ev.Terminal())
			},
		},
		{
			name:    "done with null result",
			payload: `{"type":"done","result":null}`,
			check: func(t *testing.T, ev Event) {
				assert.False(t, ev.HasResult())
			},
		},
		{
			name:    "done with string result",
			payload: `{"type":"done","result":"all good"}`,
			check: func(t *testing.T, ev Event) {
				assert.True(t, ev.HasResult())
				assert.True(t, ev.Terminal())
				assert.Equal(t, "all good", ev.ResultText())
			},
		},
		{
			name:    "done with object result",
			payload: `{"type":"done","result":{"summary":"x"}}`,
			check: func(t *testing.T, ev Event) {
				assert.True(t, ev.HasResult())
				assert.Contains(t, ev.ResultText(), `"summary": "x"`)
			},
		},
		{name: "missing type", payload: `{"stage":"upload"}`, wantErr: true},
		{name: "malformed", payload: `{"type":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestEventMarshalUsesWireNames(t *testing.T) {
	data, err := json.Marshal(ProgressEvent(0, 5, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"progress","current":0,"total":5}`, string(data))

	data, err = json.Marshal(DoneEvent(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done"}`, string(data))

	data, err = json.Marshal(DoneEvent("ok"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done","result":"ok"}`, string(data))
}

func TestStageIndex(t *testing.T) {
	for i, name := range BackendStageNames {
		got, ok := StageIndex(name)
		assert.True(t, ok, name)
		assert.Equal(t, i, got, name)
	}
	got, ok := StageIndex("Per-Chunk")
	assert.True(t, ok)
	assert.Equal(t, 2, got)

	_, ok = StageIndex("render")
	assert.False(t, ok)
	assert.Len(t, Stages, StageCount)
	assert.Len(t, DefaultStageDurations, StageCount)
}

func TestRunStateStatusText(t *testing.T) {
	s := NewRunState()
	assert.Equal(t, "Idle", s.StatusText())

	s.Running = true
	s.StageIndex = 2
	assert.Equal(t, "Running: Per-chunk analysis", s.StatusText())
	assert.Equal(t, StageDone, s.StageStatus(1))
	assert.Equal(t, StageActive, s.StageStatus(2))
	assert.Equal(t, StagePending, s.StageStatus(3))

	s.Running = false
	s.Done = true
	s.StageIndex = LastStage
	assert.Equal(t, "Completed", s.StatusText())
	assert.Equal(t, StageDone, s.StageStatus(LastStage))

	s = NewRunState()
	s.Error = "health failed: 503"
	assert.Equal(t, "Error: health failed: 503", s.StatusText())
	assert.Equal(t, "failed", s.Outcome())
}

func TestRunStateElapsedFreezesOnFinish(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewRunState()
	assert.Zero(t, s.Elapsed(start))

	s.StartedAt = start
	assert.Equal(t, 3*time.Second, s.Elapsed(start.Add(3*time.Second)))

	s.FinishedAt = start.Add(5 * time.Second)
	assert.Equal(t, 5*time.Second, s.Elapsed(start.Add(time.Minute)))
	assert.Equal(t, "5.0s", ElapsedLabel(s.Elapsed(start)))
}

func TestHealthResponseGridChunking(t *testing.T) {
	tests := []struct {
		body    string
		want    GridChunking
		enabled bool
	}{
		{`{"ok":true,"gridChunking":"on"}`, GridChunkingOn, true},
		{`{"ok":true,"gridChunking":"enabled"}`, "enabled", true},
		{`{"ok":true,"gridChunking":" Disabled "}`, "Disabled", false},
		{`{"ok":true,"gridChunking":true}`, GridChunkingOn, true},
		{`{"ok":true,"gridChunking":false}`, GridChunkingOff, false},
		{`{"ok":true,"gridChunking":null}`, "", false},
		{`{"ok":true}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var resp HealthResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))
			assert.True(t, resp.OK)
			assert.Equal(t, tt.want, resp.GridChunking)
			assert.Equal(t, tt.enabled, resp.GridChunking.Enabled())
		})
	}

	var resp HealthResponse
	assert.Error(t, json.Unmarshal([]byte(`{"gridChunking":{"x":1}}`), &resp))

	data, err := json.Marshal(HealthResponse{OK: true, GridChunking: GridChunkingFrom(false)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"gridChunking":"off"}`, string(data))
}
