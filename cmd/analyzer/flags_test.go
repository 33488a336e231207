package main

import (
	"testing"

	"github.com/genai-analyzer/demo/internal/export"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Mode
		wantErr bool
	}{
		{"analyze", models.ModeAnalyze, false},
		{"Describe", models.ModeDescribe, false},
		{" SUMMARIZE ", models.ModeSummarize, false},
		{"all", models.ModeAll, false},
		{"poetry", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Role
		wantErr bool
	}{
		{"po", models.RoleProductOwner, false},
		{"product owner", models.RoleProductOwner, false},
		{"MARKETING", models.RoleMarketing, false},
		{"  Legal reviewer ", models.Role("Legal reviewer"), false},
		{"   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRole(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseProgressStyle(t *testing.T) {
	got, err := parseProgressStyle("spinner")
	require.NoError(t, err)
	assert.Equal(t, models.ProgressSpinner, got)

	got, err = parseProgressStyle("None")
	require.NoError(t, err)
	assert.Equal(t, models.ProgressNone, got)

	_, err = parseProgressStyle("dots")
	assert.Error(t, err)
}

func TestParseFormats(t *testing.T) {
	got, err := parseFormats([]string{"txt,json", ".zip", "text", ""})
	require.NoError(t, err)
	assert.Equal(t, []export.Format{export.FormatText, export.FormatJSON, export.FormatZip}, got)

	got, err = parseFormats(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseFormats([]string{"txt,pdf"})
	assert.Error(t, err)
}

func TestCanceledText(t *testing.T) {
	tests := []struct {
		stage int
		want  string
	}{
		{-1, "Canceled before the first stage"},
		{0, "Canceled at Upload (stage 1 of 6)"},
		{2, "Canceled at Per-chunk analysis (stage 3 of 6)"},
		{models.LastStage, "Canceled at Save (stage 6 of 6)"},
		{models.StageCount, "Canceled before the first stage"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, canceledText(tt.stage))
	}
}
