package tui

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/genai-analyzer/demo/internal/intake"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/genai-analyzer/demo/internal/runner"
	"github.com/genai-analyzer/demo/internal/session"
	"github.com/genai-analyzer/demo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	model     *Model
	sess      *session.Session
	previews  *intake.PreviewRegistry
	exportDir string
}

func newFixture(t *testing.T, withFiles bool) *fixture {
	t.Helper()
	sim := runner.NewSimulator(runner.SimulatorOptions{
		Durations: []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond,
			100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond},
		Tick:  50 * time.Millisecond,
		Clock: testutil.NewFakeClock(),
	})
	dir := t.TempDir()
	previews := intake.NewPreviewRegistry()
	sess, err := session.New(session.Options{
		Runner:    sim,
		Batch:     intake.NewBatch(intake.DefaultRules(), previews),
		Config:    models.DefaultRunConfiguration(),
		ExportDir: dir,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	if withFiles {
		now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		_, err = sess.Batch().Add("hero.png", "/tmp/hero.png", 4096, "image/png", now)
		require.NoError(t, err)
		_, err = sess.Batch().Add("notes.txt", "/tmp/notes.txt", 10, "text/plain", now)
		require.NoError(t, err)
	}

	m := New(sess, Options{Rand: rand.New(rand.NewPCG(7, 7))})
	t.Cleanup(m.Close)
	return &fixture{model: m, sess: sess, previews: previews, exportDir: dir}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func (f *fixture) press(t *testing.T, s string) tea.Cmd {
	t.Helper()
	_, cmd := f.model.Update(key(s))
	return cmd
}

// complete runs the session to completion and feeds the final state in.
func (f *fixture) complete(t *testing.T) {
	t.Helper()
	f.press(t, "a")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := f.sess.Wait(ctx)
	require.NoError(t, err)
	require.True(t, st.Done)
	f.model.Update(stateMsg(st))
}

func TestAnalyzeWithoutFiles(t *testing.T) {
	f := newFixture(t, false)

	f.press(t, "a")

	assert.Equal(t, "Add a supported file to analyze", f.model.notice)
	assert.Contains(t, f.model.View(), "No files.")
}

func TestIdleView(t *testing.T) {
	f := newFixture(t, true)

	view := f.model.View()

	assert.Contains(t, view, "GenAI Analyzer")
	assert.Contains(t, view, "hero.png")
	assert.Contains(t, view, models.ErrMsgUnsupportedType)
	assert.Contains(t, view, "Idle")
	assert.NotContains(t, view, "Per-chunk analysis", "no stepper before a run")
	assert.Contains(t, view, "r: reset")
}

func TestRunningView(t *testing.T) {
	tests := []struct {
		style models.ProgressStyle
		want  string
	}{
		{models.ProgressSpinner, "Working..."},
		{models.ProgressSimple, "Processing..."},
	}
	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			f := newFixture(t, true)
			require.NoError(t, f.sess.UpdateConfig(func(c *models.RunConfiguration) { c.ProgressStyle = tt.style }))

			f.model.Update(stateMsg(models.RunState{
				Running: true, StageIndex: 2, Percent: 40, Throughput: 61.7,
				StartedAt: time.Now().Add(-3 * time.Second), Phase: models.PhaseRunning,
			}))
			view := f.model.View()

			assert.Contains(t, view, "Running: Per-chunk analysis")
			assert.Contains(t, view, "✓ Chunking")
			assert.Contains(t, view, "● Per-chunk analysis")
			assert.Contains(t, view, "○ Merge")
			assert.Contains(t, view, tt.want)
			assert.Contains(t, view, "Tokens/sec:")
			assert.Contains(t, view, "62")
			assert.Contains(t, view, "c: cancel")
		})
	}
}

func TestMetricsRespectToggles(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.sess.UpdateConfig(func(c *models.RunConfiguration) {
		c.ShowElapsed = false
		c.ShowTPS = false
		c.ProgressStyle = models.ProgressNone
	}))

	f.model.Update(stateMsg(models.RunState{Running: true, StageIndex: 0, Phase: models.PhaseRunning}))
	view := f.model.View()

	assert.NotContains(t, view, "Elapsed:")
	assert.NotContains(t, view, "Tokens/sec:")
	assert.NotContains(t, view, "Working...")
}

func TestCompletedRunShowsResults(t *testing.T) {
	f := newFixture(t, true)
	f.complete(t)

	view := f.model.View()
	assert.Contains(t, view, "Completed")
	assert.Contains(t, view, "Summary for role: Marketing")
	assert.Contains(t, view, "t/x/z: export")

	f.press(t, "tab")
	assert.Equal(t, tabAnalysis, f.model.tab)
	assert.Contains(t, f.model.View(), "Combined analysis across 1 files:")

	f.press(t, "tab")
	assert.Equal(t, tabChunks, f.model.tab)
	assert.Contains(t, f.model.View(), "Chunking disabled")

	f.press(t, "tab")
	assert.Equal(t, tabSummary, f.model.tab)

	f.press(t, "r")
	assert.Equal(t, tabSummary, f.model.tab)
}

func TestExportKeys(t *testing.T) {
	f := newFixture(t, true)

	assert.Nil(t, f.press(t, "t"))
	assert.Equal(t, "Exports are available after a completed run", f.model.notice)

	f.complete(t)

	tests := []struct {
		key  string
		file string
	}{
		{"t", "summary.txt"},
		{"x", "analysis.json"},
		{"z", "results.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			cmd := f.press(t, tt.key)
			require.NotNil(t, cmd)

			msg := cmd()
			exported, ok := msg.(exportedMsg)
			require.True(t, ok)
			require.NoError(t, exported.err)
			assert.Equal(t, filepath.Join(f.exportDir, tt.file), exported.path)
			_, err := os.Stat(exported.path)
			assert.NoError(t, err)

			f.model.Update(msg)
			assert.Equal(t, "Saved "+exported.path, f.model.notice)
		})
	}
}

func TestCancelOnlyWhileRunning(t *testing.T) {
	f := newFixture(t, true)

	f.press(t, "c")
	assert.Empty(t, f.model.notice)

	f.model.Update(stateMsg(models.RunState{Running: true, StageIndex: 1, Phase: models.PhaseRunning}))
	f.press(t, "c")
	assert.Equal(t, "Canceling after the current stage...", f.model.notice)
}

func TestDebugPane(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.sess.UpdateConfig(func(c *models.RunConfiguration) { c.Debug = true }))

	assert.Contains(t, f.model.View(), `"visionModel": "gpt-4o-mini"`)
}

func TestQuit(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		t.Run(k, func(t *testing.T) {
			f := newFixture(t, false)
			cmd := f.press(t, k)
			require.NotNil(t, cmd)
			assert.IsType(t, tea.QuitMsg{}, cmd())
			assert.Empty(t, f.model.View())
		})
	}
}

func TestResizeAndPointer(t *testing.T) {
	f := newFixture(t, false)

	f.model.Update(tea.WindowSizeMsg{Width: 200, Height: 50})
	w, h := f.model.field.Size()
	assert.Equal(t, 200*cellWidth, w)
	assert.Equal(t, headerRows*cellHeight, h)

	header := strings.Split(f.model.viewHeader(), "\n")
	assert.Len(t, header, headerRows)

	f.model.Update(tea.MouseMsg{X: 10, Y: 2, Action: tea.MouseActionMotion})
	assert.True(t, f.model.field.Len() > 0)
	_, cmd := f.model.Update(frameMsg(time.Now()))
	assert.NotNil(t, cmd, "animation keeps ticking")
}

func TestResultLines(t *testing.T) {
	cfg := models.DefaultRunConfiguration()
	items := []models.UploadedItem{
		{Name: "a.png", MIME: "image/png", Size: 2048, PreviewRef: "p1"},
		{Name: "b.pdf", MIME: "application/pdf", Size: 1536},
		{Name: "c.gif", MIME: "image/gif", Error: models.ErrMsgUnsupportedType},
	}

	t.Run("summary placeholder", func(t *testing.T) {
		lines := summaryLines(cfg, models.RunState{})
		require.Len(t, lines, 4)
		assert.Equal(t, "Summary for role: Marketing", lines[0])
		assert.Contains(t, lines[3], "tailored to Marketing")
	})

	t.Run("summary result", func(t *testing.T) {
		lines := summaryLines(cfg, models.RunState{Result: "one\ntwo"})
		assert.Equal(t, []string{"one", "two"}, lines)
	})

	t.Run("analysis", func(t *testing.T) {
		assert.Equal(t, []string{
			"Combined analysis across 2 files:",
			"- a.png - image/png - 2 KB",
			"- b.pdf - application/pdf - 1 KB",
		}, analysisLines(items))
	})

	t.Run("chunks", func(t *testing.T) {
		c := cfg
		c.Chunking.Enabled = true
		c.Chunking.SaveChunks = true
		assert.Equal(t, []string{
			"Max dim: 1024px  Aspect: 1:1  Overlap: 10%",
			"Chunks saved to /downloads",
			"  [#] a.png",
		}, chunkLines(c, items))
		assert.Equal(t, []string{"Chunking disabled", "No image previews available"}, chunkLines(cfg, items[1:]))
	})
}

func itemNames(items []models.UploadedItem) []string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return names
}

func TestRemoveSelectedFile(t *testing.T) {
	f := newFixture(t, true)
	require.Equal(t, 1, f.previews.Live(), "only the image has a preview")
	assert.Contains(t, f.model.View(), "up/down d: remove file")

	f.press(t, "d")

	assert.Equal(t, []string{"notes.txt"}, itemNames(f.sess.Items()))
	assert.Equal(t, 1, f.previews.Revoked())
	assert.Equal(t, 0, f.previews.Live())
	assert.Equal(t, "Removed hero.png", f.model.notice)
	assert.NotContains(t, f.model.viewFiles(f.sess.Items()), "hero.png")

	f.press(t, "d")

	assert.Empty(t, f.sess.Items())
	assert.Equal(t, 1, f.previews.Revoked(), "an item without a preview revokes nothing")
	assert.Contains(t, f.model.View(), "No files.")

	f.press(t, "d")
	assert.Equal(t, 1, f.previews.Revoked())
	assert.NotContains(t, f.model.View(), "remove file")
}

func TestCursorSelectsFileToRemove(t *testing.T) {
	f := newFixture(t, true)

	f.press(t, "down")
	f.press(t, "down")
	assert.Equal(t, 1, f.model.cursor, "cursor stops at the last file")
	assert.Contains(t, f.model.viewFiles(f.sess.Items()), "> notes.txt")

	f.press(t, "d")

	assert.Equal(t, []string{"hero.png"}, itemNames(f.sess.Items()))
	assert.Equal(t, 0, f.previews.Revoked())
	assert.Equal(t, 0, f.model.cursor)

	f.press(t, "up")
	assert.Equal(t, 0, f.model.cursor)
}

func TestRemoveBlockedWhileRunning(t *testing.T) {
	f := newFixture(t, true)
	f.model.Update(stateMsg(models.RunState{RunID: "run-1", Running: true, StageIndex: 1, Phase: models.PhaseRunning}))

	f.press(t, "d")

	assert.Len(t, f.sess.Items(), 2)
	assert.Equal(t, 0, f.previews.Revoked())
	assert.Equal(t, "Files cannot be removed while a run is in progress", f.model.notice)
	assert.NotContains(t, f.model.View(), "remove file")
}
