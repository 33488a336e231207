package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/genai-analyzer/demo/internal/client"
	"github.com/genai-analyzer/demo/internal/config"
	"github.com/genai-analyzer/demo/internal/export"
	"github.com/genai-analyzer/demo/internal/history"
	"github.com/genai-analyzer/demo/internal/intake"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/genai-analyzer/demo/internal/runner"
	"github.com/genai-analyzer/demo/internal/session"
	"github.com/genai-analyzer/demo/internal/tui"
	"github.com/spf13/cobra"
)

var errNoFiles = errors.New("no files given (pass paths, or use --tui)")

type runOptions struct {
	mode        string
	role        string
	prompt      string
	visionModel string
	textModel   string

	chunking     bool
	chunkMaxDim  int
	chunkAspect  string
	chunkOverlap int
	saveChunks   bool
	outputDir    string

	progress    string
	showTPS     bool
	showElapsed bool
	debug       bool

	live      bool
	baseURL   string
	tui       bool
	exports   []string
	noHistory bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Analyze files through the six-stage workflow",
		Long: `Run adds the given files (directories are expanded one level) and walks
the analyzable ones through the workflow. Without --live the stages are
simulated locally; with --live the files go to the backend at --base-url.

Flags override the defaults section of the config file for this run only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return opts.run(cmd, cfg, args)
		},
	}

	defaults := config.DefaultConfig().Defaults
	f := cmd.Flags()
	f.StringVar(&opts.mode, "mode", string(defaults.Mode), "Analysis mode (analyze, describe, summarize, all)")
	f.StringVar(&opts.role, "role", string(defaults.Role), "Persona the results are tailored to (Marketing, Product Owner, or free text)")
	f.StringVar(&opts.prompt, "prompt", "", "Custom instructions for the analysis")
	f.StringVar(&opts.visionModel, "vision-model", defaults.VisionModel, "Vision model")
	f.StringVar(&opts.textModel, "text-model", defaults.TextModel, "Text model")
	f.BoolVar(&opts.chunking, "chunking", defaults.Chunking.Enabled, "Tile large images before analysis")
	f.IntVar(&opts.chunkMaxDim, "chunk-max-dim", defaults.Chunking.MaxDim, "Maximum tile dimension in pixels")
	f.StringVar(&opts.chunkAspect, "chunk-aspect", defaults.Chunking.Aspect, "Tile aspect ratio (1:1, 4:3, 16:9)")
	f.IntVar(&opts.chunkOverlap, "chunk-overlap", defaults.Chunking.Overlap, "Tile overlap in percent")
	f.BoolVar(&opts.saveChunks, "save-chunks", defaults.Chunking.SaveChunks, "Keep the generated tiles")
	f.StringVar(&opts.outputDir, "output-dir", defaults.Chunking.OutputDir, "Where saved tiles go")
	f.StringVar(&opts.progress, "progress", string(defaults.ProgressStyle), "Progress style (bar, spinner, simple, none)")
	f.BoolVar(&opts.showTPS, "show-tps", defaults.ShowTPS, "Show simulated tokens per second")
	f.BoolVar(&opts.showElapsed, "show-elapsed", defaults.ShowElapsed, "Show elapsed time")
	f.BoolVar(&opts.debug, "debug", defaults.Debug, "Print the run configuration and final state as JSON")

	f.BoolVar(&opts.live, "live", false, "Run against the analysis backend instead of simulating")
	f.StringVar(&opts.baseURL, "base-url", "", "Backend base URL (defaults to client.base_url)")
	f.BoolVar(&opts.tui, "tui", false, "Open the interactive terminal UI")
	f.StringSliceVar(&opts.exports, "export", nil, "Export formats to write after a completed run (txt, json, zip)")
	f.BoolVar(&opts.noHistory, "no-history", false, "Do not record this run in the history database")

	return cmd
}

// apply copies every flag the user set onto the configured defaults.
func (o *runOptions) apply(cmd *cobra.Command, rc *models.RunConfiguration) error {
	changed := cmd.Flags().Changed

	if changed("mode") {
		m, err := parseMode(o.mode)
		if err != nil {
			return err
		}
		rc.Mode = m
	}
	if changed("role") {
		r, err := parseRole(o.role)
		if err != nil {
			return err
		}
		rc.Role = r
	}
	if changed("progress") {
		p, err := parseProgressStyle(o.progress)
		if err != nil {
			return err
		}
		rc.ProgressStyle = p
	}
	if changed("prompt") {
		rc.Prompt = o.prompt
	}
	if changed("vision-model") {
		rc.VisionModel = o.visionModel
	}
	if changed("text-model") {
		rc.TextModel = o.textModel
	}
	if changed("chunking") {
		rc.Chunking.Enabled = o.chunking
	}
	if changed("chunk-max-dim") {
		rc.Chunking.MaxDim = o.chunkMaxDim
	}
	if changed("chunk-aspect") {
		rc.Chunking.Aspect = o.chunkAspect
	}
	if changed("chunk-overlap") {
		rc.Chunking.Overlap = o.chunkOverlap
	}
	if changed("save-chunks") {
		rc.Chunking.SaveChunks = o.saveChunks
	}
	if changed("output-dir") {
		rc.Chunking.OutputDir = o.outputDir
	}
	if changed("show-tps") {
		rc.ShowTPS = o.showTPS
	}
	if changed("show-elapsed") {
		rc.ShowElapsed = o.showElapsed
	}
	if changed("debug") {
		rc.Debug = o.debug
	}
	return rc.Validate()
}

func (o *runOptions) run(cmd *cobra.Command, cfg *config.AppConfig, paths []string) error {
	logger := logging.New("CLI")

	runCfg := cfg.Defaults
	if err := o.apply(cmd, &runCfg); err != nil {
		return err
	}
	formats, err := parseFormats(o.exports)
	if err != nil {
		return err
	}
	if len(paths) == 0 && !o.tui {
		return errNoFiles
	}

	batch := intake.NewBatch(intake.Rules{
		MaxSize:  cfg.MaxFileSize(),
		Accepted: cfg.Intake.AcceptedTypes,
	}, intake.NewPreviewRegistry())

	var r runner.Runner
	subtitle := ""
	if o.live {
		baseURL := o.baseURL
		if baseURL == "" {
			baseURL = cfg.Client.BaseURL
		}
		c := client.New(baseURL,
			client.WithTimeout(cfg.RequestTimeout()),
			client.WithStreamRetry(cfg.StreamRetry()),
		)
		r = runner.NewLive(runner.NewClientBackend(c), runner.LiveOptions{})
		subtitle = c.BaseURL()
	} else {
		r = runner.NewSimulator(runner.SimulatorOptions{
			Durations: cfg.StageDurations(),
			Tick:      cfg.TickInterval(),
		})
	}

	sessOpts := session.Options{
		Runner:    r,
		Batch:     batch,
		Config:    runCfg,
		ExportDir: cfg.GetExportDir(),
	}
	if cfg.Storage.EnableHistory && !o.noHistory {
		store, err := history.Open(cfg.Storage.HistoryPath, history.Options{
			Threads:     cfg.Advanced.DuckDBThreads,
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
		})
		if err != nil {
			logger.Warnf("history disabled: %v", err)
		} else {
			defer store.Close()
			sessOpts.History = store
		}
	}

	sess, err := session.New(sessOpts)
	if err != nil {
		r.Close()
		batch.Close()
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()
	items, err := sess.AddPaths(paths...)
	if err != nil {
		return err
	}
	for _, item := range items {
		if !item.Analyzable() {
			fmt.Fprintf(out, "%s %s: %s\n", failStyle.Render("✗"), item.Name, item.Error)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if o.tui {
		return o.runTUI(ctx, cfg, sess, subtitle)
	}
	return o.runPlain(ctx, out, sess, formats)
}

// runTUI sends log output to a file for the lifetime of the program.
func (o *runOptions) runTUI(ctx context.Context, cfg *config.AppConfig, sess *session.Session, subtitle string) error {
	if err := os.MkdirAll(cfg.GetDataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.GetDataDir(), "analyzer.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	logging.SetOutput(logFile)
	defer logging.SetOutput(os.Stderr)

	return tui.Run(ctx, sess, tui.Options{Subtitle: subtitle})
}

// runPlain starts one run and prints its stages as they begin. An interrupt
// cancels the run and waits for the runner to settle.
func (o *runOptions) runPlain(ctx context.Context, out io.Writer, sess *session.Session, formats []export.Format) error {
	rc := sess.Config()
	if rc.Debug {
		printJSON(out, "Configuration", rc)
	}

	states, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	// The run outlives ctx so a canceled run can still report its final state.
	if err := sess.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	var final models.RunState
	interrupted := ctx.Done()
	lastStage := -1
wait:
	for {
		select {
		case <-interrupted:
			interrupted = nil
			fmt.Fprintln(out, mutedStyle.Render("Canceling after the current stage..."))
			sess.Cancel()
		case st, ok := <-states:
			if !ok {
				return session.ErrClosed
			}
			if st.RunID == "" {
				continue
			}
			if st.Running && st.StageIndex >= 0 && st.StageIndex != lastStage {
				lastStage = st.StageIndex
				if rc.ProgressStyle != models.ProgressNone {
					fmt.Fprintf(out, "%s %s\n", stageStyle.Render("●"), models.StageName(st.StageIndex))
				}
			}
			if !st.Running && st.Terminal() {
				final = st
				break wait
			}
		}
	}

	switch {
	case final.Done:
		fmt.Fprintln(out, okStyle.Render(final.StatusText()))
	case final.Error != "":
		fmt.Fprintln(out, failStyle.Render(final.StatusText()))
	default:
		fmt.Fprintln(out, mutedStyle.Render(canceledText(lastStage)))
	}
	if rc.ShowElapsed {
		fmt.Fprintf(out, "Elapsed: %s\n", models.ElapsedLabel(final.Elapsed(time.Now())))
	}
	if rc.Debug {
		printJSON(out, "State", final)
	}

	if final.Error != "" {
		return fmt.Errorf("run failed: %s", final.Error)
	}
	if !final.Done {
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, final.Result)

	for _, format := range formats {
		path, err := sess.SaveExport(format)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved %s\n", path)
	}
	return nil
}

// canceledText names the last stage that was running when the stop landed.
func canceledText(lastStage int) string {
	name := models.StageName(lastStage)
	if name == "" {
		return "Canceled before the first stage"
	}
	return fmt.Sprintf("Canceled at %s (stage %d of %d)", name, lastStage+1, models.StageCount)
}

func printJSON(out io.Writer, title string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(out, "%s\n%s\n", headerStyle.Render(title), data)
}
