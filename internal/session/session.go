// Package session ties a file batch, a run configuration and one runner
// together, and records finished runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/genai-analyzer/demo/internal/export"
	"github.com/genai-analyzer/demo/internal/history"
	"github.com/genai-analyzer/demo/internal/intake"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/genai-analyzer/demo/internal/runner"
	"github.com/labstack/gommon/log"
)

// Start errors. They are the runner's sentinels, so errors.Is works against
// either package.
var (
	ErrRunActive        = runner.ErrRunActive
	ErrNothingToAnalyze = runner.ErrNothingToAnalyze
	ErrClosed           = errors.New("session is closed")
)

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, rec history.Record) error
}

// Options configures a Session. Runner and Batch are required.
type Options struct {
	Runner    runner.Runner
	Batch     *intake.Batch
	Config    models.RunConfiguration
	History   Recorder
	ExportDir string
}

// Session is one user's workspace.
type Session struct {
	runner    runner.Runner
	batch     *intake.Batch
	history   Recorder
	exportDir string

	mu       sync.RWMutex
	cfg      models.RunConfiguration
	runCfg   models.RunConfiguration // config the current run started with
	runFiles []models.FileRef
	recorded map[string]struct{}
	closed   bool

	unsubscribe func()
	wg          sync.WaitGroup
	log         *log.Logger
}

// New creates a session and starts watching its runner.
func New(opts Options) (*Session, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("session requires a runner")
	}
	if opts.Batch == nil {
		return nil, fmt.Errorf("session requires a batch")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		runner:    opts.Runner,
		batch:     opts.Batch,
		history:   opts.History,
		exportDir: opts.ExportDir,
		cfg:       opts.Config,
		recorded:  make(map[string]struct{}),
		log:       logging.New("Session"),
	}

	states, unsubscribe := s.runner.Subscribe()
	s.unsubscribe = unsubscribe
	s.wg.Add(1)
	go s.watch(states)
	return s, nil
}

// watch records each run once it reaches a terminal state.
func (s *Session) watch(states <-chan models.RunState) {
	defer s.wg.Done()
	for st := range states {
		if st.RunID == "" || st.Running || !st.Terminal() {
			continue
		}

		s.mu.Lock()
		_, seen := s.recorded[st.RunID]
		s.recorded[st.RunID] = struct{}{}
		cfg, files := s.runCfg, s.runFiles
		s.mu.Unlock()
		if seen {
			continue
		}

		s.log.Infof("[Run %s] %s after %s", logging.ShortID(st.RunID), st.Outcome(),
			models.ElapsedLabel(st.FinishedAt.Sub(st.StartedAt)))
		if s.history == nil {
			continue
		}
		if err := s.history.Record(context.Background(), history.NewRecord(st, cfg, files)); err != nil {
			s.log.Warnf("[Run %s] failed to record history: %v", logging.ShortID(st.RunID), err)
		}
	}
}

// Batch returns the session's file batch.
func (s *Session) Batch() *intake.Batch {
	return s.batch
}

// AddPaths adds files or directories to the batch.
func (s *Session) AddPaths(paths ...string) ([]models.UploadedItem, error) {
	return s.batch.AddPaths(paths...)
}

// Remove drops an item from the batch.
func (s *Session) Remove(id string) bool {
	return s.batch.Remove(id)
}

// Items lists the batch.
func (s *Session) Items() []models.UploadedItem {
	return s.batch.Items()
}

// Config returns the configuration the next run will use.
func (s *Session) Config() models.RunConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig replaces the configuration after validating it. A running run
// keeps the configuration it started with.
func (s *Session) SetConfig(cfg models.RunConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// UpdateConfig edits a copy of the configuration and stores it if valid.
func (s *Session) UpdateConfig(fn func(*models.RunConfiguration)) error {
	cfg := s.Config()
	fn(&cfg)
	return s.SetConfig(cfg)
}

// CanAnalyze reports whether Start would be accepted right now.
func (s *Session) CanAnalyze() bool {
	return s.batch.CanAnalyze() && !s.runner.State().Running
}

// Start runs the analyzable items with the current configuration.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	cfg := s.cfg
	s.mu.Unlock()

	items := s.batch.Analyzable()
	if len(items) == 0 {
		return ErrNothingToAnalyze
	}
	if s.runner.State().Running {
		return ErrRunActive
	}

	files := make([]models.FileRef, 0, len(items))
	for _, item := range items {
		files = append(files, models.FileRef{Name: item.Name, Size: item.Size})
	}

	s.mu.Lock()
	prevCfg, prevFiles := s.runCfg, s.runFiles
	s.runCfg, s.runFiles = cfg, files
	s.mu.Unlock()

	if err := s.runner.Start(ctx, items, cfg); err != nil {
		s.mu.Lock()
		s.runCfg, s.runFiles = prevCfg, prevFiles
		s.mu.Unlock()
		return err
	}
	return nil
}

// Cancel asks the current run to stop.
func (s *Session) Cancel() {
	s.runner.Cancel()
}

// Reset discards the current run.
func (s *Session) Reset() {
	s.runner.Reset()
}

// State returns the current run state.
func (s *Session) State() models.RunState {
	return s.runner.State()
}

// Subscribe streams run state snapshots.
func (s *Session) Subscribe() (<-chan models.RunState, func()) {
	return s.runner.Subscribe()
}

// Wait blocks until the current run is terminal or ctx is done.
func (s *Session) Wait(ctx context.Context) (models.RunState, error) {
	states, unsubscribe := s.runner.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return s.runner.State(), ctx.Err()
		case st, ok := <-states:
			if !ok {
				return s.runner.State(), ErrClosed
			}
			if st.RunID != "" && !st.Running && st.Terminal() {
				return st, nil
			}
		}
	}
}

// Export builds an artifact from the current configuration, batch and result.
func (s *Session) Export(format export.Format) (export.Payload, error) {
	st := s.runner.State()
	result := ""
	if st.Done {
		result = st.Result
	}
	return export.Build(format, export.SourceFrom(s.Config(), s.batch.Items(), result))
}

// SaveExport builds an artifact and writes it to the export directory.
func (s *Session) SaveExport(format export.Format) (string, error) {
	p, err := s.Export(format)
	if err != nil {
		return "", err
	}
	dir := s.exportDir
	if dir == "" {
		dir = "."
	}
	return export.Save(dir, p)
}

// Close stops the runner, closes streams and releases previews.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	runErr := s.runner.Close()
	s.unsubscribe()
	s.wg.Wait()
	batchErr := s.batch.Close()
	return errors.Join(runErr, batchErr)
}
