package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

// Status represents the job processing status.
type Status string

const (
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusAnalyzing Status = "analyzing"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Analyze errors.
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrNotReady        = errors.New("job prework has not finished")
	ErrAlreadyAnalyzed = errors.New("analysis already started for job")
)

// gridTiles is how many tiles the mock chunker reports for an image.
const gridTiles = 4

// Job is an uploaded file moving through prework and analysis.
type Job struct {
	ID          string         `json:"id" msgpack:"id"`
	FileID      string         `json:"fileId" msgpack:"fileId"`
	FileName    string         `json:"fileName" msgpack:"fileName"`
	MIME        string         `json:"type" msgpack:"type"`
	Size        int64          `json:"size" msgpack:"size"`
	Mode        models.ModeAPI `json:"mode" msgpack:"mode"`
	Role        models.RoleAPI `json:"role,omitempty" msgpack:"role,omitempty"`
	Prompt      string         `json:"prompt,omitempty" msgpack:"prompt,omitempty"`
	Status      Status         `json:"status" msgpack:"status"`
	Stage       string         `json:"stage" msgpack:"stage"`
	Progress    float64        `json:"progress" msgpack:"progress"`
	Events      int            `json:"events" msgpack:"events"`
	Result      *Result        `json:"result,omitempty" msgpack:"result,omitempty"`
	Error       string         `json:"error,omitempty" msgpack:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" msgpack:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty" msgpack:"completedAt,omitempty"`
}

// Result is the mock analysis output attached to the final done event.
type Result struct {
	Summary  string   `json:"summary" msgpack:"summary"`
	Analysis []string `json:"analysis" msgpack:"analysis"`
	Chunks   int      `json:"chunks" msgpack:"chunks"`
}

// StreamEvent is a job event with its position in the job's log.
type StreamEvent struct {
	ID    int
	Event models.Event
}

// job is the mutable record behind a Job snapshot.
type job struct {
	Job
	chunks   int
	log      []StreamEvent
	terminal bool
	notify   chan struct{}
}

// Store defines what the manager needs from the storage layer.
type Store interface {
	GetFilePath(id string) (string, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
}

// Options tunes the mock pipeline.
type Options struct {
	// StageDelay is the pause between emitted events.
	StageDelay time.Duration
	// GridChunking makes images report tiles during the chunking stage.
	GridChunking bool
}

// Manager runs jobs and keeps their event logs for streaming.
type Manager struct {
	jobs  map[string]*job
	mu    sync.RWMutex
	store Store
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *log.Logger
}

// NewManager creates a new job manager.
func NewManager(store Store, opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:   make(map[string]*job),
		store:  store,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		log:    logging.New("Jobs"),
	}
}

// StartJob creates a job for a stored file and begins prework.
func (m *Manager) StartJob(info *models.FileInfo, mode models.ModeAPI) Job {
	if !mode.Valid() {
		mode = models.ModeAPIAll
	}
	j := &job{
		Job: Job{
			ID:        uuid.New().String(),
			FileID:    info.ID,
			FileName:  info.Name,
			MIME:      info.MIME,
			Size:      info.Size,
			Mode:      mode,
			Status:    StatusPreparing,
			Stage:     models.BackendStageNames[0],
			CreatedAt: time.Now(),
		},
		notify: make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[j.ID] = j
	snapshot := j.Job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.prework(j)

	return snapshot
}

// GetJob returns a snapshot of a job.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.Job, true
}

// Events returns the events after the given ID, a channel closed on the next
// append, and whether the job has already emitted its final event.
func (m *Manager) Events(id string, after int) (events []StreamEvent, wait <-chan struct{}, terminal bool, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, nil, false, false
	}
	if after < 0 {
		after = 0
	}
	if after < len(j.log) {
		events = append(events, j.log[after:]...)
	}
	return events, j.notify, j.terminal, true
}

// Analyze starts the analysis stages of a job whose prework has finished.
func (m *Manager) Analyze(req models.AnalyzeRequest) error {
	m.mu.Lock()
	j, ok := m.jobs[req.JobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, req.JobID)
	}
	switch j.Status {
	case StatusPreparing:
		m.mu.Unlock()
		return ErrNotReady
	case StatusReady:
	default:
		m.mu.Unlock()
		return ErrAlreadyAnalyzed
	}

	j.Status = StatusAnalyzing
	j.Role = req.Role
	j.Prompt = strings.TrimSpace(req.Prompt)
	if req.Mode.Valid() {
		j.Mode = req.Mode
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.analyze(j)
	return nil
}

// prework runs the upload and chunking stages, then emits an empty done.
func (m *Manager) prework(j *job) {
	defer m.wg.Done()
	m.log.Infof("[Job %s] Starting prework: %s (%s, %d bytes)", logging.ShortID(j.ID), j.FileName, j.MIME, j.Size)

	if _, err := m.store.GetFilePath(j.FileID); err != nil {
		m.markJobError(j, fmt.Sprintf("stored file missing: %v", err))
		return
	}

	steps := []models.Event{
		models.StageEvent("upload"),
		models.ProgressEvent(1, 1, "received "+j.FileName),
		models.TokensEvent(0),
		models.StageEvent("chunking"),
	}
	tiles := 1
	if m.opts.GridChunking && strings.HasPrefix(j.MIME, "image/") {
		tiles = gridTiles
		for i := 1; i <= tiles; i++ {
			steps = append(steps, models.ProgressEvent(float64(i), float64(tiles), fmt.Sprintf("tile %d of %d", i, tiles)))
		}
	} else {
		steps = append(steps, models.ProgressEvent(1, 1, "no chunking needed"))
	}
	steps = append(steps, models.MessageEvent("prework complete"))

	if !m.play(j, steps) {
		return
	}

	m.mu.Lock()
	j.chunks = tiles
	j.Status = StatusReady
	m.mu.Unlock()

	// The empty done tells the client to call analyze
	m.emit(j, models.DoneEvent(nil))
	m.log.Infof("[Job %s] Prework complete, awaiting analyze", logging.ShortID(j.ID))
}

// analyze runs the remaining stages and finishes with the result.
func (m *Manager) analyze(j *job) {
	defer m.wg.Done()

	m.mu.RLock()
	snapshot := j.Job
	tiles := j.chunks
	m.mu.RUnlock()
	m.log.Infof("[Job %s] Analyzing: mode=%s role=%s prompt=%t", logging.ShortID(j.ID), snapshot.Mode, snapshot.Role, snapshot.Prompt != "")

	steps := []models.Event{models.StageEvent("analysis")}
	for i := 1; i <= tiles; i++ {
		steps = append(steps,
			models.ProgressEvent(float64(i), float64(tiles), fmt.Sprintf("chunk %d of %d", i, tiles)),
			models.TokensEvent(float64(40+10*i)))
	}
	steps = append(steps,
		models.StageEvent("merge"),
		models.ProgressEvent(1, 1, "merged"),
		models.StageEvent("summarize"),
		models.TokensEvent(65),
		models.ProgressEvent(1, 1, "summary ready"),
		models.StageEvent("save"),
		models.ProgressEvent(1, 1, "saved"),
	)
	if !m.play(j, steps) {
		return
	}

	result := buildResult(snapshot, tiles)
	m.mu.Lock()
	j.Result = &result
	m.mu.Unlock()

	m.emit(j, models.DoneEvent(result))
	m.markJobComplete(j)
	m.log.Infof("[Job %s] Processing complete", logging.ShortID(j.ID))
}

// play emits steps with the configured delay. It reports false when the
// manager was closed midway.
func (m *Manager) play(j *job, steps []models.Event) bool {
	for _, ev := range steps {
		if err := m.sleep(); err != nil {
			return false
		}
		m.emit(j, ev)
	}
	return true
}

func (m *Manager) sleep() error {
	if m.opts.StageDelay <= 0 {
		return m.ctx.Err()
	}
	t := time.NewTimer(m.opts.StageDelay)
	defer t.Stop()
	select {
	case <-m.ctx.Done():
		return m.ctx.Err()
	case <-t.C:
		return nil
	}
}

// emit appends an event to the job log and wakes stream followers.
func (m *Manager) emit(j *job, ev models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j.terminal {
		return
	}
	j.log = append(j.log, StreamEvent{ID: len(j.log) + 1, Event: ev})
	j.Events = len(j.log)
	m.updateJobStatus(j, ev)
	if ev.Terminal() {
		j.terminal = true
	}
	close(j.notify)
	j.notify = make(chan struct{})
}

// updateJobStatus mirrors stage and progress events onto the snapshot.
// Callers hold m.mu.
func (m *Manager) updateJobStatus(j *job, ev models.Event) {
	switch ev.Type {
	case models.EventStage:
		j.Stage = ev.Stage
		j.Progress = 0
	case models.EventProgress:
		if ev.Total > 0 {
			j.Progress = ev.Current / ev.Total * 100
		}
	}
}

// markJobComplete marks job as complete (thread-safe).
func (m *Manager) markJobComplete(j *job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j.Status = StatusComplete
	j.Progress = 100
	now := time.Now()
	j.CompletedAt = &now
}

// markJobError fails the job and emits an error event.
func (m *Manager) markJobError(j *job, errMsg string) {
	m.emit(j, models.ErrorEvent(errMsg))

	m.mu.Lock()
	defer m.mu.Unlock()
	j.Status = StatusError
	j.Error = errMsg
	now := time.Now()
	j.CompletedAt = &now
	m.log.Errorf("[Job %s] Error: %s", logging.ShortID(j.ID), errMsg)
}

// CleanupOldJobs removes finished jobs older than maxAge, and any job at all
// once it is twice that old. The uploads behind removed jobs are deleted, as
// are stored files no job refers to once they are twice maxAge old.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	now := time.Now()
	cutoff := now.Add(-maxAge)
	var fileIDs []string
	for id, j := range m.jobs {
		finished := j.CompletedAt != nil && j.CompletedAt.Before(cutoff)
		stale := j.CreatedAt.Before(now.Add(-2 * maxAge))
		if finished || stale {
			delete(m.jobs, id)
			fileIDs = append(fileIDs, j.FileID)
		}
	}
	referenced := make(map[string]bool, len(m.jobs))
	for _, j := range m.jobs {
		referenced[j.FileID] = true
	}
	m.mu.Unlock()

	removed := len(fileIDs)
	for _, id := range fileIDs {
		if referenced[id] {
			continue
		}
		if err := m.store.Delete(id); err != nil {
			m.log.Warnf("Failed to delete upload %s: %v", logging.ShortID(id), err)
		}
	}
	orphans := m.sweepOrphans(referenced, now.Add(-2*maxAge))

	if removed > 0 || orphans > 0 {
		m.log.Infof("Cleaned up %d old jobs, %d orphaned uploads", removed, orphans)
	}
	return removed
}

// sweepOrphans deletes stored files uploaded before cutoff that no job uses.
func (m *Manager) sweepOrphans(referenced map[string]bool, cutoff time.Time) int {
	files, err := m.store.List(0)
	if err != nil {
		m.log.Warnf("Failed to list uploads: %v", err)
		return 0
	}
	swept := 0
	for _, info := range files {
		if referenced[info.ID] || !info.UploadedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(info.ID); err != nil {
			m.log.Warnf("Failed to delete orphaned upload %s: %v", logging.ShortID(info.ID), err)
			continue
		}
		swept++
	}
	return swept
}

// Len returns the number of tracked jobs.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Close stops running pipelines and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func buildResult(j Job, tiles int) Result {
	focus := string(j.Role)
	if j.Prompt != "" {
		focus = fmt.Sprintf("prompt %q", j.Prompt)
	}
	if focus == "" {
		focus = string(models.RoleAPIFree)
	}
	return Result{
		Summary: fmt.Sprintf("%s of %s for %s", modeLabel(j.Mode), j.FileName, focus),
		Analysis: []string{
			fmt.Sprintf("%s - %s - %d KB", j.FileName, j.MIME, j.Size/1024),
			fmt.Sprintf("Processed %d chunk(s)", tiles),
		},
		Chunks: tiles,
	}
}

func modeLabel(mode models.ModeAPI) string {
	switch mode {
	case models.ModeAPIDescribe:
		return "Description"
	case models.ModeAPISummarize:
		return "Summary"
	case models.ModeAPIAnalyze:
		return "Analysis"
	default:
		return "Full report"
	}
}
