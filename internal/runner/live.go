package runner

import (
	"context"
	"math"
	"sync"

	"github.com/genai-analyzer/demo/internal/client"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

// Backend is what the live runner needs from the API.
type Backend interface {
	Health(ctx context.Context) (models.HealthResponse, error)
	UploadFile(ctx context.Context, path string, mode models.ModeAPI) (string, error)
	Analyze(ctx context.Context, req models.AnalyzeRequest) error
	// Subscribe opens the job's event stream and returns its closer.
	Subscribe(ctx context.Context, jobID string, onEvent func(models.Event), onError func(error)) func()
}

// clientBackend adapts *client.Client to Backend.
type clientBackend struct {
	*client.Client
}

// NewClientBackend wraps an API client for the live runner.
func NewClientBackend(c *client.Client) Backend {
	return clientBackend{c}
}

func (b clientBackend) Subscribe(ctx context.Context, jobID string, onEvent func(models.Event), onError func(error)) func() {
	sub := b.Stream(ctx, jobID, onEvent, onError)
	return sub.Close
}

// LiveOptions configures a Live runner.
type LiveOptions struct {
	// SkipHealthCheck starts with the upload instead of probing the backend.
	SkipHealthCheck bool
	Clock           Clock
}

// Live follows a backend job: health, upload, stream, then one analyze
// call once the prework is reported finished.
type Live struct {
	tracker *Tracker
	backend Backend
	opts    LiveOptions

	mu      sync.Mutex
	current *liveRun
	closed  bool
	wg      sync.WaitGroup
	log     *log.Logger
}

// liveRun is the per-run plumbing that must be torn down with the run.
type liveRun struct {
	gen    uint64
	id     string
	cfg    models.RunConfiguration
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	closeStream   func()
	streamStopped bool
	released      bool
}

// setStream records the stream closer, or closes it right away when the run
// was already released or finished before the stream was attached.
func (r *liveRun) setStream(closeFn func()) {
	r.mu.Lock()
	if r.released || r.streamStopped {
		r.mu.Unlock()
		closeFn()
		return
	}
	r.closeStream = closeFn
	r.mu.Unlock()
}

// stopStream closes the event stream, leaving in-flight calls alone.
func (r *liveRun) stopStream() {
	r.mu.Lock()
	fn := r.closeStream
	r.closeStream = nil
	r.streamStopped = true
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// release closes the stream and aborts in-flight calls.
func (r *liveRun) release() {
	r.mu.Lock()
	r.released = true
	r.mu.Unlock()
	r.stopStream()
	r.cancel()
}

// NewLive creates a live runner.
func NewLive(backend Backend, opts LiveOptions) *Live {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &Live{
		tracker: NewTracker(),
		backend: backend,
		opts:    opts,
		log:     logging.New("Live"),
	}
}

// Start uploads the first analyzable item and follows its job.
func (l *Live) Start(ctx context.Context, items []models.UploadedItem, cfg models.RunConfiguration) error {
	if len(items) == 0 {
		return ErrNothingToAnalyze
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.tracker.Snapshot().Running {
		return ErrRunActive
	}
	if l.current != nil {
		l.current.release()
	}

	runID := uuid.New().String()
	firstPhase := models.PhaseCheckingHealth
	if l.opts.SkipHealthCheck {
		firstPhase = models.PhaseAwaitingUpload
	}
	gen := l.tracker.Begin(func(st *models.RunState) {
		st.RunID = runID
		st.Running = true
		st.Live = true
		st.StartedAt = l.opts.Clock.Now()
		st.Phase = firstPhase
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &liveRun{gen: gen, id: runID, cfg: cfg, ctx: runCtx, cancel: cancel}
	l.current = run

	item := items[0]
	if len(items) > 1 {
		l.log.Infof("[Run %s] live mode analyzes one file per job, using %s", logging.ShortID(runID), item.Name)
	}

	l.wg.Add(1)
	go l.run(run, item)
	return nil
}

func (l *Live) run(run *liveRun, item models.UploadedItem) {
	defer l.wg.Done()

	if !l.opts.SkipHealthCheck {
		health, err := l.backend.Health(run.ctx)
		if err != nil {
			l.fail(run, err.Error())
			return
		}
		if !health.OK {
			l.fail(run, "health failed: backend reported not ok")
			return
		}
		if !l.tracker.Update(run.gen, func(st *models.RunState) {
			st.Phase = models.PhaseAwaitingUpload
		}) {
			return
		}
	}

	if !l.tracker.Update(run.gen, func(st *models.RunState) {
		st.StageIndex = 0
		st.Percent = 0
	}) {
		return
	}

	jobID, err := l.backend.UploadFile(run.ctx, item.Path, run.cfg.Mode.API())
	if err != nil {
		l.fail(run, err.Error())
		return
	}

	if !l.tracker.Update(run.gen, func(st *models.RunState) {
		if st.Phase.Terminal() {
			return
		}
		st.JobID = jobID
		st.Phase = models.PhaseAwaitingAnalyzeTrigger
	}) {
		return
	}
	l.log.Infof("[Run %s] job %s uploaded, waiting for prework", logging.ShortID(run.id), logging.ShortID(jobID))

	closeFn := l.backend.Subscribe(run.ctx, jobID,
		func(ev models.Event) { l.handleEvent(run, ev) },
		func(err error) {
			// Transport trouble never ends the run; the stream retries on its own
			l.log.Warnf("[Run %s] stream: %v", logging.ShortID(run.id), err)
		})
	run.setStream(closeFn)
}

// handleEvent applies one stream event. Every decision is taken under the
// tracker lock, so the phase itself guards the analyze trigger.
func (l *Live) handleEvent(run *liveRun, ev models.Event) {
	var (
		triggerAnalyze bool
		completed      bool
	)

	l.tracker.Update(run.gen, func(st *models.RunState) {
		if st.Phase.Terminal() {
			return
		}

		switch ev.Type {
		case models.EventStage:
			idx, ok := models.StageIndex(ev.Stage)
			if !ok {
				l.log.Debugf("[Run %s] ignoring unknown stage %q", logging.ShortID(run.id), ev.Stage)
				return
			}
			if idx > st.StageIndex {
				st.StageIndex = idx
				st.Percent = 0
			}

		case models.EventProgress:
			if ev.Total <= 0 {
				return
			}
			pct := int(math.Floor(ev.Current / ev.Total * 100))
			st.Percent = clampPercent(pct, 99)
			if ev.Message != "" {
				st.Message = ev.Message
			}

		case models.EventTokens:
			if v, ok := ev.Throughput(); ok {
				st.Throughput = v
			}

		case models.EventMessage:
			st.Message = ev.Message
			l.log.Infof("[Run %s] %s", logging.ShortID(run.id), ev.Message)

		case models.EventError:
			msg := ev.Error
			if msg == "" {
				msg = "analysis failed"
			}
			st.Error = msg
			st.Running = false
			st.Phase = models.PhaseFailed
			st.FinishedAt = l.opts.Clock.Now()

		case models.EventDone:
			if ev.HasResult() {
				st.Done = true
				st.Running = false
				st.Percent = 100
				st.StageIndex = models.LastStage
				st.Result = ev.ResultText()
				st.Phase = models.PhaseDone
				st.FinishedAt = l.opts.Clock.Now()
				completed = true
				return
			}
			if st.Phase != models.PhaseAwaitingAnalyzeTrigger {
				l.log.Debugf("[Run %s] ignoring empty done in phase %s", logging.ShortID(run.id), st.Phase)
				return
			}
			st.Phase = models.PhaseAnalyzing
			triggerAnalyze = true

		default:
			l.log.Debugf("[Run %s] ignoring event type %q", logging.ShortID(run.id), ev.Type)
		}
	})

	if completed {
		l.log.Infof("[Run %s] complete", logging.ShortID(run.id))
		run.stopStream()
	}
	if triggerAnalyze {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		l.wg.Add(1)
		l.mu.Unlock()
		go l.analyze(run)
	}
}

func (l *Live) analyze(run *liveRun) {
	defer l.wg.Done()

	st, current := l.tracker.Read(run.gen)
	if !current {
		return
	}
	req := models.NewAnalyzeRequest(st.JobID, run.cfg)
	l.log.Infof("[Run %s] prework done, requesting analysis", logging.ShortID(run.id))

	if err := l.backend.Analyze(run.ctx, req); err != nil {
		if run.ctx.Err() != nil {
			return
		}
		l.fail(run, err.Error())
		run.stopStream()
	}
}

func (l *Live) fail(run *liveRun, msg string) {
	l.tracker.Update(run.gen, func(st *models.RunState) {
		if st.Phase.Terminal() {
			return
		}
		st.Error = msg
		st.Running = false
		st.Phase = models.PhaseFailed
		st.FinishedAt = l.opts.Clock.Now()
	})
	l.log.Errorf("[Run %s] %s", logging.ShortID(run.id), msg)
}

// Cancel stops following the job. In-flight calls are abandoned.
func (l *Live) Cancel() {
	l.mu.Lock()
	run := l.current
	l.mu.Unlock()
	if run == nil {
		return
	}

	canceled := l.tracker.Update(run.gen, func(st *models.RunState) {
		if !st.Running {
			return
		}
		st.Canceled = true
		st.Running = false
		st.StageIndex = -1
		st.Phase = models.PhaseCanceled
		st.FinishedAt = l.opts.Clock.Now()
	})
	if canceled {
		run.release()
	}
}

// Reset drops the current run, closing its stream, and returns to idle.
func (l *Live) Reset() {
	l.mu.Lock()
	run := l.current
	l.current = nil
	l.mu.Unlock()

	if run != nil {
		run.release()
	}
	l.tracker.Reset()
}

// State returns a snapshot of the current run.
func (l *Live) State() models.RunState {
	return l.tracker.Snapshot()
}

// Subscribe streams state snapshots.
func (l *Live) Subscribe() (<-chan models.RunState, func()) {
	return l.tracker.Subscribe()
}

// Close releases the current run and waits for its goroutines.
func (l *Live) Close() error {
	l.mu.Lock()
	l.closed = true
	run := l.current
	l.mu.Unlock()

	if run != nil {
		run.release()
	}
	l.wg.Wait()
	return nil
}

func clampPercent(pct, limit int) int {
	if pct < 0 {
		return 0
	}
	if pct > limit {
		return limit
	}
	return pct
}

var _ Runner = (*Live)(nil)
var _ Runner = (*Simulator)(nil)
