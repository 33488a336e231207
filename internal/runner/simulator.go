package runner

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

// unexpectedError is what the user sees when a run fails for a reason that is
// not a reported error.
const unexpectedError = "Unexpected error"

// SimulatorOptions configures a Simulator. Zero values pick the defaults.
type SimulatorOptions struct {
	Durations []time.Duration
	Tick      time.Duration
	Clock     Clock
	Rand      *rand.Rand

	// Result builds the completion text. Defaults to PlaceholderResult.
	Result func(items []models.UploadedItem, cfg models.RunConfiguration) string
}

// Simulator walks the stages on local timers.
type Simulator struct {
	tracker *Tracker
	opts    SimulatorOptions

	mu     sync.Mutex // guards rand, closed and run start
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
	log    *log.Logger
}

// NewSimulator creates a simulated runner.
func NewSimulator(opts SimulatorOptions) *Simulator {
	if len(opts.Durations) == 0 {
		for _, ms := range models.DefaultStageDurations {
			opts.Durations = append(opts.Durations, time.Duration(ms)*time.Millisecond)
		}
	}
	if opts.Tick <= 0 {
		opts.Tick = 80 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Result == nil {
		opts.Result = PlaceholderResult
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Simulator{
		tracker: NewTracker(),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		log:     logging.New("Simulator"),
	}
}

// Start begins a run over the analyzable items. It returns immediately; watch
// progress through State or Subscribe.
func (s *Simulator) Start(ctx context.Context, items []models.UploadedItem, cfg models.RunConfiguration) error {
	if len(items) == 0 {
		return ErrNothingToAnalyze
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.tracker.Snapshot().Running {
		return ErrRunActive
	}

	runID := uuid.New().String()
	gen := s.tracker.Begin(func(st *models.RunState) {
		st.RunID = runID
		st.Running = true
		st.StartedAt = s.opts.Clock.Now()
		st.Phase = models.PhaseRunning
	})

	items = append([]models.UploadedItem(nil), items...)
	s.log.Infof("[Run %s] starting with %d files, mode %s", logging.ShortID(runID), len(items), cfg.Mode)

	s.wg.Add(1)
	go s.run(gen, runID, items, cfg)
	return nil
}

func (s *Simulator) run(gen uint64, runID string, items []models.UploadedItem, cfg models.RunConfiguration) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("[Run %s] PANIC recovered: %v", logging.ShortID(runID), r)
			s.tracker.Update(gen, func(st *models.RunState) {
				st.Error = unexpectedError
				st.Phase = models.PhaseFailed
			})
		}
		s.tracker.Update(gen, func(st *models.RunState) {
			st.Running = false
			if st.Canceled {
				st.StageIndex = -1
				st.Phase = models.PhaseCanceled
			}
			if st.FinishedAt.IsZero() {
				st.FinishedAt = s.opts.Clock.Now()
			}
		})
	}()

	for i, dur := range s.opts.Durations {
		// Cancellation is only noticed between stages
		st, current := s.tracker.Read(gen)
		if !current {
			return
		}
		if st.Canceled {
			s.log.Infof("[Run %s] canceled before %s", logging.ShortID(runID), models.StageName(i))
			break
		}

		if !s.tracker.Update(gen, func(st *models.RunState) {
			st.StageIndex = i
			st.Percent = 0
		}) {
			return
		}

		if err := s.runStage(gen, dur); err != nil {
			return
		}
	}

	st, current := s.tracker.Read(gen)
	if !current || st.Canceled {
		return
	}

	result := s.opts.Result(items, cfg)
	completed := false
	s.tracker.Update(gen, func(st *models.RunState) {
		if st.Canceled {
			return
		}
		st.Done = true
		st.Running = false
		st.Percent = 100
		st.StageIndex = len(s.opts.Durations) - 1
		st.Result = result
		st.Phase = models.PhaseDone
		st.FinishedAt = s.opts.Clock.Now()
		completed = true
	})
	if completed {
		s.log.Infof("[Run %s] complete", logging.ShortID(runID))
	}
}

// runStage ticks until dur has elapsed. It only stops early when the runner is
// closed or the run was superseded.
func (s *Simulator) runStage(gen uint64, dur time.Duration) error {
	start := s.opts.Clock.Now()
	for {
		elapsed := s.opts.Clock.Now().Sub(start)
		if elapsed >= dur {
			if !s.tracker.Update(gen, func(st *models.RunState) { st.Percent = 100 }) {
				return fmt.Errorf("run superseded")
			}
			return nil
		}

		pct := int(math.Floor(float64(elapsed) / float64(dur) * 100))
		if pct > 99 {
			pct = 99
		}
		tps := s.simulatedThroughput()
		if !s.tracker.Update(gen, func(st *models.RunState) {
			st.Percent = pct
			st.Throughput = tps
		}) {
			return fmt.Errorf("run superseded")
		}

		if err := s.opts.Clock.Sleep(s.ctx, s.opts.Tick); err != nil {
			return err
		}
	}
}

// simulatedThroughput is a display-only tokens/sec figure in [20, 100].
func (s *Simulator) simulatedThroughput() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return math.Round(20 + s.opts.Rand.Float64()*80)
}

// Cancel asks the run to stop. The stage in flight finishes first.
func (s *Simulator) Cancel() {
	gen := s.tracker.Generation()
	s.tracker.Update(gen, func(st *models.RunState) {
		if !st.Running {
			return
		}
		st.Canceled = true
		st.Running = false
	})
}

// Reset drops the current run and returns to idle.
func (s *Simulator) Reset() {
	s.tracker.Reset()
}

// State returns a snapshot of the current run.
func (s *Simulator) State() models.RunState {
	return s.tracker.Snapshot()
}

// Subscribe streams state snapshots.
func (s *Simulator) Subscribe() (<-chan models.RunState, func()) {
	return s.tracker.Subscribe()
}

// Close stops any run and waits for its goroutine.
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}
