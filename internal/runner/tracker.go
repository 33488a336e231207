// Package runner drives the six-stage workflow, either on local timers or by
// following a backend job's event stream.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/genai-analyzer/demo/internal/models"
)

var (
	// ErrRunActive is returned when starting while a run is still running.
	ErrRunActive = errors.New("a run is already in progress")
	// ErrNothingToAnalyze is returned when no item passed validation.
	ErrNothingToAnalyze = errors.New("no analyzable files")
	// ErrClosed is returned when starting a runner that was closed.
	ErrClosed = errors.New("runner is closed")
)

// Runner is the surface shared by the simulated and live runners.
type Runner interface {
	Start(ctx context.Context, items []models.UploadedItem, cfg models.RunConfiguration) error
	Cancel()
	Reset()
	State() models.RunState
	Subscribe() (<-chan models.RunState, func())
	Close() error
}

// Clock abstracts time so runs can be driven deterministically.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in that case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Tracker owns the single live RunState. Every write names the generation it
// belongs to; writes from a superseded run are dropped.
type Tracker struct {
	mu      sync.Mutex
	state   models.RunState
	gen     uint64
	subs    map[int]chan models.RunState
	nextSub int
}

// NewTracker returns a tracker holding the idle state.
func NewTracker() *Tracker {
	return &Tracker{
		state: models.NewRunState(),
		subs:  make(map[int]chan models.RunState),
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() models.RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Begin replaces the state with a fresh one, applies init and returns the new
// generation.
func (t *Tracker) Begin(init func(*models.RunState)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	t.state = models.NewRunState()
	if init != nil {
		init(&t.state)
	}
	t.publishLocked()
	return t.gen
}

// Update applies fn if gen is still current and reports whether it did.
func (t *Tracker) Update(gen uint64, fn func(*models.RunState)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen {
		return false
	}
	fn(&t.state)
	t.publishLocked()
	return true
}

// Read returns the state if gen is still current.
func (t *Tracker) Read(gen uint64) (models.RunState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, gen == t.gen
}

// Reset invalidates the current run and returns to idle.
func (t *Tracker) Reset() {
	t.Begin(nil)
}

// Generation returns the current generation.
func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Subscribe returns a channel of state snapshots. Slow readers only see the
// latest one. The returned func unsubscribes and closes the channel.
func (t *Tracker) Subscribe() (<-chan models.RunState, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	ch := make(chan models.RunState, 1)
	ch <- t.state
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			close(ch)
		})
	}
}

func (t *Tracker) publishLocked() {
	for _, ch := range t.subs {
		select {
		case ch <- t.state:
		default:
			// Replace the stale snapshot
			select {
			case <-ch:
			default:
			}
			ch <- t.state
		}
	}
}
