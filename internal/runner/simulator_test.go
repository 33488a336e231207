package runner

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/genai-analyzer/demo/internal/models"
	"github.com/genai-analyzer/demo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems() []models.UploadedItem {
	return []models.UploadedItem{
		{ID: "1", Name: "deck.png", MIME: "image/png", Size: 20480},
		{ID: "2", Name: "brief.pdf", MIME: "application/pdf", Size: 4096},
	}
}

func defaultDurations() []time.Duration {
	var out []time.Duration
	for _, ms := range models.DefaultStageDurations {
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out
}

func newTestSimulator(clock *testutil.FakeClock) *Simulator {
	return NewSimulator(SimulatorOptions{
		Durations: defaultDurations(),
		Tick:      80 * time.Millisecond,
		Clock:     clock,
		Rand:      rand.New(rand.NewSource(1)),
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestSimulatorCompletes(t *testing.T) {
	clock := testutil.NewFakeClock()
	sim := newTestSimulator(clock)
	defer sim.Close()

	var (
		mu       sync.Mutex
		indices  []int
		maxBelow = true
	)
	clock.OnSleep = func(int) {
		st := sim.State()
		mu.Lock()
		defer mu.Unlock()
		if len(indices) == 0 || indices[len(indices)-1] != st.StageIndex {
			indices = append(indices, st.StageIndex)
		}
		if st.Percent > 99 {
			maxBelow = false
		}
		assert.GreaterOrEqual(t, st.Throughput, 20.0)
		assert.LessOrEqual(t, st.Throughput, 100.0)
	}

	cfg := models.DefaultRunConfiguration()
	require.NoError(t, sim.Start(context.Background(), testItems(), cfg))
	waitFor(t, func() bool { return sim.State().Done })

	st := sim.State()
	assert.Equal(t, models.LastStage, st.StageIndex)
	assert.Equal(t, 100, st.Percent)
	assert.False(t, st.Running)
	assert.False(t, st.Canceled)
	assert.Empty(t, st.Error)
	assert.Equal(t, models.PhaseDone, st.Phase)
	assert.Equal(t, "Completed", st.StatusText())
	assert.Contains(t, st.Result, "Summary for role: Marketing")
	assert.Contains(t, st.Result, "Combined analysis across 2 files:")
	assert.Contains(t, st.Result, "deck.png - image/png - 20 KB")

	total := 10500 * time.Millisecond
	assert.GreaterOrEqual(t, st.Elapsed(clock.Now()), total)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, indices, "stages advance in order")
	assert.True(t, maxBelow, "percent stays below 100 while a stage is ticking")
}

func TestSimulatorCancelLetsCurrentStageFinish(t *testing.T) {
	const cancelAt = 2
	durations := defaultDurations()

	clock := testutil.NewFakeClock()
	sim := newTestSimulator(clock)
	defer sim.Close()

	var (
		mu       sync.Mutex
		canceled bool
		maxStage = -1
	)
	clock.OnSleep = func(int) {
		st := sim.State()
		mu.Lock()
		defer mu.Unlock()
		if st.StageIndex > maxStage {
			maxStage = st.StageIndex
		}
		if st.StageIndex == cancelAt && !canceled {
			canceled = true
			sim.Cancel()
		}
	}

	require.NoError(t, sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration()))

	// Running flips immediately, the pointer resets only after the stage ends
	waitFor(t, func() bool {
		st := sim.State()
		return st.Phase == models.PhaseCanceled
	})

	st := sim.State()
	assert.False(t, st.Done, "a canceled run never reports done")
	assert.True(t, st.Canceled)
	assert.False(t, st.Running)
	assert.Equal(t, -1, st.StageIndex)
	assert.Equal(t, "Idle", st.StatusText())

	var throughStage time.Duration
	for _, d := range durations[:cancelAt+1] {
		throughStage += d
	}
	elapsed := st.FinishedAt.Sub(st.StartedAt)
	assert.GreaterOrEqual(t, elapsed, throughStage, "the in-flight stage timer ran to completion")
	assert.Less(t, elapsed, throughStage+durations[cancelAt+1], "no later stage started")

	mu.Lock()
	assert.Equal(t, cancelAt, maxStage)
	mu.Unlock()
}

func TestSimulatorRejectsConcurrentStart(t *testing.T) {
	clock := testutil.NewFakeClock()
	sim := newTestSimulator(clock)
	defer sim.Close()

	gate := make(chan struct{})
	var once sync.Once
	clock.OnSleep = func(int) {
		once.Do(func() { <-gate })
	}

	require.NoError(t, sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration()))
	err := sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration())
	assert.ErrorIs(t, err, ErrRunActive)

	close(gate)
	waitFor(t, func() bool { return sim.State().Done })
}

func TestSimulatorParallelStartsAdmitOne(t *testing.T) {
	clock := testutil.NewFakeClock()
	sim := newTestSimulator(clock)
	defer sim.Close()

	gate := make(chan struct{})
	var once sync.Once
	clock.OnSleep = func(int) {
		once.Do(func() { <-gate })
	}

	const starters = 16
	var (
		wg      sync.WaitGroup
		release = make(chan struct{})
		errs    = make(chan error, starters)
	)
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-release
			errs <- sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration())
		}()
	}
	close(release)
	wg.Wait()
	close(errs)

	started := 0
	for err := range errs {
		if err == nil {
			started++
			continue
		}
		assert.ErrorIs(t, err, ErrRunActive)
	}
	assert.Equal(t, 1, started)

	close(gate)
	waitFor(t, func() bool { return sim.State().Done })
}

func TestSimulatorRequiresItems(t *testing.T) {
	sim := newTestSimulator(testutil.NewFakeClock())
	defer sim.Close()

	err := sim.Start(context.Background(), nil, models.DefaultRunConfiguration())
	assert.ErrorIs(t, err, ErrNothingToAnalyze)
	assert.Equal(t, models.NewRunState(), sim.State())
}

func TestSimulatorResetDiscardsRun(t *testing.T) {
	clock := testutil.NewFakeClock()
	sim := newTestSimulator(clock)
	defer sim.Close()

	var once sync.Once
	clock.OnSleep = func(n int) {
		if n >= 3 {
			once.Do(sim.Reset)
		}
	}

	require.NoError(t, sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration()))
	waitFor(t, func() bool { return clock.Sleeps() >= 3 })
	sim.Close()

	assert.Equal(t, models.NewRunState(), sim.State())
}

func TestSimulatorNewRunAfterCancelReplacesOld(t *testing.T) {
	clock := testutil.NewFakeClock()
	sim := newTestSimulator(clock)
	defer sim.Close()

	var once sync.Once
	clock.OnSleep = func(int) { once.Do(sim.Cancel) }

	require.NoError(t, sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration()))
	waitFor(t, func() bool { return !sim.State().Running })
	first := sim.State().RunID

	require.NoError(t, sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration()))
	waitFor(t, func() bool { return sim.State().Done })

	st := sim.State()
	assert.NotEqual(t, first, st.RunID)
	assert.False(t, st.Canceled)
	assert.Equal(t, 100, st.Percent)
}

func TestSimulatorRecoversFromPanic(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{
		Durations: []time.Duration{time.Millisecond},
		Tick:      time.Millisecond,
		Clock:     testutil.NewFakeClock(),
		Result: func([]models.UploadedItem, models.RunConfiguration) string {
			panic("boom")
		},
	})
	defer sim.Close()

	require.NoError(t, sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration()))
	waitFor(t, func() bool { return sim.State().Error != "" })

	st := sim.State()
	assert.Equal(t, "Unexpected error", st.Error)
	assert.False(t, st.Done)
	assert.False(t, st.Running)
	assert.Equal(t, "Error: Unexpected error", st.StatusText())
}

func TestSimulatorCloseStopsRun(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{Tick: time.Millisecond})
	require.NoError(t, sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration()))
	require.NoError(t, sim.Close())

	assert.False(t, sim.State().Done)
	assert.ErrorIs(t, sim.Start(context.Background(), testItems(), models.DefaultRunConfiguration()), ErrClosed)
}

func TestTrackerSubscribeCoalesces(t *testing.T) {
	tr := NewTracker()
	ch, unsubscribe := tr.Subscribe()

	initial := <-ch
	assert.Equal(t, -1, initial.StageIndex)

	gen := tr.Begin(func(st *models.RunState) { st.Running = true })
	for i := 0; i < models.StageCount; i++ {
		idx := i
		tr.Update(gen, func(st *models.RunState) { st.StageIndex = idx })
	}

	latest := <-ch
	assert.Equal(t, models.LastStage, latest.StageIndex)

	assert.False(t, tr.Update(gen-1, func(st *models.RunState) { st.Done = true }), "stale generation is dropped")
	assert.False(t, tr.Snapshot().Done)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}
