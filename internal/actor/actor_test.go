// ABOUTME: Tests for the actor lifecycle state machine and shutdown registry.
// ABOUTME: Covers start/stop/suspend/resume rules, error recovery, draining and forced stops.

package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingWorker ticks roughly every millisecond and honours cancellation.
type countingWorker struct {
	ticks atomic.Int64
}

func (w *countingWorker) Tick(ctx context.Context) error {
	w.ticks.Add(1)
	select {
	case <-ctx.Done():
	case <-time.After(time.Millisecond):
	}
	return nil
}

// stuckWorker blocks in Tick until released, ignoring cancellation.
type stuckWorker struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStuckWorker() *stuckWorker {
	return &stuckWorker{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (w *stuckWorker) Tick(ctx context.Context) error {
	w.once.Do(func() { close(w.entered) })
	<-w.release
	return nil
}

// observingWorker records every state reported to OnStateChange.
type observingWorker struct {
	countingWorker
	mu     sync.Mutex
	states []State
}

func (w *observingWorker) OnStateChange(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states = append(w.states, s)
}

func (w *observingWorker) seen() []State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]State(nil), w.states...)
}

// drainingWorker needs one tick per pending item before it can stop.
type drainingWorker struct {
	pending atomic.Int64
	drained atomic.Int64
}

func (w *drainingWorker) Tick(ctx context.Context) error {
	if w.pending.Load() > 0 {
		w.pending.Add(-1)
		w.drained.Add(1)
		return nil
	}
	<-ctx.Done()
	return nil
}

func (w *drainingWorker) Stoppable() bool {
	return w.pending.Load() == 0
}

func TestActor_NewIsNotStarted(t *testing.T) {
	a := New("test", &countingWorker{})

	assert.Equal(t, NotStarted, a.State())
	assert.Equal(t, "test", a.Name())
	assert.NoError(t, a.LastError())
}

func TestActor_StartRunsWorker(t *testing.T) {
	w := &countingWorker{}
	a := New("test", w)
	defer a.StopAndWait(time.Second, true)

	a.AsyncStart()
	assert.Equal(t, Running, a.State())

	require.Eventually(t, func() bool {
		return w.ticks.Load() > 2
	}, time.Second, time.Millisecond)
}

func TestActor_AsyncStartIsIdempotent(t *testing.T) {
	w := &countingWorker{}
	a := New("test", w)
	defer a.StopAndWait(time.Second, true)

	a.AsyncStart()
	a.AsyncStart()
	a.AsyncStart()

	assert.Equal(t, Running, a.State())
}

func TestActor_SuspendOnlyFromRunning(t *testing.T) {
	a := New("test", &countingWorker{})
	defer a.StopAndWait(time.Second, true)

	assert.False(t, a.Suspend(), "cannot suspend before start")

	a.AsyncStart()
	assert.True(t, a.Suspend())
	assert.Equal(t, Suspended, a.State())
	assert.False(t, a.Suspend(), "cannot suspend twice")
}

func TestActor_ResumeOnlyFromSuspended(t *testing.T) {
	a := New("test", &countingWorker{})
	defer a.StopAndWait(time.Second, true)

	assert.False(t, a.Resume(), "cannot resume before start")

	a.AsyncStart()
	assert.False(t, a.Resume(), "cannot resume while running")

	require.True(t, a.Suspend())
	assert.True(t, a.Resume())
	assert.Equal(t, Running, a.State())
}

func TestActor_SuspendedDoesNoWork(t *testing.T) {
	w := &countingWorker{}
	a := New("test", w)
	defer a.StopAndWait(time.Second, true)

	a.AsyncStart()
	require.Eventually(t, func() bool { return w.ticks.Load() > 0 }, time.Second, time.Millisecond)

	require.True(t, a.Suspend())
	// Let any in-flight tick finish.
	time.Sleep(20 * time.Millisecond)
	before := w.ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, w.ticks.Load())

	require.True(t, a.Resume())
	require.Eventually(t, func() bool { return w.ticks.Load() > before }, time.Second, time.Millisecond)
}

func TestActor_AsyncStopIsIdempotent(t *testing.T) {
	a := New("test", &countingWorker{})
	a.AsyncStart()

	assert.True(t, a.AsyncStop())
	assert.False(t, a.AsyncStop())

	require.True(t, a.WaitUntilStopped(time.Second))
	assert.Equal(t, Stopped, a.State())
	assert.False(t, a.AsyncStop())
}

func TestActor_StopBeforeStart(t *testing.T) {
	a := New("test", &countingWorker{})

	assert.True(t, a.AsyncStop())
	assert.Equal(t, Stopped, a.State())
	assert.False(t, a.AsyncStop())
	assert.True(t, a.WaitUntilStopped(time.Millisecond))
}

func TestActor_StoppedIsTerminal(t *testing.T) {
	w := &countingWorker{}
	a := New("test", w)
	a.AsyncStart()
	require.Equal(t, StopResultWaited, a.StopAndWait(time.Second, false))

	ticks := w.ticks.Load()
	a.AsyncStart()
	assert.Equal(t, Stopped, a.State())
	assert.False(t, a.Suspend())
	assert.False(t, a.Resume())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ticks, w.ticks.Load())
}

func TestActor_StopWhileSuspended(t *testing.T) {
	a := New("test", &countingWorker{})
	a.AsyncStart()
	require.True(t, a.Suspend())

	assert.True(t, a.AsyncStop())
	assert.True(t, a.WaitUntilStopped(time.Second))
}

func TestActor_WaitUntilStoppedTimesOut(t *testing.T) {
	w := newStuckWorker()
	defer close(w.release)

	a := New("test", w)
	a.AsyncStart()
	<-w.entered

	a.AsyncStop()
	start := time.Now()
	assert.False(t, a.WaitUntilStopped(30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, Stopping, a.State())
}

func TestActor_StopAndWait(t *testing.T) {
	t.Run("already stopped", func(t *testing.T) {
		a := New("test", &countingWorker{})
		a.AsyncStop()
		assert.Equal(t, StopResultStopped, a.StopAndWait(time.Second, false))
	})

	t.Run("waited", func(t *testing.T) {
		a := New("test", &countingWorker{})
		a.AsyncStart()
		assert.Equal(t, StopResultWaited, a.StopAndWait(time.Second, false))
		assert.True(t, a.Stopped())
	})

	t.Run("timeout without force", func(t *testing.T) {
		w := newStuckWorker()
		defer close(w.release)
		a := New("test", w)
		a.AsyncStart()
		<-w.entered

		assert.Equal(t, StopResultTimeout, a.StopAndWait(20*time.Millisecond, false))
		assert.Equal(t, Stopping, a.State())
	})

	t.Run("forced", func(t *testing.T) {
		w := newStuckWorker()
		defer close(w.release)
		a := New("test", w)
		a.AsyncStart()
		<-w.entered

		assert.Equal(t, StopResultForced, a.StopAndWait(20*time.Millisecond, true))
		assert.Equal(t, Stopped, a.State())
		assert.True(t, a.WaitUntilStopped(time.Millisecond))
	})
}

func TestActor_TickErrorIsRecorded(t *testing.T) {
	var calls atomic.Int64
	boom := errors.New("boom")
	w := WorkerFunc(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return boom
		}
		<-ctx.Done()
		return nil
	})

	a := New("test", w)
	defer a.StopAndWait(time.Second, true)
	a.AsyncStart()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, a.LastError(), boom)
	assert.Equal(t, Running, a.State())
}

func TestActor_TickPanicIsRecovered(t *testing.T) {
	var calls atomic.Int64
	w := WorkerFunc(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("kaboom")
		}
		<-ctx.Done()
		return nil
	})

	a := New("test", w)
	defer a.StopAndWait(time.Second, true)
	a.AsyncStart()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	require.Error(t, a.LastError())
	assert.Contains(t, a.LastError().Error(), "kaboom")
	assert.Equal(t, Running, a.State())
}

func TestActor_StateObserver(t *testing.T) {
	w := &observingWorker{}
	a := New("test", w)

	a.AsyncStart()
	require.True(t, a.Suspend())
	require.True(t, a.Resume())
	require.Equal(t, StopResultWaited, a.StopAndWait(time.Second, false))

	seen := w.seen()
	require.NotEmpty(t, seen)
	assert.Equal(t, Running, seen[0])
	assert.Contains(t, seen, Suspended)
	assert.Equal(t, Stopped, seen[len(seen)-1])
}

func TestActor_StoppableDrainsBeforeStopping(t *testing.T) {
	w := &drainingWorker{}
	a := New("test", w)
	a.AsyncStart()

	w.pending.Store(5)
	require.Equal(t, StopResultWaited, a.StopAndWait(time.Second, false))

	assert.Equal(t, int64(0), w.pending.Load())
	assert.GreaterOrEqual(t, w.drained.Load(), int64(5))
}

func TestActor_RestartWhileStopping(t *testing.T) {
	w := newStuckWorker()
	a := New("test", w)
	defer a.StopAndWait(time.Second, true)

	a.AsyncStart()
	<-w.entered
	require.True(t, a.AsyncStop())
	require.Equal(t, Stopping, a.State())

	a.AsyncStart()
	assert.Equal(t, Running, a.State())
	close(w.release)
}

func TestRegistry_TracksLiveActors(t *testing.T) {
	r := NewRegistry(nil)
	a := New("test", &countingWorker{}, WithRegistry(r))

	assert.Equal(t, 0, r.Len())
	a.AsyncStart()
	assert.Equal(t, 1, r.Len())

	require.Equal(t, StopResultWaited, a.StopAndWait(time.Second, false))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ShutdownAll(t *testing.T) {
	r := NewRegistry(nil)

	healthy := New("healthy", &countingWorker{}, WithRegistry(r))
	stuck := newStuckWorker()
	defer close(stuck.release)
	hung := New("hung", stuck, WithRegistry(r))

	healthy.AsyncStart()
	hung.AsyncStart()
	<-stuck.entered
	require.Equal(t, 2, r.Len())

	start := time.Now()
	reports := r.ShutdownAll(50 * time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)

	results := map[string]StopResult{}
	for _, rep := range reports {
		results[rep.Name] = rep.Result
	}
	assert.Equal(t, StopResultWaited, results["healthy"])
	assert.Equal(t, StopResultForced, results["hung"])
	assert.Equal(t, 0, r.Len())
	assert.True(t, healthy.Stopped())
	assert.True(t, hung.Stopped())
}

func TestRegistry_NilIsSafe(t *testing.T) {
	var r *Registry

	r.Register(nil)
	r.Unregister(nil)
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.ShutdownAll(time.Second))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "forced", StopResultForced.String())
}
