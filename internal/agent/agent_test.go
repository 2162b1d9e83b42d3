// ABOUTME: Tests for the agent control loop against an in-memory controller.
// ABOUTME: Retry sleeps are recorded instead of slept so backoff timing is asserted exactly.

package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/debuglet/internal/actor"
	"github.com/2389/debuglet/internal/breakpoint"
	"github.com/2389/debuglet/internal/debuggee"
)

// fakeController scripts registration and list replies. Once the scripted
// list replies run out, ListActiveBreakpoints blocks like a long poll.
type fakeController struct {
	mu        sync.Mutex
	regErrs   []error
	regCalls  int
	lists     []*breakpoint.ListResult
	listErrs  []error
	listCalls int
	updates   []*breakpoint.Breakpoint
	updateIDs []string
}

func (c *fakeController) RegisterDebuggee(ctx context.Context, d *debuggee.Descriptor) (*debuggee.Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.regCalls
	c.regCalls++
	if i < len(c.regErrs) && c.regErrs[i] != nil {
		return nil, c.regErrs[i]
	}
	return &debuggee.Registration{ID: "d-1"}, nil
}

func (c *fakeController) ListActiveBreakpoints(ctx context.Context, debuggeeID, waitToken string) (*breakpoint.ListResult, error) {
	c.mu.Lock()
	i := c.listCalls
	c.listCalls++
	var (
		res *breakpoint.ListResult
		err error
	)
	if i < len(c.listErrs) {
		err = c.listErrs[i]
	}
	if i < len(c.lists) {
		res = c.lists[i]
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeController) UpdateActiveBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, bp)
	c.updateIDs = append(c.updateIDs, debuggeeID)
	return nil
}

func (c *fakeController) counts() (reg, list, updates int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regCalls, c.listCalls, len(c.updates)
}

type recordingInstrumentation struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingInstrumentation) EnableInstrumentation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "enable")
}

func (r *recordingInstrumentation) DisableInstrumentation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "disable")
}

func (r *recordingInstrumentation) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) got() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func newTestAgent(ctrl *fakeController, inst Instrumentation, cfg Config) (*Agent, *sleepRecorder) {
	rec := &sleepRecorder{}
	cfg.Sleep = rec.sleep
	a := New(ctrl, debuggee.NewDescriptor("proj", "svc", "v1"), inst, cfg)
	return a, rec
}

func TestAgent_RegistersWithBackoffThenSyncs(t *testing.T) {
	boom := errors.New("unavailable")
	ctrl := &fakeController{
		regErrs: []error{boom, boom},
		lists: []*breakpoint.ListResult{{
			Breakpoints:   []*breakpoint.Breakpoint{{ID: "bp1"}},
			NextWaitToken: "t1",
		}},
	}
	inst := &recordingInstrumentation{}
	a, rec := newTestAgent(ctrl, inst, Config{})

	a.Start()

	require.Eventually(t, a.InstrumentationEnabled, time.Second, 5*time.Millisecond)
	assert.True(t, a.Registered())
	assert.Equal(t, "d-1", a.DebuggeeID())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.got())

	reg, _, _ := ctrl.counts()
	assert.Equal(t, 3, reg)

	require.Len(t, a.Breakpoints(), 1)
	assert.Equal(t, "bp1", a.Breakpoints()[0].ID)
	assert.Equal(t, []string{"enable"}, inst.got())

	assert.Equal(t, actor.StopResultWaited, a.StopAndWait(time.Second, false))
	assert.Equal(t, []string{"enable", "disable"}, inst.got())
	assert.True(t, a.Registered(), "stopping mid-poll must not revoke")
}

func TestAgent_SyncFailureRevokes(t *testing.T) {
	ctrl := &fakeController{
		listErrs: []error{errors.New("not found")},
		lists:    []*breakpoint.ListResult{nil, {NextWaitToken: "t1"}},
	}
	a, rec := newTestAgent(ctrl, nil, Config{})

	a.Start()
	defer a.StopAndWait(time.Second, true)

	require.Eventually(t, func() bool {
		reg, list, _ := ctrl.counts()
		return reg == 2 && list >= 2
	}, time.Second, 5*time.Millisecond)

	require.Error(t, a.LastError())
	assert.Contains(t, a.LastError().Error(), "not found")
	assert.Equal(t, []time.Duration{time.Second}, rec.got(), "a failed sync paces the next attempt")
	assert.True(t, a.Registered())
}

func TestAgent_NoInstrumentationWithoutBreakpoints(t *testing.T) {
	ctrl := &fakeController{lists: []*breakpoint.ListResult{{NextWaitToken: "t1"}}}
	inst := &recordingInstrumentation{}
	a, _ := newTestAgent(ctrl, inst, Config{})

	a.Start()
	require.Eventually(t, func() bool {
		_, list, _ := ctrl.counts()
		return list >= 2
	}, time.Second, 5*time.Millisecond)

	assert.False(t, a.InstrumentationEnabled())
	a.StopAndWait(time.Second, false)
	assert.Empty(t, inst.got())
}

func TestAgent_ReportCaptureCompletesOnce(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a, _ := newTestAgent(&fakeController{}, nil, Config{Clock: func() time.Time { return fixed }})
	capture := &breakpoint.Breakpoint{ID: "c1", Action: breakpoint.ActionCapture}
	a.Set().Reconcile([]*breakpoint.Breakpoint{capture})

	assert.True(t, a.Report(capture))
	assert.False(t, a.Report(capture), "completed breakpoints are reported once")

	pending := a.Transmitter().Pending()
	require.Len(t, pending, 1)
	assert.True(t, pending[0].IsFinalState)
	require.NotNil(t, pending[0].FinalTime)
	assert.Equal(t, fixed, *pending[0].FinalTime)
	assert.True(t, a.Set().IsCompleted("c1"))
	assert.False(t, capture.IsFinalState, "the set's copy is left untouched")
}

func TestAgent_ReportLogStaysActive(t *testing.T) {
	a, _ := newTestAgent(&fakeController{}, nil, Config{})
	logpoint := &breakpoint.Breakpoint{ID: "l1", Action: breakpoint.ActionLog, LogMessage: "x=$0"}
	a.Set().Reconcile([]*breakpoint.Breakpoint{logpoint})

	assert.True(t, a.Report(logpoint))
	assert.True(t, a.Report(logpoint))
	assert.True(t, a.Set().IsActive("l1"))
	assert.Equal(t, 2, a.Transmitter().Len())
	assert.False(t, a.Transmitter().Pending()[0].IsFinalState)
}

func TestAgent_ReportUnknownIsIgnored(t *testing.T) {
	a, _ := newTestAgent(&fakeController{}, nil, Config{})

	assert.False(t, a.Report(&breakpoint.Breakpoint{ID: "nope"}))
	assert.False(t, a.Report(&breakpoint.Breakpoint{ID: "nope", Action: breakpoint.ActionLog}))
	assert.False(t, a.Report(nil))
	assert.Zero(t, a.Transmitter().Len())
}

func TestAgent_ReportsAreDelivered(t *testing.T) {
	ctrl := &fakeController{lists: []*breakpoint.ListResult{{
		Breakpoints:   []*breakpoint.Breakpoint{{ID: "bp1"}},
		NextWaitToken: "t1",
	}}}
	a, _ := newTestAgent(ctrl, nil, Config{})
	a.Start()
	defer a.StopAndWait(time.Second, true)

	require.Eventually(t, func() bool { return len(a.Breakpoints()) == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, a.Report(a.Breakpoints()[0]))

	require.Eventually(t, func() bool {
		_, _, updates := ctrl.counts()
		return updates == 1
	}, time.Second, 5*time.Millisecond)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.Equal(t, "bp1", ctrl.updates[0].ID)
	assert.Equal(t, "d-1", ctrl.updateIDs[0])
}

func TestAgent_ShutdownRegistryStopsBothActors(t *testing.T) {
	reg := actor.NewRegistry(nil)
	a, _ := newTestAgent(&fakeController{}, nil, Config{Registry: reg})

	a.Start()
	assert.Equal(t, 2, reg.Len())

	reports := reg.ShutdownAll(time.Second)
	assert.Len(t, reports, 2)
	assert.Zero(t, reg.Len())
	assert.Equal(t, actor.Stopped, a.State())
	assert.True(t, a.Transmitter().Actor().Stopped())
}

// stuckController hangs in list and update calls until released,
// ignoring cancellation, so neither actor can stop on its own.
type stuckController struct {
	fakeController
	release chan struct{}
	listed  chan struct{}
	updated chan struct{}
	once    sync.Once
	uonce   sync.Once
}

func newStuckController() *stuckController {
	return &stuckController{
		release: make(chan struct{}),
		listed:  make(chan struct{}),
		updated: make(chan struct{}),
	}
}

func (c *stuckController) ListActiveBreakpoints(ctx context.Context, debuggeeID, waitToken string) (*breakpoint.ListResult, error) {
	c.once.Do(func() { close(c.listed) })
	<-c.release
	return nil, errors.New("released")
}

func (c *stuckController) UpdateActiveBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error {
	c.uonce.Do(func() { close(c.updated) })
	<-c.release
	return nil
}

func TestAgent_StopAndWaitSharesOneDeadline(t *testing.T) {
	ctrl := newStuckController()
	t.Cleanup(func() { close(ctrl.release) })

	rec := &sleepRecorder{}
	a := New(ctrl, debuggee.NewDescriptor("proj", "svc", "v1"), nil, Config{Sleep: rec.sleep})
	a.Start()

	select {
	case <-ctrl.listed:
	case <-time.After(time.Second):
		t.Fatal("agent never polled")
	}

	capture := &breakpoint.Breakpoint{ID: "c1", Action: breakpoint.ActionCapture}
	a.Set().Reconcile([]*breakpoint.Breakpoint{capture})
	require.True(t, a.Report(capture))

	select {
	case <-ctrl.updated:
	case <-time.After(time.Second):
		t.Fatal("transmitter never sent")
	}

	const timeout = 200 * time.Millisecond
	start := time.Now()
	result := a.StopAndWait(timeout, true)
	elapsed := time.Since(start)

	assert.Equal(t, actor.StopResultForced, result)
	assert.Less(t, elapsed, timeout+timeout/2, "both stops fit in one timeout")
	assert.True(t, a.Transmitter().Actor().Stopped())
}

func TestRemaining_FloorsAtOneMillisecond(t *testing.T) {
	assert.Equal(t, time.Millisecond, remaining(time.Now().Add(-time.Second)))

	d := remaining(time.Now().Add(time.Minute))
	assert.Greater(t, d, 59*time.Second)
	assert.LessOrEqual(t, d, time.Minute)
}

func TestGate_RequiresRunningAndActive(t *testing.T) {
	inst := &recordingInstrumentation{}
	g := newGate(inst, slog.New(slog.DiscardHandler))

	g.setRunning(true)
	assert.Empty(t, inst.got())

	g.setActive(true)
	g.setActive(true)
	assert.Equal(t, []string{"enable"}, inst.got())

	g.setRunning(false)
	g.setActive(false)
	assert.Equal(t, []string{"enable", "disable"}, inst.got())

	g.setActive(true)
	assert.Equal(t, []string{"enable", "disable"}, inst.got(), "not running")
}
