// ABOUTME: Tests for the simulated instrumentation layer
// ABOUTME: Checks gating, per-request quota and the canned capture contents

package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/debuglet/internal/breakpoint"
)

type recordingReporter struct {
	mu       sync.Mutex
	active   []*breakpoint.Breakpoint
	reported []*breakpoint.Breakpoint
}

func (r *recordingReporter) Breakpoints() []*breakpoint.Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *recordingReporter) Report(bp *breakpoint.Breakpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, bp)
	return true
}

func breakpoints(ids ...string) []*breakpoint.Breakpoint {
	out := make([]*breakpoint.Breakpoint, 0, len(ids))
	for i, id := range ids {
		out = append(out, &breakpoint.Breakpoint{
			ID:       id,
			Location: breakpoint.SourceLocation{Path: "main.go", Line: 10 + i},
		})
	}
	return out
}

func newTestSimulator(countQuota int, rep *recordingReporter) *simulator {
	s := newSimulator(time.Millisecond, time.Second, countQuota, slog.New(slog.DiscardHandler))
	s.agent = rep
	return s
}

func TestSimulator_DisabledSkipsEvaluation(t *testing.T) {
	rep := &recordingReporter{active: breakpoints("a")}
	s := newTestSimulator(10, rep)

	s.serve(context.Background())

	assert.Empty(t, rep.reported)
	assert.Equal(t, int64(1), s.requests.Load())
}

func TestSimulator_QuotaBoundsEachRequest(t *testing.T) {
	rep := &recordingReporter{active: breakpoints("a", "b", "c")}
	s := newTestSimulator(2, rep)
	s.EnableInstrumentation()

	s.serve(context.Background())
	assert.Len(t, rep.reported, 2)
	assert.Equal(t, int64(1), s.throttled.Load())

	// The next request starts with a fresh budget.
	s.serve(context.Background())
	assert.Len(t, rep.reported, 4)
	assert.Equal(t, int64(2), s.throttled.Load())
	assert.Equal(t, int64(4), s.reported.Load())
}

func TestSimulator_ReportsClones(t *testing.T) {
	rep := &recordingReporter{active: breakpoints("a")}
	rep.active[0].Expressions = []string{"user.id"}
	s := newTestSimulator(10, rep)
	s.EnableInstrumentation()

	s.serve(context.Background())

	require.Len(t, rep.reported, 1)
	got := rep.reported[0]
	assert.NotSame(t, rep.active[0], got)
	assert.Empty(t, rep.active[0].StackFrames)

	require.Len(t, got.StackFrames, 2)
	assert.Equal(t, got.Location, got.StackFrames[0].Location)
	assert.Equal(t, "1", got.StackFrames[0].Locals[0].Value)

	require.Len(t, got.EvaluatedExpressions, 1)
	assert.Equal(t, "user.id", got.EvaluatedExpressions[0].Name)
	require.NotNil(t, got.EvaluatedExpressions[0].Status)
	assert.True(t, got.EvaluatedExpressions[0].Status.IsError)
}

func TestSimulator_ToggleIsIdempotent(t *testing.T) {
	s := newTestSimulator(1, &recordingReporter{})

	s.EnableInstrumentation()
	s.EnableInstrumentation()
	assert.True(t, s.enabled.Load())

	s.DisableInstrumentation()
	s.DisableInstrumentation()
	assert.False(t, s.enabled.Load())
}

func TestSimulator_TickStopsOnCancel(t *testing.T) {
	s := newSimulator(time.Hour, time.Second, 1, slog.New(slog.DiscardHandler))
	s.agent = &recordingReporter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, int64(0), s.requests.Load())
}
