// ABOUTME: Simulated instrumentation layer: fakes inbound requests that hit active breakpoints
// ABOUTME: Each request gets its own quota tracker bounding how many breakpoints it evaluates

package main

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/2389/debuglet/internal/backoff"
	"github.com/2389/debuglet/internal/breakpoint"
	"github.com/2389/debuglet/internal/quota"
)

// reporter is the part of the agent the simulator needs.
type reporter interface {
	Breakpoints() []*breakpoint.Breakpoint
	Report(bp *breakpoint.Breakpoint) bool
}

// simulator implements agent.Instrumentation and, as an actor worker,
// serves one fake request per tick.
type simulator struct {
	agent      reporter
	logger     *slog.Logger
	interval   time.Duration
	timeQuota  time.Duration
	countQuota int

	enabled   atomic.Bool
	requests  atomic.Int64
	reported  atomic.Int64
	throttled atomic.Int64
}

func newSimulator(interval, timeQuota time.Duration, countQuota int, logger *slog.Logger) *simulator {
	return &simulator{
		logger:     logger.With("component", "simulator"),
		interval:   interval,
		timeQuota:  timeQuota,
		countQuota: countQuota,
	}
}

func (s *simulator) EnableInstrumentation() {
	if !s.enabled.Swap(true) {
		s.logger.Info("instrumentation enabled")
	}
}

func (s *simulator) DisableInstrumentation() {
	if s.enabled.Swap(false) {
		s.logger.Info("instrumentation disabled")
	}
}

// Tick waits one interval and serves a request.
func (s *simulator) Tick(ctx context.Context) error {
	if err := backoff.Sleep(ctx, s.interval); err != nil {
		return nil
	}
	s.serve(ctx)
	return nil
}

// serve handles one fake request. Breakpoints are only evaluated while
// instrumentation is enabled.
func (s *simulator) serve(ctx context.Context) {
	n := s.requests.Add(1)
	if !s.enabled.Load() {
		return
	}

	ctx = quota.NewContext(ctx, quota.New(s.timeQuota, s.countQuota))
	for _, bp := range s.agent.Breakpoints() {
		if !s.hit(ctx, bp, n) {
			s.logger.Debug("request quota exhausted", "request", n)
			return
		}
	}
}

// hit evaluates bp for request n. It returns false once the request's
// quota is spent.
func (s *simulator) hit(ctx context.Context, bp *breakpoint.Breakpoint, n int64) bool {
	tracker, ok := quota.FromContext(ctx)
	if ok && !tracker.More() {
		s.throttled.Add(1)
		return false
	}

	result := bp.Clone()
	if ok {
		tracker.Measure(func() { evaluate(result, n) })
	} else {
		evaluate(result, n)
	}

	if s.agent.Report(result) {
		s.reported.Add(1)
	}
	return true
}

// evaluate fills in a canned capture. Expressions are reported as
// unsupported since nothing here can evaluate them.
func evaluate(bp *breakpoint.Breakpoint, n int64) {
	bp.StackFrames = []breakpoint.StackFrame{
		{
			Function: "main.handleRequest",
			Location: bp.Location,
			Locals: []breakpoint.Variable{
				{Name: "request", Value: strconv.FormatInt(n, 10), Type: "int64"},
			},
		},
		{
			Function: "net/http.HandlerFunc.ServeHTTP",
			Location: breakpoint.SourceLocation{Path: "net/http/server.go", Line: 2220},
		},
	}

	bp.EvaluatedExpressions = bp.EvaluatedExpressions[:0]
	for _, expr := range bp.Expressions {
		bp.EvaluatedExpressions = append(bp.EvaluatedExpressions, breakpoint.Variable{
			Name: expr,
			Status: &breakpoint.StatusMessage{
				IsError:  true,
				RefersTo: "VARIABLE_VALUE",
				Message:  "expressions are not evaluated by fake-debuggee",
			},
		})
	}
}
