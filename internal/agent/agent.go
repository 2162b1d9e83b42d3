// ABOUTME: Agent control loop: keeps the debuggee registered and its breakpoints in sync.
// ABOUTME: Runs on an actor and starts and stops the update transmitter alongside it.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/2389/debuglet/internal/actor"
	"github.com/2389/debuglet/internal/backoff"
	"github.com/2389/debuglet/internal/breakpoint"
	"github.com/2389/debuglet/internal/debuggee"
	"github.com/2389/debuglet/internal/transmitter"
)

var tracer = otel.Tracer("debuglet.agent")

// Controller is everything the agent needs from the controller service.
type Controller interface {
	debuggee.Registrar
	breakpoint.Lister
	transmitter.Updater
}

// Config holds agent settings. Zero values select defaults.
type Config struct {
	Logger   *slog.Logger
	Registry *actor.Registry

	// RegistrationBackoff paces registration retries.
	RegistrationBackoff *backoff.Backoff
	// SyncBackoff paces retries after a failed breakpoint sync.
	SyncBackoff *backoff.Backoff
	// Sleep waits between retries. Defaults to backoff.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// Clock stamps final breakpoints. Defaults to time.Now.
	Clock func() time.Time

	MaxQueueSize    int
	DeliveryTimeout time.Duration
}

// Agent is the debugging agent for one process.
type Agent struct {
	logger      *slog.Logger
	handle      *debuggee.Handle
	set         *breakpoint.Set
	tx          *transmitter.Transmitter
	gate        *gate
	actor       *actor.Actor
	syncBackoff *backoff.Backoff
	sleep       func(ctx context.Context, d time.Duration) error
	clock       func() time.Time
}

// New wires an agent for the given debuggee. It does not start it.
func New(ctrl Controller, descriptor *debuggee.Descriptor, inst Instrumentation, cfg Config) *Agent {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = backoff.Sleep
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SyncBackoff == nil {
		cfg.SyncBackoff = backoff.New()
	}

	a := &Agent{
		logger:      cfg.Logger.With("component", "agent"),
		syncBackoff: cfg.SyncBackoff,
		sleep:       cfg.Sleep,
		clock:       cfg.Clock,
	}
	a.gate = newGate(inst, a.logger)
	a.handle = debuggee.NewHandle(ctrl, descriptor,
		debuggee.WithBackoff(cfg.RegistrationBackoff),
		debuggee.WithLogger(cfg.Logger),
		debuggee.WithSleep(cfg.Sleep),
	)
	a.set = breakpoint.NewSet(ctrl, presence{a.gate}, cfg.Logger)
	a.tx = transmitter.New(ctrl, a.handle.ID, transmitter.Config{
		MaxQueueSize:    cfg.MaxQueueSize,
		DeliveryTimeout: cfg.DeliveryTimeout,
		Logger:          cfg.Logger,
		Registry:        cfg.Registry,
	})
	a.actor = actor.New("agent", a,
		actor.WithLogger(cfg.Logger),
		actor.WithRegistry(cfg.Registry),
	)
	return a
}

// Tick runs one control loop iteration.
func (a *Agent) Tick(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "agent.tick")
	defer span.End()

	if a.syncBackoff.BackingOff() {
		if err := a.sleep(ctx, a.syncBackoff.Interval()); err != nil {
			return nil
		}
	}

	if !a.handle.Registered() && !a.handle.Register(ctx) {
		tickTotal.WithLabelValues("unregistered").Inc()
		span.SetAttributes(attribute.Bool("registered", false))
		return nil
	}

	id := a.handle.ID()
	span.SetAttributes(attribute.String("debuggee.id", id))

	if err := a.set.SyncActiveBreakpoints(ctx, id); err != nil {
		if ctx.Err() != nil {
			// Stop requested during the long poll.
			return nil
		}
		a.handle.Revoke()
		a.syncBackoff.Failed()
		tickTotal.WithLabelValues("sync_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("debuggee %s: %w", id, err)
	}

	a.syncBackoff.Succeeded()
	activeBreakpoints.Set(float64(a.set.Len()))
	tickTotal.WithLabelValues("ok").Inc()
	return nil
}

// OnStateChange gates instrumentation on the running state.
func (a *Agent) OnStateChange(state actor.State) {
	a.logger.Debug("agent state changed", "state", state)
	a.gate.setRunning(state == actor.Running)
}

// Start starts the transmitter and the control loop.
func (a *Agent) Start() {
	a.tx.Start()
	a.actor.AsyncStart()
}

// Stop requests both the control loop and the transmitter to stop.
func (a *Agent) Stop() bool {
	stopped := a.actor.AsyncStop()
	a.tx.Stop()
	return stopped
}

// StopAndWait stops the control loop, then lets the transmitter drain.
// Both share one deadline of timeout. The result describes the control
// loop; the transmitter's is logged.
func (a *Agent) StopAndWait(timeout time.Duration, force bool) actor.StopResult {
	deadline := time.Now().Add(timeout)
	result := a.actor.StopAndWait(timeout, force)
	txResult := a.tx.StopAndWait(remaining(deadline), force)
	a.logger.Info("agent stopped",
		"result", result.String(),
		"transmitter", txResult.String(),
		"unsent", a.tx.Len(),
	)
	return result
}

// remaining returns the time left until deadline, at least a millisecond
// so an expired deadline still gives the transmitter one check.
func remaining(deadline time.Time) time.Duration {
	if d := time.Until(deadline); d > time.Millisecond {
		return d
	}
	return time.Millisecond
}

// Report hands an evaluated breakpoint to the transmitter. A capture
// breakpoint is completed and sent once; a log breakpoint stays active and
// is sent on every report. It returns false if bp is not active.
func (a *Agent) Report(bp *breakpoint.Breakpoint) bool {
	if bp == nil {
		return false
	}

	if bp.IsCapture() {
		if !a.set.Complete(bp) {
			return false
		}
		out := bp.Clone()
		out.Finalize(a.clock())
		a.tx.Submit(out)
		reportedTotal.WithLabelValues(string(breakpoint.ActionCapture)).Inc()
		return true
	}

	if !a.set.IsActive(bp.ID) {
		return false
	}
	a.tx.Submit(bp.Clone())
	reportedTotal.WithLabelValues(string(breakpoint.ActionLog)).Inc()
	return true
}

// Breakpoints returns the active breakpoints.
func (a *Agent) Breakpoints() []*breakpoint.Breakpoint {
	return a.set.Active()
}

// At returns the active breakpoints planted at path:line.
func (a *Agent) At(path string, line int) []*breakpoint.Breakpoint {
	return a.set.At(path, line)
}

// Registered reports whether the agent holds a debuggee ID.
func (a *Agent) Registered() bool {
	return a.handle.Registered()
}

// DebuggeeID returns the current debuggee ID, or "".
func (a *Agent) DebuggeeID() string {
	return a.handle.ID()
}

// InstrumentationEnabled reports the gate's current decision.
func (a *Agent) InstrumentationEnabled() bool {
	return a.gate.isEnabled()
}

// State returns the control loop's lifecycle state.
func (a *Agent) State() actor.State {
	return a.actor.State()
}

// LastError returns the last control loop failure.
func (a *Agent) LastError() error {
	return a.actor.LastError()
}

// Transmitter returns the update transmitter.
func (a *Agent) Transmitter() *transmitter.Transmitter {
	return a.tx
}

// Set returns the breakpoint set.
func (a *Agent) Set() *breakpoint.Set {
	return a.set
}
