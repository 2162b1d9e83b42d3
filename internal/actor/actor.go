// ABOUTME: Generic background goroutine with a cooperative lifecycle state machine.
// ABOUTME: Workers plug in through Tick; the actor owns start, suspend, stop and shutdown.

package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Worker supplies one unit of work per call. Tick is called repeatedly by
// the actor's goroutine while the actor is running. The context is
// cancelled as soon as a stop is requested; long waits inside Tick must
// observe it so the goroutine can exit promptly.
type Worker interface {
	Tick(ctx context.Context) error
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func(ctx context.Context) error

// Tick calls f(ctx).
func (f WorkerFunc) Tick(ctx context.Context) error {
	return f(ctx)
}

// StateObserver is implemented by workers that react to lifecycle changes.
// OnStateChange is called after every transition with the actor's current
// state. Calls are serialized.
type StateObserver interface {
	OnStateChange(state State)
}

// Stoppable is implemented by workers that need extra ticks to wind down.
// While the actor is stopping and Stoppable returns false, the actor keeps
// calling Tick.
type Stoppable interface {
	Stoppable() bool
}

// Actor runs a Worker on its own goroutine.
type Actor struct {
	name     string
	worker   Worker
	logger   *slog.Logger
	registry *Registry

	mu         sync.Mutex
	cond       *sync.Cond
	state      State
	alive      bool
	registered bool
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	lastErr    error

	// hookMu serializes OnStateChange calls.
	hookMu sync.Mutex
}

// Option configures an Actor.
type Option func(*Actor)

// WithLogger sets the logger used for tick failures and lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Actor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRegistry makes the actor register itself with r on first start, so
// that r.ShutdownAll can stop it at process exit.
func WithRegistry(r *Registry) Option {
	return func(a *Actor) {
		a.registry = r
	}
}

// New creates an actor in the NotStarted state.
func New(name string, worker Worker, opts ...Option) *Actor {
	a := &Actor{
		name:   name,
		worker: worker,
		logger: slog.Default(),
		state:  NotStarted,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "actor", "actor", name)
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Name returns the actor's name.
func (a *Actor) Name() string {
	return a.name
}

// State returns the current lifecycle state.
func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Running reports whether the actor is in the Running state.
func (a *Actor) Running() bool {
	return a.State() == Running
}

// Stopped reports whether the actor has reached the terminal state.
func (a *Actor) Stopped() bool {
	return a.State() == Stopped
}

// LastError returns the most recent error or recovered panic from Tick.
func (a *Actor) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Done returns a channel that is closed once the actor is stopped.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// AsyncStart ensures the goroutine is alive and the actor is running.
// It is a no-op once the actor is stopped.
func (a *Actor) AsyncStart() {
	a.mu.Lock()
	if a.state == Stopped {
		a.mu.Unlock()
		return
	}

	changed := a.state != Running
	if a.ctx == nil || a.ctx.Err() != nil {
		a.ctx, a.cancel = context.WithCancel(context.Background())
	}
	a.state = Running
	a.cond.Broadcast()

	spawn := !a.alive
	if spawn {
		a.alive = true
	}
	register := !a.registered && a.registry != nil
	if register {
		a.registered = true
	}
	a.mu.Unlock()

	if register {
		a.registry.Register(a)
	}
	if spawn {
		a.logger.Debug("actor goroutine starting")
		go a.run()
	}
	if changed {
		a.notify()
	}
}

// AsyncStop requests a cooperative stop. It returns true if this call
// caused a transition and false if the actor was already stopping or stopped.
func (a *Actor) AsyncStop() bool {
	a.mu.Lock()
	switch a.state {
	case Running, Suspended:
		a.state = Stopping
		a.cancel()
		a.cond.Broadcast()
		a.mu.Unlock()
		a.logger.Debug("actor stopping")
		a.notify()
		return true

	case NotStarted:
		finished := a.finishLocked()
		a.mu.Unlock()
		if finished {
			a.afterStop()
		}
		return true

	default:
		a.mu.Unlock()
		return false
	}
}

// Suspend pauses ticking without stopping the goroutine.
// Only a running actor can be suspended.
func (a *Actor) Suspend() bool {
	return a.transition(Running, Suspended)
}

// Resume continues ticking after Suspend.
// Only a suspended actor can be resumed.
func (a *Actor) Resume() bool {
	return a.transition(Suspended, Running)
}

func (a *Actor) transition(from, to State) bool {
	a.mu.Lock()
	if a.state != from {
		a.mu.Unlock()
		return false
	}
	a.state = to
	a.cond.Broadcast()
	a.mu.Unlock()

	a.notify()
	return true
}

// WaitUntilStopped blocks until the actor is stopped or the timeout
// elapses. A non-positive timeout waits indefinitely. It reports whether
// the actor stopped.
func (a *Actor) WaitUntilStopped(timeout time.Duration) bool {
	if timeout <= 0 {
		<-a.done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-a.done:
		return true
	case <-timer.C:
		return a.Stopped()
	}
}

// StopAndWait requests a stop and waits for it. When the timeout elapses
// and force is set, the in-flight tick is abandoned and the actor is marked
// stopped; Go cannot preempt a goroutine, so the abandoned tick finishes
// on its own with a cancelled context.
func (a *Actor) StopAndWait(timeout time.Duration, force bool) StopResult {
	if a.Stopped() {
		return StopResultStopped
	}

	a.AsyncStop()
	if a.WaitUntilStopped(timeout) {
		return StopResultWaited
	}
	if !force {
		return StopResultTimeout
	}

	a.logger.Warn("actor did not stop in time, abandoning it", "timeout", timeout)
	a.mu.Lock()
	finished := a.finishLocked()
	a.mu.Unlock()
	if finished {
		a.afterStop()
	}
	return StopResultForced
}

// run is the actor goroutine.
func (a *Actor) run() {
	for {
		ctx, ok := a.next()
		if !ok {
			return
		}
		a.tick(ctx)
	}
}

// next blocks while suspended and decides whether to tick again. When it
// returns false the actor has been moved to Stopped.
func (a *Actor) next() (context.Context, bool) {
	for {
		a.mu.Lock()
		for a.state == Suspended {
			a.cond.Wait()
		}
		state, ctx := a.state, a.ctx
		a.mu.Unlock()

		if state == Running {
			return ctx, true
		}
		// Stoppable may take the worker's own lock; call it unlocked.
		if state == Stopping && !a.workerStoppable() {
			return ctx, true
		}

		a.mu.Lock()
		if a.state != state {
			a.mu.Unlock()
			continue
		}
		finished := a.finishLocked()
		a.alive = false
		a.mu.Unlock()

		if finished {
			a.afterStop()
		}
		return nil, false
	}
}

func (a *Actor) workerStoppable() bool {
	s, ok := a.worker.(Stoppable)
	if !ok {
		return true
	}
	return s.Stoppable()
}

// finishLocked moves the actor to Stopped. Must be called with mu held.
// Returns false if the actor was already stopped.
func (a *Actor) finishLocked() bool {
	if a.state == Stopped {
		return false
	}
	a.state = Stopped
	if a.cancel != nil {
		a.cancel()
	}
	a.cond.Broadcast()
	return true
}

// afterStop runs once per actor, after finishLocked reported a transition.
// Waiters are released only after the observer has seen Stopped.
func (a *Actor) afterStop() {
	a.registry.Unregister(a)
	a.logger.Debug("actor stopped")
	a.notify()
	close(a.done)
}

// tick runs one unit of work, recording errors and recovering panics.
func (a *Actor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.recordError(fmt.Errorf("panic in %s tick: %v", a.name, r))
		}
	}()

	if err := a.worker.Tick(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		a.recordError(err)
	}
}

func (a *Actor) recordError(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()

	a.logger.Error("actor tick failed", "error", err)
}

// notify reports the current state to the worker, if it observes state.
func (a *Actor) notify() {
	observer, ok := a.worker.(StateObserver)
	if !ok {
		return
	}

	a.hookMu.Lock()
	defer a.hookMu.Unlock()
	observer.OnStateChange(a.State())
}
