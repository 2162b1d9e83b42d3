// ABOUTME: Process-wide shutdown registry for live actors.
// ABOUTME: Binaries create one at startup and call ShutdownAll explicitly before exiting.

package actor

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds how long ShutdownAll waits for each actor.
const DefaultShutdownTimeout = 10 * time.Second

// ShutdownReport records how one actor finished during ShutdownAll.
type ShutdownReport struct {
	Name   string
	Result StopResult
}

// Registry tracks actors that have started and not yet stopped.
// A nil *Registry is valid and ignores all calls.
type Registry struct {
	mu     sync.Mutex
	actors map[*Actor]struct{}
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		actors: make(map[*Actor]struct{}),
		logger: logger.With("component", "actor_registry"),
	}
}

// Register adds an actor. Actors call this on first start.
func (r *Registry) Register(a *Actor) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors[a] = struct{}{}
}

// Unregister removes an actor. Actors call this when they stop.
func (r *Registry) Unregister(a *Actor) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actors, a)
}

// Len returns the number of live actors.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// ShutdownAll stops every registered actor in parallel, forcing any that
// do not stop within timeout. It returns one report per actor.
func (r *Registry) ShutdownAll(timeout time.Duration) []ShutdownReport {
	if r == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	r.mu.Lock()
	actors := make([]*Actor, 0, len(r.actors))
	for a := range r.actors {
		actors = append(actors, a)
	}
	r.mu.Unlock()

	reports := make([]ShutdownReport, len(actors))
	var g errgroup.Group
	for i, a := range actors {
		g.Go(func() error {
			result := a.StopAndWait(timeout, true)
			reports[i] = ShutdownReport{Name: a.Name(), Result: result}
			return nil
		})
	}
	_ = g.Wait()

	for _, rep := range reports {
		if rep.Result == StopResultForced {
			r.logger.Warn("actor forced to stop at shutdown", "actor", rep.Name)
		} else {
			r.logger.Debug("actor stopped at shutdown", "actor", rep.Name, "result", rep.Result.String())
		}
	}
	return reports
}
