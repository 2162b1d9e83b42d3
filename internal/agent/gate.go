// ABOUTME: Combines the actor's running state with breakpoint presence to gate instrumentation.
// ABOUTME: The external instrumentation is called only when the combined condition changes.

package agent

import (
	"log/slog"
	"sync"
)

// Instrumentation is the external subsystem that plants breakpoints.
type Instrumentation interface {
	EnableInstrumentation()
	DisableInstrumentation()
}

// gate enables instrumentation iff running && active.
type gate struct {
	inst   Instrumentation
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	active  bool
	enabled bool
}

func newGate(inst Instrumentation, logger *slog.Logger) *gate {
	return &gate{inst: inst, logger: logger}
}

func (g *gate) setRunning(running bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = running
	g.applyLocked()
}

func (g *gate) setActive(active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = active
	g.applyLocked()
}

// applyLocked calls the instrumentation under g.mu so that enable and
// disable calls cannot reorder.
func (g *gate) applyLocked() {
	want := g.running && g.active
	if want == g.enabled {
		return
	}
	g.enabled = want

	if g.inst == nil {
		return
	}
	if want {
		g.logger.Info("instrumentation enabled")
		g.inst.EnableInstrumentation()
	} else {
		g.logger.Info("instrumentation disabled")
		g.inst.DisableInstrumentation()
	}
}

func (g *gate) isEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// presence adapts the gate to the breakpoint set's signal.
type presence struct {
	g *gate
}

func (p presence) EnableInstrumentation()  { p.g.setActive(true) }
func (p presence) DisableInstrumentation() { p.g.setActive(false) }
