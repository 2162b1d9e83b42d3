// ABOUTME: Registration handle: owns the debuggee ID and the retry policy for registering.
// ABOUTME: Only the agent goroutine registers or revokes; other goroutines may read the ID.

package debuggee

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/debuglet/internal/backoff"
)

// ErrDisabled is returned when the controller reports the debuggee disabled.
var ErrDisabled = errors.New("debuggee disabled by controller")

// Registration is the controller's answer to a registration request.
type Registration struct {
	ID       string
	Disabled bool
}

// Registrar performs the remote registration call.
type Registrar interface {
	RegisterDebuggee(ctx context.Context, d *Descriptor) (*Registration, error)
}

// Handle tracks whether this process is registered with the controller.
type Handle struct {
	registrar  Registrar
	descriptor *Descriptor
	backoff    *backoff.Backoff
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error

	mu sync.RWMutex
	id string
}

// Option configures a Handle.
type Option func(*Handle)

// WithBackoff replaces the default retry policy.
func WithBackoff(b *backoff.Backoff) Option {
	return func(h *Handle) {
		if b != nil {
			h.backoff = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSleep replaces the wait used between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(h *Handle) {
		if fn != nil {
			h.sleep = fn
		}
	}
}

// NewHandle creates an unregistered handle.
func NewHandle(registrar Registrar, descriptor *Descriptor, opts ...Option) *Handle {
	h := &Handle{
		registrar:  registrar,
		descriptor: descriptor,
		backoff:    backoff.New(),
		logger:     slog.Default(),
		sleep:      backoff.Sleep,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "debuggee")
	return h
}

// Register waits out any pending backoff and then registers. It returns
// whether the handle is registered afterwards. Failures are absorbed:
// the ID is cleared and the backoff grows.
func (h *Handle) Register(ctx context.Context) bool {
	if h.backoff.BackingOff() {
		wait := h.backoff.Interval()
		h.logger.Debug("waiting before registering", "backoff", wait)
		if err := h.sleep(ctx, wait); err != nil {
			return h.Registered()
		}
	}

	reg, err := h.registrar.RegisterDebuggee(ctx, h.descriptor)
	if err == nil && reg == nil {
		err = errors.New("controller returned no registration")
	}
	if err == nil && reg.Disabled {
		err = ErrDisabled
	}
	if err == nil && reg.ID == "" {
		err = errors.New("controller returned an empty debuggee id")
	}
	if err != nil {
		h.Revoke()
		h.backoff.Failed()
		h.logger.Warn("debuggee registration failed",
			"error", err,
			"retry_in", h.backoff.Interval(),
		)
		return false
	}

	h.mu.Lock()
	h.id = reg.ID
	h.mu.Unlock()
	h.backoff.Succeeded()

	h.logger.Info("debuggee registered",
		"debuggee_id", reg.ID,
		"description", h.descriptor.Description,
	)
	return true
}

// Registered reports whether an ID is held.
func (h *Handle) Registered() bool {
	return h.ID() != ""
}

// ID returns the controller-assigned ID, or "" when unregistered.
func (h *Handle) ID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.id
}

// Revoke clears the ID so the next Register call registers again.
func (h *Handle) Revoke() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.id != "" {
		h.logger.Debug("debuggee registration revoked", "debuggee_id", h.id)
	}
	h.id = ""
}

// Descriptor returns the descriptor used for registration.
func (h *Handle) Descriptor() *Descriptor {
	return h.descriptor
}

// Backoff exposes the retry state, mainly for status reporting.
func (h *Handle) Backoff() *backoff.Backoff {
	return h.backoff
}
