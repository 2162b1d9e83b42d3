// ABOUTME: Background delivery of evaluated breakpoints to the controller.
// ABOUTME: Bounded FIFO queue drained by its own actor; the oldest entries are evicted on overflow.

package transmitter

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/debuglet/internal/actor"
	"github.com/2389/debuglet/internal/breakpoint"
)

const (
	// DefaultMaxQueueSize bounds the number of pending updates.
	DefaultMaxQueueSize = 1000
	// DefaultDeliveryTimeout bounds a single update RPC.
	DefaultDeliveryTimeout = 10 * time.Second
)

// ErrNotRegistered is returned when an update cannot be addressed because
// the agent holds no debuggee ID.
var ErrNotRegistered = errors.New("no debuggee id for update")

var tracer = otel.Tracer("debuglet.transmitter")

// Updater sends one breakpoint update to the controller.
type Updater interface {
	UpdateActiveBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error
}

// IDSource returns the current debuggee ID, or "" when unregistered.
type IDSource func() string

// Config holds transmitter settings.
type Config struct {
	MaxQueueSize    int
	DeliveryTimeout time.Duration
	Logger          *slog.Logger
	Registry        *actor.Registry
}

// Transmitter queues updates and delivers them one at a time.
type Transmitter struct {
	updater Updater
	ids     IDSource
	max     int
	timeout time.Duration
	logger  *slog.Logger
	actor   *actor.Actor

	mu    sync.Mutex
	cond  *sync.Cond
	queue *list.List // of *breakpoint.Breakpoint, front is oldest
}

// New creates a stopped transmitter.
func New(updater Updater, ids IDSource, cfg Config) *Transmitter {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &Transmitter{
		updater: updater,
		ids:     ids,
		max:     cfg.MaxQueueSize,
		timeout: cfg.DeliveryTimeout,
		logger:  cfg.Logger.With("component", "transmitter"),
		queue:   list.New(),
	}
	t.cond = sync.NewCond(&t.mu)
	t.actor = actor.New("transmitter", t,
		actor.WithLogger(cfg.Logger),
		actor.WithRegistry(cfg.Registry),
	)
	return t
}

// Submit queues bp for delivery. When the queue is full the oldest
// entries are dropped.
func (t *Transmitter) Submit(bp *breakpoint.Breakpoint) {
	if bp == nil {
		return
	}

	t.mu.Lock()
	t.queue.PushBack(bp)
	t.cond.Signal()

	evicted := 0
	for t.queue.Len() > t.max {
		t.queue.Remove(t.queue.Front())
		evicted++
	}
	t.mu.Unlock()

	submittedTotal.Inc()
	if evicted > 0 {
		evictedTotal.Add(float64(evicted))
		t.logger.Warn("update queue full, dropped oldest", "dropped", evicted, "max", t.max)
	}
}

// Tick delivers the oldest queued update, waiting while the queue is
// empty and the actor is running.
func (t *Transmitter) Tick(ctx context.Context) error {
	t.mu.Lock()
	for t.queue.Len() == 0 && t.actor.Running() {
		t.cond.Wait()
	}
	front := t.queue.Front()
	if front == nil {
		t.mu.Unlock()
		return nil
	}
	bp := t.queue.Remove(front).(*breakpoint.Breakpoint)
	t.mu.Unlock()

	return t.deliver(ctx, bp)
}

// deliver makes one attempt. Failed updates are dropped.
func (t *Transmitter) deliver(ctx context.Context, bp *breakpoint.Breakpoint) error {
	// A stop request cancels ctx; the backlog is still flushed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "transmitter.deliver", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("breakpoint.id", bp.ID),
		attribute.Bool("breakpoint.final", bp.IsFinalState),
	)

	id := t.ids()
	if id == "" {
		deliveredTotal.WithLabelValues("unregistered").Inc()
		span.SetStatus(codes.Error, ErrNotRegistered.Error())
		return fmt.Errorf("update for breakpoint %s dropped: %w", bp.ID, ErrNotRegistered)
	}

	start := time.Now()
	err := t.updater.UpdateActiveBreakpoint(ctx, id, bp)
	deliveryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		deliveredTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update for breakpoint %s dropped: %w", bp.ID, err)
	}

	deliveredTotal.WithLabelValues("ok").Inc()
	t.logger.Debug("breakpoint update delivered", "breakpoint_id", bp.ID, "debuggee_id", id)
	return nil
}

// Stoppable reports whether the backlog is drained.
func (t *Transmitter) Stoppable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Len() == 0
}

// OnStateChange wakes a Tick blocked on the empty queue.
func (t *Transmitter) OnStateChange(state actor.State) {
	t.mu.Lock()
	t.cond.Broadcast()
	t.mu.Unlock()

	t.logger.Debug("transmitter state changed", "state", state)
}

// Start starts the delivery goroutine.
func (t *Transmitter) Start() {
	t.actor.AsyncStart()
}

// Stop requests a graceful stop; queued updates are delivered first.
func (t *Transmitter) Stop() bool {
	return t.actor.AsyncStop()
}

// StopAndWait stops the transmitter and waits up to timeout.
func (t *Transmitter) StopAndWait(timeout time.Duration, force bool) actor.StopResult {
	return t.actor.StopAndWait(timeout, force)
}

// Actor exposes the underlying actor for state inspection.
func (t *Transmitter) Actor() *actor.Actor {
	return t.actor
}

// Len returns the number of queued updates.
func (t *Transmitter) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Len()
}

// Pending returns the queued updates, oldest first.
func (t *Transmitter) Pending() []*breakpoint.Breakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*breakpoint.Breakpoint, 0, t.queue.Len())
	for e := t.queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*breakpoint.Breakpoint))
	}
	return out
}
