// ABOUTME: Exponential backoff calculator used to pace retries against the controller.
// ABOUTME: Deterministic intervals (no jitter) on top of cenkalti/backoff's exponential engine.

package backoff

import (
	"context"
	"time"

	cbackoff "github.com/cenkalti/backoff/v5"
)

const (
	// DefaultStartInterval is the first wait after a failure.
	DefaultStartInterval = time.Second
	// DefaultMaxInterval caps the wait between attempts.
	DefaultMaxInterval = 600 * time.Second
	// DefaultMultiplier grows the interval after each consecutive failure.
	DefaultMultiplier = 2.0
)

// Backoff tracks the current retry interval for one caller.
// It is not safe for concurrent use; each owner keeps its own instance.
type Backoff struct {
	engine   *cbackoff.ExponentialBackOff
	interval time.Duration // zero means "not backing off"
}

// New creates a Backoff with the default parameters.
func New() *Backoff {
	return NewWithParams(DefaultStartInterval, DefaultMaxInterval, DefaultMultiplier)
}

// NewWithParams creates a Backoff with explicit parameters.
// Non-positive values fall back to the defaults.
func NewWithParams(start, max time.Duration, multiplier float64) *Backoff {
	if start <= 0 {
		start = DefaultStartInterval
	}
	if max <= 0 {
		max = DefaultMaxInterval
	}
	if max < start {
		max = start
	}
	if multiplier < 1 {
		multiplier = DefaultMultiplier
	}

	engine := cbackoff.NewExponentialBackOff()
	engine.InitialInterval = start
	engine.MaxInterval = max
	engine.Multiplier = multiplier
	engine.RandomizationFactor = 0
	engine.Reset()

	return &Backoff{engine: engine}
}

// Succeeded clears the interval.
func (b *Backoff) Succeeded() {
	b.interval = 0
	b.engine.Reset()
}

// Failed advances the interval: the start interval after a success,
// otherwise the previous interval times the multiplier, capped at the max.
func (b *Backoff) Failed() {
	if b.interval == 0 {
		b.engine.Reset()
	}
	b.interval = b.engine.NextBackOff()
}

// BackingOff reports whether a failure is pending a wait.
func (b *Backoff) BackingOff() bool {
	return b.interval > 0
}

// Interval returns the current wait, or zero when not backing off.
func (b *Backoff) Interval() time.Duration {
	return b.interval
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
