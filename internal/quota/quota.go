// ABOUTME: Per-request evaluation budget: time spent and number of evaluations.
// ABOUTME: One Tracker per inbound request; carried on the request context.

package quota

import (
	"context"
	"time"
)

const (
	// DefaultTimeQuota is the evaluation time allowed per request.
	DefaultTimeQuota = 50 * time.Millisecond
	// DefaultCountQuota is the number of evaluations allowed per request.
	DefaultCountQuota = 10
)

// Tracker accounts evaluation cost for a single request. It is owned by
// the request's goroutine and is not safe for concurrent use.
type Tracker struct {
	timeQuota  time.Duration
	countQuota int

	timeUsed  time.Duration
	countUsed int
}

// New creates a tracker with the given budgets.
func New(timeQuota time.Duration, countQuota int) *Tracker {
	return &Tracker{
		timeQuota:  timeQuota,
		countQuota: countQuota,
	}
}

// NewDefault creates a tracker with the default budgets.
func NewDefault() *Tracker {
	return New(DefaultTimeQuota, DefaultCountQuota)
}

// More reports whether both budgets still have room.
func (t *Tracker) More() bool {
	return t.timeUsed < t.timeQuota && t.countUsed < t.countQuota
}

// Consume charges one evaluation that took d.
func (t *Tracker) Consume(d time.Duration) {
	t.timeUsed += d
	t.countUsed++
}

// Measure runs fn and charges its wall time as one evaluation.
func (t *Tracker) Measure(fn func()) {
	start := time.Now()
	defer func() {
		t.Consume(time.Since(start))
	}()
	fn()
}

// Reset clears both counters.
func (t *Tracker) Reset() {
	t.timeUsed = 0
	t.countUsed = 0
}

// TimeUsed returns the evaluation time charged so far.
func (t *Tracker) TimeUsed() time.Duration {
	return t.timeUsed
}

// CountUsed returns the number of evaluations charged so far.
func (t *Tracker) CountUsed() int {
	return t.countUsed
}

// TimeQuota returns the time budget.
func (t *Tracker) TimeQuota() time.Duration {
	return t.timeQuota
}

// CountQuota returns the evaluation count budget.
func (t *Tracker) CountQuota() int {
	return t.countQuota
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying t.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the tracker carried by ctx, if any.
func FromContext(ctx context.Context) (*Tracker, bool) {
	t, ok := ctx.Value(contextKey{}).(*Tracker)
	return t, ok && t != nil
}
