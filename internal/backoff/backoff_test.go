// ABOUTME: Tests for the exponential backoff calculator.
// ABOUTME: Covers the default interval sequence, reset on success, the cap, and Sleep.

package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_NotBackingOffInitially(t *testing.T) {
	b := New()

	assert.False(t, b.BackingOff())
	assert.Equal(t, time.Duration(0), b.Interval())
}

func TestBackoff_DefaultSequence(t *testing.T) {
	b := New()

	var got []time.Duration
	for i := 0; i < 5; i++ {
		b.Failed()
		got = append(got, b.Interval())
	}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	assert.Equal(t, want, got)
	assert.True(t, b.BackingOff())
}

func TestBackoff_SucceededResets(t *testing.T) {
	b := New()

	b.Failed()
	b.Failed()
	b.Failed()
	require.Equal(t, 4*time.Second, b.Interval())

	b.Succeeded()
	assert.False(t, b.BackingOff())
	assert.Equal(t, time.Duration(0), b.Interval())

	// Next failure restarts at the start interval
	b.Failed()
	assert.Equal(t, time.Second, b.Interval())
}

func TestBackoff_CappedAtMax(t *testing.T) {
	b := New()

	for i := 0; i < 20; i++ {
		b.Failed()
	}
	assert.Equal(t, DefaultMaxInterval, b.Interval())

	b.Failed()
	assert.Equal(t, DefaultMaxInterval, b.Interval())
}

func TestBackoff_ReachesCapFromBelow(t *testing.T) {
	b := New()

	// 1,2,4,...,512 takes ten failures; the eleventh would be 1024 and is capped.
	for i := 0; i < 10; i++ {
		b.Failed()
	}
	require.Equal(t, 512*time.Second, b.Interval())

	b.Failed()
	assert.Equal(t, 600*time.Second, b.Interval())
}

func TestBackoff_CustomParams(t *testing.T) {
	b := NewWithParams(100*time.Millisecond, 250*time.Millisecond, 3)

	b.Failed()
	assert.Equal(t, 100*time.Millisecond, b.Interval())
	b.Failed()
	assert.Equal(t, 250*time.Millisecond, b.Interval())
	b.Failed()
	assert.Equal(t, 250*time.Millisecond, b.Interval())
}

func TestBackoff_InvalidParamsUseDefaults(t *testing.T) {
	b := NewWithParams(0, -1, 0)

	b.Failed()
	assert.Equal(t, DefaultStartInterval, b.Interval())
	b.Failed()
	assert.Equal(t, 2*DefaultStartInterval, b.Interval())
}

func TestSleep_Elapses(t *testing.T) {
	start := time.Now()
	err := Sleep(context.Background(), 10*time.Millisecond)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestSleep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
