// ABOUTME: Tests for debuggee registration: backoff pacing, revocation and descriptor identity.
// ABOUTME: A scripted registrar stands in for the controller.

package debuggee

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRegistrar struct {
	mu      sync.Mutex
	replies []*Registration
	errs    []error
	calls   int
}

func (r *scriptedRegistrar) RegisterDebuggee(ctx context.Context, d *Descriptor) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.calls
	r.calls++
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	if i < len(r.replies) {
		return r.replies[i], nil
	}
	return &Registration{ID: "d-default"}, nil
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestHandle(reg Registrar) (*Handle, *sleepRecorder) {
	rec := &sleepRecorder{}
	h := NewHandle(reg, NewDescriptor("proj", "svc", "v1"), WithSleep(rec.sleep))
	return h, rec
}

func TestHandle_StartsUnregistered(t *testing.T) {
	h, _ := newTestHandle(&scriptedRegistrar{})
	assert.False(t, h.Registered())
	assert.Empty(t, h.ID())
}

func TestHandle_RegisterSuccess(t *testing.T) {
	h, rec := newTestHandle(&scriptedRegistrar{replies: []*Registration{{ID: "d-1"}}})

	require.True(t, h.Register(context.Background()))
	assert.True(t, h.Registered())
	assert.Equal(t, "d-1", h.ID())
	assert.False(t, h.Backoff().BackingOff())
	assert.Empty(t, rec.waits, "no wait before the first attempt")
}

func TestHandle_FailuresBackOff(t *testing.T) {
	boom := errors.New("unavailable")
	reg := &scriptedRegistrar{
		errs:    []error{boom, boom, nil},
		replies: []*Registration{nil, nil, {ID: "d-3"}},
	}
	h, rec := newTestHandle(reg)
	ctx := context.Background()

	assert.False(t, h.Register(ctx))
	assert.Equal(t, time.Second, h.Backoff().Interval())

	assert.False(t, h.Register(ctx))
	assert.Equal(t, 2*time.Second, h.Backoff().Interval())

	assert.True(t, h.Register(ctx))
	assert.Equal(t, "d-3", h.ID())
	assert.False(t, h.Backoff().BackingOff())

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
}

func TestHandle_DisabledCountsAsFailure(t *testing.T) {
	reg := &scriptedRegistrar{replies: []*Registration{{ID: "d-1", Disabled: true}}}
	h, _ := newTestHandle(reg)

	assert.False(t, h.Register(context.Background()))
	assert.False(t, h.Registered())
	assert.True(t, h.Backoff().BackingOff())
}

func TestHandle_EmptyIDCountsAsFailure(t *testing.T) {
	reg := &scriptedRegistrar{replies: []*Registration{{ID: ""}}}
	h, _ := newTestHandle(reg)

	assert.False(t, h.Register(context.Background()))
	assert.False(t, h.Registered())
}

func TestHandle_NilRegistrationCountsAsFailure(t *testing.T) {
	reg := &scriptedRegistrar{replies: []*Registration{nil}}
	h, _ := newTestHandle(reg)

	assert.NotPanics(t, func() {
		assert.False(t, h.Register(context.Background()))
	})
	assert.False(t, h.Registered())
	assert.True(t, h.Backoff().BackingOff())
}

func TestHandle_FailureClearsPreviousID(t *testing.T) {
	reg := &scriptedRegistrar{
		replies: []*Registration{{ID: "d-1"}},
		errs:    []error{nil, errors.New("gone")},
	}
	h, _ := newTestHandle(reg)

	require.True(t, h.Register(context.Background()))
	assert.False(t, h.Register(context.Background()))
	assert.Empty(t, h.ID())
}

func TestHandle_Revoke(t *testing.T) {
	h, _ := newTestHandle(&scriptedRegistrar{replies: []*Registration{{ID: "d-1"}}})
	require.True(t, h.Register(context.Background()))

	h.Revoke()
	assert.False(t, h.Registered())

	// Revoke alone does not start a backoff.
	assert.False(t, h.Backoff().BackingOff())
}

func TestHandle_CancelledWaitSkipsAttempt(t *testing.T) {
	reg := &scriptedRegistrar{errs: []error{errors.New("down")}}
	h, _ := newTestHandle(reg)
	require.False(t, h.Register(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, h.Register(ctx))
	assert.Equal(t, 1, reg.calls, "cancelled wait must not call the controller")
}

func TestDescriptor_UniquifierIsStable(t *testing.T) {
	a := NewDescriptor("proj", "svc", "v1")
	b := NewDescriptor("proj", "svc", "v1")
	c := NewDescriptor("proj", "svc", "v2")

	assert.Equal(t, a.Uniquifier(), b.Uniquifier())
	assert.NotEqual(t, a.Uniquifier(), c.Uniquifier())
	assert.Len(t, a.Uniquifier(), 40)
}

func TestDescriptor_SourceContextSaltsUniquifier(t *testing.T) {
	plain := NewDescriptor("proj", "svc", "v1")
	salted := NewDescriptor("proj", "svc", "v1", SourceContext{RevisionID: "abc123"})

	assert.NotEqual(t, plain.Uniquifier(), salted.Uniquifier())
}

func TestDescriptor_Defaults(t *testing.T) {
	d := NewDescriptor("proj", "svc", "")
	assert.Equal(t, "proj-svc", d.Description)
	assert.Equal(t, AgentVersion, d.AgentVersion)
	assert.Equal(t, "svc", d.Labels["module"])
}

func TestLoadSourceContext(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		got, err := LoadSourceContext(filepath.Join(dir, "nope.json"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("single object", func(t *testing.T) {
		path := filepath.Join(dir, "one.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"repository":"git@x","revision_id":"r1"}`), 0o600))

		got, err := LoadSourceContext(path)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r1", got[0].RevisionID)
	})

	t.Run("list", func(t *testing.T) {
		path := filepath.Join(dir, "many.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"revision_id":"r1"},{"revision_id":"r2"}]`), 0o600))

		got, err := LoadSourceContext(path)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("garbage", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

		_, err := LoadSourceContext(path)
		assert.Error(t, err)
	})
}
