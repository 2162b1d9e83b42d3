// ABOUTME: In-memory Store implementation for tests and throwaway controllers
// ABOUTME: Mirrors SQLiteStore semantics without a database file

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2389/debuglet/internal/breakpoint"
	"github.com/2389/debuglet/internal/debuggee"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	debuggees   map[string]*Debuggee                         // keyed by debuggee ID
	identity    map[string]string                            // keyed by "project\x00uniquifier" -> debuggee ID
	breakpoints map[string]map[string]*breakpoint.Breakpoint // keyed by debuggee ID, then breakpoint ID
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		debuggees:   make(map[string]*Debuggee),
		identity:    make(map[string]string),
		breakpoints: make(map[string]map[string]*breakpoint.Breakpoint),
	}
}

func copyDebuggee(d *Debuggee) *Debuggee {
	c := *d
	if d.Labels != nil {
		c.Labels = make(map[string]string, len(d.Labels))
		for k, v := range d.Labels {
			c.Labels[k] = v
		}
	}
	if d.SourceContexts != nil {
		c.SourceContexts = append([]debuggee.SourceContext(nil), d.SourceContexts...)
	}
	return &c
}

// RegisterDebuggee upserts a debuggee keyed by (project, uniquifier).
func (m *MemoryStore) RegisterDebuggee(ctx context.Context, d *Debuggee) (*Debuggee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := d.Project + "\x00" + d.Uniquifier
	if id, ok := m.identity[key]; ok {
		existing := m.debuggees[id]
		existing.Description = d.Description
		existing.AgentVersion = d.AgentVersion
		fresh := copyDebuggee(d)
		existing.Labels = fresh.Labels
		existing.SourceContexts = fresh.SourceContexts
		existing.LastSeen = now
		return copyDebuggee(existing), nil
	}

	stored := copyDebuggee(d)
	stored.Disabled = false
	stored.CreatedAt = now
	stored.LastSeen = now
	m.debuggees[stored.ID] = stored
	m.identity[key] = stored.ID
	m.breakpoints[stored.ID] = make(map[string]*breakpoint.Breakpoint)
	return copyDebuggee(stored), nil
}

// GetDebuggee retrieves a debuggee by ID.
func (m *MemoryStore) GetDebuggee(ctx context.Context, id string) (*Debuggee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.debuggees[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDebuggee(d), nil
}

// ListDebuggees lists debuggees in creation order.
func (m *MemoryStore) ListDebuggees(ctx context.Context, project string) ([]*Debuggee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Debuggee
	for _, d := range m.debuggees {
		if project == "" || d.Project == project {
			out = append(out, copyDebuggee(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetDebuggeeDisabled toggles the disabled flag.
func (m *MemoryStore) SetDebuggeeDisabled(ctx context.Context, id string, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.debuggees[id]
	if !ok {
		return ErrNotFound
	}
	d.Disabled = disabled
	return nil
}

// CreateBreakpoint stores a new breakpoint.
func (m *MemoryStore) CreateBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bps, ok := m.breakpoints[debuggeeID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := bps[bp.ID]; exists {
		return ErrDuplicateBreakpoint
	}
	bps[bp.ID] = bp.Clone()
	return nil
}

// GetBreakpoint retrieves one breakpoint.
func (m *MemoryStore) GetBreakpoint(ctx context.Context, debuggeeID, id string) (*breakpoint.Breakpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bp, ok := m.breakpoints[debuggeeID][id]
	if !ok {
		return nil, ErrNotFound
	}
	return bp.Clone(), nil
}

// ListBreakpoints lists a debuggee's breakpoints in creation order.
func (m *MemoryStore) ListBreakpoints(ctx context.Context, debuggeeID string, includeFinal bool) ([]*breakpoint.Breakpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*breakpoint.Breakpoint
	for _, bp := range m.breakpoints[debuggeeID] {
		if bp.IsFinalState && !includeFinal {
			continue
		}
		out = append(out, bp.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].CreateTime.Before(out[j].CreateTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateBreakpoint replaces a stored breakpoint.
func (m *MemoryStore) UpdateBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bps := m.breakpoints[debuggeeID]
	if _, ok := bps[bp.ID]; !ok {
		return ErrNotFound
	}
	bps[bp.ID] = bp.Clone()
	return nil
}

// DeleteBreakpoint removes a breakpoint.
func (m *MemoryStore) DeleteBreakpoint(ctx context.Context, debuggeeID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bps := m.breakpoints[debuggeeID]
	if _, ok := bps[id]; !ok {
		return ErrNotFound
	}
	delete(bps, id)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
