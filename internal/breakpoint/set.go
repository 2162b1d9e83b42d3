// ABOUTME: Local cache of active and completed breakpoints, reconciled against the controller.
// ABOUTME: Signals the instrumentation layer whenever the active set becomes empty or non-empty.

package breakpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// InitialWaitToken starts a new long-poll sequence.
const InitialWaitToken = "init"

// ListResult is one response from the controller's active breakpoint list.
type ListResult struct {
	Breakpoints   []*Breakpoint
	NextWaitToken string
	// WaitExpired means the controller's long poll timed out with no change.
	WaitExpired bool
}

// Lister fetches the controller's view of active breakpoints.
type Lister interface {
	ListActiveBreakpoints(ctx context.Context, debuggeeID, waitToken string) (*ListResult, error)
}

// Toggler receives level-triggered instrumentation requests.
type Toggler interface {
	EnableInstrumentation()
	DisableInstrumentation()
}

// Set holds the active and completed breakpoints for one debuggee.
// A breakpoint ID is in at most one of the two collections.
type Set struct {
	lister  Lister
	toggler Toggler
	logger  *slog.Logger

	// signalMu orders toggler calls; each call reads the level it reports.
	signalMu sync.Mutex

	mu        sync.RWMutex
	active    map[string]*Breakpoint
	completed map[string]*Breakpoint
	waitToken string
}

// NewSet creates an empty set. toggler may be nil. Pass nil logger for default.
func NewSet(lister Lister, toggler Toggler, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		lister:    lister,
		toggler:   toggler,
		logger:    logger.With("component", "breakpoints"),
		active:    make(map[string]*Breakpoint),
		completed: make(map[string]*Breakpoint),
		waitToken: InitialWaitToken,
	}
}

// SyncActiveBreakpoints fetches the controller's active list and reconciles
// the local collections against it. An error means the fetch failed; the
// caller should treat the registration as stale.
func (s *Set) SyncActiveBreakpoints(ctx context.Context, debuggeeID string) error {
	s.mu.RLock()
	token := s.waitToken
	s.mu.RUnlock()

	res, err := s.lister.ListActiveBreakpoints(ctx, debuggeeID, token)
	if err != nil {
		s.ResetWaitToken()
		return fmt.Errorf("listing active breakpoints: %w", err)
	}

	if res.NextWaitToken != "" {
		s.mu.Lock()
		s.waitToken = res.NextWaitToken
		s.mu.Unlock()
	}

	if res.WaitExpired {
		s.logger.Debug("breakpoint wait expired, no changes")
		s.signal()
		return nil
	}

	s.Reconcile(res.Breakpoints)
	return nil
}

// Reconcile brings the local collections in line with the server list:
// new breakpoints become active, and anything the server no longer lists
// is forgotten from both collections. It then signals instrumentation.
func (s *Set) Reconcile(server []*Breakpoint) {
	serverIDs := make(map[string]struct{}, len(server))

	s.mu.Lock()
	var added []string
	for _, bp := range server {
		if bp == nil || bp.ID == "" {
			continue
		}
		serverIDs[bp.ID] = struct{}{}

		if _, ok := s.active[bp.ID]; ok {
			continue
		}
		if _, ok := s.completed[bp.ID]; ok {
			continue
		}
		s.active[bp.ID] = bp
		added = append(added, bp.ID)
	}

	var forgotten int
	for id := range s.active {
		if _, ok := serverIDs[id]; !ok {
			delete(s.active, id)
			forgotten++
		}
	}
	for id := range s.completed {
		if _, ok := serverIDs[id]; !ok {
			delete(s.completed, id)
			forgotten++
		}
	}
	activeCount := len(s.active)
	s.mu.Unlock()

	if len(added) > 0 || forgotten > 0 {
		s.logger.Info("breakpoints synced",
			"added", added,
			"forgotten", forgotten,
			"active", activeCount,
		)
	}

	s.signal()
}

// signal reports whether any breakpoint is active. The level is read
// while signalMu is held, so the last call to reach the toggler always
// matches the set.
func (s *Set) signal() {
	if s.toggler == nil {
		return
	}

	s.signalMu.Lock()
	defer s.signalMu.Unlock()

	if s.Len() == 0 {
		s.toggler.DisableInstrumentation()
	} else {
		s.toggler.EnableInstrumentation()
	}
}

// Complete moves bp from active to completed. It returns false if bp is
// not currently active, so a breakpoint is completed at most once.
func (s *Set) Complete(bp *Breakpoint) bool {
	if bp == nil {
		return false
	}

	s.mu.Lock()
	stored, ok := s.active[bp.ID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.active, bp.ID)
	s.completed[bp.ID] = stored
	s.mu.Unlock()

	s.logger.Debug("breakpoint completed", "breakpoint_id", bp.ID)
	s.signal()
	return true
}

// Clear empties both collections and restarts the long-poll sequence.
func (s *Set) Clear() {
	s.mu.Lock()
	s.active = make(map[string]*Breakpoint)
	s.completed = make(map[string]*Breakpoint)
	s.waitToken = InitialWaitToken
	s.mu.Unlock()

	s.signal()
}

// ResetWaitToken makes the next sync fetch the full list immediately.
func (s *Set) ResetWaitToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitToken = InitialWaitToken
}

// WaitToken returns the token the next sync will send.
func (s *Set) WaitToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waitToken
}

// Active returns the active breakpoints ordered by ID.
func (s *Set) Active() []*Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.active)
}

// Completed returns the completed breakpoints ordered by ID.
func (s *Set) Completed() []*Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.completed)
}

// IsActive reports whether id is in the active collection.
func (s *Set) IsActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[id]
	return ok
}

// IsCompleted reports whether id is in the completed collection.
func (s *Set) IsCompleted(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.completed[id]
	return ok
}

// Len returns the number of active breakpoints.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// At returns the active breakpoints set on path:line.
func (s *Set) At(path string, line int) []*Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Breakpoint
	for _, bp := range s.active {
		if bp.Location.Path == path && bp.Location.Line == line {
			out = append(out, bp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedValues(m map[string]*Breakpoint) []*Breakpoint {
	out := make([]*Breakpoint, 0, len(m))
	for _, bp := range m {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
