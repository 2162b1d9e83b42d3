// ABOUTME: Store interface and data types for controller persistence
// ABOUTME: Debuggees are unique per project and uniquifier; breakpoints belong to one debuggee

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/debuglet/internal/breakpoint"
	"github.com/2389/debuglet/internal/debuggee"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateBreakpoint is returned when creating a breakpoint whose ID is taken
var ErrDuplicateBreakpoint = errors.New("breakpoint already exists")

// Debuggee is a registered application as the controller sees it
type Debuggee struct {
	ID           string
	Project      string
	Uniquifier   string
	Description  string
	AgentVersion string
	Labels       map[string]string
	// SourceContexts is replaced wholesale on every registration.
	SourceContexts []debuggee.SourceContext
	Disabled       bool
	CreatedAt      time.Time
	LastSeen       time.Time
}

// Store defines the persistence operations the controller needs
type Store interface {
	// RegisterDebuggee inserts d, or refreshes the existing debuggee with
	// the same project and uniquifier. It returns the stored debuggee,
	// whose ID is the existing one on re-registration.
	RegisterDebuggee(ctx context.Context, d *Debuggee) (*Debuggee, error)
	GetDebuggee(ctx context.Context, id string) (*Debuggee, error)
	// ListDebuggees returns debuggees ordered by creation; an empty project lists all.
	ListDebuggees(ctx context.Context, project string) ([]*Debuggee, error)
	SetDebuggeeDisabled(ctx context.Context, id string, disabled bool) error

	CreateBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error
	GetBreakpoint(ctx context.Context, debuggeeID, id string) (*breakpoint.Breakpoint, error)
	// ListBreakpoints returns breakpoints ordered by creation time. Final
	// breakpoints are included only when includeFinal is set.
	ListBreakpoints(ctx context.Context, debuggeeID string, includeFinal bool) ([]*breakpoint.Breakpoint, error)
	UpdateBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error
	DeleteBreakpoint(ctx context.Context, debuggeeID, id string) error

	Close() error
}
