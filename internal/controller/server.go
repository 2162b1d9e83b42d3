// ABOUTME: Controller service implementation: debuggee registration, breakpoint storage and long polling.
// ABOUTME: ListActiveBreakpoints holds the call open until the debuggee's breakpoints change or the wait expires.

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/debuglet/internal/auth"
	"github.com/2389/debuglet/internal/breakpoint"
	"github.com/2389/debuglet/internal/store"
)

// DefaultWaitTimeout bounds how long ListActiveBreakpoints blocks.
const DefaultWaitTimeout = 40 * time.Second

// ServerConfig holds controller server settings.
type ServerConfig struct {
	Store       store.Store
	Logger      *slog.Logger
	WaitTimeout time.Duration
	// NewID generates debuggee and breakpoint IDs. Defaults to UUIDs.
	NewID func() string
	Clock func() time.Time
}

// Server implements ControllerServer and DebuggerServer.
type Server struct {
	store       store.Store
	logger      *slog.Logger
	waitTimeout time.Duration
	newID       func() string
	clock       func() time.Time
	epoch       string

	mu       sync.Mutex
	versions map[string]*version // keyed by debuggee ID
}

// version tracks changes to one debuggee's breakpoints. changed is closed
// and replaced on every change.
type version struct {
	n       uint64
	changed chan struct{}
}

var (
	_ ControllerServer = (*Server)(nil)
	_ DebuggerServer   = (*Server)(nil)
)

// NewServer creates a controller server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Server{
		store:       cfg.Store,
		logger:      cfg.Logger.With("component", "controller"),
		waitTimeout: cfg.WaitTimeout,
		newID:       cfg.NewID,
		clock:       cfg.Clock,
		epoch:       uuid.New().String()[:8],
		versions:    make(map[string]*version),
	}
}

// toStatus maps store errors to gRPC status errors.
func toStatus(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s not found", what)
	case errors.Is(err, store.ErrDuplicateBreakpoint):
		return status.Errorf(codes.AlreadyExists, "%s already exists", what)
	default:
		return status.Errorf(codes.Internal, "%s: %v", what, err)
	}
}

func respond(v any) (*structpb.Struct, error) {
	out, err := encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func parse(req *structpb.Struct, v any) error {
	if err := decode(req, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// current returns the wait token and change channel for a debuggee.
func (s *Server) current(debuggeeID string) (string, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.versionLocked(debuggeeID)
	return s.epoch + "-" + strconv.FormatUint(v.n, 10), v.changed
}

func (s *Server) versionLocked(debuggeeID string) *version {
	v, ok := s.versions[debuggeeID]
	if !ok {
		v = &version{changed: make(chan struct{})}
		s.versions[debuggeeID] = v
	}
	return v
}

// notify wakes long polls for a debuggee.
func (s *Server) notify(debuggeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.versionLocked(debuggeeID)
	v.n++
	close(v.changed)
	v.changed = make(chan struct{})
}

// RegisterDebuggeeRPC registers or refreshes a debuggee.
func (s *Server) RegisterDebuggeeRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in registerRequest
	if err := parse(req, &in); err != nil {
		return nil, err
	}

	d := in.Debuggee
	if d.Project == "" || d.Uniquifier == "" {
		return nil, status.Error(codes.InvalidArgument, "debuggee project and uniquifier are required")
	}

	stored, err := s.store.RegisterDebuggee(ctx, &store.Debuggee{
		ID:             s.newID(),
		Project:        d.Project,
		Uniquifier:     d.Uniquifier,
		Description:    d.Description,
		AgentVersion:   d.AgentVersion,
		Labels:         d.Labels,
		SourceContexts: d.SourceContexts,
	})
	if err != nil {
		return nil, toStatus(err, "debuggee")
	}

	registrationsTotal.WithLabelValues(strconv.FormatBool(stored.Disabled)).Inc()
	s.logger.Info("debuggee registered",
		"debuggee_id", stored.ID,
		"project", stored.Project,
		"description", stored.Description,
		"agent_version", stored.AgentVersion,
		"disabled", stored.Disabled,
		"caller", callerOf(ctx),
	)

	return respond(registerResponse{Debuggee: wireDebuggee(stored)})
}

func wireDebuggee(d *store.Debuggee) Debuggee {
	return Debuggee{
		ID:             d.ID,
		Project:        d.Project,
		Uniquifier:     d.Uniquifier,
		Description:    d.Description,
		AgentVersion:   d.AgentVersion,
		Labels:         d.Labels,
		SourceContexts: d.SourceContexts,
		IsDisabled:     d.Disabled,
	}
}

func callerOf(ctx context.Context) string {
	if id := auth.FromContext(ctx); id != nil {
		return id.Subject
	}
	return ""
}

// ListActiveBreakpointsRPC returns the active breakpoints. When the wait
// token matches the current state it blocks until a change or the wait
// timeout.
func (s *Server) ListActiveBreakpointsRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in listActiveRequest
	if err := parse(req, &in); err != nil {
		return nil, err
	}
	if _, err := s.store.GetDebuggee(ctx, in.DebuggeeID); err != nil {
		return nil, toStatus(err, "debuggee "+in.DebuggeeID)
	}

	timer := time.NewTimer(s.waitTimeout)
	defer timer.Stop()

	for {
		token, changed := s.current(in.DebuggeeID)
		if token != in.WaitToken {
			bps, err := s.store.ListBreakpoints(ctx, in.DebuggeeID, false)
			if err != nil {
				return nil, toStatus(err, "breakpoints")
			}
			return respond(listResponse{Breakpoints: bps, NextWaitToken: token})
		}

		waitingPolls.Inc()
		select {
		case <-changed:
			waitingPolls.Dec()
		case <-timer.C:
			waitingPolls.Dec()
			waitExpiredTotal.Inc()
			if in.SuccessOnTimeout {
				return respond(listResponse{NextWaitToken: token, WaitExpired: true})
			}
			return nil, status.Error(codes.Aborted, "wait expired")
		case <-ctx.Done():
			waitingPolls.Dec()
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}
}

// UpdateActiveBreakpointRPC records an agent's result for a breakpoint.
// A final update moves the breakpoint out of the active list.
func (s *Server) UpdateActiveBreakpointRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in breakpointRequest
	if err := parse(req, &in); err != nil {
		return nil, err
	}
	if in.Breakpoint == nil || in.Breakpoint.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "breakpoint id is required")
	}
	if _, err := s.store.GetDebuggee(ctx, in.DebuggeeID); err != nil {
		return nil, toStatus(err, "debuggee "+in.DebuggeeID)
	}

	stored, err := s.store.GetBreakpoint(ctx, in.DebuggeeID, in.Breakpoint.ID)
	if err != nil {
		return nil, toStatus(err, "breakpoint "+in.Breakpoint.ID)
	}

	update := in.Breakpoint
	if !update.IsFinalState {
		updatesTotal.WithLabelValues("log").Inc()
		s.logger.Info("logpoint hit",
			"debuggee_id", in.DebuggeeID,
			"breakpoint_id", update.ID,
			"location", stored.Location.String(),
			"message", update.LogMessage,
		)
		return respond(empty{})
	}

	if stored.IsFinalState {
		updatesTotal.WithLabelValues("duplicate").Inc()
		return respond(empty{})
	}

	final := mergeResult(stored, update, s.clock())
	if err := s.store.UpdateBreakpoint(ctx, in.DebuggeeID, final); err != nil {
		return nil, toStatus(err, "breakpoint "+update.ID)
	}
	s.notify(in.DebuggeeID)

	updatesTotal.WithLabelValues("final").Inc()
	s.logger.Info("breakpoint finalized",
		"debuggee_id", in.DebuggeeID,
		"breakpoint_id", final.ID,
		"frames", len(final.StackFrames),
	)
	return respond(empty{})
}

// mergeResult copies agent-provided results onto the stored definition.
func mergeResult(stored, update *breakpoint.Breakpoint, now time.Time) *breakpoint.Breakpoint {
	out := stored.Clone()
	out.Status = update.Status
	out.StackFrames = update.StackFrames
	out.EvaluatedExpressions = update.EvaluatedExpressions
	if update.FinalTime != nil {
		out.Finalize(*update.FinalTime)
	} else {
		out.Finalize(now)
	}
	return out
}

// SetBreakpointRPC creates a breakpoint on a debuggee.
func (s *Server) SetBreakpointRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in breakpointRequest
	if err := parse(req, &in); err != nil {
		return nil, err
	}
	bp := in.Breakpoint
	if bp == nil || bp.Location.Path == "" || bp.Location.Line <= 0 {
		return nil, status.Error(codes.InvalidArgument, "breakpoint location with path and positive line is required")
	}
	switch bp.Action {
	case "":
		bp.Action = breakpoint.ActionCapture
	case breakpoint.ActionCapture, breakpoint.ActionLog:
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown action %q", bp.Action)
	}
	if _, err := s.store.GetDebuggee(ctx, in.DebuggeeID); err != nil {
		return nil, toStatus(err, "debuggee "+in.DebuggeeID)
	}

	bp.ID = s.newID()
	bp.CreateTime = s.clock().UTC()
	bp.IsFinalState = false
	bp.FinalTime = nil
	bp.StackFrames = nil
	bp.EvaluatedExpressions = nil
	if caller := callerOf(ctx); caller != "" && bp.UserEmail == "" {
		bp.UserEmail = caller
	}

	if err := s.store.CreateBreakpoint(ctx, in.DebuggeeID, bp); err != nil {
		return nil, toStatus(err, "breakpoint")
	}
	s.notify(in.DebuggeeID)

	s.logger.Info("breakpoint set",
		"debuggee_id", in.DebuggeeID,
		"breakpoint_id", bp.ID,
		"location", bp.Location.String(),
		"action", string(bp.Action),
	)
	return respond(breakpointResponse{Breakpoint: bp})
}

// GetBreakpointRPC returns one breakpoint, active or final.
func (s *Server) GetBreakpointRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in breakpointRequest
	if err := parse(req, &in); err != nil {
		return nil, err
	}
	bp, err := s.store.GetBreakpoint(ctx, in.DebuggeeID, in.BreakpointID)
	if err != nil {
		return nil, toStatus(err, "breakpoint "+in.BreakpointID)
	}
	return respond(breakpointResponse{Breakpoint: bp})
}

// ListBreakpointsRPC lists a debuggee's breakpoints.
func (s *Server) ListBreakpointsRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in listBreakpointsRequest
	if err := parse(req, &in); err != nil {
		return nil, err
	}
	if _, err := s.store.GetDebuggee(ctx, in.DebuggeeID); err != nil {
		return nil, toStatus(err, "debuggee "+in.DebuggeeID)
	}
	bps, err := s.store.ListBreakpoints(ctx, in.DebuggeeID, in.IncludeInactive)
	if err != nil {
		return nil, toStatus(err, "breakpoints")
	}
	return respond(listResponse{Breakpoints: bps})
}

// DeleteBreakpointRPC removes a breakpoint.
func (s *Server) DeleteBreakpointRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in breakpointRequest
	if err := parse(req, &in); err != nil {
		return nil, err
	}
	if err := s.store.DeleteBreakpoint(ctx, in.DebuggeeID, in.BreakpointID); err != nil {
		return nil, toStatus(err, "breakpoint "+in.BreakpointID)
	}
	s.notify(in.DebuggeeID)

	s.logger.Info("breakpoint deleted", "debuggee_id", in.DebuggeeID, "breakpoint_id", in.BreakpointID)
	return respond(empty{})
}

// ListDebuggeesRPC lists registered debuggees.
func (s *Server) ListDebuggeesRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in listDebuggeesRequest
	if err := parse(req, &in); err != nil {
		return nil, err
	}
	ds, err := s.store.ListDebuggees(ctx, in.Project)
	if err != nil {
		return nil, toStatus(err, "debuggees")
	}

	out := listDebuggeesResponse{Debuggees: make([]Debuggee, 0, len(ds))}
	for _, d := range ds {
		out.Debuggees = append(out.Debuggees, wireDebuggee(d))
	}
	return respond(out)
}

// SetDebuggeeDisabledRPC disables or re-enables a debuggee. Agents of a
// disabled debuggee fail registration.
func (s *Server) SetDebuggeeDisabledRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in disableRequest
	if err := parse(req, &in); err != nil {
		return nil, err
	}
	if err := s.store.SetDebuggeeDisabled(ctx, in.DebuggeeID, in.Disabled); err != nil {
		return nil, toStatus(err, fmt.Sprintf("debuggee %s", in.DebuggeeID))
	}

	s.logger.Info("debuggee disabled flag changed", "debuggee_id", in.DebuggeeID, "disabled", in.Disabled)
	return respond(empty{})
}
