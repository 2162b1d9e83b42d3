// ABOUTME: gRPC client for the controller, used by agents and by the admin CLI.
// ABOUTME: Implements the agent's Controller interface on top of the Struct-based wire format.

package controller

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/debuglet/internal/auth"
	"github.com/2389/debuglet/internal/breakpoint"
	"github.com/2389/debuglet/internal/debuggee"
)

// DialConfig describes how to reach the controller.
type DialConfig struct {
	Addr       string
	Token      string
	Insecure   bool
	CACertFile string
	ServerName string
}

// Client calls the Controller and Debugger services.
type Client struct {
	conn   grpc.ClientConnInterface
	closer func() error
}

// Dial creates a client for cfg.Addr. The connection is established lazily.
func Dial(cfg DialConfig, opts ...grpc.DialOption) (*Client, error) {
	var creds credentials.TransportCredentials
	switch {
	case cfg.Insecure:
		creds = insecure.NewCredentials()
	case cfg.CACertFile != "":
		c, err := credentials.NewClientTLSFromFile(cfg.CACertFile, cfg.ServerName)
		if err != nil {
			return nil, fmt.Errorf("loading CA certificate: %w", err)
		}
		creds = c
	default:
		creds = credentials.NewTLS(&tls.Config{
			ServerName: cfg.ServerName,
			MinVersion: tls.VersionTLS12,
		})
	}

	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.Token != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(auth.NewBearer(cfg.Token, cfg.Insecure)))
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(cfg.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", cfg.Addr, err)
	}
	return &Client{conn: conn, closer: conn.Close}, nil
}

// NewClient wraps an existing connection. Close does not close it.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close releases the connection if the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) call(ctx context.Context, service, method string, req, resp any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, fullMethod(service, method), in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return decode(out, resp)
}

// RegisterDebuggee implements debuggee.Registrar.
func (c *Client) RegisterDebuggee(ctx context.Context, d *debuggee.Descriptor) (*debuggee.Registration, error) {
	req := registerRequest{Debuggee: Debuggee{
		Project:        d.Project,
		Uniquifier:     d.Uniquifier(),
		Description:    d.Description,
		AgentVersion:   d.AgentVersion,
		Labels:         d.Labels,
		SourceContexts: d.SourceContexts,
	}}

	var resp registerResponse
	if err := c.call(ctx, ControllerService, methodRegisterDebuggee, req, &resp); err != nil {
		return nil, err
	}
	return &debuggee.Registration{
		ID:       resp.Debuggee.ID,
		Disabled: resp.Debuggee.IsDisabled,
	}, nil
}

// ListActiveBreakpoints implements breakpoint.Lister. A wait that expires
// without change is reported as WaitExpired rather than an error.
func (c *Client) ListActiveBreakpoints(ctx context.Context, debuggeeID, waitToken string) (*breakpoint.ListResult, error) {
	req := listActiveRequest{
		DebuggeeID:       debuggeeID,
		WaitToken:        waitToken,
		SuccessOnTimeout: true,
	}

	var resp listResponse
	if err := c.call(ctx, ControllerService, methodListActiveBreakpoints, req, &resp); err != nil {
		return nil, err
	}
	return &breakpoint.ListResult{
		Breakpoints:   resp.Breakpoints,
		NextWaitToken: resp.NextWaitToken,
		WaitExpired:   resp.WaitExpired,
	}, nil
}

// UpdateActiveBreakpoint implements transmitter.Updater.
func (c *Client) UpdateActiveBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error {
	req := breakpointRequest{DebuggeeID: debuggeeID, Breakpoint: bp}
	return c.call(ctx, ControllerService, methodUpdateActiveBreakpoint, req, nil)
}

// SetBreakpoint creates a breakpoint and returns it with its assigned ID.
func (c *Client) SetBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) (*breakpoint.Breakpoint, error) {
	var resp breakpointResponse
	req := breakpointRequest{DebuggeeID: debuggeeID, Breakpoint: bp}
	if err := c.call(ctx, DebuggerService, methodSetBreakpoint, req, &resp); err != nil {
		return nil, err
	}
	return resp.Breakpoint, nil
}

// GetBreakpoint fetches one breakpoint.
func (c *Client) GetBreakpoint(ctx context.Context, debuggeeID, breakpointID string) (*breakpoint.Breakpoint, error) {
	var resp breakpointResponse
	req := breakpointRequest{DebuggeeID: debuggeeID, BreakpointID: breakpointID}
	if err := c.call(ctx, DebuggerService, methodGetBreakpoint, req, &resp); err != nil {
		return nil, err
	}
	return resp.Breakpoint, nil
}

// ListBreakpoints lists a debuggee's breakpoints.
func (c *Client) ListBreakpoints(ctx context.Context, debuggeeID string, includeInactive bool) ([]*breakpoint.Breakpoint, error) {
	var resp listResponse
	req := listBreakpointsRequest{DebuggeeID: debuggeeID, IncludeInactive: includeInactive}
	if err := c.call(ctx, DebuggerService, methodListBreakpoints, req, &resp); err != nil {
		return nil, err
	}
	return resp.Breakpoints, nil
}

// DeleteBreakpoint removes a breakpoint.
func (c *Client) DeleteBreakpoint(ctx context.Context, debuggeeID, breakpointID string) error {
	req := breakpointRequest{DebuggeeID: debuggeeID, BreakpointID: breakpointID}
	return c.call(ctx, DebuggerService, methodDeleteBreakpoint, req, nil)
}

// ListDebuggees lists registered debuggees, optionally for one project.
func (c *Client) ListDebuggees(ctx context.Context, project string) ([]Debuggee, error) {
	var resp listDebuggeesResponse
	if err := c.call(ctx, DebuggerService, methodListDebuggees, listDebuggeesRequest{Project: project}, &resp); err != nil {
		return nil, err
	}
	return resp.Debuggees, nil
}

// SetDebuggeeDisabled disables or re-enables a debuggee.
func (c *Client) SetDebuggeeDisabled(ctx context.Context, debuggeeID string, disabled bool) error {
	req := disableRequest{DebuggeeID: debuggeeID, Disabled: disabled}
	return c.call(ctx, DebuggerService, methodSetDebuggeeDisabled, req, nil)
}
