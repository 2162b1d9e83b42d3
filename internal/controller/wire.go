// ABOUTME: Request and response shapes for the controller services, carried as structpb.Struct.
// ABOUTME: Go structs are converted through their JSON form so both ends share one schema.

package controller

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/debuglet/internal/breakpoint"
	"github.com/2389/debuglet/internal/debuggee"
)

// Service and method names.
const (
	ControllerService = "debuglet.v1.Controller"
	DebuggerService   = "debuglet.v1.Debugger"

	methodRegisterDebuggee       = "RegisterDebuggee"
	methodListActiveBreakpoints  = "ListActiveBreakpoints"
	methodUpdateActiveBreakpoint = "UpdateActiveBreakpoint"

	methodSetBreakpoint       = "SetBreakpoint"
	methodGetBreakpoint       = "GetBreakpoint"
	methodListBreakpoints     = "ListBreakpoints"
	methodDeleteBreakpoint    = "DeleteBreakpoint"
	methodListDebuggees       = "ListDebuggees"
	methodSetDebuggeeDisabled = "SetDebuggeeDisabled"
)

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// Debuggee is the wire form of a registered application.
type Debuggee struct {
	ID             string                   `json:"id,omitempty"`
	Project        string                   `json:"project"`
	Uniquifier     string                   `json:"uniquifier"`
	Description    string                   `json:"description,omitempty"`
	AgentVersion   string                   `json:"agent_version,omitempty"`
	Labels         map[string]string        `json:"labels,omitempty"`
	SourceContexts []debuggee.SourceContext `json:"source_contexts,omitempty"`
	IsDisabled     bool                     `json:"is_disabled,omitempty"`
}

type registerRequest struct {
	Debuggee Debuggee `json:"debuggee"`
}

type registerResponse struct {
	Debuggee Debuggee `json:"debuggee"`
}

type listActiveRequest struct {
	DebuggeeID       string `json:"debuggee_id"`
	WaitToken        string `json:"wait_token,omitempty"`
	SuccessOnTimeout bool   `json:"success_on_timeout,omitempty"`
}

type listResponse struct {
	Breakpoints   []*breakpoint.Breakpoint `json:"breakpoints,omitempty"`
	NextWaitToken string                   `json:"next_wait_token,omitempty"`
	WaitExpired   bool                     `json:"wait_expired,omitempty"`
}

type breakpointRequest struct {
	DebuggeeID   string                 `json:"debuggee_id"`
	BreakpointID string                 `json:"breakpoint_id,omitempty"`
	Breakpoint   *breakpoint.Breakpoint `json:"breakpoint,omitempty"`
}

type breakpointResponse struct {
	Breakpoint *breakpoint.Breakpoint `json:"breakpoint,omitempty"`
}

type listBreakpointsRequest struct {
	DebuggeeID      string `json:"debuggee_id"`
	IncludeInactive bool   `json:"include_inactive,omitempty"`
}

type listDebuggeesRequest struct {
	Project string `json:"project,omitempty"`
}

type listDebuggeesResponse struct {
	Debuggees []Debuggee `json:"debuggees,omitempty"`
}

type disableRequest struct {
	DebuggeeID string `json:"debuggee_id"`
	Disabled   bool   `json:"disabled"`
}

type empty struct{}

// encode converts v to a Struct via its JSON form.
func encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return s, nil
}

// decode fills v from a Struct via its JSON form.
func decode(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}
