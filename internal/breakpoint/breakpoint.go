// ABOUTME: Breakpoint model shared by the agent, the transmitter and the controller.
// ABOUTME: Identity is the breakpoint ID; location and expressions are informational.

package breakpoint

import (
	"fmt"
	"time"
)

// Action is what the agent does when a breakpoint location is reached.
type Action string

const (
	// ActionCapture captures the stack once and then completes the breakpoint.
	ActionCapture Action = "CAPTURE"
	// ActionLog emits a log entry on every hit; the breakpoint stays active.
	ActionLog Action = "LOG"
)

// SourceLocation identifies a line in a source file.
type SourceLocation struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

// String formats the location as path:line.
func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d", l.Path, l.Line)
}

// StatusMessage is a user-visible status attached to a breakpoint or variable.
type StatusMessage struct {
	IsError  bool   `json:"is_error"`
	RefersTo string `json:"refers_to,omitempty"`
	Message  string `json:"message"`
}

// Variable is an evaluated expression or captured local.
type Variable struct {
	Name    string         `json:"name,omitempty"`
	Value   string         `json:"value,omitempty"`
	Type    string         `json:"type,omitempty"`
	Members []Variable     `json:"members,omitempty"`
	Status  *StatusMessage `json:"status,omitempty"`
}

// StackFrame is one captured frame.
type StackFrame struct {
	Function  string         `json:"function"`
	Location  SourceLocation `json:"location"`
	Arguments []Variable     `json:"arguments,omitempty"`
	Locals    []Variable     `json:"locals,omitempty"`
}

// Breakpoint is a location the controller wants evaluated.
type Breakpoint struct {
	ID           string            `json:"id"`
	Action       Action            `json:"action,omitempty"`
	Location     SourceLocation    `json:"location"`
	Condition    string            `json:"condition,omitempty"`
	Expressions  []string          `json:"expressions,omitempty"`
	LogMessage   string            `json:"log_message_format,omitempty"`
	UserEmail    string            `json:"user_email,omitempty"`
	CreateTime   time.Time         `json:"create_time"`
	FinalTime    *time.Time        `json:"final_time,omitempty"`
	IsFinalState bool              `json:"is_final_state"`
	Labels       map[string]string `json:"labels,omitempty"`
	Status       *StatusMessage    `json:"status,omitempty"`

	// Filled in by evaluation.
	StackFrames          []StackFrame `json:"stack_frames,omitempty"`
	EvaluatedExpressions []Variable   `json:"evaluated_expressions,omitempty"`
}

// IsCapture reports whether the breakpoint completes after one evaluation.
// An empty action means capture.
func (b *Breakpoint) IsCapture() bool {
	return b.Action == "" || b.Action == ActionCapture
}

// Finalize marks the breakpoint final as of now.
func (b *Breakpoint) Finalize(now time.Time) {
	b.IsFinalState = true
	b.FinalTime = &now
}

// Clone returns a deep copy so the result can be mutated without affecting
// the breakpoint held by a Set.
func (b *Breakpoint) Clone() *Breakpoint {
	c := *b
	c.Expressions = append([]string(nil), b.Expressions...)
	if b.Labels != nil {
		c.Labels = make(map[string]string, len(b.Labels))
		for k, v := range b.Labels {
			c.Labels[k] = v
		}
	}
	if b.FinalTime != nil {
		t := *b.FinalTime
		c.FinalTime = &t
	}
	if b.Status != nil {
		s := *b.Status
		c.Status = &s
	}
	c.StackFrames = append([]StackFrame(nil), b.StackFrames...)
	c.EvaluatedExpressions = append([]Variable(nil), b.EvaluatedExpressions...)
	return &c
}
