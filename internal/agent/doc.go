// Package agent runs the debugging agent's control loop.
//
// # Overview
//
// An Agent keeps one process registered with the controller, mirrors the
// controller's active breakpoints locally and ships evaluated breakpoints
// back. It is built from smaller pieces:
//
//   - debuggee.Handle: registration and its retry backoff
//   - breakpoint.Set: local active/completed breakpoints, long-polled
//   - transmitter.Transmitter: bounded queue of outgoing updates
//   - actor.Actor: the goroutine and lifecycle for the control loop
//
// # Control Loop
//
// Each tick:
//
//  1. Register if not registered (waiting out any backoff first)
//  2. Sync active breakpoints from the controller
//  3. On sync failure, revoke the registration so the next tick registers again
//
// # Instrumentation
//
// Instrumentation is enabled only while the agent is running and at least
// one breakpoint is active. The Instrumentation implementation is called
// only when that condition changes:
//
//	a := agent.New(client, descriptor, inst, agent.Config{Logger: logger})
//	a.Start()
//	defer a.StopAndWait(10*time.Second, true)
//
// # Reporting
//
// The instrumentation layer calls Report after evaluating a breakpoint.
// Capture breakpoints complete on their first report; log breakpoints stay
// active and are reported on every hit.
package agent
