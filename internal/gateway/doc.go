// Package gateway hosts the debuglet controller.
//
// # Overview
//
// The gateway owns the network-facing surface of the controller: the
// gRPC server carrying the Controller and Debugger services, the HTTP
// server for health checks and metrics, and the store behind both.
//
// # Endpoints
//
// gRPC (server.grpc_addr):
//
//   - debuglet.v1.Controller: RegisterDebuggee, ListActiveBreakpoints,
//     UpdateActiveBreakpoint (agent role)
//   - debuglet.v1.Debugger: SetBreakpoint, GetBreakpoint, ListBreakpoints,
//     DeleteBreakpoint, ListDebuggees, SetDebuggeeDisabled (admin role)
//
// HTTP (server.http_addr):
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (store reachable)
//   - GET /metrics - Prometheus metrics, when metrics.enabled is set
//
// # Authentication
//
// When auth.jwt_secret is set every gRPC call needs a bearer JWT. Without
// it the gateway runs anonymously and logs a warning at startup.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	err = gw.Run(ctx) // returns after graceful shutdown
package gateway
