// ABOUTME: Hand-written gRPC service descriptors for the Controller and Debugger services.
// ABOUTME: Every method takes and returns a structpb.Struct, so no generated stubs are needed.

package controller

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ControllerServer is the agent-facing service.
type ControllerServer interface {
	RegisterDebuggeeRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListActiveBreakpointsRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateActiveBreakpointRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// DebuggerServer is the user-facing service.
type DebuggerServer interface {
	SetBreakpointRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetBreakpointRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBreakpointsRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteBreakpointRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListDebuggeesRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetDebuggeeDisabledRPC(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type rpcFunc func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// unary builds a MethodDesc that decodes a Struct and runs it through the
// server's interceptor chain.
func unary(service, method string, pick func(srv any) rpcFunc) grpc.MethodDesc {
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod(service, method)}
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			call := pick(srv)
			if interceptor == nil {
				return call(ctx, in)
			}
			i := *info
			i.Server = srv
			return interceptor(ctx, in, &i, func(ctx context.Context, req any) (any, error) {
				return call(ctx, req.(*structpb.Struct))
			})
		},
	}
}

var controllerServiceDesc = grpc.ServiceDesc{
	ServiceName: ControllerService,
	HandlerType: (*ControllerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ControllerService, methodRegisterDebuggee, func(srv any) rpcFunc {
			return srv.(ControllerServer).RegisterDebuggeeRPC
		}),
		unary(ControllerService, methodListActiveBreakpoints, func(srv any) rpcFunc {
			return srv.(ControllerServer).ListActiveBreakpointsRPC
		}),
		unary(ControllerService, methodUpdateActiveBreakpoint, func(srv any) rpcFunc {
			return srv.(ControllerServer).UpdateActiveBreakpointRPC
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "debuglet/v1/controller.proto",
}

var debuggerServiceDesc = grpc.ServiceDesc{
	ServiceName: DebuggerService,
	HandlerType: (*DebuggerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(DebuggerService, methodSetBreakpoint, func(srv any) rpcFunc {
			return srv.(DebuggerServer).SetBreakpointRPC
		}),
		unary(DebuggerService, methodGetBreakpoint, func(srv any) rpcFunc {
			return srv.(DebuggerServer).GetBreakpointRPC
		}),
		unary(DebuggerService, methodListBreakpoints, func(srv any) rpcFunc {
			return srv.(DebuggerServer).ListBreakpointsRPC
		}),
		unary(DebuggerService, methodDeleteBreakpoint, func(srv any) rpcFunc {
			return srv.(DebuggerServer).DeleteBreakpointRPC
		}),
		unary(DebuggerService, methodListDebuggees, func(srv any) rpcFunc {
			return srv.(DebuggerServer).ListDebuggeesRPC
		}),
		unary(DebuggerService, methodSetDebuggeeDisabled, func(srv any) rpcFunc {
			return srv.(DebuggerServer).SetDebuggeeDisabledRPC
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "debuglet/v1/debugger.proto",
}

// Register installs both services on s.
func Register(s grpc.ServiceRegistrar, srv *Server) {
	s.RegisterService(&controllerServiceDesc, srv)
	s.RegisterService(&debuggerServiceDesc, srv)
}
