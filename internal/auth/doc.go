// Package auth authenticates controller RPCs with HS256 bearer tokens.
//
// # Roles
//
// Tokens carry a "role" claim:
//
//   - agent: may call the agent-facing Controller service
//   - admin: may call everything, including the user-facing Debugger service
//
// # Server Side
//
//	verifier, err := auth.NewJWTVerifier(secret)
//	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
//	    auth.UnaryInterceptor(verifier, logger),
//	))
//
// Handlers read the caller with FromContext.
//
// # Client Side
//
//	conn, err := grpc.NewClient(addr,
//	    grpc.WithPerRPCCredentials(auth.NewBearer(token, insecure)),
//	)
package auth
