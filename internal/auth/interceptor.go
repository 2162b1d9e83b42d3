// ABOUTME: gRPC interceptor that authenticates requests with bearer JWTs
// ABOUTME: Agent tokens reach the Controller service only; admin tokens reach everything

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// AdminServicePrefix marks methods that need the admin role.
const AdminServicePrefix = "/debuglet.v1.Debugger/"

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, ctx context.Context, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		baseAttrs = append(baseAttrs, "peer_addr", p.Addr.String())
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}

// UnaryInterceptor returns a gRPC unary interceptor that authenticates requests.
func UnaryInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		id, err := authenticate(ctx, tokens, logger)
		if err != nil {
			return nil, err
		}

		if strings.HasPrefix(info.FullMethod, AdminServicePrefix) && !id.IsAdmin() {
			logAuthFailure(logger, ctx, "insufficient_role", "subject", id.Subject, "method", info.FullMethod)
			return nil, status.Error(codes.PermissionDenied, "admin role required")
		}

		return handler(WithIdentity(ctx, id), req)
	}
}

// NoAuthUnaryInterceptor injects an anonymous admin identity when
// authentication is disabled.
func NoAuthUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		id := &Identity{Subject: "anonymous", Role: RoleAdmin}
		return handler(WithIdentity(ctx, id), req)
	}
}

func authenticate(ctx context.Context, tokens TokenVerifier, logger *slog.Logger) (*Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		logAuthFailure(logger, ctx, "missing_metadata")
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		logAuthFailure(logger, ctx, "missing_authorization")
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}

	authHeader := authHeaders[0]
	if !strings.HasPrefix(authHeader, "Bearer ") {
		logAuthFailure(logger, ctx, "bad_authorization_format")
		return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
	}

	id, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			logAuthFailure(logger, ctx, "expired_token")
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		logAuthFailure(logger, ctx, "invalid_token", "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return id, nil
}
