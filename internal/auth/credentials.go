// ABOUTME: Client-side per-RPC credentials that attach a bearer token.

package auth

import (
	"context"
)

// Bearer implements credentials.PerRPCCredentials.
type Bearer struct {
	token    string
	insecure bool
}

// NewBearer returns credentials sending token on every call. Set insecure
// to allow sending over a plaintext connection.
func NewBearer(token string, insecure bool) *Bearer {
	return &Bearer{token: token, insecure: insecure}
}

// GetRequestMetadata returns the authorization header.
func (b *Bearer) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

// RequireTransportSecurity reports whether TLS is required.
func (b *Bearer) RequireTransportSecurity() bool {
	return !b.insecure
}
