package api

import (
	"context"

	"github.com/hyperengineering/roadsync/internal/auth"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// WithClaims returns a context carrying the authenticated caller's claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext extracts the caller's claims from the context.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// UserIDFromContext returns the authenticated caller's user id, or 0
// when the request was not authenticated.
func UserIDFromContext(ctx context.Context) int64 {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return 0
	}
	return claims.UserID
}
