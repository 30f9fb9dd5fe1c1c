package auth

import "context"

type contextKey struct{}

var claimsKey = contextKey{}

// WithClaims returns a copy of ctx carrying the claims. A nil claims value marks
// the request as unauthenticated.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext returns the claims attached by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}
