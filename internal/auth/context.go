// ABOUTME: Authenticated identity propagation through request contexts
// ABOUTME: Provides WithUser/UserFromContext for handlers

package auth

import "context"

// Identity is the authenticated caller extracted from a request.
type Identity struct {
	UserID string
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithUser returns a new context with the identity attached.
func WithUser(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// UserFromContext retrieves the identity, returning nil if not present.
func UserFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
