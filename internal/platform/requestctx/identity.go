package requestctx

import "context"

// Identity carries the authenticated caller facts the engine consumes.
// The values are supplied by the external auth collaborator and trusted
// as given.
type Identity struct {
	UserID     string
	Role       string
	TrustLevel int
}

// identityContextKey is the context key for authenticated caller identity.
type identityContextKey struct{}

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the caller identity stored in context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}
	return identity, true
}
