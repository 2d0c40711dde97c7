package authz

import "context"

// Identity describes the authenticated actor attached to a request after the
// bearer token has been verified and its session confirmed live.
type Identity struct {
	UserID       int64
	SystemUser   bool
	Level        Level
	SessionID    string
	// Permissions is the effective-permission snapshot cached on the session.
	Permissions []string
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
