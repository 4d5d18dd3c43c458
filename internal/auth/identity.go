package auth

import "context"

// Identity is the authenticated console user. It is derived only from the
// decoded claims of the stored credential and never trusted on its own.
type Identity struct {
	ID       string
	Role     Role
	TenantID string // empty for uber admins
	Email    string
	Name     string
}

// IdentityFromClaims builds an Identity from decoded claims.
func IdentityFromClaims(c *Claims) *Identity {
	if c == nil {
		return nil
	}
	return &Identity{
		ID:       c.Subject,
		Role:     c.Role,
		TenantID: c.TenantID,
		Email:    c.Email,
		Name:     c.Name,
	}
}

type contextKey struct{}

// WithIdentity stores an Identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns nil if no identity is set.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
