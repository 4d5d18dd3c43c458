package storage

import (
	"context"
	"time"
)

// Well-known keys inside a browser session's scopes.
const (
	// KeyAuthToken holds the bearer credential (durable scope).
	KeyAuthToken = "auth_token"
	// KeyTenantID, KeyTenantName and KeyTenantOwner hold the acting tenant (session scope).
	KeyTenantID    = "current_tenant_id"
	KeyTenantName  = "current_tenant_name"
	KeyTenantOwner = "current_tenant_owner" // subject that chose the stored tenant
	// KeyOAuthState holds the pending CSRF nonce (transient scope).
	KeyOAuthState = "oauth_state"
)

// KV is a string key/value slot set belonging to one browser session.
type KV interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Scoper hands out the KV scope of a single browser session.
type Scoper interface {
	Scope(sessionID string) KV
}

// Session describes a browser session row in the durable store.
type Session struct {
	ID         string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastSeenAt time.Time // last read or write of any slot
	Keys       int
}
