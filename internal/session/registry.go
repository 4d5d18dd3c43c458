package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hatemosphere/admin-console/internal/auth"
	"github.com/hatemosphere/admin-console/internal/storage"
	"github.com/hatemosphere/admin-console/internal/tenant"
)

// Handle bundles everything a consumer needs for one browser session. It is
// passed explicitly to handlers; there is no ambient lookup.
type Handle struct {
	ID     string
	Auth   *Manager
	Tenant *tenant.Manager
	OAuth  *auth.Coordinator
}

// Access returns the role view of the current identity.
func (h *Handle) Access() auth.Access {
	return auth.AccessFor(h.Auth.State().User)
}

// Config holds the settings shared by every session.
type Config struct {
	OAuth  auth.OAuthConfig
	Codec  auth.CodecConfig
	Routes Routes
}

// Registry opens session handles over the three storage scopes: durable for
// the credential, session-scoped for the tenant context and transient for
// the CSRF nonce.
type Registry struct {
	config    Config
	codec     *auth.Codec
	durable   storage.Scoper
	sessions  storage.Scoper
	transient storage.Scoper
	exchanger auth.Exchanger
	now       func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry.
func NewRegistry(config Config, durable, sessions, transient storage.Scoper, exchanger auth.Exchanger, opts ...RegistryOption) *Registry {
	if config.Routes == (Routes{}) {
		config.Routes = DefaultRoutes()
	}
	r := &Registry{
		config:    config,
		codec:     auth.NewCodec(config.Codec),
		durable:   durable,
		sessions:  sessions,
		transient: transient,
		exchanger: exchanger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Routes returns the configured page paths.
func (r *Registry) Routes() Routes {
	return r.config.Routes
}

// Open builds the handle of session id and resolves its AuthState. The
// tenant context follows every AuthState transition.
func (r *Registry) Open(ctx context.Context, id string, nav Navigator) (*Handle, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}
	tokens := storage.NewTokenStore(r.durable.Scope(id))
	coord := auth.NewCoordinator(r.config.OAuth, r.transient.Scope(id), tokens, r.exchanger)
	mgr := NewManager(tokens, r.codec, coord, nav, r.config.Routes, r.now)
	tm := tenant.NewManager(r.sessions.Scope(id))

	mgr.Subscribe(func(ctx context.Context, s AuthState) {
		if s.IsLoading {
			return
		}
		if err := tm.Sync(ctx, s.User); err != nil {
			slog.Warn("tenant context sync failed", "error", err)
		}
	})

	h := &Handle{ID: id, Auth: mgr, Tenant: tm, OAuth: coord}
	if _, err := mgr.CheckAuth(ctx); err != nil {
		return h, err
	}
	return h, nil
}
