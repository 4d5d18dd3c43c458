// Package session owns the authentication state of one browser session.
//
// The state is always derived from the stored credential: every CheckAuth
// reads the credential slot and decodes it again, discarding credentials that
// are expired or unreadable. Observers are notified with whole AuthState
// values so no one sees a half-applied transition.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hatemosphere/admin-console/internal/audit"
	"github.com/hatemosphere/admin-console/internal/auth"
	"github.com/hatemosphere/admin-console/internal/storage"
)

// AuthState is the authentication view of a session. While IsLoading is true
// the other fields are meaningless; once resolved, IsAuthenticated is true
// exactly when both User and Token are set.
type AuthState struct {
	User            *auth.Identity `json:"user,omitempty"`
	Token           string         `json:"-"`
	IsAuthenticated bool           `json:"isAuthenticated"`
	IsLoading       bool           `json:"isLoading"`
}

var unauthenticated = AuthState{}

// Navigator performs a navigation on behalf of the session.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

func (f NavigatorFunc) Navigate(target string) { f(target) }

// Routes are the console paths the session manager navigates between.
type Routes struct {
	Login    string
	Callback string
	Home     string
}

// DefaultRoutes returns the console's standard page paths.
func DefaultRoutes() Routes {
	return Routes{Login: "/login", Callback: "/callback", Home: "/"}
}

// Listener receives every AuthState transition.
type Listener func(ctx context.Context, state AuthState)

// Manager drives check-auth, login, logout and callback completion for one
// browser session and enforces the route guard.
type Manager struct {
	tokens *storage.TokenStore
	codec  *auth.Codec
	oauth  *auth.Coordinator
	nav    Navigator
	routes Routes
	now    func() time.Time

	mu        sync.Mutex
	state     AuthState
	route     string
	listeners map[int]Listener
	nextID    int
}

// NewManager creates a manager in the loading state. A nil now uses time.Now.
func NewManager(tokens *storage.TokenStore, codec *auth.Codec, oauth *auth.Coordinator, nav Navigator, routes Routes, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &Manager{
		tokens:    tokens,
		codec:     codec,
		oauth:     oauth,
		nav:       nav,
		routes:    routes,
		now:       now,
		state:     AuthState{IsLoading: true},
		listeners: make(map[int]Listener),
	}
}

// State returns the current AuthState.
func (m *Manager) State() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a listener for AuthState transitions and returns a
// function that removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// CheckAuth resolves the AuthState from the stored credential. Expired or
// undecodable credentials are removed. It may be called any number of times.
//
// CheckAuth and Logout do not exclude each other: a CheckAuth that read the
// credential before a concurrent Logout removed it can publish its
// authenticated state after Logout's. The last transition wins.
func (m *Manager) CheckAuth(ctx context.Context) (AuthState, error) {
	token, ok, err := m.tokens.Get(ctx)
	if err != nil {
		m.apply(ctx, unauthenticated)
		return unauthenticated, err
	}
	if !ok {
		m.apply(ctx, unauthenticated)
		return unauthenticated, nil
	}

	if m.codec.IsExpired(token, m.now()) {
		slog.Debug("discarding expired credential", "fingerprint", auth.TokenFingerprint(token))
		m.discard(ctx, token)
		return unauthenticated, nil
	}
	claims, ok := m.codec.Decode(token)
	if !ok {
		slog.Debug("discarding undecodable credential", "fingerprint", auth.TokenFingerprint(token))
		m.discard(ctx, token)
		return unauthenticated, nil
	}

	state := AuthState{
		User:            auth.IdentityFromClaims(claims),
		Token:           token,
		IsAuthenticated: true,
	}
	m.apply(ctx, state)
	return state, nil
}

// RefreshToken re-runs CheckAuth. There is no refresh grant behind it.
func (m *Manager) RefreshToken(ctx context.Context) (AuthState, error) {
	return m.CheckAuth(ctx)
}

// Login navigates to the provider's authorize URL.
func (m *Manager) Login(ctx context.Context) error {
	target, err := m.oauth.AuthorizationURL(ctx)
	if err != nil {
		return err
	}
	m.nav.Navigate(target)
	return nil
}

// Logout removes the credential, resets the state and navigates to login.
func (m *Manager) Logout(ctx context.Context) error {
	prev := m.State()
	err := m.tokens.Remove(ctx)
	m.apply(ctx, unauthenticated)

	e := audit.Event{Actor: "anonymous", Action: "logout", Status: "granted"}
	if prev.User != nil {
		e.Actor = prev.User.ID
		e.Role = prev.User.Role.String()
		e.Tenant = prev.User.TenantID
	}
	e.Info("Audit Log: Logout")

	m.nav.Navigate(m.routes.Login)
	return err
}

// CompleteLogin resolves a provider callback. On success the AuthState is
// recomputed from the new credential and the session navigates home; on
// failure the attempt's error is returned for display and nothing navigates.
func (m *Manager) CompleteLogin(ctx context.Context, p auth.CallbackParams) (*auth.Callback, error) {
	cb := m.oauth.NewCallback(p)
	if err := cb.Resolve(ctx); err != nil {
		return cb, err
	}
	if _, err := m.CheckAuth(ctx); err != nil {
		return cb, err
	}
	m.nav.Navigate(m.routes.Home)
	return cb, nil
}

// SetRoute records the route the session is on and evaluates the guard.
func (m *Manager) SetRoute(route string) {
	m.mu.Lock()
	m.route = route
	state := m.state
	m.mu.Unlock()
	m.guard(state, route)
}

// Route returns the last recorded route.
func (m *Manager) Route() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.route
}

func (m *Manager) discard(ctx context.Context, token string) {
	if err := m.tokens.Remove(ctx); err != nil {
		slog.Warn("failed to remove credential", "fingerprint", auth.TokenFingerprint(token), "error", err)
	}
	m.apply(ctx, unauthenticated)
}

// apply publishes a transition. Listeners run outside the lock with the
// complete new state.
func (m *Manager) apply(ctx context.Context, state AuthState) {
	m.mu.Lock()
	m.state = state
	route := m.route
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(ctx, state)
	}
	m.guard(state, route)
}

// guard sends an unauthenticated session to the login page. It never fires
// while loading or on the login and callback pages. An empty route means
// the caller is not on a page.
func (m *Manager) guard(state AuthState, route string) {
	if state.IsLoading || state.IsAuthenticated || route == "" {
		return
	}
	if route == m.routes.Login || route == m.routes.Callback {
		return
	}
	m.nav.Navigate(m.routes.Login)
}
