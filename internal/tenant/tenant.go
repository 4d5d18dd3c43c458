// Package tenant tracks which tenant a console user is acting on.
//
// An uber admin may enter and leave any tenant; the choice is kept in the
// browser session's session-scoped slots. A tenant admin is pinned to the
// tenant bound in its credential and can never move through this package.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hatemosphere/admin-console/internal/audit"
	"github.com/hatemosphere/admin-console/internal/auth"
	"github.com/hatemosphere/admin-console/internal/storage"
)

var (
	// ErrDenied is returned when a non-uber-admin tries to change the tenant context.
	ErrDenied = errors.New("tenant context can only be changed by an uber admin")
	// ErrTenantRequired is returned by SwitchTenant when no tenant id is given.
	ErrTenantRequired = errors.New("tenant id is required")
)

// Snapshot is the read-only tenant view handed to UI consumers.
type Snapshot struct {
	CurrentTenantID   string `json:"currentTenantId,omitempty"`
	CurrentTenantName string `json:"currentTenantName,omitempty"`
}

// Manager holds the acting tenant of one browser session.
type Manager struct {
	store storage.KV

	mu      sync.RWMutex
	actor   *auth.Identity
	current Snapshot
}

// NewManager creates a manager over the session-scoped KV.
func NewManager(store storage.KV) *Manager {
	return &Manager{store: store}
}

// Sync initialises the tenant context for a freshly resolved identity. A
// tenant admin is pinned to its own tenant, an uber admin is hydrated from
// session storage, and a nil identity (logged out) clears everything.
func (m *Manager) Sync(ctx context.Context, id *auth.Identity) error {
	switch {
	case id == nil:
		m.set(nil, Snapshot{})
		return m.clearStored(ctx)
	case id.Role == auth.RoleTenantAdmin:
		m.set(id, Snapshot{CurrentTenantID: id.TenantID})
		return nil
	case id.Role == auth.RoleUberAdmin:
		snap, err := m.load(ctx, id.ID)
		m.set(id, snap)
		return err
	default:
		m.set(id, Snapshot{})
		return nil
	}
}

// SwitchTenant makes an uber admin act on behalf of tenant id. Any other
// actor gets ErrDenied and the state is left as it was.
func (m *Manager) SwitchTenant(ctx context.Context, id, name string) error {
	actor := m.Actor()
	if !isUberAdmin(actor) {
		denied(actor, "switch_tenant", id)
		return ErrDenied
	}
	if id == "" {
		return ErrTenantRequired
	}

	if err := m.store.Set(ctx, storage.KeyTenantID, id); err != nil {
		return fmt.Errorf("persist tenant id: %w", err)
	}
	if err := m.store.Set(ctx, storage.KeyTenantName, name); err != nil {
		return fmt.Errorf("persist tenant name: %w", err)
	}
	if err := m.store.Set(ctx, storage.KeyTenantOwner, actor.ID); err != nil {
		return fmt.Errorf("persist tenant owner: %w", err)
	}
	m.set(actor, Snapshot{CurrentTenantID: id, CurrentTenantName: name})

	audit.Event{
		Actor:  actor.ID,
		Role:   actor.Role.String(),
		Action: "switch_tenant",
		Status: "granted",
		Tenant: id,
	}.Info("Audit Log: Tenant Context Switched")
	return nil
}

// ExitTenantContext returns an uber admin to the platform view.
func (m *Manager) ExitTenantContext(ctx context.Context) error {
	actor := m.Actor()
	if !isUberAdmin(actor) {
		denied(actor, "exit_tenant", "")
		return ErrDenied
	}
	if err := m.clearStored(ctx); err != nil {
		return err
	}
	prev := m.Snapshot()
	m.set(actor, Snapshot{})

	audit.Event{
		Actor:  actor.ID,
		Role:   actor.Role.String(),
		Action: "exit_tenant",
		Status: "granted",
		Tenant: prev.CurrentTenantID,
	}.Info("Audit Log: Tenant Context Exited")
	return nil
}

// IsInTenantContext reports whether an uber admin is acting on a tenant.
func (m *Manager) IsInTenantContext() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isUberAdmin(m.actor) && m.current.CurrentTenantID != ""
}

// Snapshot returns the current tenant context.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Actor returns the identity the context was last synced with.
func (m *Manager) Actor() *auth.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.actor
}

func (m *Manager) set(actor *auth.Identity, snap Snapshot) {
	m.mu.Lock()
	m.actor = actor
	m.current = snap
	m.mu.Unlock()
}

// load reads the stored tenant context of subject. A context chosen by a
// different subject is cleared instead of inherited.
func (m *Manager) load(ctx context.Context, subject string) (Snapshot, error) {
	id, ok, err := m.store.Get(ctx, storage.KeyTenantID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load tenant id: %w", err)
	}
	if !ok || id == "" {
		return Snapshot{}, nil
	}
	owner, _, err := m.store.Get(ctx, storage.KeyTenantOwner)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load tenant owner: %w", err)
	}
	if owner != subject {
		slog.Info("dropping tenant context stored by another user", "tenant", id)
		return Snapshot{}, m.clearStored(ctx)
	}
	name, _, err := m.store.Get(ctx, storage.KeyTenantName)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load tenant name: %w", err)
	}
	return Snapshot{CurrentTenantID: id, CurrentTenantName: name}, nil
}

func (m *Manager) clearStored(ctx context.Context) error {
	if err := m.store.Delete(ctx, storage.KeyTenantID); err != nil {
		return fmt.Errorf("clear tenant id: %w", err)
	}
	if err := m.store.Delete(ctx, storage.KeyTenantName); err != nil {
		return fmt.Errorf("clear tenant name: %w", err)
	}
	if err := m.store.Delete(ctx, storage.KeyTenantOwner); err != nil {
		return fmt.Errorf("clear tenant owner: %w", err)
	}
	return nil
}

func isUberAdmin(id *auth.Identity) bool {
	return id != nil && id.Role == auth.RoleUberAdmin
}

func denied(actor *auth.Identity, action, tenantID string) {
	e := audit.Event{
		Actor:  "anonymous",
		Action: action,
		Status: "denied",
		Tenant: tenantID,
		Reason: "not_uber_admin",
	}
	if actor != nil {
		e.Actor = actor.ID
		e.Role = actor.Role.String()
	}
	e.Warn("Audit Log: Tenant Context Denied")
}
