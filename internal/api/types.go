package api

import (
	"github.com/hatemosphere/admin-console/internal/auth"
	"github.com/hatemosphere/admin-console/internal/session"
	"github.com/hatemosphere/admin-console/internal/tenant"
)

// --- Health ---

type HealthCheckOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// --- Session ---

// UserInfo is the identity of an authenticated console user.
type UserInfo struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	TenantID string `json:"tenantId,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// SessionBody is the AuthState as seen by UI consumers. The credential itself
// never leaves the server.
type SessionBody struct {
	IsAuthenticated bool      `json:"isAuthenticated"`
	IsLoading       bool      `json:"isLoading"`
	User            *UserInfo `json:"user,omitempty"`
}

type SessionOutput struct {
	Body SessionBody
}

func newSessionBody(state session.AuthState) SessionBody {
	body := SessionBody{
		IsAuthenticated: state.IsAuthenticated,
		IsLoading:       state.IsLoading,
	}
	if u := state.User; u != nil {
		body.User = &UserInfo{
			ID:       u.ID,
			Role:     u.Role.String(),
			TenantID: u.TenantID,
			Email:    u.Email,
			Name:     u.Name,
		}
	}
	return body
}

// --- Access ---

type AccessOutput struct {
	Body struct {
		Role          string             `json:"role"`
		Permissions   auth.PermissionSet `json:"permissions"`
		IsUberAdmin   bool               `json:"isUberAdmin"`
		IsTenantAdmin bool               `json:"isTenantAdmin"`
	}
}

// --- Tenant ---

// TenantBody is the tenant context as seen by UI consumers.
type TenantBody struct {
	CurrentTenantID   string `json:"currentTenantId,omitempty"`
	CurrentTenantName string `json:"currentTenantName,omitempty"`
	IsInTenantContext bool   `json:"isInTenantContext"`
}

type TenantOutput struct {
	Body TenantBody
}

func newTenantOutput(m *tenant.Manager) *TenantOutput {
	snap := m.Snapshot()
	return &TenantOutput{Body: TenantBody{
		CurrentTenantID:   snap.CurrentTenantID,
		CurrentTenantName: snap.CurrentTenantName,
		IsInTenantContext: m.IsInTenantContext(),
	}}
}

type SwitchTenantInput struct {
	Body struct {
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
	}
}
