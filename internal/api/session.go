package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/hatemosphere/admin-console/internal/auth"
	"github.com/hatemosphere/admin-console/internal/session"
	"github.com/hatemosphere/admin-console/internal/tenant"
)

func (s *Server) registerSession(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *struct{}) (*SessionOutput, error) {
		h := handleFromContext(ctx)
		if h == nil {
			return &SessionOutput{Body: newSessionBody(session.AuthState{})}, nil
		}
		return &SessionOutput{Body: newSessionBody(h.Auth.State())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refreshSession",
		Method:      http.MethodPost,
		Path:        "/api/session/refresh",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *struct{}) (*SessionOutput, error) {
		h := handleFromContext(ctx)
		if h == nil {
			return &SessionOutput{Body: newSessionBody(session.AuthState{})}, nil
		}
		state, err := h.Auth.RefreshToken(ctx)
		if err != nil {
			slog.Error("refresh session failed", "error", err)
			return nil, huma.NewError(http.StatusInternalServerError, "session storage unavailable")
		}
		return &SessionOutput{Body: newSessionBody(state)}, nil
	})
}

func (s *Server) registerAccess(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getAccess",
		Method:      http.MethodGet,
		Path:        "/api/access",
		Tags:        []string{"Access"},
	}, func(ctx context.Context, input *struct{}) (*AccessOutput, error) {
		access := handleFromContext(ctx).Access()
		out := &AccessOutput{}
		out.Body.Role = access.Role.String()
		out.Body.Permissions = access.Permissions
		out.Body.IsUberAdmin = access.IsUberAdmin
		out.Body.IsTenantAdmin = access.IsTenantAdmin
		return out, nil
	})
}

func (s *Server) registerTenant(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getTenantContext",
		Method:      http.MethodGet,
		Path:        "/api/tenant",
		Tags:        []string{"Tenant"},
	}, func(ctx context.Context, input *struct{}) (*TenantOutput, error) {
		return newTenantOutput(handleFromContext(ctx).Tenant), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "switchTenant",
		Method:      http.MethodPut,
		Path:        "/api/tenant",
		Tags:        []string{"Tenant"},
		Metadata:    map[string]any{capabilityKey: auth.CapSwitchTenantContext},
	}, func(ctx context.Context, input *SwitchTenantInput) (*TenantOutput, error) {
		tm := handleFromContext(ctx).Tenant
		err := tm.SwitchTenant(ctx, input.Body.ID, input.Body.Name)
		tenantSwitchesTotal.WithLabelValues("switch", tenantResult(err)).Inc()
		if err != nil {
			return nil, tenantError(err)
		}
		return newTenantOutput(tm), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "exitTenantContext",
		Method:      http.MethodDelete,
		Path:        "/api/tenant",
		Tags:        []string{"Tenant"},
		Metadata:    map[string]any{capabilityKey: auth.CapSwitchTenantContext},
	}, func(ctx context.Context, input *struct{}) (*TenantOutput, error) {
		tm := handleFromContext(ctx).Tenant
		err := tm.ExitTenantContext(ctx)
		tenantSwitchesTotal.WithLabelValues("exit", tenantResult(err)).Inc()
		if err != nil {
			return nil, tenantError(err)
		}
		return newTenantOutput(tm), nil
	})
}

func tenantResult(err error) string {
	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, tenant.ErrDenied):
		return "denied"
	default:
		return "error"
	}
}

func tenantError(err error) error {
	switch {
	case errors.Is(err, tenant.ErrDenied):
		return huma.NewError(http.StatusForbidden, err.Error(), reasonTenantDenied)
	case errors.Is(err, tenant.ErrTenantRequired):
		return huma.NewError(http.StatusBadRequest, err.Error(), reasonTenantRequired)
	default:
		slog.Error("tenant context update failed", "error", err)
		return huma.NewError(http.StatusInternalServerError, "failed to update tenant context")
	}
}
