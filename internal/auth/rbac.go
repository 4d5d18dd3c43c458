package auth

// PermissionSet is the fixed capability record granted to a role.
type PermissionSet struct {
	ViewPlatformDashboard bool `json:"canViewPlatformDashboard"`
	ManageTenants         bool `json:"canManageTenants"`
	ViewTenantDashboard   bool `json:"canViewTenantDashboard"`
	ManageDocuments       bool `json:"canManageDocuments"`
	ManageConfiguration   bool `json:"canManageConfiguration"`
	ViewAnalytics         bool `json:"canViewAnalytics"`
	ManageUsers           bool `json:"canManageUsers"`
	SwitchTenantContext   bool `json:"canSwitchTenantContext"`
}

// Capability names a single field of PermissionSet.
type Capability int

const (
	CapViewPlatformDashboard Capability = iota
	CapManageTenants
	CapViewTenantDashboard
	CapManageDocuments
	CapManageConfiguration
	CapViewAnalytics
	CapManageUsers
	CapSwitchTenantContext
)

func (c Capability) String() string {
	switch c {
	case CapViewPlatformDashboard:
		return "view_platform_dashboard"
	case CapManageTenants:
		return "manage_tenants"
	case CapViewTenantDashboard:
		return "view_tenant_dashboard"
	case CapManageDocuments:
		return "manage_documents"
	case CapManageConfiguration:
		return "manage_configuration"
	case CapViewAnalytics:
		return "view_analytics"
	case CapManageUsers:
		return "manage_users"
	case CapSwitchTenantContext:
		return "switch_tenant_context"
	default:
		return "unknown"
	}
}

// Has reports whether the capability is granted. Unknown capabilities are
// never granted.
func (p PermissionSet) Has(c Capability) bool {
	switch c {
	case CapViewPlatformDashboard:
		return p.ViewPlatformDashboard
	case CapManageTenants:
		return p.ManageTenants
	case CapViewTenantDashboard:
		return p.ViewTenantDashboard
	case CapManageDocuments:
		return p.ManageDocuments
	case CapManageConfiguration:
		return p.ManageConfiguration
	case CapViewAnalytics:
		return p.ViewAnalytics
	case CapManageUsers:
		return p.ManageUsers
	case CapSwitchTenantContext:
		return p.SwitchTenantContext
	default:
		return false
	}
}

// PermissionsFor returns the capability grants of a role. RoleNone, and any
// value outside the enum, yields the zero PermissionSet.
func PermissionsFor(r Role) PermissionSet {
	switch r {
	case RoleUberAdmin:
		return PermissionSet{
			ViewPlatformDashboard: true,
			ManageTenants:         true,
			SwitchTenantContext:   true,
		}
	case RoleTenantAdmin:
		return PermissionSet{
			ViewTenantDashboard: true,
			ManageDocuments:     true,
			ManageConfiguration: true,
			ViewAnalytics:       true,
			ManageUsers:         true,
		}
	default:
		return PermissionSet{}
	}
}

// Access is the read-only role view handed to UI consumers.
type Access struct {
	Role          Role          `json:"-"`
	Permissions   PermissionSet `json:"permissions"`
	IsUberAdmin   bool          `json:"isUberAdmin"`
	IsTenantAdmin bool          `json:"isTenantAdmin"`
}

// AccessFor derives the access view of an identity. A nil identity has no role.
func AccessFor(id *Identity) Access {
	role := RoleNone
	if id != nil {
		role = id.Role
	}
	return Access{
		Role:          role,
		Permissions:   PermissionsFor(role),
		IsUberAdmin:   role == RoleUberAdmin,
		IsTenantAdmin: role == RoleTenantAdmin,
	}
}
