package auth

// Role is the console role carried by a credential. The set is closed:
// anything that does not parse is RoleNone and is granted nothing.
type Role int

const (
	RoleNone        Role = iota
	RoleUberAdmin        // platform-wide administrator, may act on behalf of any tenant
	RoleTenantAdmin      // administrator of exactly one tenant
)

func (r Role) String() string {
	switch r {
	case RoleUberAdmin:
		return "uber_admin"
	case RoleTenantAdmin:
		return "tenant_admin"
	default:
		return "none"
	}
}

// ParseRole converts a role claim to a Role. ok is false for unknown values.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "uber_admin":
		return RoleUberAdmin, true
	case "tenant_admin":
		return RoleTenantAdmin, true
	default:
		return RoleNone, false
	}
}
