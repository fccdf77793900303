package domain

// Role is an authorization tier.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleMember     Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// IsAdmin reports whether r grants administrative access.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// Grant maps a normalized email to a role within a tenant.
type Grant struct {
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	TenantID string `json:"tenantId"`
}

// BaselineGrant is what a session gets when nothing grants it more.
func BaselineGrant(email, tenantID string) Grant {
	return Grant{Email: email, Role: RoleMember, TenantID: tenantID}
}

// RoleQuery identifies the session whose role is being resolved.
type RoleQuery struct {
	TenantID string
	UserID   string
	Email    string
}
