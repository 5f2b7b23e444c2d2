package domain

import "strings"

// Role enumerates the actor roles known to the order pipeline. Step
// authorization matches on these values, never on raw strings.
type Role string

const (
	RoleSales       Role = "sales"
	RoleFinance     Role = "finance"
	RoleProcurement Role = "procurement"
	RoleLogistics   Role = "logistics"
	RoleDeployment  Role = "deployment"
	RoleSupport     Role = "support"
	// RoleOrgAdmin may transition any step inside its own organization.
	RoleOrgAdmin Role = "org_admin"
)

var allRoles = []Role{
	RoleSales,
	RoleFinance,
	RoleProcurement,
	RoleLogistics,
	RoleDeployment,
	RoleSupport,
	RoleOrgAdmin,
}

func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole normalizes a raw role name to a declared Role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}
