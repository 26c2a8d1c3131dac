package auth

import "strings"

type Role string

const (
	RoleEmployee       Role = "employee"
	RoleSupervisor     Role = "supervisor"
	RoleHR             Role = "hr"
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
)

var Roles = []Role{RoleEmployee, RoleSupervisor, RoleHR, RoleAdmin, RoleProjectManager}

// ParseRole accepts the canonical names plus the "manager" alias used by older tokens.
func ParseRole(value string) (Role, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "manager" {
		return RoleSupervisor, true
	}
	for _, role := range Roles {
		if string(role) == normalized {
			return role, true
		}
	}
	return "", false
}

func (r Role) String() string {
	return string(r)
}

// UserContext is the authenticated actor. UserID is the org directory employee id.
type UserContext struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}
