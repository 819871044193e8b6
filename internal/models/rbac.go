package models

import "time"

// Permission names follow the resource:action convention.
const (
	PermCasesCreate         = "cases:create"
	PermCasesRead           = "cases:read"
	PermCasesUpdateStatus   = "cases:update_status"
	PermContributionsCreate = "contributions:create"
	PermContributionsRead   = "contributions:read"
	PermContributionsReview = "contributions:review"
	PermProjectsCreate      = "projects:create"
	PermProjectsAdvance     = "projects:advance"
	PermProjectsUpdate      = "projects:update"
	PermRolesManage         = "roles:manage"
	PermExportsRead         = "exports:read"
)

// Role groups a named set of permissions.
type Role struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Permission is a single resource:action grant.
type Permission struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
}

// UserRoleAssignment links a user to a role, optionally time-bounded.
type UserRoleAssignment struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	RoleID     string     `db:"role_id" json:"role_id"`
	Active     bool       `db:"active" json:"active"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	AssignedBy *string    `db:"assigned_by" json:"assigned_by,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// UserGrants is the resolved authorization view for one user: the active,
// unexpired role names and the union of their permissions.
type UserGrants struct {
	UserID      string    `json:"user_id"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// HasRole reports whether the grants include the named role.
func (g *UserGrants) HasRole(name string) bool {
	for _, r := range g.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasPermission reports whether the grants include the named permission.
func (g *UserGrants) HasPermission(name string) bool {
	for _, p := range g.Permissions {
		if p == name {
			return true
		}
	}
	return false
}
