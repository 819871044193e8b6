package dto

// CreateRoleRequest defines a new role with its permission set.
type CreateRoleRequest struct {
	Name          string   `json:"name" validate:"required,min=3"`
	Description   *string  `json:"description,omitempty"`
	PermissionIDs []string `json:"permission_ids"`
}

// AssignRolesRequest replaces a user's role set with the requested one.
// The evaluator computes and applies the delta.
type AssignRolesRequest struct {
	RoleIDs []string `json:"role_ids" validate:"required"`
}

// RoleAssignmentResult reports which deltas were applied. A non-empty Failed
// list marks a partial success, not a silent failure.
type RoleAssignmentResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Failed  []string `json:"failed,omitempty"`
}
