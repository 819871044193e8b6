package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openfund-labs/fundflow-api/internal/models"
)

// RBACRepository persists roles, permissions, and user role assignments.
type RBACRepository struct {
	db *sqlx.DB
}

// NewRBACRepository constructs the repository.
func NewRBACRepository(db *sqlx.DB) *RBACRepository {
	return &RBACRepository{db: db}
}

// ListRoles returns all roles ordered by name.
func (r *RBACRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles,
		`SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// ListPermissions returns all permissions ordered by name.
func (r *RBACRepository) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	var permissions []models.Permission
	if err := r.db.SelectContext(ctx, &permissions,
		`SELECT id, name, description FROM permissions ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return permissions, nil
}

// GetRolesByIDs resolves role rows for the given identifiers.
func (r *RBACRepository) GetRolesByIDs(ctx context.Context, ids []string) ([]models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, name, description, created_at, updated_at FROM roles WHERE id IN (%s)`,
		strings.Join(placeholders, ","))
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query, args...); err != nil {
		return nil, fmt.Errorf("get roles by ids: %w", err)
	}
	return roles, nil
}

// CreateRole inserts a role and links its permissions in one transaction.
func (r *RBACRepository) CreateRole(ctx context.Context, role *models.Role, permissionIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create role: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	role.CreatedAt = now
	role.UpdatedAt = now
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO roles (id, name, description, created_at, updated_at)
		 VALUES (:id, :name, :description, :created_at, :updated_at)`, role); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
			role.ID, permID); err != nil {
			return fmt.Errorf("link role permission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create role: %w", err)
	}
	return nil
}

// ActiveRoleIDs returns the role ids currently assigned to the user (active
// and unexpired).
func (r *RBACRepository) ActiveRoleIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT role_id FROM user_role_assignments
	WHERE user_id = $1 AND active = TRUE AND (expires_at IS NULL OR expires_at > $2)`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("active role ids: %w", err)
	}
	return ids, nil
}

// GetUserGrants resolves the user's effective roles and permissions.
func (r *RBACRepository) GetUserGrants(ctx context.Context, userID string) (*models.UserGrants, error) {
	now := time.Now().UTC()

	const rolesQuery = `SELECT r.name FROM roles r
	JOIN user_role_assignments a ON a.role_id = r.id
	WHERE a.user_id = $1 AND a.active = TRUE AND (a.expires_at IS NULL OR a.expires_at > $2)
	ORDER BY r.name`
	var roles []string
	if err := r.db.SelectContext(ctx, &roles, rolesQuery, userID, now); err != nil {
		return nil, fmt.Errorf("resolve user roles: %w", err)
	}

	const permissionsQuery = `SELECT DISTINCT p.name FROM permissions p
	JOIN role_permissions rp ON rp.permission_id = p.id
	JOIN user_role_assignments a ON a.role_id = rp.role_id
	WHERE a.user_id = $1 AND a.active = TRUE AND (a.expires_at IS NULL OR a.expires_at > $2)
	ORDER BY p.name`
	var permissions []string
	if err := r.db.SelectContext(ctx, &permissions, permissionsQuery, userID, now); err != nil {
		return nil, fmt.Errorf("resolve user permissions: %w", err)
	}

	return &models.UserGrants{
		UserID:      userID,
		Roles:       roles,
		Permissions: permissions,
		ResolvedAt:  now,
	}, nil
}

// GrantRole assigns a role to a user and writes the audit record in the same
// transaction. Re-granting reactivates an inactive assignment.
func (r *RBACRepository) GrantRole(ctx context.Context, userID, roleID, actorID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grant role: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	assignment := models.UserRoleAssignment{
		ID:         uuid.NewString(),
		UserID:     userID,
		RoleID:     roleID,
		Active:     true,
		AssignedBy: &actorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	const query = `INSERT INTO user_role_assignments (id, user_id, role_id, active, expires_at, assigned_by, created_at, updated_at)
	VALUES (:id, :user_id, :role_id, :active, :expires_at, :assigned_by, :created_at, :updated_at)
	ON CONFLICT (user_id, role_id)
	DO UPDATE SET active = TRUE, assigned_by = EXCLUDED.assigned_by, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{"role_id": roleID})
	if err := insertAuditTx(ctx, tx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRoleGrant,
		Resource:   "user_role_assignments",
		ResourceID: &userID,
		NewValues:  payload,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grant role: %w", err)
	}
	return nil
}

// RevokeRole deactivates a user's role assignment and writes the audit
// record in the same transaction.
func (r *RBACRepository) RevokeRole(ctx context.Context, userID, roleID, actorID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revoke role: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_role_assignments SET active = FALSE, updated_at = $1 WHERE user_id = $2 AND role_id = $3`,
		time.Now().UTC(), userID, roleID); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{"role_id": roleID})
	if err := insertAuditTx(ctx, tx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRoleRevoke,
		Resource:   "user_role_assignments",
		ResourceID: &userID,
		OldValues:  payload,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revoke role: %w", err)
	}
	return nil
}
