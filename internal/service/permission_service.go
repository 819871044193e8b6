package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
)

type rbacStore interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	GetRolesByIDs(ctx context.Context, ids []string) ([]models.Role, error)
	CreateRole(ctx context.Context, role *models.Role, permissionIDs []string) error
	ActiveRoleIDs(ctx context.Context, userID string) ([]string, error)
	GetUserGrants(ctx context.Context, userID string) (*models.UserGrants, error)
	GrantRole(ctx context.Context, userID, roleID, actorID string) error
	RevokeRole(ctx context.Context, userID, roleID, actorID string) error
}

type grantsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Invalidate(ctx context.Context, pattern string) error
}

const (
	grantsCacheKeyFormat = "rbac:user:%s"
	grantsCachePattern   = "rbac:user:*"
)

// PermissionService resolves effective grants and manages roles and
// assignments. Grant lookups are cached per user with a short TTL; every
// assignment mutation invalidates the target's entry synchronously so a
// revocation is never served from a stale cache longer than the TTL.
type PermissionService struct {
	repo         rbacStore
	cache        grantsCache
	cacheEnabled bool
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewPermissionService constructs the service. A nil cache disables caching.
func NewPermissionService(repo rbacStore, cache grantsCache, cacheEnabled bool, cacheTTL time.Duration, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &PermissionService{
		repo:         repo,
		cache:        cache,
		cacheEnabled: cacheEnabled && cache != nil,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// Grants returns the user's effective roles and permissions, from cache when
// fresh.
func (s *PermissionService) Grants(ctx context.Context, userID string) (*models.UserGrants, error) {
	key := fmt.Sprintf(grantsCacheKeyFormat, userID)
	if s.cacheEnabled {
		var cached models.UserGrants
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("grants cache read failed", zap.String("user_id", userID), zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	grants, err := s.repo.GetUserGrants(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve grants")
	}
	if s.cacheEnabled {
		if err := s.cache.Set(ctx, key, grants, s.cacheTTL); err != nil {
			s.logger.Warn("grants cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return grants, nil
}

// HasPermission reports whether the user holds the named permission.
func (s *PermissionService) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	grants, err := s.Grants(ctx, userID)
	if err != nil {
		return false, err
	}
	return grants.HasPermission(permission), nil
}

// HasRole reports whether the user holds the named role.
func (s *PermissionService) HasRole(ctx context.Context, userID, role string) (bool, error) {
	grants, err := s.Grants(ctx, userID)
	if err != nil {
		return false, err
	}
	return grants.HasRole(role), nil
}

// Refresh drops the user's cached grants so the next lookup hits storage.
func (s *PermissionService) Refresh(ctx context.Context, userID string) {
	if !s.cacheEnabled {
		return
	}
	key := fmt.Sprintf(grantsCacheKeyFormat, userID)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("grants cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// RefreshAll drops every cached grants entry, forcing recomputation for all
// users on their next lookup.
func (s *PermissionService) RefreshAll(ctx context.Context) {
	if !s.cacheEnabled {
		return
	}
	if err := s.cache.Invalidate(ctx, grantsCachePattern); err != nil {
		s.logger.Warn("grants cache flush failed", zap.Error(err))
	}
}

// ListRoles returns all roles.
func (s *PermissionService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roles")
	}
	return roles, nil
}

// ListPermissions returns all permissions.
func (s *PermissionService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	permissions, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list permissions")
	}
	return permissions, nil
}

// CreateRole defines a new role with its permission set. Requires the
// roles:manage permission.
func (s *PermissionService) CreateRole(ctx context.Context, req dto.CreateRoleRequest, actorID string) (*models.Role, error) {
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}
	role := &models.Role{Name: req.Name, Description: req.Description}
	if err := s.repo.CreateRole(ctx, role, req.PermissionIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create role")
	}
	return role, nil
}

// AssignRoles reconciles the target user's role set with the requested one.
// The escalation guard runs before any write: actors without the SUPER_ADMIN
// role can neither grant nor revoke SUPER_ADMIN, nor modify their own
// assignments. Each delta is applied independently; a failure lands in the
// Failed list and the rest still apply, so the caller sees a partial success
// instead of a silent failure.
func (s *PermissionService) AssignRoles(ctx context.Context, targetUserID string, req dto.AssignRolesRequest, actorID string) (*dto.RoleAssignmentResult, error) {
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}
	actorGrants, err := s.Grants(ctx, actorID)
	if err != nil {
		return nil, err
	}
	isSuper := actorGrants.HasRole(string(models.RoleSuperAdmin))
	if !isSuper && targetUserID == actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot modify your own role assignments")
	}

	current, err := s.repo.ActiveRoleIDs(ctx, targetUserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current assignments")
	}
	toAdd, toRemove := roleDelta(current, req.RoleIDs)

	// Resolve every touched role up front so the escalation guard covers the
	// whole delta before the first write.
	touched := append(append([]string{}, toAdd...), toRemove...)
	roles, err := s.repo.GetRolesByIDs(ctx, touched)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve roles")
	}
	namesByID := make(map[string]string, len(roles))
	for _, role := range roles {
		namesByID[role.ID] = role.Name
	}
	for _, id := range touched {
		name, ok := namesByID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown role: %s", id))
		}
		if name == string(models.RoleSuperAdmin) && !isSuper {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only super admins may manage the SUPER_ADMIN role")
		}
	}

	result := &dto.RoleAssignmentResult{Added: []string{}, Removed: []string{}}
	for _, roleID := range toAdd {
		if err := s.repo.GrantRole(ctx, targetUserID, roleID, actorID); err != nil {
			s.logger.Warn("role grant failed",
				zap.String("user_id", targetUserID), zap.String("role_id", roleID), zap.Error(err))
			result.Failed = append(result.Failed, roleID)
			continue
		}
		result.Added = append(result.Added, roleID)
	}
	for _, roleID := range toRemove {
		if err := s.repo.RevokeRole(ctx, targetUserID, roleID, actorID); err != nil {
			s.logger.Warn("role revoke failed",
				zap.String("user_id", targetUserID), zap.String("role_id", roleID), zap.Error(err))
			result.Failed = append(result.Failed, roleID)
			continue
		}
		result.Removed = append(result.Removed, roleID)
	}

	s.Refresh(ctx, targetUserID)
	return result, nil
}

func (s *PermissionService) requireManage(ctx context.Context, actorID string) error {
	allowed, err := s.HasPermission(ctx, actorID, models.PermRolesManage)
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.ErrForbidden
	}
	return nil
}

// roleDelta splits the requested role set into grants and revocations
// relative to the current one.
func roleDelta(current, requested []string) (toAdd, toRemove []string) {
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
	}
	want := make(map[string]bool, len(requested))
	for _, id := range requested {
		want[id] = true
		if !have[id] {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range current {
		if !want[id] {
			toRemove = append(toRemove, id)
		}
	}
	return toAdd, toRemove
}
