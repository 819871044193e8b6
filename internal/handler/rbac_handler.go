package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
	"github.com/openfund-labs/fundflow-api/pkg/response"
)

type rbacService interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	CreateRole(ctx context.Context, req dto.CreateRoleRequest, actorID string) (*models.Role, error)
	AssignRoles(ctx context.Context, targetUserID string, req dto.AssignRolesRequest, actorID string) (*dto.RoleAssignmentResult, error)
	Grants(ctx context.Context, userID string) (*models.UserGrants, error)
	Refresh(ctx context.Context, userID string)
	RefreshAll(ctx context.Context)
}

// RBACHandler exposes role and permission management endpoints.
type RBACHandler struct {
	service rbacService
}

// NewRBACHandler constructs the handler.
func NewRBACHandler(service rbacService) *RBACHandler {
	return &RBACHandler{service: service}
}

// ListRoles godoc
// @Summary List roles
// @Tags RBAC
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /roles [get]
func (h *RBACHandler) ListRoles(c *gin.Context) {
	roles, err := h.service.ListRoles(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}

// ListPermissions godoc
// @Summary List permissions
// @Tags RBAC
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /permissions [get]
func (h *RBACHandler) ListPermissions(c *gin.Context) {
	permissions, err := h.service.ListPermissions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, permissions, nil)
}

// CreateRole godoc
// @Summary Define a new role
// @Tags RBAC
// @Accept json
// @Produce json
// @Param payload body dto.CreateRoleRequest true "Role payload"
// @Success 201 {object} response.Envelope
// @Router /roles [post]
func (h *RBACHandler) CreateRole(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid role payload"))
		return
	}
	role, err := h.service.CreateRole(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, role, nil)
}

// AssignRoles godoc
// @Summary Replace a user's role assignments
// @Tags RBAC
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.AssignRolesRequest true "Requested role set"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/roles [put]
func (h *RBACHandler) AssignRoles(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AssignRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assignment payload"))
		return
	}
	result, err := h.service.AssignRoles(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UserGrants godoc
// @Summary Effective roles and permissions for a user
// @Tags RBAC
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/grants [get]
func (h *RBACHandler) UserGrants(c *gin.Context) {
	grants, err := h.service.Grants(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grants, nil)
}

// RefreshGrants godoc
// @Summary Drop a user's cached grants
// @Tags RBAC
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Router /users/{id}/refresh [post]
func (h *RBACHandler) RefreshGrants(c *gin.Context) {
	h.service.Refresh(c.Request.Context(), c.Param("id"))
	response.NoContent(c)
}

// RefreshAllGrants godoc
// @Summary Flush every cached grants entry
// @Tags RBAC
// @Success 204 {object} response.Envelope
// @Router /ops/rbac/refresh [post]
func (h *RBACHandler) RefreshAllGrants(c *gin.Context) {
	h.service.RefreshAll(c.Request.Context())
	response.NoContent(c)
}

// MyGrants godoc
// @Summary Effective roles and permissions for the caller
// @Tags RBAC
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/grants [get]
func (h *RBACHandler) MyGrants(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	grants, err := h.service.Grants(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grants, nil)
}
