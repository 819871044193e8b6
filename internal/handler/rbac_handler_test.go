package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
)

type rbacServiceStub struct {
	refreshed    []string
	refreshedAll int
}

func (s *rbacServiceStub) ListRoles(_ context.Context) ([]models.Role, error) {
	return nil, nil
}

func (s *rbacServiceStub) ListPermissions(_ context.Context) ([]models.Permission, error) {
	return nil, nil
}

func (s *rbacServiceStub) CreateRole(_ context.Context, req dto.CreateRoleRequest, _ string) (*models.Role, error) {
	return &models.Role{ID: "role-1", Name: req.Name}, nil
}

func (s *rbacServiceStub) AssignRoles(_ context.Context, _ string, _ dto.AssignRolesRequest, _ string) (*dto.RoleAssignmentResult, error) {
	return &dto.RoleAssignmentResult{}, nil
}

func (s *rbacServiceStub) Grants(_ context.Context, userID string) (*models.UserGrants, error) {
	return &models.UserGrants{UserID: userID}, nil
}

func (s *rbacServiceStub) Refresh(_ context.Context, userID string) {
	s.refreshed = append(s.refreshed, userID)
}

func (s *rbacServiceStub) RefreshAll(_ context.Context) {
	s.refreshedAll++
}

func TestRefreshGrantsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &rbacServiceStub{}
	h := NewRBACHandler(stub)

	r := gin.New()
	r.POST("/users/:id/refresh", h.RefreshGrants)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users/user-7/refresh", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, []string{"user-7"}, stub.refreshed)
}

func TestRefreshAllGrantsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &rbacServiceStub{}
	h := NewRBACHandler(stub)

	r := gin.New()
	r.POST("/ops/rbac/refresh", h.RefreshAllGrants)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ops/rbac/refresh", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, 1, stub.refreshedAll)
}
