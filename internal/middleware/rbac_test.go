package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/openfund-labs/fundflow-api/internal/models"
)

func performRequest(handler gin.HandlerFunc, claims *models.JWTClaims) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, handler, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRolesAllowsListedRole(t *testing.T) {
	w := performRequest(
		RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
		&models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin},
	)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	w := performRequest(
		RequireRoles(models.RoleAdmin),
		&models.JWTClaims{UserID: "user-1", Role: models.RoleDonor},
	)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesRejectsAnonymous(t *testing.T) {
	w := performRequest(RequireRoles(models.RoleAdmin), nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
