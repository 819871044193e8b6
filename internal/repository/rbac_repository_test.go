package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/openfund-labs/fundflow-api/internal/models"
)

func newRBACRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRBACRepositoryGetUserGrants(t *testing.T) {
	db, mock, cleanup := newRBACRepoMock(t)
	defer cleanup()

	repo := NewRBACRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT r.name FROM roles r")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ADMIN"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT p.name FROM permissions p")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("cases:update_status").
			AddRow("contributions:review"))

	grants, err := repo.GetUserGrants(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, grants.HasRole("ADMIN"))
	require.True(t, grants.HasPermission("contributions:review"))
	require.False(t, grants.HasPermission("roles:manage"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRBACRepositoryGrantRoleWritesAudit(t *testing.T) {
	db, mock, cleanup := newRBACRepoMock(t)
	defer cleanup()

	repo := NewRBACRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_role_assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.GrantRole(context.Background(), "user-1", "role-1", "admin-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRBACRepositoryRevokeRoleWritesAudit(t *testing.T) {
	db, mock, cleanup := newRBACRepoMock(t)
	defer cleanup()

	repo := NewRBACRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_role_assignments SET active = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.RevokeRole(context.Background(), "user-1", "role-1", "admin-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRBACRepositoryCreateRoleLinksPermissions(t *testing.T) {
	db, mock, cleanup := newRBACRepoMock(t)
	defer cleanup()

	repo := NewRBACRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO roles")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO role_permissions")).
		WithArgs(sqlmock.AnyArg(), "perm-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO role_permissions")).
		WithArgs(sqlmock.AnyArg(), "perm-2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	description := "reviews incoming contributions"
	role := &models.Role{Name: "FINANCE_REVIEWER", Description: &description}
	require.NoError(t, repo.CreateRole(context.Background(), role, []string{"perm-1", "perm-2"}))
	require.NotEmpty(t, role.ID)
	require.False(t, role.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
