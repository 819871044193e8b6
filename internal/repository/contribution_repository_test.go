package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/openfund-labs/fundflow-api/internal/models"
)

func newContributionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestContributionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newContributionRepoMock(t)
	defer cleanup()

	repo := NewContributionRepository(db)
	caseID := "case-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contributions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contribution_approval_status")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c := &models.Contribution{
		CaseID:        &caseID,
		DonorID:       "donor-1",
		Amount:        decimal.RequireFromString("150.00"),
		PaymentMethod: "BANK_TRANSFER",
	}
	require.NoError(t, repo.Create(context.Background(), c))
	require.NotEmpty(t, c.ID)
	require.Equal(t, models.ContributionStatusPending, c.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContributionRepositoryApproveRecomputesCaseAmount(t *testing.T) {
	db, mock, cleanup := newContributionRepoMock(t)
	defer cleanup()

	repo := NewContributionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contribution_approval_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contributions SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT case_id, cycle_id FROM contributions")).
		WithArgs("contrib-1").
		WillReturnRows(sqlmock.NewRows([]string{"case_id", "cycle_id"}).AddRow("case-1", nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM cases WHERE id = $1 FOR UPDATE")).
		WithArgs("case-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("case-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cases SET current_amount")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Approve(context.Background(), "contrib-1", "admin-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContributionRepositoryApproveRecomputesCycleAmount(t *testing.T) {
	db, mock, cleanup := newContributionRepoMock(t)
	defer cleanup()

	repo := NewContributionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contribution_approval_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contributions SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT case_id, cycle_id FROM contributions")).
		WithArgs("contrib-2").
		WillReturnRows(sqlmock.NewRows([]string{"case_id", "cycle_id"}).AddRow(nil, "cycle-2"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM project_cycles WHERE id = $1 FOR UPDATE")).
		WithArgs("cycle-2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("cycle-2"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE project_cycles SET current_amount")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Approve(context.Background(), "contrib-2", "admin-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContributionRepositoryApproveConflict(t *testing.T) {
	db, mock, cleanup := newContributionRepoMock(t)
	defer cleanup()

	repo := NewContributionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contribution_approval_status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), "contrib-1", "admin-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContributionRepositoryResubmit(t *testing.T) {
	db, mock, cleanup := newContributionRepoMock(t)
	defer cleanup()

	repo := NewContributionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contribution_approval_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contributions SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Resubmit(context.Background(), "contrib-1", "receipt attached"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContributionRepositoryRevise(t *testing.T) {
	db, mock, cleanup := newContributionRepoMock(t)
	defer cleanup()

	repo := NewContributionRepository(db)
	caseID := "case-1"
	original := &models.ContributionWithApproval{
		Contribution: models.Contribution{ID: "contrib-1", CaseID: &caseID, DonorID: "donor-1"},
		Approval:     models.ContributionApproval{Status: models.ApprovalStatusRejected},
	}
	replacement := &models.Contribution{
		CaseID:        &caseID,
		DonorID:       "donor-1",
		Amount:        decimal.RequireFromString("200.00"),
		PaymentMethod: "CASH",
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contribution_approval_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contributions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contribution_approval_status")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Revise(context.Background(), original, replacement, "previously rejected: amount mismatch"))
	require.NotEmpty(t, replacement.ID)
	require.Equal(t, models.ContributionStatusPending, replacement.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
