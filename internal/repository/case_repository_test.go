package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/openfund-labs/fundflow-api/internal/models"
)

func newCaseRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCaseRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newCaseRepoMock(t)
	defer cleanup()

	repo := NewCaseRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cases")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	category := "relief"
	c := &models.Case{
		Title:        "Winter relief",
		Description:  "Heating support",
		Type:         models.CaseTypeOneTime,
		TargetAmount: decimal.RequireFromString("5000"),
		Category:     &category,
		CreatedBy:    "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), c))
	require.NotEmpty(t, c.ID)
	require.Equal(t, models.CaseStatusDraft, c.Status)

	rows := sqlmock.NewRows([]string{"id", "title", "description", "status", "type", "target_amount", "current_amount", "category", "created_by", "assigned_to", "sponsored_by", "created_at", "updated_at"}).
		AddRow(c.ID, "Winter relief", "Heating support", "DRAFT", "ONE_TIME", "5000", "0", "relief", "user-1", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, status")).
		WithArgs(c.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepositoryApplyTransition(t *testing.T) {
	db, mock, cleanup := newCaseRepoMock(t)
	defer cleanup()

	repo := NewCaseRepository(db)
	actor := "admin-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cases SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO case_status_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		CaseID:     "case-1",
		FromStatus: models.CaseStatusDraft,
		ToStatus:   models.CaseStatusSubmitted,
		ChangedBy:  &actor,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepositoryApplyTransitionConflict(t *testing.T) {
	db, mock, cleanup := newCaseRepoMock(t)
	defer cleanup()

	repo := NewCaseRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cases SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		CaseID:     "case-1",
		FromStatus: models.CaseStatusDraft,
		ToStatus:   models.CaseStatusSubmitted,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepositoryListHistory(t *testing.T) {
	db, mock, cleanup := newCaseRepoMock(t)
	defer cleanup()

	repo := NewCaseRepository(db)
	rows := sqlmock.NewRows([]string{"id", "case_id", "previous_status", "new_status", "changed_by", "system_triggered", "change_reason", "changed_at"}).
		AddRow("hist-1", "case-1", "DRAFT", "SUBMITTED", "user-1", false, nil, time.Now()).
		AddRow("hist-2", "case-1", "SUBMITTED", "UNDER_REVIEW", "admin-1", false, nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, case_id, previous_status")).
		WithArgs("case-1").
		WillReturnRows(rows)

	history, err := repo.ListHistory(context.Background(), "case-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, models.CaseStatusSubmitted, history[0].NewStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepositoryListFundedPublished(t *testing.T) {
	db, mock, cleanup := newCaseRepoMock(t)
	defer cleanup()

	repo := NewCaseRepository(db)
	rows := sqlmock.NewRows([]string{"id", "title", "description", "status", "type", "target_amount", "current_amount", "category", "created_by", "assigned_to", "sponsored_by", "created_at", "updated_at"}).
		AddRow("case-1", "Funded", "", "PUBLISHED", "ONE_TIME", "1000", "1200", "relief", "user-1", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM cases")).
		WithArgs("PUBLISHED", "ONE_TIME").
		WillReturnRows(rows)

	cases, err := repo.ListFundedPublished(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.True(t, cases[0].FullyFunded())
	require.NoError(t, mock.ExpectationsWereMet())
}
