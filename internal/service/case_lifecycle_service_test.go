package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	"github.com/openfund-labs/fundflow-api/internal/repository"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
)

type caseRepoStub struct {
	cases         map[string]*models.Case
	transitions   []repository.TransitionParams
	transitionErr error
	history       map[string][]models.CaseStatusHistory
	funded        []models.Case
}

func newCaseRepoStub() *caseRepoStub {
	return &caseRepoStub{cases: make(map[string]*models.Case), history: make(map[string][]models.CaseStatusHistory)}
}

func (s *caseRepoStub) Create(_ context.Context, c *models.Case) error {
	if c.ID == "" {
		c.ID = "case-" + c.Title
	}
	c.Status = models.CaseStatusDraft
	s.cases[c.ID] = c
	return nil
}

func (s *caseRepoStub) GetByID(_ context.Context, id string) (*models.Case, error) {
	c, ok := s.cases[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (s *caseRepoStub) List(_ context.Context, _ models.CaseFilter) ([]models.Case, int, error) {
	out := make([]models.Case, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (s *caseRepoStub) ApplyTransition(_ context.Context, params repository.TransitionParams) error {
	if s.transitionErr != nil {
		return s.transitionErr
	}
	c, ok := s.cases[params.CaseID]
	if !ok || c.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	c.Status = params.ToStatus
	s.transitions = append(s.transitions, params)
	return nil
}

func (s *caseRepoStub) ListHistory(_ context.Context, caseID string) ([]models.CaseStatusHistory, error) {
	return s.history[caseID], nil
}

func (s *caseRepoStub) ListFundedPublished(_ context.Context) ([]models.Case, error) {
	return s.funded, nil
}

type grantsStub struct {
	grants map[string]*models.UserGrants
}

func (s *grantsStub) Grants(_ context.Context, userID string) (*models.UserGrants, error) {
	if g, ok := s.grants[userID]; ok {
		return g, nil
	}
	return &models.UserGrants{UserID: userID}, nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (s *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type sinkStub struct {
	events []models.Event
}

func (s *sinkStub) Dispatch(_ context.Context, event models.Event) {
	s.events = append(s.events, event)
}

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, appErrors.FromError(err).Code)
}

func grantsWithRoles(userID string, roles ...models.UserRole) *models.UserGrants {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return &models.UserGrants{UserID: userID, Roles: names}
}

func seedCase(repo *caseRepoStub, id string, status models.CaseStatus, createdBy string) *models.Case {
	c := &models.Case{
		ID:           id,
		Title:        "Test case",
		Status:       status,
		Type:         models.CaseTypeOneTime,
		TargetAmount: decimal.NewFromInt(1000),
		CreatedBy:    createdBy,
	}
	repo.cases[id] = c
	return c
}

func newLifecycleFixture() (*CaseLifecycleService, *caseRepoStub, *grantsStub, *auditStub, *sinkStub) {
	repo := newCaseRepoStub()
	grants := &grantsStub{grants: make(map[string]*models.UserGrants)}
	audit := &auditStub{}
	events := &sinkStub{}
	svc := NewCaseLifecycleService(repo, grants, audit, events, nil)
	return svc, repo, grants, audit, events
}

func TestCaseCreateStartsInDraft(t *testing.T) {
	svc, repo, _, audit, _ := newLifecycleFixture()

	created, err := svc.Create(context.Background(), dto.CreateCaseRequest{
		Title:        "Winter relief",
		Description:  "Emergency heating support",
		Type:         string(models.CaseTypeOneTime),
		TargetAmount: "2500.00",
	}, "creator-1")
	require.NoError(t, err)
	require.Equal(t, models.CaseStatusDraft, created.Status)
	require.Equal(t, "creator-1", created.CreatedBy)
	require.True(t, created.TargetAmount.Equal(decimal.NewFromInt(2500)))
	require.Contains(t, repo.cases, created.ID)
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionCaseCreate, audit.logs[0].Action)
}

func TestCaseCreateRejectsBadAmount(t *testing.T) {
	svc, _, _, _, _ := newLifecycleFixture()

	_, err := svc.Create(context.Background(), dto.CreateCaseRequest{
		Title:        "Bad",
		Description:  "Bad",
		Type:         string(models.CaseTypeOneTime),
		TargetAmount: "not-a-number",
	}, "creator-1")
	requireErrCode(t, err, appErrors.ErrValidation.Code)

	_, err = svc.Create(context.Background(), dto.CreateCaseRequest{
		Title:        "Bad",
		Description:  "Bad",
		Type:         string(models.CaseTypeOneTime),
		TargetAmount: "-10",
	}, "creator-1")
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestChangeStatusCreatorSubmitsOwnDraft(t *testing.T) {
	svc, repo, grants, audit, events := newLifecycleFixture()
	seedCase(repo, "case-1", models.CaseStatusDraft, "creator-1")
	grants.grants["creator-1"] = grantsWithRoles("creator-1", models.RoleCaseCreator)

	updated, err := svc.ChangeStatus(context.Background(), "case-1", models.CaseStatusSubmitted,
		TransitionActor{ActorID: "creator-1"}, "")
	require.NoError(t, err)
	require.Equal(t, models.CaseStatusSubmitted, updated.Status)

	require.Len(t, repo.transitions, 1)
	require.Equal(t, models.CaseStatusDraft, repo.transitions[0].FromStatus)
	require.False(t, repo.transitions[0].SystemTriggered)
	require.NotNil(t, repo.transitions[0].ChangedBy)
	require.Equal(t, "creator-1", *repo.transitions[0].ChangedBy)

	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionCaseStatusChange, audit.logs[0].Action)
	require.Len(t, events.events, 1)
	require.Equal(t, models.EventCaseStatusChanged, events.events[0].Kind)
	require.Equal(t, []string{"creator-1"}, events.events[0].Recipients)
}

func TestChangeStatusUnknownCase(t *testing.T) {
	svc, _, _, _, _ := newLifecycleFixture()

	_, err := svc.ChangeStatus(context.Background(), "missing", models.CaseStatusSubmitted,
		TransitionActor{ActorID: "creator-1"}, "")
	requireErrCode(t, err, appErrors.ErrNotFound.Code)
}

func TestChangeStatusRejectsUnknownTransition(t *testing.T) {
	svc, repo, grants, _, _ := newLifecycleFixture()
	seedCase(repo, "case-1", models.CaseStatusDraft, "creator-1")
	grants.grants["admin-1"] = grantsWithRoles("admin-1", models.RoleAdmin)

	_, err := svc.ChangeStatus(context.Background(), "case-1", models.CaseStatusPublished,
		TransitionActor{ActorID: "admin-1"}, "")
	requireErrCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestChangeStatusRejectsUnauthorizedRole(t *testing.T) {
	svc, repo, grants, _, _ := newLifecycleFixture()
	seedCase(repo, "case-1", models.CaseStatusSubmitted, "creator-1")
	grants.grants["donor-1"] = grantsWithRoles("donor-1", models.RoleDonor)

	_, err := svc.ChangeStatus(context.Background(), "case-1", models.CaseStatusPublished,
		TransitionActor{ActorID: "donor-1"}, "")
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
	require.Empty(t, repo.transitions)
}

func TestChangeStatusCreatorCannotTouchForeignCase(t *testing.T) {
	svc, repo, grants, _, _ := newLifecycleFixture()
	seedCase(repo, "case-1", models.CaseStatusDraft, "creator-1")
	grants.grants["creator-2"] = grantsWithRoles("creator-2", models.RoleCaseCreator)

	_, err := svc.ChangeStatus(context.Background(), "case-1", models.CaseStatusSubmitted,
		TransitionActor{ActorID: "creator-2"}, "")
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
}

func TestChangeStatusRequiresReason(t *testing.T) {
	svc, repo, grants, _, _ := newLifecycleFixture()
	seedCase(repo, "case-1", models.CaseStatusSubmitted, "creator-1")
	grants.grants["admin-1"] = grantsWithRoles("admin-1", models.RoleAdmin)

	_, err := svc.ChangeStatus(context.Background(), "case-1", models.CaseStatusUnderReview,
		TransitionActor{ActorID: "admin-1"}, "")
	requireErrCode(t, err, appErrors.ErrValidation.Code)

	updated, err := svc.ChangeStatus(context.Background(), "case-1", models.CaseStatusUnderReview,
		TransitionActor{ActorID: "admin-1"}, "needs additional documentation")
	require.NoError(t, err)
	require.Equal(t, models.CaseStatusUnderReview, updated.Status)
	require.NotNil(t, repo.transitions[0].ChangeReason)
}

func TestChangeStatusConcurrentConflict(t *testing.T) {
	svc, repo, grants, _, _ := newLifecycleFixture()
	seedCase(repo, "case-1", models.CaseStatusSubmitted, "creator-1")
	grants.grants["admin-1"] = grantsWithRoles("admin-1", models.RoleAdmin)
	repo.transitionErr = sql.ErrNoRows

	_, err := svc.ChangeStatus(context.Background(), "case-1", models.CaseStatusPublished,
		TransitionActor{ActorID: "admin-1"}, "")
	requireErrCode(t, err, appErrors.ErrConflict.Code)
}

func TestChangeStatusSystemOnlyWhereAllowed(t *testing.T) {
	svc, repo, _, _, _ := newLifecycleFixture()
	seedCase(repo, "case-1", models.CaseStatusDraft, "creator-1")
	seedCase(repo, "case-2", models.CaseStatusPublished, "creator-1")

	_, err := svc.ChangeStatus(context.Background(), "case-1", models.CaseStatusSubmitted,
		TransitionActor{SystemTriggered: true}, "")
	requireErrCode(t, err, appErrors.ErrForbidden.Code)

	updated, err := svc.ChangeStatus(context.Background(), "case-2", models.CaseStatusClosed,
		TransitionActor{SystemTriggered: true}, "funding target reached")
	require.NoError(t, err)
	require.Equal(t, models.CaseStatusClosed, updated.Status)
	require.True(t, repo.transitions[0].SystemTriggered)
	require.Nil(t, repo.transitions[0].ChangedBy)
}

func TestCloseFundedCasesSweepContinuesPastFailures(t *testing.T) {
	svc, repo, _, _, events := newLifecycleFixture()
	funded := seedCase(repo, "case-1", models.CaseStatusPublished, "creator-1")
	funded.CurrentAmount = funded.TargetAmount
	repo.funded = []models.Case{
		*funded,
		{ID: "case-gone", Status: models.CaseStatusPublished},
	}

	closed, err := svc.CloseFundedCases(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, closed)
	require.Equal(t, models.CaseStatusClosed, repo.cases["case-1"].Status)
	require.Len(t, events.events, 1)
}

func TestCaseGetVisibility(t *testing.T) {
	svc, repo, _, _, _ := newLifecycleFixture()
	seedCase(repo, "case-1", models.CaseStatusDraft, "creator-1")
	seedCase(repo, "case-2", models.CaseStatusPublished, "creator-1")

	// Anonymous callers only see published cases.
	_, err := svc.Get(context.Background(), "case-1", nil)
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
	_, err = svc.Get(context.Background(), "case-2", nil)
	require.NoError(t, err)

	// Creators see their own drafts, other users do not.
	_, err = svc.Get(context.Background(), "case-1", &models.JWTClaims{UserID: "creator-1", Role: models.RoleCaseCreator})
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "case-1", &models.JWTClaims{UserID: "donor-1", Role: models.RoleDonor})
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
	_, err = svc.Get(context.Background(), "case-1", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
}
