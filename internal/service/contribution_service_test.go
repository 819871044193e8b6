package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
)

type contributionRepoStub struct {
	contributions map[string]*models.ContributionWithApproval
	approveErr    error
	rejectErr     error
	resubmitErr   error
	reviseErr     error
	lastComment   string
}

func newContributionRepoStub() *contributionRepoStub {
	return &contributionRepoStub{contributions: make(map[string]*models.ContributionWithApproval)}
}

func (s *contributionRepoStub) Create(_ context.Context, c *models.Contribution) error {
	if c.ID == "" {
		c.ID = "contribution-" + c.DonorID
	}
	c.Status = models.ContributionStatusPending
	s.contributions[c.ID] = &models.ContributionWithApproval{
		Contribution: *c,
		Approval:     models.ContributionApproval{ContributionID: c.ID, Status: models.ApprovalStatusPending},
	}
	return nil
}

func (s *contributionRepoStub) GetWithApproval(_ context.Context, id string) (*models.ContributionWithApproval, error) {
	c, ok := s.contributions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (s *contributionRepoStub) List(_ context.Context, filter models.ContributionFilter) ([]models.ContributionWithApproval, error) {
	out := make([]models.ContributionWithApproval, 0, len(s.contributions))
	for _, c := range s.contributions {
		if filter.DonorID != "" && c.DonorID != filter.DonorID {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *contributionRepoStub) Approve(_ context.Context, contributionID, reviewerID string) error {
	if s.approveErr != nil {
		return s.approveErr
	}
	c := s.contributions[contributionID]
	c.Status = models.ContributionStatusApproved
	c.Approval.Status = models.ApprovalStatusApproved
	c.Approval.ReviewedBy = &reviewerID
	return nil
}

func (s *contributionRepoStub) Reject(_ context.Context, contributionID, reviewerID, reason string) error {
	if s.rejectErr != nil {
		return s.rejectErr
	}
	c := s.contributions[contributionID]
	c.Status = models.ContributionStatusRejected
	c.Approval.Status = models.ApprovalStatusRejected
	c.Approval.RejectionReason = &reason
	c.Approval.ReviewedBy = &reviewerID
	return nil
}

func (s *contributionRepoStub) Resubmit(_ context.Context, contributionID, reply string) error {
	if s.resubmitErr != nil {
		return s.resubmitErr
	}
	c := s.contributions[contributionID]
	c.Status = models.ContributionStatusPending
	c.Approval.Status = models.ApprovalStatusPending
	c.Approval.DonorReply = &reply
	c.Approval.ResubmissionCount++
	return nil
}

func (s *contributionRepoStub) Revise(_ context.Context, original *models.ContributionWithApproval, replacement *models.Contribution, adminComment string) error {
	if s.reviseErr != nil {
		return s.reviseErr
	}
	if replacement.ID == "" {
		replacement.ID = original.ID + "-revised"
	}
	s.lastComment = adminComment
	s.contributions[original.ID].Approval.Status = models.ApprovalStatusRevised
	s.contributions[replacement.ID] = &models.ContributionWithApproval{
		Contribution: *replacement,
		Approval:     models.ContributionApproval{ContributionID: replacement.ID, Status: models.ApprovalStatusPending},
	}
	return nil
}

type caseReaderStub struct {
	cases map[string]*models.Case
}

func (s *caseReaderStub) GetByID(_ context.Context, id string) (*models.Case, error) {
	c, ok := s.cases[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

type projectReaderStub struct {
	projects map[string]*models.Project
	cycles   map[string]*models.ProjectCycle
}

func (s *projectReaderStub) GetByID(_ context.Context, id string) (*models.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (s *projectReaderStub) ActiveCycle(_ context.Context, projectID string) (*models.ProjectCycle, error) {
	c, ok := s.cycles[projectID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

type permissionStub struct {
	allowed map[string]bool
	err     error
}

func (s *permissionStub) HasPermission(_ context.Context, userID, permission string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.allowed[userID+"|"+permission], nil
}

type contributionFixture struct {
	svc         *ContributionService
	repo        *contributionRepoStub
	cases       *caseReaderStub
	projects    *projectReaderStub
	permissions *permissionStub
	audit       *auditStub
	events      *sinkStub
}

func newContributionFixture() *contributionFixture {
	f := &contributionFixture{
		repo:        newContributionRepoStub(),
		cases:       &caseReaderStub{cases: make(map[string]*models.Case)},
		projects:    &projectReaderStub{projects: make(map[string]*models.Project), cycles: make(map[string]*models.ProjectCycle)},
		permissions: &permissionStub{allowed: make(map[string]bool)},
		audit:       &auditStub{},
		events:      &sinkStub{},
	}
	f.svc = NewContributionService(f.repo, f.cases, f.projects, f.permissions, f.audit, f.events, nil)
	return f
}

func (f *contributionFixture) allow(userID, permission string) {
	f.permissions.allowed[userID+"|"+permission] = true
}

func (f *contributionFixture) seedPending(id, donorID string, caseID *string) *models.ContributionWithApproval {
	c := &models.ContributionWithApproval{
		Contribution: models.Contribution{
			ID:            id,
			CaseID:        caseID,
			DonorID:       donorID,
			Amount:        decimal.NewFromInt(100),
			PaymentMethod: "BANK_TRANSFER",
			Status:        models.ContributionStatusPending,
		},
		Approval: models.ContributionApproval{ContributionID: id, Status: models.ApprovalStatusPending},
	}
	f.repo.contributions[id] = c
	return c
}

func strPtr(v string) *string { return &v }

func TestSubmitRequiresExactlyOneTarget(t *testing.T) {
	f := newContributionFixture()

	_, err := f.svc.Submit(context.Background(), dto.CreateContributionRequest{
		Amount: "100", PaymentMethod: "CASH",
	}, "donor-1")
	requireErrCode(t, err, appErrors.ErrValidation.Code)

	_, err = f.svc.Submit(context.Background(), dto.CreateContributionRequest{
		CaseID: strPtr("case-1"), ProjectID: strPtr("project-1"),
		Amount: "100", PaymentMethod: "CASH",
	}, "donor-1")
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestSubmitToPublishedCase(t *testing.T) {
	f := newContributionFixture()
	f.cases.cases["case-1"] = &models.Case{ID: "case-1", Status: models.CaseStatusPublished}

	created, err := f.svc.Submit(context.Background(), dto.CreateContributionRequest{
		CaseID: strPtr("case-1"), Amount: "250.50", PaymentMethod: "BANK_TRANSFER",
	}, "donor-1")
	require.NoError(t, err)
	require.Equal(t, models.ContributionStatusPending, created.Status)
	require.Equal(t, "case-1", *created.CaseID)
	require.Len(t, f.events.events, 1)
	require.Equal(t, models.EventContributionSubmitted, f.events.events[0].Kind)
	require.Len(t, f.audit.logs, 1)
}

func TestSubmitRejectsUnpublishedCase(t *testing.T) {
	f := newContributionFixture()
	f.cases.cases["case-1"] = &models.Case{ID: "case-1", Status: models.CaseStatusDraft}

	_, err := f.svc.Submit(context.Background(), dto.CreateContributionRequest{
		CaseID: strPtr("case-1"), Amount: "100", PaymentMethod: "CASH",
	}, "donor-1")
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestSubmitPinsActiveProjectCycle(t *testing.T) {
	f := newContributionFixture()
	f.projects.projects["project-1"] = &models.Project{ID: "project-1", Status: models.ProjectStatusActive}
	f.projects.cycles["project-1"] = &models.ProjectCycle{ID: "cycle-3", ProjectID: "project-1", CycleNumber: 3, Status: models.CycleStatusActive}

	created, err := f.svc.Submit(context.Background(), dto.CreateContributionRequest{
		ProjectID: strPtr("project-1"), Amount: "100", PaymentMethod: "CASH",
	}, "donor-1")
	require.NoError(t, err)
	require.NotNil(t, created.CycleID)
	require.Equal(t, "cycle-3", *created.CycleID)
}

func TestSubmitRejectsProjectWithoutActiveCycle(t *testing.T) {
	f := newContributionFixture()
	f.projects.projects["project-1"] = &models.Project{ID: "project-1", Status: models.ProjectStatusActive}

	_, err := f.svc.Submit(context.Background(), dto.CreateContributionRequest{
		ProjectID: strPtr("project-1"), Amount: "100", PaymentMethod: "CASH",
	}, "donor-1")
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestApproveRequiresReviewPermission(t *testing.T) {
	f := newContributionFixture()
	f.seedPending("c-1", "donor-1", strPtr("case-1"))

	_, err := f.svc.Approve(context.Background(), "c-1", "user-1")
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
}

func TestApproveMarksContributionAndNotifiesDonor(t *testing.T) {
	f := newContributionFixture()
	f.seedPending("c-1", "donor-1", strPtr("case-1"))
	f.allow("reviewer-1", models.PermContributionsReview)

	approved, err := f.svc.Approve(context.Background(), "c-1", "reviewer-1")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusApproved, approved.Approval.Status)
	require.Equal(t, "reviewer-1", *approved.Approval.ReviewedBy)

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, models.AuditActionContributionReview, f.audit.logs[0].Action)
	require.Len(t, f.events.events, 1)
	require.Equal(t, models.EventContributionApproved, f.events.events[0].Kind)
	require.Equal(t, []string{"donor-1"}, f.events.events[0].Recipients)
}

func TestApproveTwiceIsConflict(t *testing.T) {
	f := newContributionFixture()
	f.seedPending("c-1", "donor-1", strPtr("case-1"))
	f.allow("reviewer-1", models.PermContributionsReview)
	f.repo.approveErr = sql.ErrNoRows

	_, err := f.svc.Approve(context.Background(), "c-1", "reviewer-1")
	requireErrCode(t, err, appErrors.ErrConflict.Code)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newContributionFixture()
	f.seedPending("c-1", "donor-1", strPtr("case-1"))
	f.allow("reviewer-1", models.PermContributionsReview)

	_, err := f.svc.Reject(context.Background(), "c-1", "reviewer-1", "")
	requireErrCode(t, err, appErrors.ErrValidation.Code)

	rejected, err := f.svc.Reject(context.Background(), "c-1", "reviewer-1", "missing payment reference")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusRejected, rejected.Approval.Status)
	require.Equal(t, "missing payment reference", *rejected.Approval.RejectionReason)
	require.Len(t, f.events.events, 1)
	require.Equal(t, models.EventContributionRejected, f.events.events[0].Kind)
}

func TestResubmitOnlyByOwner(t *testing.T) {
	f := newContributionFixture()
	c := f.seedPending("c-1", "donor-1", strPtr("case-1"))
	c.Status = models.ContributionStatusRejected
	c.Approval.Status = models.ApprovalStatusRejected

	_, err := f.svc.Resubmit(context.Background(), "c-1", "donor-2", "fixed the reference")
	requireErrCode(t, err, appErrors.ErrForbidden.Code)

	resubmitted, err := f.svc.Resubmit(context.Background(), "c-1", "donor-1", "fixed the reference")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPending, resubmitted.Approval.Status)
	require.Equal(t, 1, resubmitted.Approval.ResubmissionCount)
}

func TestResubmitRequiresRejectedOriginal(t *testing.T) {
	f := newContributionFixture()
	f.seedPending("c-1", "donor-1", strPtr("case-1"))

	_, err := f.svc.Resubmit(context.Background(), "c-1", "donor-1", "reply")
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestResubmitConcurrentReviewIsConflict(t *testing.T) {
	f := newContributionFixture()
	c := f.seedPending("c-1", "donor-1", strPtr("case-1"))
	c.Status = models.ContributionStatusRejected
	c.Approval.Status = models.ApprovalStatusRejected
	f.repo.resubmitErr = sql.ErrNoRows

	_, err := f.svc.Resubmit(context.Background(), "c-1", "donor-1", "reply")
	requireErrCode(t, err, appErrors.ErrConflict.Code)
}

func TestReviseReplacesRejectedContribution(t *testing.T) {
	f := newContributionFixture()
	f.cases.cases["case-1"] = &models.Case{ID: "case-1", Status: models.CaseStatusPublished}
	c := f.seedPending("c-1", "donor-1", strPtr("case-1"))
	c.Status = models.ContributionStatusRejected
	c.Approval.Status = models.ApprovalStatusRejected
	c.Approval.RejectionReason = strPtr("wrong amount")

	replacement, err := f.svc.Revise(context.Background(), "c-1", "donor-1", dto.ReviseContributionRequest{
		Amount: "150", PaymentMethod: "BANK_TRANSFER", Explanation: "corrected the amount",
	})
	require.NoError(t, err)
	require.NotEqual(t, "c-1", replacement.ID)
	require.Equal(t, "case-1", *replacement.CaseID)
	require.True(t, replacement.Amount.Equal(decimal.NewFromInt(150)))

	require.Contains(t, f.repo.lastComment, "revision of c-1")
	require.Contains(t, f.repo.lastComment, "wrong amount")
	require.Equal(t, models.ApprovalStatusRevised, f.repo.contributions["c-1"].Approval.Status)
	require.Len(t, f.events.events, 1)
	require.Equal(t, models.EventContributionRevised, f.events.events[0].Kind)
}

func TestReviseRequiresRejectedOriginal(t *testing.T) {
	f := newContributionFixture()
	f.seedPending("c-1", "donor-1", strPtr("case-1"))

	_, err := f.svc.Revise(context.Background(), "c-1", "donor-1", dto.ReviseContributionRequest{
		Amount: "150", PaymentMethod: "CASH", Explanation: "note",
	})
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestReviseConcurrentReviewIsConflict(t *testing.T) {
	f := newContributionFixture()
	f.cases.cases["case-1"] = &models.Case{ID: "case-1", Status: models.CaseStatusPublished}
	c := f.seedPending("c-1", "donor-1", strPtr("case-1"))
	c.Status = models.ContributionStatusRejected
	c.Approval.Status = models.ApprovalStatusRejected
	f.repo.reviseErr = sql.ErrNoRows

	_, err := f.svc.Revise(context.Background(), "c-1", "donor-1", dto.ReviseContributionRequest{
		Amount: "150", PaymentMethod: "CASH", Explanation: "note",
	})
	requireErrCode(t, err, appErrors.ErrConflict.Code)
}

func TestReviseRequiresPublishedCase(t *testing.T) {
	f := newContributionFixture()
	f.cases.cases["case-1"] = &models.Case{ID: "case-1", Status: models.CaseStatusClosed}
	c := f.seedPending("c-1", "donor-1", strPtr("case-1"))
	c.Approval.Status = models.ApprovalStatusRejected

	_, err := f.svc.Revise(context.Background(), "c-1", "donor-1", dto.ReviseContributionRequest{
		Amount: "150", PaymentMethod: "CASH", Explanation: "note",
	})
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestListScopesDonorsToOwnContributions(t *testing.T) {
	f := newContributionFixture()
	f.seedPending("c-1", "donor-1", strPtr("case-1"))
	f.seedPending("c-2", "donor-2", strPtr("case-1"))

	own, err := f.svc.List(context.Background(), models.ContributionFilter{}, &models.JWTClaims{UserID: "donor-1", Role: models.RoleDonor})
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, "donor-1", own[0].DonorID)

	all, err := f.svc.List(context.Background(), models.ContributionFilter{}, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestGetDeniesForeignDonor(t *testing.T) {
	f := newContributionFixture()
	f.seedPending("c-1", "donor-1", strPtr("case-1"))

	_, err := f.svc.Get(context.Background(), "c-1", &models.JWTClaims{UserID: "donor-2", Role: models.RoleDonor})
	requireErrCode(t, err, appErrors.ErrForbidden.Code)

	got, err := f.svc.Get(context.Background(), "c-1", &models.JWTClaims{UserID: "donor-1", Role: models.RoleDonor})
	require.NoError(t, err)
	require.Equal(t, "c-1", got.ID)

	_, err = f.svc.Get(context.Background(), "missing", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	requireErrCode(t, err, appErrors.ErrNotFound.Code)
}
