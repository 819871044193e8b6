package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
)

type contributionStore interface {
	Create(ctx context.Context, c *models.Contribution) error
	GetWithApproval(ctx context.Context, id string) (*models.ContributionWithApproval, error)
	List(ctx context.Context, filter models.ContributionFilter) ([]models.ContributionWithApproval, error)
	Approve(ctx context.Context, contributionID, reviewerID string) error
	Reject(ctx context.Context, contributionID, reviewerID, reason string) error
	Resubmit(ctx context.Context, contributionID, reply string) error
	Revise(ctx context.Context, original *models.ContributionWithApproval, replacement *models.Contribution, adminComment string) error
}

type permissionChecker interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

type caseReader interface {
	GetByID(ctx context.Context, id string) (*models.Case, error)
}

type projectReader interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ActiveCycle(ctx context.Context, projectID string) (*models.ProjectCycle, error)
}

// ContributionService runs the donor pledge pipeline: submission, admin
// review, and the donor-side resubmit and revise flows. Funded totals are
// recomputed inside the repository transaction, never here.
type ContributionService struct {
	repo        contributionStore
	cases       caseReader
	projects    projectReader
	permissions permissionChecker
	audit       auditLogger
	events      eventSink
	logger      *zap.Logger
}

// NewContributionService constructs the service.
func NewContributionService(repo contributionStore, cases caseReader, projects projectReader, permissions permissionChecker, audit auditLogger, events eventSink, logger *zap.Logger) *ContributionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContributionService{
		repo:        repo,
		cases:       cases,
		projects:    projects,
		permissions: permissions,
		audit:       audit,
		events:      events,
		logger:      logger,
	}
}

// Submit records a donor pledge against a published case or an active
// project. Project pledges are pinned to the cycle active at submission time.
func (s *ContributionService) Submit(ctx context.Context, req dto.CreateContributionRequest, donorID string) (*models.Contribution, error) {
	if (req.CaseID == nil) == (req.ProjectID == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of case_id or project_id must be set")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	contribution := &models.Contribution{
		DonorID:       donorID,
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	}

	if req.CaseID != nil {
		c, err := s.cases.GetByID(ctx, *req.CaseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrNotFound
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
		}
		if c.Status != models.CaseStatusPublished {
			return nil, appErrors.Clone(appErrors.ErrValidation, "case is not accepting contributions")
		}
		contribution.CaseID = req.CaseID
	} else {
		p, err := s.projects.GetByID(ctx, *req.ProjectID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrNotFound
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
		}
		if p.Status != models.ProjectStatusActive {
			return nil, appErrors.Clone(appErrors.ErrValidation, "project is not accepting contributions")
		}
		cycle, err := s.projects.ActiveCycle(ctx, p.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "project has no active funding cycle")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active cycle")
		}
		contribution.ProjectID = req.ProjectID
		contribution.CycleID = &cycle.ID
	}

	if err := s.repo.Create(ctx, contribution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create contribution")
	}

	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &donorID,
		Action:     models.AuditActionContributionCreate,
		Resource:   "contributions",
		ResourceID: &contribution.ID,
	})
	s.dispatch(ctx, models.Event{
		Kind:           models.EventContributionSubmitted,
		ContributionID: contribution.ID,
		CaseID:         stringOrEmpty(contribution.CaseID),
		ProjectID:      stringOrEmpty(contribution.ProjectID),
		Payload:        map[string]interface{}{"amount": contribution.Amount.String()},
	})
	return contribution, nil
}

// Get returns one contribution with its approval record. Donors only see
// their own.
func (s *ContributionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ContributionWithApproval, error) {
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin && contribution.DonorID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return contribution, nil
}

// List returns contributions visible to the actor. Donors are always scoped
// to their own pledges.
func (s *ContributionService) List(ctx context.Context, filter models.ContributionFilter, actor *models.JWTClaims) ([]models.ContributionWithApproval, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		filter.DonorID = actor.UserID
	}
	contributions, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list contributions")
	}
	return contributions, nil
}

// Approve marks a pending contribution approved and recomputes the owning
// aggregate. A second approval of the same contribution reports CONFLICT.
func (s *ContributionService) Approve(ctx context.Context, contributionID, actorID string) (*models.ContributionWithApproval, error) {
	if err := s.requirePermission(ctx, actorID, models.PermContributionsReview); err != nil {
		return nil, err
	}
	contribution, err := s.load(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Approve(ctx, contributionID, actorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "contribution already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve contribution")
	}

	contribution.Status = models.ContributionStatusApproved
	contribution.Approval.Status = models.ApprovalStatusApproved
	contribution.Approval.ReviewedBy = &actorID

	s.emitReviewAudit(ctx, actorID, contributionID, models.ApprovalStatusApproved, "")
	s.dispatch(ctx, models.Event{
		Kind:           models.EventContributionApproved,
		ContributionID: contributionID,
		CaseID:         stringOrEmpty(contribution.CaseID),
		ProjectID:      stringOrEmpty(contribution.ProjectID),
		Recipients:     []string{contribution.DonorID},
	})
	return contribution, nil
}

// Reject marks a pending contribution rejected. The reason is mandatory and
// is stored on the approval record for the donor to act on.
func (s *ContributionService) Reject(ctx context.Context, contributionID, actorID, reason string) (*models.ContributionWithApproval, error) {
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}
	if err := s.requirePermission(ctx, actorID, models.PermContributionsReview); err != nil {
		return nil, err
	}
	contribution, err := s.load(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Reject(ctx, contributionID, actorID, reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "contribution already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject contribution")
	}

	contribution.Status = models.ContributionStatusRejected
	contribution.Approval.Status = models.ApprovalStatusRejected
	contribution.Approval.RejectionReason = &reason
	contribution.Approval.ReviewedBy = &actorID

	s.emitReviewAudit(ctx, actorID, contributionID, models.ApprovalStatusRejected, reason)
	s.dispatch(ctx, models.Event{
		Kind:           models.EventContributionRejected,
		ContributionID: contributionID,
		CaseID:         stringOrEmpty(contribution.CaseID),
		ProjectID:      stringOrEmpty(contribution.ProjectID),
		Recipients:     []string{contribution.DonorID},
		Payload:        map[string]interface{}{"reason": reason},
	})
	return contribution, nil
}

// Resubmit reopens the donor's own rejected contribution with a reply. The
// approval returns to pending and the resubmission counter is bumped.
func (s *ContributionService) Resubmit(ctx context.Context, contributionID, donorID, reply string) (*models.ContributionWithApproval, error) {
	contribution, err := s.load(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if contribution.DonorID != donorID {
		return nil, appErrors.ErrForbidden
	}
	if contribution.Approval.Status != models.ApprovalStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only rejected contributions can be resubmitted")
	}
	if err := s.repo.Resubmit(ctx, contributionID, reply); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "contribution was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit contribution")
	}

	contribution.Status = models.ContributionStatusPending
	contribution.Approval.Status = models.ApprovalStatusPending
	contribution.Approval.DonorReply = &reply
	contribution.Approval.ResubmissionCount++

	s.dispatch(ctx, models.Event{
		Kind:           models.EventContributionResubmitted,
		ContributionID: contributionID,
		CaseID:         stringOrEmpty(contribution.CaseID),
		ProjectID:      stringOrEmpty(contribution.ProjectID),
	})
	return contribution, nil
}

// Revise replaces the donor's rejected contribution with a brand-new pending
// one. The parent case must still be published; the old approval record
// becomes terminal REVISED.
func (s *ContributionService) Revise(ctx context.Context, contributionID, donorID string, req dto.ReviseContributionRequest) (*models.Contribution, error) {
	original, err := s.load(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if original.DonorID != donorID {
		return nil, appErrors.ErrForbidden
	}
	if original.Approval.Status != models.ApprovalStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only rejected contributions can be revised")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if original.CaseID != nil {
		c, err := s.cases.GetByID(ctx, *original.CaseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrNotFound
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
		}
		if c.Status != models.CaseStatusPublished {
			return nil, appErrors.Clone(appErrors.ErrValidation, "case is no longer accepting contributions")
		}
	}

	replacement := &models.Contribution{
		CaseID:        original.CaseID,
		ProjectID:     original.ProjectID,
		CycleID:       original.CycleID,
		DonorID:       donorID,
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
	}
	adminComment := fmt.Sprintf("revision of %s: %s", original.ID, req.Explanation)
	if original.Approval.RejectionReason != nil {
		adminComment = fmt.Sprintf("%s (previously rejected: %s)", adminComment, *original.Approval.RejectionReason)
	}

	if err := s.repo.Revise(ctx, original, replacement, adminComment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "contribution was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revise contribution")
	}

	payload, _ := json.Marshal(map[string]string{"replaced_by": replacement.ID})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &donorID,
		Action:     models.AuditActionContributionRevise,
		Resource:   "contributions",
		ResourceID: &contributionID,
		NewValues:  payload,
	})
	s.dispatch(ctx, models.Event{
		Kind:           models.EventContributionRevised,
		ContributionID: replacement.ID,
		CaseID:         stringOrEmpty(replacement.CaseID),
		ProjectID:      stringOrEmpty(replacement.ProjectID),
	})
	return replacement, nil
}

func (s *ContributionService) load(ctx context.Context, id string) (*models.ContributionWithApproval, error) {
	contribution, err := s.repo.GetWithApproval(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contribution")
	}
	return contribution, nil
}

func (s *ContributionService) requirePermission(ctx context.Context, userID, permission string) error {
	allowed, err := s.permissions.HasPermission(ctx, userID, permission)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check permission")
	}
	if !allowed {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *ContributionService) emitReviewAudit(ctx context.Context, actorID, contributionID string, decision models.ApprovalStatus, reason string) {
	payload, _ := json.Marshal(map[string]string{"decision": string(decision), "reason": reason})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionContributionReview,
		Resource:   "contributions",
		ResourceID: &contributionID,
		NewValues:  payload,
	})
}

func (s *ContributionService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "contribution-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *ContributionService) dispatch(ctx context.Context, event models.Event) {
	if s.events == nil {
		return
	}
	s.events.Dispatch(ctx, event)
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
