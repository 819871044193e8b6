package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	"github.com/openfund-labs/fundflow-api/internal/repository"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
)

type caseStore interface {
	Create(ctx context.Context, c *models.Case) error
	GetByID(ctx context.Context, id string) (*models.Case, error)
	List(ctx context.Context, filter models.CaseFilter) ([]models.Case, int, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) error
	ListHistory(ctx context.Context, caseID string) ([]models.CaseStatusHistory, error)
	ListFundedPublished(ctx context.Context) ([]models.Case, error)
}

type grantsResolver interface {
	Grants(ctx context.Context, userID string) (*models.UserGrants, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type eventSink interface {
	Dispatch(ctx context.Context, event models.Event)
}

// TransitionActor identifies who requests a transition. System sweeps set
// SystemTriggered and leave ActorID empty.
type TransitionActor struct {
	ActorID         string
	SystemTriggered bool
}

// CaseLifecycleService owns the case status state machine: every status write
// goes through ChangeStatus, which validates the move against the transition
// table before touching storage.
type CaseLifecycleService struct {
	repo        caseStore
	permissions grantsResolver
	audit       auditLogger
	events      eventSink
	logger      *zap.Logger
}

// NewCaseLifecycleService constructs the service.
func NewCaseLifecycleService(repo caseStore, permissions grantsResolver, audit auditLogger, events eventSink, logger *zap.Logger) *CaseLifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaseLifecycleService{repo: repo, permissions: permissions, audit: audit, events: events, logger: logger}
}

// Create opens a new case in DRAFT owned by the caller.
func (s *CaseLifecycleService) Create(ctx context.Context, req dto.CreateCaseRequest, actorID string) (*models.Case, error) {
	target, err := parseAmount(req.TargetAmount)
	if err != nil {
		return nil, err
	}
	c := &models.Case{
		Title:        req.Title,
		Description:  req.Description,
		Type:         models.CaseType(req.Type),
		TargetAmount: target,
		Category:     req.Category,
		CreatedBy:    actorID,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create case")
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionCaseCreate,
		Resource:   "cases",
		ResourceID: &c.ID,
	})
	return c, nil
}

// Get returns a case. Unpublished cases are visible to their creator and to
// admins only.
func (s *CaseLifecycleService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
	}
	if !s.canSee(c, actor) {
		return nil, appErrors.ErrForbidden
	}
	return c, nil
}

// List returns cases visible to the actor with the total count. Non-admin
// actors see published cases plus their own.
func (s *CaseLifecycleService) List(ctx context.Context, query dto.CaseQuery, actor *models.JWTClaims) ([]models.Case, int, error) {
	filter := models.CaseFilter{
		Status:   query.Status,
		Type:     query.Type,
		Category: query.Category,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if actor == nil {
		filter.Status = []models.CaseStatus{models.CaseStatusPublished}
	} else if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		if len(filter.Status) == 0 || !statusSubset(filter.Status, models.CaseStatusPublished) {
			filter.CreatedBy = actor.UserID
		}
	}
	cases, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cases")
	}
	return cases, total, nil
}

// History returns the append-only transition log for a case, oldest first.
func (s *CaseLifecycleService) History(ctx context.Context, caseID string, actor *models.JWTClaims) ([]models.CaseStatusHistory, error) {
	if _, err := s.Get(ctx, caseID, actor); err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, caseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list case history")
	}
	return history, nil
}

// ChangeStatus drives one transition through the state machine: existence,
// transition row, authorization, reason requirement, then the atomic write.
func (s *CaseLifecycleService) ChangeStatus(ctx context.Context, caseID string, target models.CaseStatus, actor TransitionActor, reason string) (*models.Case, error) {
	c, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
	}

	rule := LookupTransition(c.Status, target)
	if rule == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("transition %s -> %s is not allowed", c.Status, target))
	}

	if actor.SystemTriggered {
		if !rule.SystemTriggerable {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "transition cannot be system triggered")
		}
	} else {
		grants, err := s.permissions.Grants(ctx, actor.ActorID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve actor roles")
		}
		if !rule.RoleAllowed(grants.Roles) {
			return nil, appErrors.ErrForbidden
		}
		// Creators may only move their own cases.
		if !grants.HasRole(string(models.RoleAdmin)) && !grants.HasRole(string(models.RoleSuperAdmin)) && c.CreatedBy != actor.ActorID {
			return nil, appErrors.ErrForbidden
		}
	}

	if rule.ReasonRequired && reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required for this transition")
	}

	params := repository.TransitionParams{
		CaseID:          caseID,
		FromStatus:      c.Status,
		ToStatus:        target,
		SystemTriggered: actor.SystemTriggered,
	}
	if actor.ActorID != "" {
		params.ChangedBy = &actor.ActorID
	}
	if reason != "" {
		params.ChangeReason = &reason
	}
	if err := s.repo.ApplyTransition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "case status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}

	previous := c.Status
	c.Status = target

	payload, _ := json.Marshal(map[string]interface{}{"from": previous, "to": target, "system": actor.SystemTriggered})
	audit := &models.AuditLog{
		Action:     models.AuditActionCaseStatusChange,
		Resource:   "cases",
		ResourceID: &caseID,
		NewValues:  payload,
	}
	if actor.ActorID != "" {
		audit.UserID = &actor.ActorID
	}
	s.emitAudit(ctx, audit)

	s.dispatch(ctx, models.Event{
		Kind:       models.EventCaseStatusChanged,
		CaseID:     caseID,
		Recipients: []string{c.CreatedBy},
		Payload: map[string]interface{}{
			"from":             string(previous),
			"to":               string(target),
			"system_triggered": actor.SystemTriggered,
			"reason":           reason,
		},
	})
	return c, nil
}

// CloseFundedCases is the automatic-closure sweep: every published one-time
// case whose funded amount reached the target is moved to CLOSED as a
// system-triggered transition. Failures on one case never stop the sweep.
func (s *CaseLifecycleService) CloseFundedCases(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListFundedPublished(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list funded cases")
	}
	closed := 0
	for _, c := range candidates {
		if _, err := s.ChangeStatus(ctx, c.ID, models.CaseStatusClosed,
			TransitionActor{SystemTriggered: true}, "funding target reached"); err != nil {
			s.logger.Warn("automatic closure failed",
				zap.String("case_id", c.ID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *CaseLifecycleService) canSee(c *models.Case, actor *models.JWTClaims) bool {
	if c.Status == models.CaseStatusPublished || c.Status == models.CaseStatusClosed || c.Status == models.CaseStatusCompleted {
		return true
	}
	if actor == nil {
		return false
	}
	if actor.Role == models.RoleAdmin || actor.Role == models.RoleSuperAdmin {
		return true
	}
	return c.CreatedBy == actor.UserID
}

func (s *CaseLifecycleService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "case-lifecycle-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *CaseLifecycleService) dispatch(ctx context.Context, event models.Event) {
	if s.events == nil {
		return
	}
	s.events.Dispatch(ctx, event)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "amount must be a decimal number")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	return amount, nil
}

func statusSubset(statuses []models.CaseStatus, allowed ...models.CaseStatus) bool {
	for _, s := range statuses {
		ok := false
		for _, a := range allowed {
			if s == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
