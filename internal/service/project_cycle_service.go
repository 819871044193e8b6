package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
)

type projectStore interface {
	Create(ctx context.Context, p *models.Project) (*models.ProjectCycle, error)
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetWithCycles(ctx context.Context, id string) (*models.ProjectWithCycles, error)
	ActiveCycle(ctx context.Context, projectID string) (*models.ProjectCycle, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error)
	ListDue(ctx context.Context, now time.Time) ([]models.Project, error)
	AdvanceCycle(ctx context.Context, projectID string) (*models.ProjectCycle, error)
	UpdateStatus(ctx context.Context, projectID string, from, to models.ProjectStatus) error
	CancelActiveCycle(ctx context.Context, projectID string) error
}

// ProjectCycleService manages recurring projects: cycle advancement (manual
// and scheduled), pausing, resuming, and cancellation.
type ProjectCycleService struct {
	repo        projectStore
	permissions permissionChecker
	audit       auditLogger
	events      eventSink
	logger      *zap.Logger
}

// NewProjectCycleService constructs the service.
func NewProjectCycleService(repo projectStore, permissions permissionChecker, audit auditLogger, events eventSink, logger *zap.Logger) *ProjectCycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectCycleService{
		repo:        repo,
		permissions: permissions,
		audit:       audit,
		events:      events,
		logger:      logger,
	}
}

// Create opens a project with its first active cycle.
func (s *ProjectCycleService) Create(ctx context.Context, req dto.CreateProjectRequest, actorID string) (*models.ProjectWithCycles, error) {
	target, err := parseAmount(req.TargetAmount)
	if err != nil {
		return nil, err
	}
	if req.CycleDurationDays < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cycle duration must be at least one day")
	}
	if req.TotalCycles < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "total cycles cannot be negative")
	}

	project := &models.Project{
		Title:             req.Title,
		Description:       req.Description,
		TargetAmount:      target,
		TotalCycles:       req.TotalCycles,
		CycleDurationDays: req.CycleDurationDays,
		AutoProgress:      req.AutoProgress,
		CreatedBy:         actorID,
	}
	cycle, err := s.repo.Create(ctx, project)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
	}

	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionProjectCreate,
		Resource:   "projects",
		ResourceID: &project.ID,
	})
	return &models.ProjectWithCycles{Project: *project, Cycles: []models.ProjectCycle{*cycle}}, nil
}

// Get returns a project with all its cycles.
func (s *ProjectCycleService) Get(ctx context.Context, id string) (*models.ProjectWithCycles, error) {
	project, err := s.repo.GetWithCycles(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

// List returns projects matching the filter.
func (s *ProjectCycleService) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	projects, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	return projects, nil
}

// Advance closes the project's active cycle and opens the next one, or
// completes the project when all planned cycles have run. Advancing a
// project whose cycle was already closed is a no-op, which makes the
// scheduled sweep safe to retry.
func (s *ProjectCycleService) Advance(ctx context.Context, projectID string, actor TransitionActor) (*models.ProjectCycle, error) {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if !actor.SystemTriggered {
		if err := s.requirePermission(ctx, actor.ActorID, models.PermProjectsAdvance); err != nil {
			return nil, err
		}
	}
	if project.Status != models.ProjectStatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only active projects can advance")
	}

	next, err := s.repo.AdvanceCycle(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another advance already closed the cycle.
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance cycle")
	}

	payload, _ := json.Marshal(map[string]interface{}{"system": actor.SystemTriggered})
	audit := &models.AuditLog{
		Action:     models.AuditActionCycleAdvance,
		Resource:   "projects",
		ResourceID: &projectID,
		NewValues:  payload,
	}
	if actor.ActorID != "" {
		audit.UserID = &actor.ActorID
	}
	s.emitAudit(ctx, audit)

	if next == nil {
		s.dispatch(ctx, models.Event{
			Kind:      models.EventProjectCompleted,
			ProjectID: projectID,
		})
		return nil, nil
	}
	s.dispatch(ctx, models.Event{
		Kind:      models.EventProjectCycleAdvanced,
		ProjectID: projectID,
		Payload:   map[string]interface{}{"cycle_number": next.CycleNumber},
	})
	return next, nil
}

// CheckAndAdvanceCycles is the scheduled sweep: every active auto-progress
// project whose cycle elapsed or hit its target is advanced. One failing
// project never stops the sweep.
func (s *ProjectCycleService) CheckAndAdvanceCycles(ctx context.Context) (dto.AdvanceResult, error) {
	due, err := s.repo.ListDue(ctx, time.Now().UTC())
	if err != nil {
		return dto.AdvanceResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list due projects")
	}
	result := dto.AdvanceResult{Advanced: []string{}}
	for _, project := range due {
		if _, err := s.Advance(ctx, project.ID, TransitionActor{SystemTriggered: true}); err != nil {
			s.logger.Warn("scheduled cycle advance failed",
				zap.String("project_id", project.ID), zap.Error(err))
			continue
		}
		result.Advanced = append(result.Advanced, project.ID)
	}
	return result, nil
}

// Pause suspends an active project. Paused projects never auto-advance and
// reject new contributions.
func (s *ProjectCycleService) Pause(ctx context.Context, projectID, actorID string) error {
	return s.changeStatus(ctx, projectID, actorID, models.ProjectStatusActive, models.ProjectStatusPaused)
}

// Resume reactivates a paused project.
func (s *ProjectCycleService) Resume(ctx context.Context, projectID, actorID string) error {
	return s.changeStatus(ctx, projectID, actorID, models.ProjectStatusPaused, models.ProjectStatusActive)
}

// Cancel terminates a project and cancels its active cycle, if any.
func (s *ProjectCycleService) Cancel(ctx context.Context, projectID, actorID string) error {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if err := s.requirePermission(ctx, actorID, models.PermProjectsUpdate); err != nil {
		return err
	}
	if project.Status == models.ProjectStatusCompleted || project.Status == models.ProjectStatusCancelled {
		return appErrors.Clone(appErrors.ErrConflict, "project already finished")
	}
	if err := s.repo.UpdateStatus(ctx, projectID, project.Status, models.ProjectStatusCancelled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "project status changed concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel project")
	}
	if err := s.repo.CancelActiveCycle(ctx, projectID); err != nil {
		s.logger.Warn("failed to cancel active cycle", zap.String("project_id", projectID), zap.Error(err))
	}
	s.emitStatusAudit(ctx, actorID, projectID, project.Status, models.ProjectStatusCancelled)
	return nil
}

func (s *ProjectCycleService) changeStatus(ctx context.Context, projectID, actorID string, from, to models.ProjectStatus) error {
	if err := s.requirePermission(ctx, actorID, models.PermProjectsUpdate); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, projectID, from, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "project is not in the required status")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project status")
	}
	s.emitStatusAudit(ctx, actorID, projectID, from, to)
	return nil
}

func (s *ProjectCycleService) emitStatusAudit(ctx context.Context, actorID, projectID string, from, to models.ProjectStatus) {
	payload, _ := json.Marshal(map[string]string{"from": string(from), "to": string(to)})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionProjectUpdate,
		Resource:   "projects",
		ResourceID: &projectID,
		NewValues:  payload,
	})
}

func (s *ProjectCycleService) requirePermission(ctx context.Context, userID, permission string) error {
	allowed, err := s.permissions.HasPermission(ctx, userID, permission)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check permission")
	}
	if !allowed {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *ProjectCycleService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "project-cycle-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *ProjectCycleService) dispatch(ctx context.Context, event models.Event) {
	if s.events == nil {
		return
	}
	s.events.Dispatch(ctx, event)
}
