package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
)

type projectRepoStub struct {
	projects   map[string]*models.Project
	nextCycles map[string]*models.ProjectCycle
	advanceErr error
	due        []models.Project
	cancelled  []string
}

func newProjectRepoStub() *projectRepoStub {
	return &projectRepoStub{
		projects:   make(map[string]*models.Project),
		nextCycles: make(map[string]*models.ProjectCycle),
	}
}

func (s *projectRepoStub) Create(_ context.Context, p *models.Project) (*models.ProjectCycle, error) {
	if p.ID == "" {
		p.ID = "project-" + p.Title
	}
	p.Status = models.ProjectStatusActive
	p.CurrentCycleNumber = 1
	s.projects[p.ID] = p
	return &models.ProjectCycle{ID: p.ID + "-cycle-1", ProjectID: p.ID, CycleNumber: 1, Status: models.CycleStatusActive}, nil
}

func (s *projectRepoStub) GetByID(_ context.Context, id string) (*models.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (s *projectRepoStub) GetWithCycles(_ context.Context, id string) (*models.ProjectWithCycles, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ProjectWithCycles{Project: *p}, nil
}

func (s *projectRepoStub) ActiveCycle(_ context.Context, projectID string) (*models.ProjectCycle, error) {
	c, ok := s.nextCycles[projectID]
	if !ok || c == nil {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (s *projectRepoStub) List(_ context.Context, _ models.ProjectFilter) ([]models.Project, error) {
	out := make([]models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (s *projectRepoStub) ListDue(_ context.Context, _ time.Time) ([]models.Project, error) {
	return s.due, nil
}

func (s *projectRepoStub) AdvanceCycle(_ context.Context, projectID string) (*models.ProjectCycle, error) {
	if s.advanceErr != nil {
		return nil, s.advanceErr
	}
	next := s.nextCycles[projectID]
	if next == nil {
		s.projects[projectID].Status = models.ProjectStatusCompleted
	}
	return next, nil
}

func (s *projectRepoStub) UpdateStatus(_ context.Context, projectID string, from, to models.ProjectStatus) error {
	p, ok := s.projects[projectID]
	if !ok || p.Status != from {
		return sql.ErrNoRows
	}
	p.Status = to
	return nil
}

func (s *projectRepoStub) CancelActiveCycle(_ context.Context, projectID string) error {
	s.cancelled = append(s.cancelled, projectID)
	return nil
}

type projectFixture struct {
	svc         *ProjectCycleService
	repo        *projectRepoStub
	permissions *permissionStub
	audit       *auditStub
	events      *sinkStub
}

func newProjectFixture() *projectFixture {
	f := &projectFixture{
		repo:        newProjectRepoStub(),
		permissions: &permissionStub{allowed: make(map[string]bool)},
		audit:       &auditStub{},
		events:      &sinkStub{},
	}
	f.svc = NewProjectCycleService(f.repo, f.permissions, f.audit, f.events, nil)
	return f
}

func (f *projectFixture) allow(userID, permission string) {
	f.permissions.allowed[userID+"|"+permission] = true
}

func (f *projectFixture) seedProject(id string, status models.ProjectStatus) *models.Project {
	p := &models.Project{
		ID:                id,
		Title:             "Monthly support",
		Status:            status,
		TargetAmount:      decimal.NewFromInt(500),
		CycleDurationDays: 30,
		CreatedBy:         "creator-1",
	}
	f.repo.projects[id] = p
	return p
}

func TestProjectCreateValidatesCycleSettings(t *testing.T) {
	f := newProjectFixture()

	_, err := f.svc.Create(context.Background(), dto.CreateProjectRequest{
		Title: "Bad", TargetAmount: "500", CycleDurationDays: 0,
	}, "creator-1")
	requireErrCode(t, err, appErrors.ErrValidation.Code)

	_, err = f.svc.Create(context.Background(), dto.CreateProjectRequest{
		Title: "Bad", TargetAmount: "500", CycleDurationDays: 30, TotalCycles: -1,
	}, "creator-1")
	requireErrCode(t, err, appErrors.ErrValidation.Code)

	created, err := f.svc.Create(context.Background(), dto.CreateProjectRequest{
		Title: "Good", TargetAmount: "500", CycleDurationDays: 30, TotalCycles: 12, AutoProgress: true,
	}, "creator-1")
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusActive, created.Status)
	require.Len(t, created.Cycles, 1)
	require.Equal(t, 1, created.Cycles[0].CycleNumber)
	require.Len(t, f.audit.logs, 1)
}

func TestAdvanceRequiresPermissionForManualCalls(t *testing.T) {
	f := newProjectFixture()
	f.seedProject("project-1", models.ProjectStatusActive)

	_, err := f.svc.Advance(context.Background(), "project-1", TransitionActor{ActorID: "user-1"})
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
}

func TestAdvanceRejectsInactiveProject(t *testing.T) {
	f := newProjectFixture()
	f.seedProject("project-1", models.ProjectStatusPaused)
	f.allow("admin-1", models.PermProjectsAdvance)

	_, err := f.svc.Advance(context.Background(), "project-1", TransitionActor{ActorID: "admin-1"})
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestAdvanceOpensNextCycle(t *testing.T) {
	f := newProjectFixture()
	f.seedProject("project-1", models.ProjectStatusActive)
	f.repo.nextCycles["project-1"] = &models.ProjectCycle{ID: "cycle-2", ProjectID: "project-1", CycleNumber: 2, Status: models.CycleStatusActive}
	f.allow("admin-1", models.PermProjectsAdvance)

	next, err := f.svc.Advance(context.Background(), "project-1", TransitionActor{ActorID: "admin-1"})
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 2, next.CycleNumber)

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, models.AuditActionCycleAdvance, f.audit.logs[0].Action)
	require.Len(t, f.events.events, 1)
	require.Equal(t, models.EventProjectCycleAdvanced, f.events.events[0].Kind)
}

func TestAdvanceCompletesExhaustedProject(t *testing.T) {
	f := newProjectFixture()
	f.seedProject("project-1", models.ProjectStatusActive)
	f.allow("admin-1", models.PermProjectsAdvance)

	next, err := f.svc.Advance(context.Background(), "project-1", TransitionActor{ActorID: "admin-1"})
	require.NoError(t, err)
	require.Nil(t, next)
	require.Equal(t, models.ProjectStatusCompleted, f.repo.projects["project-1"].Status)
	require.Len(t, f.events.events, 1)
	require.Equal(t, models.EventProjectCompleted, f.events.events[0].Kind)
}

func TestAdvanceAlreadyClosedCycleIsNoOp(t *testing.T) {
	f := newProjectFixture()
	f.seedProject("project-1", models.ProjectStatusActive)
	f.repo.advanceErr = sql.ErrNoRows

	next, err := f.svc.Advance(context.Background(), "project-1", TransitionActor{SystemTriggered: true})
	require.NoError(t, err)
	require.Nil(t, next)
	require.Empty(t, f.audit.logs)
	require.Empty(t, f.events.events)
}

func TestCheckAndAdvanceCyclesContinuesPastFailures(t *testing.T) {
	f := newProjectFixture()
	f.seedProject("project-1", models.ProjectStatusActive)
	f.repo.nextCycles["project-1"] = &models.ProjectCycle{ID: "cycle-2", ProjectID: "project-1", CycleNumber: 2}
	f.repo.due = []models.Project{
		{ID: "project-gone"},
		{ID: "project-1"},
	}

	result, err := f.svc.CheckAndAdvanceCycles(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"project-1"}, result.Advanced)
}

func TestPauseAndResumeGuardStatus(t *testing.T) {
	f := newProjectFixture()
	f.seedProject("project-1", models.ProjectStatusActive)
	f.allow("admin-1", models.PermProjectsUpdate)

	require.NoError(t, f.svc.Pause(context.Background(), "project-1", "admin-1"))
	require.Equal(t, models.ProjectStatusPaused, f.repo.projects["project-1"].Status)

	// Pausing a paused project reports the status race.
	err := f.svc.Pause(context.Background(), "project-1", "admin-1")
	requireErrCode(t, err, appErrors.ErrConflict.Code)

	require.NoError(t, f.svc.Resume(context.Background(), "project-1", "admin-1"))
	require.Equal(t, models.ProjectStatusActive, f.repo.projects["project-1"].Status)
}

func TestCancelFinishedProjectIsConflict(t *testing.T) {
	f := newProjectFixture()
	f.seedProject("project-1", models.ProjectStatusCompleted)
	f.allow("admin-1", models.PermProjectsUpdate)

	err := f.svc.Cancel(context.Background(), "project-1", "admin-1")
	requireErrCode(t, err, appErrors.ErrConflict.Code)
}

func TestCancelStopsActiveCycle(t *testing.T) {
	f := newProjectFixture()
	f.seedProject("project-1", models.ProjectStatusActive)
	f.allow("admin-1", models.PermProjectsUpdate)

	require.NoError(t, f.svc.Cancel(context.Background(), "project-1", "admin-1"))
	require.Equal(t, models.ProjectStatusCancelled, f.repo.projects["project-1"].Status)
	require.Equal(t, []string{"project-1"}, f.repo.cancelled)
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, models.AuditActionProjectUpdate, f.audit.logs[0].Action)
}
