package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/openfund-labs/fundflow-api/internal/models"
)

// ProjectRepository persists recurring projects and their funding cycles.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, title, description, status, target_amount, total_cycles, current_cycle_number,
       cycle_duration_days, auto_progress, created_by, created_at, updated_at`

const cycleColumns = `id, project_id, cycle_number, start_date, end_date, target_amount, current_amount,
       status, completed_at, created_at, updated_at`

// Create inserts a project and opens cycle 1 in one transaction.
func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) (*models.ProjectCycle, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create project: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = models.ProjectStatusActive
	p.CurrentCycleNumber = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	const insertProject = `INSERT INTO projects
	(id, title, description, status, target_amount, total_cycles, current_cycle_number, cycle_duration_days, auto_progress, created_by, created_at, updated_at)
	VALUES (:id, :title, :description, :status, :target_amount, :total_cycles, :current_cycle_number, :cycle_duration_days, :auto_progress, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertProject, p); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	cycle := &models.ProjectCycle{
		ID:            uuid.NewString(),
		ProjectID:     p.ID,
		CycleNumber:   1,
		StartDate:     now,
		EndDate:       now.AddDate(0, 0, p.CycleDurationDays),
		TargetAmount:  p.TargetAmount,
		CurrentAmount: decimal.Zero,
		Status:        models.CycleStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := insertCycleTx(ctx, tx, cycle); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create project: %w", err)
	}
	return cycle, nil
}

// GetByID fetches a project by identifier.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := r.db.GetContext(ctx, &p, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetWithCycles fetches a project and all its cycles ordered by number.
func (r *ProjectRepository) GetWithCycles(ctx context.Context, id string) (*models.ProjectWithCycles, error) {
	project, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var cycles []models.ProjectCycle
	if err := r.db.SelectContext(ctx, &cycles,
		`SELECT `+cycleColumns+` FROM project_cycles WHERE project_id = $1 ORDER BY cycle_number ASC`, id); err != nil {
		return nil, fmt.Errorf("list project cycles: %w", err)
	}
	return &models.ProjectWithCycles{Project: *project, Cycles: cycles}, nil
}

// ActiveCycle returns the project's active cycle, if any.
func (r *ProjectRepository) ActiveCycle(ctx context.Context, projectID string) (*models.ProjectCycle, error) {
	var cycle models.ProjectCycle
	if err := r.db.GetContext(ctx, &cycle,
		`SELECT `+cycleColumns+` FROM project_cycles WHERE project_id = $1 AND status = $2`,
		projectID, models.CycleStatusActive); err != nil {
		return nil, err
	}
	return &cycle, nil
}

// List returns projects matching the filter, latest first.
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	conditions := make([]string, 0, 1)
	args := make([]interface{}, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	query := `SELECT ` + projectColumns + ` FROM projects`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListDue returns auto-progress projects whose active cycle either passed its
// end date or reached its target. Paused projects never match.
func (r *ProjectRepository) ListDue(ctx context.Context, now time.Time) ([]models.Project, error) {
	const query = `SELECT p.id, p.title, p.description, p.status, p.target_amount, p.total_cycles, p.current_cycle_number,
	       p.cycle_duration_days, p.auto_progress, p.created_by, p.created_at, p.updated_at
	FROM projects p
	JOIN project_cycles c ON c.project_id = p.id AND c.status = $1
	WHERE p.status = $2 AND p.auto_progress = TRUE
	  AND (c.end_date <= $3 OR c.current_amount >= c.target_amount)`
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, models.CycleStatusActive, models.ProjectStatusActive, now); err != nil {
		return nil, fmt.Errorf("list due projects: %w", err)
	}
	return projects, nil
}

// AdvanceCycle completes the project's active cycle and opens the next one
// (or completes the project when all planned cycles have run) in one
// transaction. A project without an active cycle surfaces sql.ErrNoRows so
// the caller can treat a double advance as a no-op.
func (r *ProjectRepository) AdvanceCycle(ctx context.Context, projectID string) (*models.ProjectCycle, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin advance cycle: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var project models.Project
	if err := tx.GetContext(ctx, &project, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, projectID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE project_cycles SET status = $1, completed_at = $2, updated_at = $2
		 WHERE project_id = $3 AND status = $4`,
		models.CycleStatusCompleted, now, projectID, models.CycleStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("complete active cycle: %w", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("check cycle rows: %w", err)
	} else if rows == 0 {
		return nil, sql.ErrNoRows
	}

	// Settle the closed cycle's amount from approved contributions.
	if _, err := tx.ExecContext(ctx,
		`UPDATE project_cycles SET current_amount = (
			SELECT COALESCE(SUM(c.amount), 0)
			FROM contributions c
			JOIN contribution_approval_status s ON s.contribution_id = c.id
			WHERE c.cycle_id = project_cycles.id AND s.status = $1
		) WHERE project_id = $2 AND cycle_number = $3`,
		models.ApprovalStatusApproved, projectID, project.CurrentCycleNumber,
	); err != nil {
		return nil, fmt.Errorf("settle cycle amount: %w", err)
	}

	if project.TotalCycles > 0 && project.CurrentCycleNumber >= project.TotalCycles {
		if _, err := tx.ExecContext(ctx,
			`UPDATE projects SET status = $1, updated_at = $2 WHERE id = $3`,
			models.ProjectStatusCompleted, now, projectID,
		); err != nil {
			return nil, fmt.Errorf("complete project: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit advance cycle: %w", err)
		}
		return nil, nil
	}

	next := &models.ProjectCycle{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		CycleNumber:   project.CurrentCycleNumber + 1,
		StartDate:     now,
		EndDate:       now.AddDate(0, 0, project.CycleDurationDays),
		TargetAmount:  project.TargetAmount,
		CurrentAmount: decimal.Zero,
		Status:        models.CycleStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := insertCycleTx(ctx, tx, next); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET current_cycle_number = $1, updated_at = $2 WHERE id = $3`,
		next.CycleNumber, now, projectID,
	); err != nil {
		return nil, fmt.Errorf("bump cycle number: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit advance cycle: %w", err)
	}
	return next, nil
}

// UpdateStatus moves a project between statuses with a guard on the expected
// previous status. Zero affected rows surface as sql.ErrNoRows.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, projectID string, from, to models.ProjectStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), projectID, from,
	)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check project rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CancelActiveCycle marks the project's active cycle cancelled, if present.
func (r *ProjectRepository) CancelActiveCycle(ctx context.Context, projectID string) error {
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx,
		`UPDATE project_cycles SET status = $1, completed_at = $2, updated_at = $2
		 WHERE project_id = $3 AND status = $4`,
		models.CycleStatusCancelled, now, projectID, models.CycleStatusActive,
	); err != nil {
		return fmt.Errorf("cancel active cycle: %w", err)
	}
	return nil
}

func insertCycleTx(ctx context.Context, tx *sqlx.Tx, cycle *models.ProjectCycle) error {
	const query = `INSERT INTO project_cycles
	(id, project_id, cycle_number, start_date, end_date, target_amount, current_amount, status, completed_at, created_at, updated_at)
	VALUES (:id, :project_id, :cycle_number, :start_date, :end_date, :target_amount, :current_amount, :status, :completed_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, cycle); err != nil {
		return fmt.Errorf("insert project cycle: %w", err)
	}
	return nil
}
