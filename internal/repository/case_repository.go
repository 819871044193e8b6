package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openfund-labs/fundflow-api/internal/models"
)

// CaseRepository persists funding cases and their status history.
type CaseRepository struct {
	db *sqlx.DB
}

// NewCaseRepository constructs the repository.
func NewCaseRepository(db *sqlx.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

// Create inserts a new case row.
func (r *CaseRepository) Create(ctx context.Context, c *models.Case) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.CaseStatusDraft
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	const query = `INSERT INTO cases
	(id, title, description, status, type, target_amount, current_amount, category, created_by, assigned_to, sponsored_by, created_at, updated_at)
	VALUES (:id, :title, :description, :status, :type, :target_amount, :current_amount, :category, :created_by, :assigned_to, :sponsored_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("create case: %w", err)
	}
	return nil
}

// GetByID fetches a case by identifier.
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*models.Case, error) {
	const query = `SELECT id, title, description, status, type, target_amount, current_amount, category,
	       created_by, assigned_to, sponsored_by, created_at, updated_at
	FROM cases WHERE id = $1`
	var c models.Case
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns cases matching the filter together with the total count.
func (r *CaseRepository) List(ctx context.Context, filter models.CaseFilter) ([]models.Case, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM cases"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count cases: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	query := `SELECT id, title, description, status, type, target_amount, current_amount, category,
	       created_by, assigned_to, sponsored_by, created_at, updated_at FROM cases` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var cases []models.Case
	if err := r.db.SelectContext(ctx, &cases, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list cases: %w", err)
	}
	return cases, total, nil
}

// TransitionParams groups the writes of one accepted status transition.
type TransitionParams struct {
	CaseID          string
	FromStatus      models.CaseStatus
	ToStatus        models.CaseStatus
	ChangedBy       *string
	SystemTriggered bool
	ChangeReason    *string
}

// ApplyTransition atomically updates the case status and appends the history
// row. The update is guarded on the previous status; a concurrent transition
// surfaces as sql.ErrNoRows so the caller can report a conflict.
func (r *CaseRepository) ApplyTransition(ctx context.Context, params TransitionParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE cases SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		params.ToStatus, now, params.CaseID, params.FromStatus,
	)
	if err != nil {
		return fmt.Errorf("update case status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check case update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	history := models.CaseStatusHistory{
		ID:              uuid.NewString(),
		CaseID:          params.CaseID,
		PreviousStatus:  params.FromStatus,
		NewStatus:       params.ToStatus,
		ChangedBy:       params.ChangedBy,
		SystemTriggered: params.SystemTriggered,
		ChangeReason:    params.ChangeReason,
		ChangedAt:       now,
	}
	const historyQuery = `INSERT INTO case_status_history
	(id, case_id, previous_status, new_status, changed_by, system_triggered, change_reason, changed_at)
	VALUES (:id, :case_id, :previous_status, :new_status, :changed_by, :system_triggered, :change_reason, :changed_at)`
	if _, err := tx.NamedExecContext(ctx, historyQuery, history); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// ListHistory returns the append-only transition log for a case, oldest first.
func (r *CaseRepository) ListHistory(ctx context.Context, caseID string) ([]models.CaseStatusHistory, error) {
	const query = `SELECT id, case_id, previous_status, new_status, changed_by, system_triggered, change_reason, changed_at
	FROM case_status_history WHERE case_id = $1 ORDER BY changed_at ASC`
	var history []models.CaseStatusHistory
	if err := r.db.SelectContext(ctx, &history, query, caseID); err != nil {
		return nil, fmt.Errorf("list case history: %w", err)
	}
	return history, nil
}

// ListFundedPublished returns published one-time cases whose funded amount
// reached the target. These are candidates for the automatic closure sweep.
func (r *CaseRepository) ListFundedPublished(ctx context.Context) ([]models.Case, error) {
	const query = `SELECT id, title, description, status, type, target_amount, current_amount, category,
	       created_by, assigned_to, sponsored_by, created_at, updated_at
	FROM cases
	WHERE status = $1 AND type = $2 AND current_amount >= target_amount`
	var cases []models.Case
	if err := r.db.SelectContext(ctx, &cases, query, models.CaseStatusPublished, models.CaseTypeOneTime); err != nil {
		return nil, fmt.Errorf("list funded cases: %w", err)
	}
	return cases, nil
}
