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

// ContributionRepository persists contributions and their approval records.
// Every review operation runs in one transaction together with the funded
// amount recompute so that concurrent approvals converge on a correct total.
type ContributionRepository struct {
	db *sqlx.DB
}

// NewContributionRepository constructs the repository.
func NewContributionRepository(db *sqlx.DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

// Create inserts a contribution and its pending approval record atomically.
func (r *ContributionRepository) Create(ctx context.Context, c *models.Contribution) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create contribution: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = models.ContributionStatusPending
	c.CreatedAt = now
	c.UpdatedAt = now

	const insertContribution = `INSERT INTO contributions
	(id, case_id, project_id, cycle_id, donor_id, amount, payment_method, status, notes, created_at, updated_at)
	VALUES (:id, :case_id, :project_id, :cycle_id, :donor_id, :amount, :payment_method, :status, :notes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertContribution, c); err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}

	approval := models.ContributionApproval{
		ID:             uuid.NewString(),
		ContributionID: c.ID,
		Status:         models.ApprovalStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	const insertApproval = `INSERT INTO contribution_approval_status
	(id, contribution_id, status, admin_comment, rejection_reason, donor_reply, donor_reply_date, resubmission_count, reviewed_by, created_at, updated_at)
	VALUES (:id, :contribution_id, :status, :admin_comment, :rejection_reason, :donor_reply, :donor_reply_date, :resubmission_count, :reviewed_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertApproval, approval); err != nil {
		return fmt.Errorf("insert approval status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create contribution: %w", err)
	}
	return nil
}

const contributionWithApprovalColumns = `c.id, c.case_id, c.project_id, c.cycle_id, c.donor_id, c.amount, c.payment_method, c.status, c.notes, c.created_at, c.updated_at,
       s.id AS "approval.id", s.contribution_id AS "approval.contribution_id", s.status AS "approval.status",
       s.admin_comment AS "approval.admin_comment", s.rejection_reason AS "approval.rejection_reason",
       s.donor_reply AS "approval.donor_reply", s.donor_reply_date AS "approval.donor_reply_date",
       s.resubmission_count AS "approval.resubmission_count", s.reviewed_by AS "approval.reviewed_by",
       s.created_at AS "approval.created_at", s.updated_at AS "approval.updated_at"`

// GetWithApproval fetches a contribution joined with its approval record.
func (r *ContributionRepository) GetWithApproval(ctx context.Context, id string) (*models.ContributionWithApproval, error) {
	query := `SELECT ` + contributionWithApprovalColumns + `
	FROM contributions c
	JOIN contribution_approval_status s ON s.contribution_id = c.id
	WHERE c.id = $1`
	var result models.ContributionWithApproval
	if err := r.db.GetContext(ctx, &result, query, id); err != nil {
		return nil, err
	}
	return &result, nil
}

// List returns contributions matching the filter, latest first.
func (r *ContributionRepository) List(ctx context.Context, filter models.ContributionFilter) ([]models.ContributionWithApproval, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if filter.CaseID != "" {
		args = append(args, filter.CaseID)
		conditions = append(conditions, fmt.Sprintf("c.case_id = $%d", len(args)))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("c.project_id = $%d", len(args)))
	}
	if filter.DonorID != "" {
		args = append(args, filter.DonorID)
		conditions = append(conditions, fmt.Sprintf("c.donor_id = $%d", len(args)))
	}
	if len(filter.ApprovalStatus) > 0 {
		placeholders := make([]string, len(filter.ApprovalStatus))
		for i, status := range filter.ApprovalStatus {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("s.status IN (%s)", strings.Join(placeholders, ",")))
	}

	query := `SELECT ` + contributionWithApprovalColumns + `
	FROM contributions c
	JOIN contribution_approval_status s ON s.contribution_id = c.id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY c.created_at DESC"

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var contributions []models.ContributionWithApproval
	if err := r.db.SelectContext(ctx, &contributions, query, args...); err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return contributions, nil
}

// Approve marks a pending contribution approved and recomputes the owning
// aggregate in the same transaction. A non-pending approval record surfaces
// as sql.ErrNoRows.
func (r *ContributionRepository) Approve(ctx context.Context, contributionID, reviewerID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if err := r.updateApprovalTx(ctx, tx, contributionID, models.ApprovalStatusPending, models.ApprovalStatusApproved,
		`reviewed_by = $3`, reviewerID, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE contributions SET status = $1, updated_at = $2 WHERE id = $3`,
		models.ContributionStatusApproved, now, contributionID,
	); err != nil {
		return fmt.Errorf("update contribution status: %w", err)
	}
	if err := r.recomputeAggregateTx(ctx, tx, contributionID, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve: %w", err)
	}
	return nil
}

// Reject marks a pending contribution rejected with the mandatory reason.
func (r *ContributionRepository) Reject(ctx context.Context, contributionID, reviewerID, reason string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reject: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE contribution_approval_status
		 SET status = $1, rejection_reason = $2, reviewed_by = $3, updated_at = $4
		 WHERE contribution_id = $5 AND status = $6`,
		models.ApprovalStatusRejected, reason, reviewerID, now, contributionID, models.ApprovalStatusPending,
	)
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("check approval rows: %w", err)
	} else if rows == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE contributions SET status = $1, updated_at = $2 WHERE id = $3`,
		models.ContributionStatusRejected, now, contributionID,
	); err != nil {
		return fmt.Errorf("update contribution status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reject: %w", err)
	}
	return nil
}

// Resubmit reopens a rejected contribution: the donor reply is recorded, the
// resubmission counter bumped, and the approval reset to pending.
func (r *ContributionRepository) Resubmit(ctx context.Context, contributionID, reply string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resubmit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE contribution_approval_status
		 SET status = $1, donor_reply = $2, donor_reply_date = $3, resubmission_count = resubmission_count + 1, updated_at = $3
		 WHERE contribution_id = $4 AND status = $5`,
		models.ApprovalStatusPending, reply, now, contributionID, models.ApprovalStatusRejected,
	)
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("check approval rows: %w", err)
	} else if rows == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE contributions SET status = $1, updated_at = $2 WHERE id = $3`,
		models.ContributionStatusPending, now, contributionID,
	); err != nil {
		return fmt.Errorf("update contribution status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resubmit: %w", err)
	}
	return nil
}

// Revise terminates a rejected contribution's approval record as REVISED and
// creates the replacement contribution with a fresh pending approval. The
// replacement carries the rejection history in its admin comment.
func (r *ContributionRepository) Revise(ctx context.Context, original *models.ContributionWithApproval, replacement *models.Contribution, adminComment string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revise: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE contribution_approval_status SET status = $1, updated_at = $2
		 WHERE contribution_id = $3 AND status = $4`,
		models.ApprovalStatusRevised, now, original.ID, models.ApprovalStatusRejected,
	)
	if err != nil {
		return fmt.Errorf("mark approval revised: %w", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("check approval rows: %w", err)
	} else if rows == 0 {
		return sql.ErrNoRows
	}

	if replacement.ID == "" {
		replacement.ID = uuid.NewString()
	}
	replacement.Status = models.ContributionStatusPending
	replacement.CreatedAt = now
	replacement.UpdatedAt = now
	const insertContribution = `INSERT INTO contributions
	(id, case_id, project_id, cycle_id, donor_id, amount, payment_method, status, notes, created_at, updated_at)
	VALUES (:id, :case_id, :project_id, :cycle_id, :donor_id, :amount, :payment_method, :status, :notes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertContribution, replacement); err != nil {
		return fmt.Errorf("insert replacement contribution: %w", err)
	}

	approval := models.ContributionApproval{
		ID:             uuid.NewString(),
		ContributionID: replacement.ID,
		Status:         models.ApprovalStatusPending,
		AdminComment:   &adminComment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	const insertApproval = `INSERT INTO contribution_approval_status
	(id, contribution_id, status, admin_comment, rejection_reason, donor_reply, donor_reply_date, resubmission_count, reviewed_by, created_at, updated_at)
	VALUES (:id, :contribution_id, :status, :admin_comment, :rejection_reason, :donor_reply, :donor_reply_date, :resubmission_count, :reviewed_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertApproval, approval); err != nil {
		return fmt.Errorf("insert replacement approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revise: %w", err)
	}
	return nil
}

func (r *ContributionRepository) updateApprovalTx(ctx context.Context, tx *sqlx.Tx, contributionID string, from, to models.ApprovalStatus, extraSet, reviewerID string, now time.Time) error {
	query := fmt.Sprintf(`UPDATE contribution_approval_status
	 SET status = $1, updated_at = $2, %s
	 WHERE contribution_id = $4 AND status = $5`, extraSet)
	result, err := tx.ExecContext(ctx, query, to, now, reviewerID, contributionID, from)
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// recomputeAggregateTx rewrites the owning case's or cycle's funded amount as
// the full sum over approved contributions. The owning row is locked before
// the sum runs, so a transaction that waited on a concurrent approval reads
// the committed contribution set rather than its pre-lock snapshot.
// Recomputing instead of incrementing keeps the total correct under
// concurrent approvals and retries.
func (r *ContributionRepository) recomputeAggregateTx(ctx context.Context, tx *sqlx.Tx, contributionID string, now time.Time) error {
	var refs struct {
		CaseID  *string `db:"case_id"`
		CycleID *string `db:"cycle_id"`
	}
	if err := tx.GetContext(ctx, &refs, `SELECT case_id, cycle_id FROM contributions WHERE id = $1`, contributionID); err != nil {
		return fmt.Errorf("load contribution refs: %w", err)
	}

	if refs.CaseID != nil {
		var lockedID string
		if err := tx.GetContext(ctx, &lockedID, `SELECT id FROM cases WHERE id = $1 FOR UPDATE`, *refs.CaseID); err != nil {
			return fmt.Errorf("lock case row: %w", err)
		}
		const query = `UPDATE cases SET current_amount = (
			SELECT COALESCE(SUM(c.amount), 0)
			FROM contributions c
			JOIN contribution_approval_status s ON s.contribution_id = c.id
			WHERE c.case_id = $1 AND s.status = $2
		), updated_at = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, *refs.CaseID, models.ApprovalStatusApproved, now); err != nil {
			return fmt.Errorf("recompute case amount: %w", err)
		}
		return nil
	}
	if refs.CycleID != nil {
		var lockedID string
		if err := tx.GetContext(ctx, &lockedID, `SELECT id FROM project_cycles WHERE id = $1 FOR UPDATE`, *refs.CycleID); err != nil {
			return fmt.Errorf("lock cycle row: %w", err)
		}
		const query = `UPDATE project_cycles SET current_amount = (
			SELECT COALESCE(SUM(c.amount), 0)
			FROM contributions c
			JOIN contribution_approval_status s ON s.contribution_id = c.id
			WHERE c.cycle_id = $1 AND s.status = $2
		), updated_at = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, *refs.CycleID, models.ApprovalStatusApproved, now); err != nil {
			return fmt.Errorf("recompute cycle amount: %w", err)
		}
	}
	return nil
}
