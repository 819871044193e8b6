package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectStatus enumerates the states of a recurring project.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "ACTIVE"
	ProjectStatusPaused    ProjectStatus = "PAUSED"
	ProjectStatusCompleted ProjectStatus = "COMPLETED"
	ProjectStatusCancelled ProjectStatus = "CANCELLED"
)

// CycleStatus enumerates the states of a single funding round.
type CycleStatus string

const (
	CycleStatusActive    CycleStatus = "ACTIVE"
	CycleStatusCompleted CycleStatus = "COMPLETED"
	CycleStatusCancelled CycleStatus = "CANCELLED"
)

// Project is a recurring funding programme split into fixed-duration cycles.
// TargetAmount is the per-cycle template copied onto each new cycle.
// TotalCycles of zero means unbounded.
type Project struct {
	ID                 string          `db:"id" json:"id"`
	Title              string          `db:"title" json:"title"`
	Description        *string         `db:"description" json:"description,omitempty"`
	Status             ProjectStatus   `db:"status" json:"status"`
	TargetAmount       decimal.Decimal `db:"target_amount" json:"target_amount"`
	TotalCycles        int             `db:"total_cycles" json:"total_cycles"`
	CurrentCycleNumber int             `db:"current_cycle_number" json:"current_cycle_number"`
	CycleDurationDays  int             `db:"cycle_duration_days" json:"cycle_duration_days"`
	AutoProgress       bool            `db:"auto_progress" json:"auto_progress"`
	CreatedBy          string          `db:"created_by" json:"created_by"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// ProjectCycle is one funding round. Cycle numbers are 1-based and contiguous
// per project. Closed cycles are immutable except the final amount settle.
type ProjectCycle struct {
	ID            string          `db:"id" json:"id"`
	ProjectID     string          `db:"project_id" json:"project_id"`
	CycleNumber   int             `db:"cycle_number" json:"cycle_number"`
	StartDate     time.Time       `db:"start_date" json:"start_date"`
	EndDate       time.Time       `db:"end_date" json:"end_date"`
	TargetAmount  decimal.Decimal `db:"target_amount" json:"target_amount"`
	CurrentAmount decimal.Decimal `db:"current_amount" json:"current_amount"`
	Status        CycleStatus     `db:"status" json:"status"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Due reports whether the cycle should advance at the given instant: either
// the funding window elapsed or the target was reached, whichever first.
func (c *ProjectCycle) Due(now time.Time) bool {
	if c.Status != CycleStatusActive {
		return false
	}
	if !now.Before(c.EndDate) {
		return true
	}
	return c.CurrentAmount.GreaterThanOrEqual(c.TargetAmount)
}

// ProjectWithCycles bundles a project with its funding rounds.
type ProjectWithCycles struct {
	Project
	Cycles []ProjectCycle `json:"cycles"`
}

// ProjectFilter constrains project listing queries.
type ProjectFilter struct {
	Status   []ProjectStatus
	Page     int
	PageSize int
}
