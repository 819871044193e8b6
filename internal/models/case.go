package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CaseStatus enumerates the lifecycle states of a funding case.
type CaseStatus string

const (
	CaseStatusDraft       CaseStatus = "DRAFT"
	CaseStatusSubmitted   CaseStatus = "SUBMITTED"
	CaseStatusUnderReview CaseStatus = "UNDER_REVIEW"
	CaseStatusPublished   CaseStatus = "PUBLISHED"
	CaseStatusClosed      CaseStatus = "CLOSED"
	CaseStatusCompleted   CaseStatus = "COMPLETED"
)

// CaseType distinguishes one-off requests from recurring projects' cases.
type CaseType string

const (
	CaseTypeOneTime   CaseType = "ONE_TIME"
	CaseTypeRecurring CaseType = "RECURRING"
)

// Case is a funding request. CurrentAmount is derived from approved
// contributions and is only ever written by the aggregate recompute.
type Case struct {
	ID            string          `db:"id" json:"id"`
	Title         string          `db:"title" json:"title"`
	Description   string          `db:"description" json:"description"`
	Status        CaseStatus      `db:"status" json:"status"`
	Type          CaseType        `db:"type" json:"type"`
	TargetAmount  decimal.Decimal `db:"target_amount" json:"target_amount"`
	CurrentAmount decimal.Decimal `db:"current_amount" json:"current_amount"`
	Category      *string         `db:"category" json:"category,omitempty"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	AssignedTo    *string         `db:"assigned_to" json:"assigned_to,omitempty"`
	SponsoredBy   *string         `db:"sponsored_by" json:"sponsored_by,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// FullyFunded reports whether the case reached its target. Over-funding
// counts as funded.
func (c *Case) FullyFunded() bool {
	return c.CurrentAmount.GreaterThanOrEqual(c.TargetAmount)
}

// CaseStatusHistory is an append-only record of one accepted transition.
type CaseStatusHistory struct {
	ID              string     `db:"id" json:"id"`
	CaseID          string     `db:"case_id" json:"case_id"`
	PreviousStatus  CaseStatus `db:"previous_status" json:"previous_status"`
	NewStatus       CaseStatus `db:"new_status" json:"new_status"`
	ChangedBy       *string    `db:"changed_by" json:"changed_by,omitempty"`
	SystemTriggered bool       `db:"system_triggered" json:"system_triggered"`
	ChangeReason    *string    `db:"change_reason" json:"change_reason,omitempty"`
	ChangedAt       time.Time  `db:"changed_at" json:"changed_at"`
}

// CaseFilter constrains case listing queries.
type CaseFilter struct {
	Status    []CaseStatus
	Type      CaseType
	Category  string
	CreatedBy string
	Page      int
	PageSize  int
}
