package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributionStatus mirrors the approval outcome on the contribution row
// itself (legacy column kept in sync with the approval record).
type ContributionStatus string

const (
	ContributionStatusPending  ContributionStatus = "PENDING"
	ContributionStatusApproved ContributionStatus = "APPROVED"
	ContributionStatusRejected ContributionStatus = "REJECTED"
)

// ApprovalStatus is the admin-review state tracked 1:1 with a contribution.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
	ApprovalStatusRevised  ApprovalStatus = "REVISED"
)

// Contribution is a donor's pledge toward a case or a project cycle. Exactly
// one of CaseID/ProjectID is set; project contributions are pinned to the
// cycle that was active when the pledge was submitted. Rows are immutable
// except for status and notes; a revision creates a new row.
type Contribution struct {
	ID            string             `db:"id" json:"id"`
	CaseID        *string            `db:"case_id" json:"case_id,omitempty"`
	ProjectID     *string            `db:"project_id" json:"project_id,omitempty"`
	CycleID       *string            `db:"cycle_id" json:"cycle_id,omitempty"`
	DonorID       string             `db:"donor_id" json:"donor_id"`
	Amount        decimal.Decimal    `db:"amount" json:"amount"`
	PaymentMethod string             `db:"payment_method" json:"payment_method"`
	Status        ContributionStatus `db:"status" json:"status"`
	Notes         *string            `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// ContributionApproval tracks the review pipeline for one contribution.
type ContributionApproval struct {
	ID                string         `db:"id" json:"id"`
	ContributionID    string         `db:"contribution_id" json:"contribution_id"`
	Status            ApprovalStatus `db:"status" json:"status"`
	AdminComment      *string        `db:"admin_comment" json:"admin_comment,omitempty"`
	RejectionReason   *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	DonorReply        *string        `db:"donor_reply" json:"donor_reply,omitempty"`
	DonorReplyDate    *time.Time     `db:"donor_reply_date" json:"donor_reply_date,omitempty"`
	ResubmissionCount int            `db:"resubmission_count" json:"resubmission_count"`
	ReviewedBy        *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// ContributionWithApproval joins a contribution with its approval record.
type ContributionWithApproval struct {
	Contribution
	Approval ContributionApproval `json:"approval"`
}

// ContributionFilter constrains contribution listing queries.
type ContributionFilter struct {
	CaseID         string
	ProjectID      string
	DonorID        string
	ApprovalStatus []ApprovalStatus
	Page           int
	PageSize       int
}
