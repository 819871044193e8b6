package dto

import (
	"github.com/openfund-labs/fundflow-api/internal/models"
)

// CreateCaseRequest opens a new funding case in DRAFT.
type CreateCaseRequest struct {
	Title        string  `json:"title" validate:"required,min=3"`
	Description  string  `json:"description" validate:"required"`
	Type         string  `json:"type" validate:"required,oneof=ONE_TIME RECURRING"`
	TargetAmount string  `json:"target_amount" validate:"required"`
	Category     *string `json:"category,omitempty"`
}

// ChangeCaseStatusRequest asks for one lifecycle transition.
type ChangeCaseStatusRequest struct {
	TargetStatus models.CaseStatus `json:"target_status" validate:"required"`
	Reason       string            `json:"reason,omitempty"`
}

// CaseQuery captures list filters from the query string.
type CaseQuery struct {
	Status   []models.CaseStatus
	Type     models.CaseType
	Category string
	Page     int
	PageSize int
}
