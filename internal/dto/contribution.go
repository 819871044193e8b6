package dto

// CreateContributionRequest submits a donor pledge against a published case
// or an active project. Exactly one of CaseID/ProjectID must be set.
type CreateContributionRequest struct {
	CaseID        *string `json:"case_id,omitempty"`
	ProjectID     *string `json:"project_id,omitempty"`
	Amount        string  `json:"amount" validate:"required"`
	PaymentMethod string  `json:"payment_method" validate:"required"`
	Notes         *string `json:"notes,omitempty"`
}

// RejectContributionRequest carries the mandatory rejection reason.
type RejectContributionRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ResubmitContributionRequest reopens a rejected contribution with a reply.
type ResubmitContributionRequest struct {
	Reply string `json:"reply" validate:"required"`
}

// ReviseContributionRequest replaces a rejected contribution with a new one.
type ReviseContributionRequest struct {
	Amount        string `json:"amount" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"required"`
	Explanation   string `json:"explanation" validate:"required"`
}

// ReviseContributionResponse returns the replacement contribution id.
type ReviseContributionResponse struct {
	NewContributionID string `json:"new_contribution_id"`
}
