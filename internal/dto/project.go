package dto

// CreateProjectRequest opens a recurring project and its first cycle.
type CreateProjectRequest struct {
	Title             string  `json:"title" validate:"required,min=3"`
	Description       *string `json:"description,omitempty"`
	TargetAmount      string  `json:"target_amount" validate:"required"`
	TotalCycles       int     `json:"total_cycles" validate:"min=0"`
	CycleDurationDays int     `json:"cycle_duration_days" validate:"required,min=1"`
	AutoProgress      bool    `json:"auto_progress"`
}

// AdvanceResult reports the outcome of a cycle sweep.
type AdvanceResult struct {
	Advanced []string `json:"advanced"`
}
