package models

// EventKind identifies a lifecycle, approval, or cycle event.
type EventKind string

const (
	EventCaseStatusChanged       EventKind = "case.status_changed"
	EventContributionSubmitted   EventKind = "contribution.submitted"
	EventContributionApproved    EventKind = "contribution.approved"
	EventContributionRejected    EventKind = "contribution.rejected"
	EventContributionResubmitted EventKind = "contribution.resubmitted"
	EventContributionRevised     EventKind = "contribution.revised"
	EventProjectCycleAdvanced    EventKind = "project.cycle_advanced"
	EventProjectCompleted        EventKind = "project.completed"
)

// Event is the payload handed to the notification dispatcher after a
// state-changing transaction commits. Delivery is best-effort.
type Event struct {
	Kind           EventKind              `json:"kind"`
	CaseID         string                 `json:"case_id,omitempty"`
	ProjectID      string                 `json:"project_id,omitempty"`
	ContributionID string                 `json:"contribution_id,omitempty"`
	Recipients     []string               `json:"recipients,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
}
