package service

import (
	"github.com/openfund-labs/fundflow-api/internal/models"
)

// TransitionRule describes one allowed case status transition: who may take
// it, whether a reason is mandatory, and whether the system sweep may take it
// without a human actor.
type TransitionRule struct {
	From              models.CaseStatus
	To                models.CaseStatus
	AllowedRoles      []models.UserRole
	ReasonRequired    bool
	SystemTriggerable bool
}

// RoleAllowed reports whether any of the resolved role names may take this
// transition. Super admins are listed explicitly on every rule.
func (r *TransitionRule) RoleAllowed(roles []string) bool {
	for _, have := range roles {
		for _, want := range r.AllowedRoles {
			if have == string(want) {
				return true
			}
		}
	}
	return false
}

var adminRoles = []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin}

var caseTransitions = []TransitionRule{
	{From: models.CaseStatusDraft, To: models.CaseStatusSubmitted,
		AllowedRoles: []models.UserRole{models.RoleCaseCreator, models.RoleAdmin, models.RoleSuperAdmin}},
	{From: models.CaseStatusSubmitted, To: models.CaseStatusPublished,
		AllowedRoles: adminRoles},
	{From: models.CaseStatusSubmitted, To: models.CaseStatusUnderReview,
		AllowedRoles: adminRoles, ReasonRequired: true},
	{From: models.CaseStatusUnderReview, To: models.CaseStatusPublished,
		AllowedRoles: adminRoles},
	{From: models.CaseStatusUnderReview, To: models.CaseStatusClosed,
		AllowedRoles: adminRoles, ReasonRequired: true},
	{From: models.CaseStatusPublished, To: models.CaseStatusClosed,
		AllowedRoles: adminRoles, SystemTriggerable: true},
	{From: models.CaseStatusPublished, To: models.CaseStatusUnderReview,
		AllowedRoles: adminRoles, ReasonRequired: true},
}

// LookupTransition returns the rule for the requested move, or nil when the
// move is not in the table.
func LookupTransition(from, to models.CaseStatus) *TransitionRule {
	for i := range caseTransitions {
		if caseTransitions[i].From == from && caseTransitions[i].To == to {
			return &caseTransitions[i]
		}
	}
	return nil
}
