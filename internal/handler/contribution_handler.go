package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
	"github.com/openfund-labs/fundflow-api/pkg/response"
)

type contributionService interface {
	Submit(ctx context.Context, req dto.CreateContributionRequest, donorID string) (*models.Contribution, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ContributionWithApproval, error)
	List(ctx context.Context, filter models.ContributionFilter, actor *models.JWTClaims) ([]models.ContributionWithApproval, error)
	Approve(ctx context.Context, contributionID, actorID string) (*models.ContributionWithApproval, error)
	Reject(ctx context.Context, contributionID, actorID, reason string) (*models.ContributionWithApproval, error)
	Resubmit(ctx context.Context, contributionID, donorID, reply string) (*models.ContributionWithApproval, error)
	Revise(ctx context.Context, contributionID, donorID string, req dto.ReviseContributionRequest) (*models.Contribution, error)
}

// ContributionHandler exposes REST endpoints for the pledge pipeline.
type ContributionHandler struct {
	service contributionService
}

// NewContributionHandler constructs the handler.
func NewContributionHandler(service contributionService) *ContributionHandler {
	return &ContributionHandler{service: service}
}

// Create godoc
// @Summary Submit a contribution
// @Tags Contributions
// @Accept json
// @Produce json
// @Param payload body dto.CreateContributionRequest true "Contribution payload"
// @Success 201 {object} response.Envelope
// @Router /contributions [post]
func (h *ContributionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid contribution payload"))
		return
	}
	created, err := h.service.Submit(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, created, nil)
}

// List godoc
// @Summary List contributions
// @Tags Contributions
// @Produce json
// @Param caseId query string false "Case ID"
// @Param projectId query string false "Project ID"
// @Param approvalStatus query string false "Comma separated approval statuses"
// @Success 200 {object} response.Envelope
// @Router /contributions [get]
func (h *ContributionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.ContributionFilter{
		CaseID:    c.Query("caseId"),
		ProjectID: c.Query("projectId"),
	}
	if raw := c.Query("approvalStatus"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]models.ApprovalStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ApprovalStatus(part))
		}
		filter.ApprovalStatus = statuses
	}
	contributions, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contributions, nil)
}

// Get godoc
// @Summary Contribution detail with approval state
// @Tags Contributions
// @Produce json
// @Param id path string true "Contribution ID"
// @Success 200 {object} response.Envelope
// @Router /contributions/{id} [get]
func (h *ContributionHandler) Get(c *gin.Context) {
	found, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, found, nil)
}

// Approve godoc
// @Summary Approve a pending contribution
// @Tags Contributions
// @Produce json
// @Param id path string true "Contribution ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contributions/{id}/approve [post]
func (h *ContributionHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	approved, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approved, nil)
}

// Reject godoc
// @Summary Reject a pending contribution
// @Tags Contributions
// @Accept json
// @Produce json
// @Param id path string true "Contribution ID"
// @Param payload body dto.RejectContributionRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contributions/{id}/reject [post]
func (h *ContributionHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "rejection reason required"))
		return
	}
	rejected, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rejected, nil)
}

// Resubmit godoc
// @Summary Resubmit a rejected contribution
// @Tags Contributions
// @Accept json
// @Produce json
// @Param id path string true "Contribution ID"
// @Param payload body dto.ResubmitContributionRequest true "Donor reply"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contributions/{id}/resubmit [post]
func (h *ContributionHandler) Resubmit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ResubmitContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "reply required"))
		return
	}
	resubmitted, err := h.service.Resubmit(c.Request.Context(), c.Param("id"), claims.UserID, req.Reply)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resubmitted, nil)
}

// Revise godoc
// @Summary Replace a rejected contribution
// @Tags Contributions
// @Accept json
// @Produce json
// @Param id path string true "Contribution ID"
// @Param payload body dto.ReviseContributionRequest true "Revised contribution"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contributions/{id}/revise [post]
func (h *ContributionHandler) Revise(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviseContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid revision payload"))
		return
	}
	replacement, err := h.service.Revise(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, replacement, nil)
}
