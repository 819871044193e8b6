package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	"github.com/openfund-labs/fundflow-api/internal/service"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
	"github.com/openfund-labs/fundflow-api/pkg/response"
)

type caseService interface {
	Create(ctx context.Context, req dto.CreateCaseRequest, actorID string) (*models.Case, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Case, error)
	List(ctx context.Context, query dto.CaseQuery, actor *models.JWTClaims) ([]models.Case, int, error)
	History(ctx context.Context, caseID string, actor *models.JWTClaims) ([]models.CaseStatusHistory, error)
	ChangeStatus(ctx context.Context, caseID string, target models.CaseStatus, actor service.TransitionActor, reason string) (*models.Case, error)
}

// CaseHandler exposes REST endpoints for the case lifecycle.
type CaseHandler struct {
	service caseService
}

// NewCaseHandler constructs the handler.
func NewCaseHandler(service caseService) *CaseHandler {
	return &CaseHandler{service: service}
}

// Create godoc
// @Summary Open a funding case
// @Tags Cases
// @Accept json
// @Produce json
// @Param payload body dto.CreateCaseRequest true "Case payload"
// @Success 201 {object} response.Envelope
// @Router /cases [post]
func (h *CaseHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid case payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, created, nil)
}

// List godoc
// @Summary List funding cases
// @Tags Cases
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Case type"
// @Param category query string false "Category"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /cases [get]
func (h *CaseHandler) List(c *gin.Context) {
	query := dto.CaseQuery{
		Category: strings.TrimSpace(c.Query("category")),
	}
	if rawType := c.Query("type"); rawType != "" {
		query.Type = models.CaseType(strings.ToUpper(rawType))
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.CaseStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.CaseStatus(part))
		}
		query.Status = statuses
	}
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	cases, total, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, cases, pagination)
}

// Get godoc
// @Summary Get case detail
// @Tags Cases
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Router /cases/{id} [get]
func (h *CaseHandler) Get(c *gin.Context) {
	found, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, found, nil)
}

// History godoc
// @Summary Case status history
// @Tags Cases
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Router /cases/{id}/history [get]
func (h *CaseHandler) History(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// ChangeStatus godoc
// @Summary Transition case status
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Param payload body dto.ChangeCaseStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /cases/{id}/status [put]
func (h *CaseHandler) ChangeStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ChangeCaseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status payload"))
		return
	}
	updated, err := h.service.ChangeStatus(c.Request.Context(), c.Param("id"), req.TargetStatus,
		service.TransitionActor{ActorID: claims.UserID}, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}
