package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/internal/models"
	"github.com/openfund-labs/fundflow-api/internal/service"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
	"github.com/openfund-labs/fundflow-api/pkg/response"
)

type projectService interface {
	Create(ctx context.Context, req dto.CreateProjectRequest, actorID string) (*models.ProjectWithCycles, error)
	Get(ctx context.Context, id string) (*models.ProjectWithCycles, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error)
	Advance(ctx context.Context, projectID string, actor service.TransitionActor) (*models.ProjectCycle, error)
	Pause(ctx context.Context, projectID, actorID string) error
	Resume(ctx context.Context, projectID, actorID string) error
	Cancel(ctx context.Context, projectID, actorID string) error
}

// ProjectHandler exposes REST endpoints for recurring projects.
type ProjectHandler struct {
	service projectService
}

// NewProjectHandler constructs the handler.
func NewProjectHandler(service projectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// Create godoc
// @Summary Open a recurring project
// @Tags Projects
// @Accept json
// @Produce json
// @Param payload body dto.CreateProjectRequest true "Project payload"
// @Success 201 {object} response.Envelope
// @Router /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid project payload"))
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
// @Summary List projects
// @Tags Projects
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	var filter models.ProjectFilter
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]models.ProjectStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ProjectStatus(part))
		}
		filter.Status = statuses
	}
	projects, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, projects, nil)
}

// Get godoc
// @Summary Project detail with cycles
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id} [get]
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}

// Advance godoc
// @Summary Advance the project's funding cycle
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/advance [post]
func (h *ProjectHandler) Advance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	next, err := h.service.Advance(c.Request.Context(), c.Param("id"),
		service.TransitionActor{ActorID: claims.UserID})
	if err != nil {
		response.Error(c, err)
		return
	}
	if next == nil {
		response.JSON(c, http.StatusOK, gin.H{"completed": true}, nil)
		return
	}
	response.JSON(c, http.StatusOK, next, nil)
}

// Pause godoc
// @Summary Pause an active project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 204 {object} response.Envelope
// @Router /projects/{id}/pause [post]
func (h *ProjectHandler) Pause(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Pause(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Resume godoc
// @Summary Resume a paused project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 204 {object} response.Envelope
// @Router /projects/{id}/resume [post]
func (h *ProjectHandler) Resume(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Resume(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Cancel godoc
// @Summary Cancel a project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 204 {object} response.Envelope
// @Router /projects/{id} [delete]
func (h *ProjectHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
