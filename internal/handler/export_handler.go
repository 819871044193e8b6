package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfund-labs/fundflow-api/internal/models"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
	"github.com/openfund-labs/fundflow-api/pkg/response"
)

type exportService interface {
	ContributionsCSV(ctx context.Context, filter models.ContributionFilter, actorID string) ([]byte, string, error)
	DonationReceiptPDF(ctx context.Context, contributionID string, actor *models.JWTClaims) ([]byte, string, error)
}

// ExportHandler streams rendered exports to the caller.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// ContributionsCSV godoc
// @Summary Export contributions as CSV
// @Tags Exports
// @Produce text/csv
// @Param caseId query string false "Case ID"
// @Param projectId query string false "Project ID"
// @Success 200 {file} file
// @Router /exports/contributions [get]
func (h *ExportHandler) ContributionsCSV(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.ContributionFilter{
		CaseID:    c.Query("caseId"),
		ProjectID: c.Query("projectId"),
	}
	payload, filename, err := h.service.ContributionsCSV(c.Request.Context(), filter, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

// DonationReceipt godoc
// @Summary Download a donation receipt
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Contribution ID"
// @Success 200 {file} file
// @Router /contributions/{id}/receipt [get]
func (h *ExportHandler) DonationReceipt(c *gin.Context) {
	payload, filename, err := h.service.DonationReceiptPDF(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}
