package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openfund-labs/fundflow-api/internal/models"
	appErrors "github.com/openfund-labs/fundflow-api/pkg/errors"
	"github.com/openfund-labs/fundflow-api/pkg/export"
)

type exportContributionSource interface {
	List(ctx context.Context, filter models.ContributionFilter) ([]models.ContributionWithApproval, error)
	GetWithApproval(ctx context.Context, id string) (*models.ContributionWithApproval, error)
}

type exportUserSource interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type receiptRenderer interface {
	RenderReceipt(r export.Receipt) ([]byte, error)
}

// ExportService renders contribution reports (CSV) and donation receipts
// (PDF). Files are rendered on demand and streamed to the caller, never
// stored.
type ExportService struct {
	contributions exportContributionSource
	cases         caseReader
	users         exportUserSource
	permissions   permissionChecker
	csv           csvRenderer
	pdf           receiptRenderer
	logger        *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(contributions exportContributionSource, cases caseReader, users exportUserSource, permissions permissionChecker, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		contributions: contributions,
		cases:         cases,
		users:         users,
		permissions:   permissions,
		csv:           export.NewCSVExporter(),
		pdf:           export.NewPDFExporter(),
		logger:        logger,
	}
}

// ContributionsCSV renders the contributions matching the filter as CSV.
// Requires the exports:read permission.
func (s *ExportService) ContributionsCSV(ctx context.Context, filter models.ContributionFilter, actorID string) ([]byte, string, error) {
	allowed, err := s.permissions.HasPermission(ctx, actorID, models.PermExportsRead)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check permission")
	}
	if !allowed {
		return nil, "", appErrors.ErrForbidden
	}

	contributions, err := s.contributions.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list contributions")
	}

	rows := make([]map[string]string, 0, len(contributions))
	for _, c := range contributions {
		rows = append(rows, map[string]string{
			"Contribution ID": c.ID,
			"Case ID":         stringOrEmpty(c.CaseID),
			"Project ID":      stringOrEmpty(c.ProjectID),
			"Donor ID":        c.DonorID,
			"Amount":          c.Amount.StringFixed(2),
			"Payment Method":  c.PaymentMethod,
			"Approval Status": string(c.Approval.Status),
			"Resubmissions":   fmt.Sprintf("%d", c.Approval.ResubmissionCount),
			"Created At":      c.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Contribution ID", "Case ID", "Project ID", "Donor ID", "Amount", "Payment Method", "Approval Status", "Resubmissions", "Created At"},
		Rows:    rows,
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	filename := fmt.Sprintf("contributions_%s.csv", time.Now().UTC().Format("20060102_150405"))
	return payload, filename, nil
}

// DonationReceiptPDF renders a receipt for one approved contribution. Donors
// get receipts for their own contributions; admins for any.
func (s *ExportService) DonationReceiptPDF(ctx context.Context, contributionID string, actor *models.JWTClaims) ([]byte, string, error) {
	if actor == nil {
		return nil, "", appErrors.ErrUnauthorized
	}
	contribution, err := s.contributions.GetWithApproval(ctx, contributionID)
	if err != nil {
		return nil, "", appErrors.ErrNotFound
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin && contribution.DonorID != actor.UserID {
		return nil, "", appErrors.ErrForbidden
	}
	if contribution.Approval.Status != models.ApprovalStatusApproved {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "receipts are only issued for approved contributions")
	}

	receipt := export.Receipt{
		ReceiptNumber: contribution.ID,
		IssuedAt:      time.Now().UTC(),
		Amount:        contribution.Amount.StringFixed(2),
		PaymentMethod: contribution.PaymentMethod,
		Reference:     contributionID,
	}
	if donor, err := s.users.FindByID(ctx, contribution.DonorID); err == nil {
		receipt.DonorName = donor.FullName
	} else {
		s.logger.Warn("receipt donor lookup failed", zap.String("donor_id", contribution.DonorID), zap.Error(err))
		receipt.DonorName = contribution.DonorID
	}
	if contribution.CaseID != nil {
		if c, err := s.cases.GetByID(ctx, *contribution.CaseID); err == nil {
			receipt.Target = c.Title
		}
	}

	payload, err := s.pdf.RenderReceipt(receipt)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	filename := fmt.Sprintf("receipt_%s.pdf", contribution.ID)
	return payload, filename, nil
}
