package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/printdesk/internal/models"
	"github.com/example/printdesk/internal/services"
	"github.com/example/printdesk/internal/utils"
)

// VendorHandler serves the print vendor's order queue.
type VendorHandler struct {
	db       *gorm.DB
	projects *services.ProjectService
}

// NewVendorHandler constructs VendorHandler.
func NewVendorHandler(db *gorm.DB, projects *services.ProjectService) *VendorHandler {
	return &VendorHandler{db: db, projects: projects}
}

// PendingOrders lists paid projects still waiting for delivery.
func (h *VendorHandler) PendingOrders(c *fiber.Ctx) error {
	pagination := utils.ParsePagination(c)
	projects, total, err := h.projects.PendingOrders(c.UserContext(), pagination.Offset, pagination.Limit)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       projects,
		"pagination": pagination.Meta(total),
	})
}

type updateStatusRequest struct {
	Status      string `json:"status"`
	VendorNotes string `json:"vendorNotes"`
}

// UpdateStatus moves a project forward in the fulfilment pipeline.
func (h *VendorHandler) UpdateStatus(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("projectId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	project, err := h.projects.UpdateStatus(c.UserContext(), projectID, req.Status, req.VendorNotes)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": project})
}

// Stats returns aggregate numbers for the vendor dashboard.
func (h *VendorHandler) Stats(c *fiber.Ctx) error {
	db := h.db.WithContext(c.UserContext())

	var totalProjects int64
	if err := db.Model(&models.Project{}).
		Where("payment_status = ?", models.ProjectPaymentPaid).
		Count(&totalProjects).Error; err != nil {
		return err
	}

	// Projects by status
	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	var statusCounts []statusCount
	if err := db.Model(&models.Project{}).
		Where("payment_status = ?", models.ProjectPaymentPaid).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return err
	}

	projectsByStatus := make(map[string]int64)
	for _, sc := range statusCounts {
		projectsByStatus[sc.Status] = sc.Count
	}

	type revenueRow struct {
		Revenue decimal.Decimal
	}

	var total revenueRow
	if err := db.Model(&models.Payment{}).
		Where("status = ?", models.PaymentCompleted).
		Select("COALESCE(SUM(amount), 0) AS revenue").
		Scan(&total).Error; err != nil {
		return err
	}

	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var today revenueRow
	if err := db.Model(&models.Payment{}).
		Where("status = ? AND completed_at >= ?", models.PaymentCompleted, startOfDay).
		Select("COALESCE(SUM(amount), 0) AS revenue").
		Scan(&today).Error; err != nil {
		return err
	}

	var awaitingReconciliation int64
	if err := db.Model(&models.Payment{}).
		Where("needs_reconciliation = ?", true).
		Count(&awaitingReconciliation).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_projects":          totalProjects,
			"projects_by_status":      projectsByStatus,
			"total_revenue":           total.Revenue,
			"today_revenue":           today.Revenue,
			"awaiting_reconciliation": awaitingReconciliation,
		},
	})
}
