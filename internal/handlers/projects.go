package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/printdesk/internal/middleware"
	"github.com/example/printdesk/internal/services"
	"github.com/example/printdesk/internal/utils"
)

// ProjectsHandler serves a student's own print orders.
type ProjectsHandler struct {
	ledger *services.Ledger
}

// NewProjectsHandler constructs ProjectsHandler.
func NewProjectsHandler(ledger *services.Ledger) *ProjectsHandler {
	return &ProjectsHandler{ledger: ledger}
}

// MyProjects lists the authenticated student's projects.
func (h *ProjectsHandler) MyProjects(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pagination := utils.ParsePagination(c)
	projects, total, err := h.ledger.ListStudentProjects(c.UserContext(), userID, pagination.Offset, pagination.Limit)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       projects,
		"pagination": pagination.Meta(total),
	})
}

// GetProject returns one project owned by the student.
func (h *ProjectsHandler) GetProject(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	project, err := h.ledger.FindStudentProject(c.UserContext(), userID, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return writePaymentError(c, services.ErrProjectNotFound)
	}

	return c.JSON(fiber.Map{"success": true, "data": project})
}
