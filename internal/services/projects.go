package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/models"
)

// ProjectService drives vendor fulfilment.
type ProjectService struct {
	ledger *Ledger
}

func NewProjectService(ledger *Ledger) *ProjectService {
	return &ProjectService{ledger: ledger}
}

// PendingOrders lists paid projects that are not delivered yet, oldest first.
func (s *ProjectService) PendingOrders(ctx context.Context, offset, limit int) ([]models.Project, int64, error) {
	scoped := func() *gorm.DB {
		return s.ledger.DB().WithContext(ctx).
			Model(&models.Project{}).
			Where("payment_status = ? AND status <> ?", models.ProjectPaymentPaid, models.ProjectDelivered)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var projects []models.Project
	if err := scoped().Order("created_at ASC").Offset(offset).Limit(limit).Find(&projects).Error; err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

// UpdateStatus advances a paid project. rawStatus may be a canonical or legacy value.
// Moves must go forward; concurrent updates from the same status lose with InvalidTransition.
func (s *ProjectService) UpdateStatus(ctx context.Context, projectID uuid.UUID, rawStatus, vendorNotes string) (*models.Project, error) {
	next, ok := models.ParseProjectStatus(rawStatus)
	if !ok {
		return nil, newPaymentError(InfoInvalidRequest, fmt.Errorf("unknown status %q", rawStatus))
	}

	db := s.ledger.DB().WithContext(ctx)

	var project models.Project
	if err := db.First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	if project.PaymentStatus != models.ProjectPaymentPaid {
		return nil, newPaymentError(InfoInvalidTransition, fmt.Errorf("project %s is not paid", projectID))
	}
	if !project.Status.CanAdvanceTo(next) {
		return nil, newPaymentError(InfoInvalidTransition, fmt.Errorf("%s -> %s", project.Status, next))
	}

	updates := map[string]any{"status": next}
	if vendorNotes != "" {
		updates["vendor_notes"] = vendorNotes
	}

	res := db.Model(&models.Project{}).
		Where("id = ? AND status = ?", projectID, project.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, newPaymentError(InfoInvalidTransition, fmt.Errorf("project %s changed concurrently", projectID))
	}

	logger.L().Info("project status updated",
		zap.String("project_id", projectID.String()),
		zap.String("from", string(project.Status)),
		zap.String("to", string(next)),
	)

	if err := db.First(&project, "id = ?", projectID).Error; err != nil {
		return nil, err
	}
	return &project, nil
}
