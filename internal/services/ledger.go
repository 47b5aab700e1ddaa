package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/printdesk/internal/metrics"
	"github.com/example/printdesk/internal/models"
)

// Ledger owns every write to payments and projects. State changes are single
// conditional statements; the affected row count decides which caller won.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// DB exposes the underlying handle for read-only reporting queries.
func (l *Ledger) DB() *gorm.DB {
	return l.db
}

// CreatePayment inserts a new pending payment.
func (l *Ledger) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.Status == "" {
		payment.Status = models.PaymentPending
	}
	return l.db.WithContext(ctx).Create(payment).Error
}

// FindPaymentByGatewayOrder returns nil, nil when no payment carries the order id.
func (l *Ledger) FindPaymentByGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := l.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindPaymentByGatewayPayment looks a payment up by the gateway's payment id.
func (l *Ledger) FindPaymentByGatewayPayment(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := l.db.WithContext(ctx).
		Where("gateway_payment_id = ?", gatewayPaymentID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindStudentPayment scopes the lookup to the owning student.
func (l *Ledger) FindStudentPayment(ctx context.Context, studentID uuid.UUID, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := l.db.WithContext(ctx).
		Where("gateway_order_id = ? AND student_id = ?", gatewayOrderID, studentID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// TransitionPayment moves the payment to `to` only if its current status is in from.
// Exactly one concurrent caller observes true.
func (l *Ledger) TransitionPayment(ctx context.Context, gatewayOrderID string, from []models.PaymentStatus, to models.PaymentStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	res := l.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("gateway_order_id = ? AND status IN ?", gatewayOrderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// LinkProject sets project_id once. Returns false if a project was already linked.
func (l *Ledger) LinkProject(ctx context.Context, paymentID, projectID uuid.UUID) (bool, error) {
	res := l.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND project_id IS NULL", paymentID).
		Update("project_id", projectID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FlagReconciliation marks a payment whose confirmation could not be committed.
// A payment another request already completed is left alone.
func (l *Ledger) FlagReconciliation(ctx context.Context, paymentID uuid.UUID, cause error) error {
	return l.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status <> ?", paymentID, models.PaymentCompleted).
		Updates(map[string]any{
			"needs_reconciliation": true,
			"last_error":           truncateError(cause),
		}).Error
}

// ClearReconciliation resets the flag once the payment and project agree.
func (l *Ledger) ClearReconciliation(ctx context.Context, paymentID uuid.UUID) error {
	return l.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND needs_reconciliation = ?", paymentID, true).
		Updates(map[string]any{
			"needs_reconciliation": false,
			"last_error":           "",
		}).Error
}

// UpsertOrderForIntent materializes the project for a gateway order.
//
// With metadata the project is inserted if absent; a concurrent insert loses on the
// unique gateway_order_id and falls through to the update. Without metadata only an
// existing project is touched, and nil is returned when there is none yet.
// Either way the project ends up paid and at least accepted.
func (l *Ledger) UpsertOrderForIntent(ctx context.Context, gatewayOrderID string, meta *models.OrderMetadata) (*models.Project, error) {
	m := metrics.GetMetrics()

	if meta != nil {
		payment, err := l.FindPaymentByGatewayOrder(ctx, gatewayOrderID)
		if err != nil {
			return nil, err
		}
		if payment == nil {
			return nil, ErrPaymentNotFound
		}

		project := models.Project{
			StudentID:      payment.StudentID,
			GatewayOrderID: gatewayOrderID,
			Title:          meta.Title,
			Description:    describeSpecification(meta.PrintSpecification),
			Department:     meta.Department,
			Semester:       meta.Semester,
			Specification:  datatypes.NewJSONType(meta.PrintSpecification),
			PaymentStatus:  models.ProjectPaymentPaid,
			Status:         models.ProjectAccepted,
			SubmissionDate: time.Now(),
		}
		res := l.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "gateway_order_id"}},
				DoNothing: true,
			}).
			Create(&project)
		if res.Error != nil {
			return nil, fmt.Errorf("insert project: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			m.ProjectUpserts.WithLabelValues("created").Inc()
			return &project, nil
		}
	}

	existing, err := l.findProjectByGatewayOrder(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		m.ProjectUpserts.WithLabelValues("noop").Inc()
		return nil, nil
	}

	changed, err := l.markProjectPaid(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		m.ProjectUpserts.WithLabelValues("noop").Inc()
		return existing, nil
	}
	m.ProjectUpserts.WithLabelValues("updated").Inc()

	return l.findProjectByGatewayOrder(ctx, gatewayOrderID)
}

func (l *Ledger) markProjectPaid(ctx context.Context, projectID uuid.UUID) (bool, error) {
	paid := l.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND payment_status <> ?", projectID, models.ProjectPaymentPaid).
		Update("payment_status", models.ProjectPaymentPaid)
	if paid.Error != nil {
		return false, fmt.Errorf("mark project paid: %w", paid.Error)
	}

	accepted := l.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND status = ?", projectID, models.ProjectCreated).
		Update("status", models.ProjectAccepted)
	if accepted.Error != nil {
		return false, fmt.Errorf("accept project: %w", accepted.Error)
	}

	return paid.RowsAffected+accepted.RowsAffected > 0, nil
}

func (l *Ledger) findProjectByGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.Project, error) {
	var project models.Project
	err := l.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// MarkFilesCommitted records where the artifacts were moved. It only fires once per project.
func (l *Ledger) MarkFilesCommitted(ctx context.Context, projectID uuid.UUID, folder string) error {
	return l.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND files_committed = ?", projectID, false).
		Updates(map[string]any{
			"files_committed": true,
			"files_folder":    folder,
		}).Error
}

// FindStudentProject returns nil, nil when the project is absent or owned by someone else.
func (l *Ledger) FindStudentProject(ctx context.Context, studentID, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := l.db.WithContext(ctx).
		Where("id = ? AND student_id = ?", projectID, studentID).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// ListStudentProjects pages through a student's projects, newest first.
func (l *Ledger) ListStudentProjects(ctx context.Context, studentID uuid.UUID, offset, limit int) ([]models.Project, int64, error) {
	scoped := func() *gorm.DB {
		return l.db.WithContext(ctx).Model(&models.Project{}).Where("student_id = ?", studentID)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var projects []models.Project
	if err := scoped().Order("created_at DESC").Offset(offset).Limit(limit).Find(&projects).Error; err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

// ListStudentPayments pages through a student's payments with their projects.
func (l *Ledger) ListStudentPayments(ctx context.Context, studentID uuid.UUID, offset, limit int) ([]models.Payment, int64, error) {
	scoped := func() *gorm.DB {
		return l.db.WithContext(ctx).Model(&models.Payment{}).Where("student_id = ?", studentID)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	if err := scoped().Preload("Project").Order("created_at DESC").Offset(offset).Limit(limit).Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// DeleteExpiredPending removes abandoned intents created before cutoff.
func (l *Ledger) DeleteExpiredPending(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("status = ? AND project_id IS NULL AND needs_reconciliation = ? AND created_at < ?",
			models.PaymentPending, false, cutoff).
		Delete(&models.Payment{})
	return res.RowsAffected, res.Error
}

// FindUser returns nil, nil for unknown ids.
func (l *Ledger) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := l.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// WebhookEventSeen reports whether an event id was already processed.
func (l *Ledger) WebhookEventSeen(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ? AND status = ?", eventID, models.WebhookProcessed).
		Count(&count).Error
	return count > 0, err
}

// RecordWebhookEvent persists one delivery.
func (l *Ledger) RecordWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return l.db.WithContext(ctx).Create(event).Error
}

func describeSpecification(spec models.PrintSpecification) string {
	parts := make([]string, 0, 4)
	if spec.Pages > 0 {
		parts = append(parts, fmt.Sprintf("%d pages", spec.Pages))
	}
	if spec.Copies > 0 {
		parts = append(parts, fmt.Sprintf("%d copies", spec.Copies))
	}
	if spec.PrintType != "" {
		parts = append(parts, spec.PrintType+" print")
	}
	if spec.BindingType != "" {
		parts = append(parts, spec.BindingType+" binding")
	}
	return strings.Join(parts, ", ")
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 1024
	msg := err.Error()
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen]
}
