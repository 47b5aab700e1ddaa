package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/printdesk/internal/gateway"
	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/metrics"
	"github.com/example/printdesk/internal/models"
)

// VerifyRequest carries the checkout callback. Metadata is optional; the snapshot
// recorded at intent time is used when it is absent.
type VerifyRequest struct {
	GatewayOrderID   string                `json:"gatewayOrderId"`
	GatewayPaymentID string                `json:"gatewayPaymentId"`
	Signature        string                `json:"signature"`
	Metadata         *models.OrderMetadata `json:"orderMetadata,omitempty"`
}

// VerifyResult identifies the project the payment now backs.
type VerifyResult struct {
	ProjectID uuid.UUID `json:"projectId"`
	Replayed  bool      `json:"replayed,omitempty"`
}

// VerificationService handles the synchronous checkout confirmation.
type VerificationService struct {
	ledger    *Ledger
	completer *completer
	artifacts ArtifactStore
	keySecret string
}

func NewVerificationService(ledger *Ledger, completer *completer, artifacts ArtifactStore, keySecret string) *VerificationService {
	return &VerificationService{
		ledger:    ledger,
		completer: completer,
		artifacts: artifacts,
		keySecret: keySecret,
	}
}

// VerifyAndCommit checks the checkout signature, materializes the project and
// completes the payment. Repeating a successful call returns the same project.
func (s *VerificationService) VerifyAndCommit(ctx context.Context, studentID uuid.UUID, req VerifyRequest) (*VerifyResult, error) {
	m := metrics.GetMetrics()
	log := logger.L().With(zap.String("gateway_order_id", req.GatewayOrderID))

	if studentID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	if !gateway.VerifyCheckoutSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature, s.keySecret) {
		m.VerificationTotal.WithLabelValues("invalid_signature").Inc()
		log.Warn("checkout signature mismatch",
			zap.String("event", "security.signature_mismatch"),
			zap.String("student_id", studentID.String()),
		)
		return nil, ErrInvalidSignature
	}

	payment, err := s.ledger.FindStudentPayment(ctx, studentID, req.GatewayOrderID)
	if err != nil {
		m.VerificationTotal.WithLabelValues("failed").Inc()
		return nil, newPaymentError(InfoPersistenceFailure, err)
	}
	if payment == nil {
		m.VerificationTotal.WithLabelValues("not_found").Inc()
		return nil, ErrPaymentNotFound
	}

	if payment.Status == models.PaymentCompleted && payment.ProjectID != nil {
		m.VerificationTotal.WithLabelValues("replayed").Inc()
		return &VerifyResult{ProjectID: *payment.ProjectID, Replayed: true}, nil
	}
	if payment.Status.Terminal() {
		m.VerificationTotal.WithLabelValues("closed").Inc()
		return nil, ErrPaymentClosed
	}

	projectID, err := s.commit(ctx, payment, req)
	if err != nil {
		m.VerificationTotal.WithLabelValues("failed").Inc()
		if flagErr := s.ledger.FlagReconciliation(ctx, payment.ID, err); flagErr != nil {
			log.Error("failed to flag payment for reconciliation", zap.Error(flagErr))
		}
		log.Error("payment verified but not committed",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return nil, newPaymentError(InfoPersistenceFailure, err)
	}

	m.VerificationTotal.WithLabelValues("committed").Inc()
	return &VerifyResult{ProjectID: projectID}, nil
}

func (s *VerificationService) commit(ctx context.Context, payment *models.Payment, req VerifyRequest) (uuid.UUID, error) {
	meta := req.Metadata
	if meta == nil || strings.TrimSpace(meta.Title) == "" {
		snapshot, err := metadataSnapshot(payment)
		if err != nil {
			return uuid.Nil, err
		}
		if meta != nil && snapshot.StagingRef == "" {
			snapshot.StagingRef = meta.StagingRef
		}
		meta = snapshot
	}

	project, err := s.ledger.UpsertOrderForIntent(ctx, payment.GatewayOrderID, meta)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert project: %w", err)
	}
	if project == nil {
		return uuid.Nil, errors.New("project was not materialized")
	}

	if err := s.commitArtifacts(ctx, payment.StudentID, project, meta.StagingRef); err != nil {
		return uuid.Nil, err
	}

	if _, err := s.ledger.LinkProject(ctx, payment.ID, project.ID); err != nil {
		return uuid.Nil, fmt.Errorf("link project: %w", err)
	}

	in := completion{
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
		Source:           sourceVerify,
	}
	won, err := s.completer.complete(ctx, payment.GatewayOrderID, in)
	if err != nil {
		return uuid.Nil, fmt.Errorf("complete payment: %w", err)
	}

	if won {
		s.completer.announce(ctx, payment, project, in)
		return project.ID, nil
	}

	// The webhook may have completed the payment first; that is the only acceptable loss.
	current, err := s.ledger.FindPaymentByGatewayOrder(ctx, payment.GatewayOrderID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("reload payment: %w", err)
	}
	if current == nil || current.Status != models.PaymentCompleted {
		status := "missing"
		if current != nil {
			status = string(current.Status)
		}
		return uuid.Nil, fmt.Errorf("payment left in status %s", status)
	}
	if current.NeedsReconciliation {
		if err := s.ledger.ClearReconciliation(ctx, current.ID); err != nil {
			return uuid.Nil, fmt.Errorf("clear reconciliation flag: %w", err)
		}
	}

	return project.ID, nil
}

func (s *VerificationService) commitArtifacts(ctx context.Context, studentID uuid.UUID, project *models.Project, stagingRef string) error {
	if s.artifacts == nil || stagingRef == "" || project.FilesCommitted {
		return nil
	}

	student, err := s.ledger.FindUser(ctx, studentID)
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}
	if student == nil {
		student = &models.User{Name: "student"}
	}

	folder, err := s.artifacts.Commit(ctx, CommitRequest{
		StagingRef: stagingRef,
		ProjectID:  project.ID,
		Student:    *student,
		Project:    *project,
	})
	if err != nil {
		return fmt.Errorf("commit artifacts: %w", err)
	}

	if err := s.ledger.MarkFilesCommitted(ctx, project.ID, folder); err != nil {
		return fmt.Errorf("mark files committed: %w", err)
	}
	project.FilesCommitted = true
	project.FilesFolder = folder
	return nil
}
