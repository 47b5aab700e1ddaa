package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/example/printdesk/internal/gateway"
	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/metrics"
	"github.com/example/printdesk/internal/models"
)

// Gateway webhook event types.
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentFailed     = "payment.failed"
	EventOrderPaid         = "order.paid"
	EventRefundProcessed   = "refund.processed"
	EventPaymentRefunded   = "payment.refunded"
)

// WebhookOutcome is the reconciler's verdict for one delivery. It never reaches the gateway.
type WebhookOutcome string

const (
	WebhookOutcomeProcessed WebhookOutcome = "processed"
	WebhookOutcomeIgnored   WebhookOutcome = "ignored"
	WebhookOutcomeDropped   WebhookOutcome = "dropped"
	WebhookOutcomeAnomalous WebhookOutcome = "anomalous"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
)

type webhookEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	PaymentID        string `json:"payment_id"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
}

type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity webhookEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity webhookEntity `json:"entity"`
		} `json:"order"`
		Refund *struct {
			Entity webhookEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

func (p *webhookPayload) payment() webhookEntity {
	if p.Payload.Payment != nil {
		return p.Payload.Payment.Entity
	}
	return webhookEntity{}
}

func (p *webhookPayload) gatewayOrderID() string {
	if id := p.payment().OrderID; id != "" {
		return id
	}
	if p.Payload.Order != nil {
		return p.Payload.Order.Entity.ID
	}
	return ""
}

func (p *webhookPayload) gatewayPaymentID() string {
	if id := p.payment().ID; id != "" {
		return id
	}
	if p.Payload.Refund != nil {
		return p.Payload.Refund.Entity.PaymentID
	}
	return ""
}

var errSignatureMismatch = errors.New("signature mismatch")

// WebhookReconciler applies asynchronous gateway events to the ledger.
type WebhookReconciler struct {
	ledger    *Ledger
	completer *completer
	secret    string
}

func NewWebhookReconciler(ledger *Ledger, completer *completer, webhookSecret string) *WebhookReconciler {
	return &WebhookReconciler{ledger: ledger, completer: completer, secret: webhookSecret}
}

// HandleWebhookEvent verifies and applies one delivery. Every delivery is recorded in
// webhook_events; failures are logged and reported through the outcome only.
func (r *WebhookReconciler) HandleWebhookEvent(ctx context.Context, raw []byte, headerSig, eventID string) WebhookOutcome {
	record := &models.WebhookEvent{
		Signature: headerSig,
		Status:    models.WebhookReceived,
	}
	if eventID != "" {
		record.EventID = &eventID
	}

	outcome, eventType, err := r.apply(ctx, raw, headerSig, eventID, record)

	now := time.Now()
	record.Status = outcomeStatus(outcome)
	record.ProcessedAt = &now
	if err != nil {
		record.Error = truncateError(err)
	}
	if recErr := r.ledger.RecordWebhookEvent(ctx, record); recErr != nil {
		logger.L().Error("failed to record webhook event",
			zap.String("event_type", eventType),
			zap.String("gateway_order_id", record.GatewayOrderID),
			zap.Error(recErr),
		)
	}

	if eventType == "" {
		eventType = "unknown"
	}
	metrics.GetMetrics().WebhookTotal.WithLabelValues(eventType, string(outcome)).Inc()
	return outcome
}

func (r *WebhookReconciler) apply(ctx context.Context, raw []byte, headerSig, eventID string, record *models.WebhookEvent) (WebhookOutcome, string, error) {
	log := logger.L()

	if !gateway.VerifyPayloadSignature(raw, headerSig, r.secret) {
		log.Warn("webhook signature mismatch",
			zap.String("event", "security.webhook_signature_mismatch"),
			zap.Int("body_bytes", len(raw)),
		)
		return WebhookOutcomeDropped, "", errSignatureMismatch
	}

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error("webhook body is not valid json", zap.Error(err))
		return WebhookOutcomeFailed, "", fmt.Errorf("decode payload: %w", err)
	}
	record.Payload = datatypes.JSON(raw)
	record.EventType = payload.Event
	record.GatewayOrderID = payload.gatewayOrderID()

	log = log.With(
		zap.String("event_type", payload.Event),
		zap.String("gateway_order_id", record.GatewayOrderID),
	)

	if eventID != "" {
		seen, err := r.ledger.WebhookEventSeen(ctx, eventID)
		if err != nil {
			log.Error("webhook dedupe lookup failed", zap.Error(err))
			return WebhookOutcomeFailed, payload.Event, err
		}
		if seen {
			log.Info("duplicate webhook delivery ignored", zap.String("event_id", eventID))
			return WebhookOutcomeIgnored, payload.Event, nil
		}
	}

	var (
		outcome WebhookOutcome
		err     error
	)
	switch payload.Event {
	case EventPaymentCaptured, EventPaymentAuthorized, EventOrderPaid:
		outcome, err = r.onCaptured(ctx, &payload, record)
	case EventPaymentFailed:
		outcome, err = r.onFailed(ctx, &payload, record)
	case EventRefundProcessed, EventPaymentRefunded:
		outcome, err = r.onRefunded(ctx, &payload, record)
	default:
		outcome = WebhookOutcomeIgnored
	}

	switch {
	case outcome == WebhookOutcomeAnomalous:
		log.Warn("webhook for unknown payment",
			zap.String("event", "webhook.anomalous"),
			zap.Error(err),
		)
	case err != nil:
		log.Error("webhook processing failed", zap.Error(err))
	default:
		log.Debug("webhook handled", zap.String("outcome", string(outcome)))
	}
	return outcome, payload.Event, err
}

func (r *WebhookReconciler) onCaptured(ctx context.Context, payload *webhookPayload, record *models.WebhookEvent) (WebhookOutcome, error) {
	payment, err := r.ledger.FindPaymentByGatewayOrder(ctx, record.GatewayOrderID)
	if err != nil {
		return WebhookOutcomeFailed, err
	}
	if payment == nil {
		return WebhookOutcomeAnomalous, ErrAnomalousWebhook
	}
	if payment.Status.Terminal() {
		return WebhookOutcomeIgnored, nil
	}

	in := completion{
		GatewayPaymentID: payload.gatewayPaymentID(),
		Source:           sourceWebhook,
	}
	won, err := r.completer.complete(ctx, payment.GatewayOrderID, in)
	if err != nil {
		return WebhookOutcomeFailed, err
	}

	project, err := r.ledger.UpsertOrderForIntent(ctx, payment.GatewayOrderID, nil)
	if err != nil {
		return WebhookOutcomeFailed, err
	}
	if project != nil {
		if _, err := r.ledger.LinkProject(ctx, payment.ID, project.ID); err != nil {
			return WebhookOutcomeFailed, err
		}
	}

	if won {
		r.completer.announce(ctx, payment, project, in)
	}
	return WebhookOutcomeProcessed, nil
}

func (r *WebhookReconciler) onFailed(ctx context.Context, payload *webhookPayload, record *models.WebhookEvent) (WebhookOutcome, error) {
	payment, err := r.ledger.FindPaymentByGatewayOrder(ctx, record.GatewayOrderID)
	if err != nil {
		return WebhookOutcomeFailed, err
	}
	if payment == nil {
		return WebhookOutcomeAnomalous, ErrAnomalousWebhook
	}

	entity := payload.payment()
	won, err := r.ledger.TransitionPayment(ctx, payment.GatewayOrderID,
		[]models.PaymentStatus{models.PaymentPending}, models.PaymentFailed,
		map[string]any{"last_error": entity.ErrorDescription})
	if err != nil {
		return WebhookOutcomeFailed, err
	}
	if !won {
		return WebhookOutcomeIgnored, nil
	}
	metrics.GetMetrics().TransitionTotal.WithLabelValues(string(models.PaymentFailed), sourceWebhook).Inc()
	return WebhookOutcomeProcessed, nil
}

func (r *WebhookReconciler) onRefunded(ctx context.Context, payload *webhookPayload, record *models.WebhookEvent) (WebhookOutcome, error) {
	var (
		payment *models.Payment
		err     error
	)
	if record.GatewayOrderID != "" {
		payment, err = r.ledger.FindPaymentByGatewayOrder(ctx, record.GatewayOrderID)
	} else if paymentID := payload.gatewayPaymentID(); paymentID != "" {
		payment, err = r.ledger.FindPaymentByGatewayPayment(ctx, paymentID)
	}
	if err != nil {
		return WebhookOutcomeFailed, err
	}
	if payment == nil {
		return WebhookOutcomeAnomalous, ErrAnomalousWebhook
	}
	record.GatewayOrderID = payment.GatewayOrderID

	won, err := r.ledger.TransitionPayment(ctx, payment.GatewayOrderID,
		[]models.PaymentStatus{models.PaymentCompleted}, models.PaymentRefunded, nil)
	if err != nil {
		return WebhookOutcomeFailed, err
	}
	if !won {
		return WebhookOutcomeIgnored, nil
	}
	metrics.GetMetrics().TransitionTotal.WithLabelValues(string(models.PaymentRefunded), sourceWebhook).Inc()
	return WebhookOutcomeProcessed, nil
}

func outcomeStatus(outcome WebhookOutcome) models.WebhookEventStatus {
	switch outcome {
	case WebhookOutcomeProcessed:
		return models.WebhookProcessed
	case WebhookOutcomeIgnored:
		return models.WebhookIgnored
	case WebhookOutcomeDropped:
		return models.WebhookDropped
	case WebhookOutcomeAnomalous:
		return models.WebhookAnomalous
	default:
		return models.WebhookFailed
	}
}
