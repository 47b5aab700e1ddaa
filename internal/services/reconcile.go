package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/printdesk/internal/events"
	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/metrics"
	"github.com/example/printdesk/internal/models"
)

const (
	sourceVerify  = "verify"
	sourceWebhook = "webhook"
)

// completableFrom lists the states a confirmed capture may leave. A failed attempt can
// be retried by the student inside the same gateway order.
var completableFrom = []models.PaymentStatus{models.PaymentPending, models.PaymentFailed}

// completer performs the pending->completed step shared by verify and webhook.
type completer struct {
	ledger    *Ledger
	publisher events.Publisher
}

type completion struct {
	GatewayPaymentID string
	Signature        string
	Source           string
}

// complete reports whether this caller performed the transition.
func (c *completer) complete(ctx context.Context, gatewayOrderID string, in completion) (bool, error) {
	now := time.Now()
	fields := map[string]any{
		"completed_at":         &now,
		"needs_reconciliation": false,
		"last_error":           "",
	}
	if in.GatewayPaymentID != "" {
		fields["gateway_payment_id"] = in.GatewayPaymentID
	}
	if in.Signature != "" {
		fields["gateway_signature"] = in.Signature
	}

	won, err := c.ledger.TransitionPayment(ctx, gatewayOrderID, completableFrom, models.PaymentCompleted, fields)
	if err != nil {
		return false, err
	}
	if won {
		metrics.GetMetrics().TransitionTotal.WithLabelValues(string(models.PaymentCompleted), in.Source).Inc()
		logger.L().Info("payment completed",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("source", in.Source),
		)
	}
	return won, nil
}

// announce emits the order paid event. Only the caller that won complete may call it.
func (c *completer) announce(ctx context.Context, payment *models.Payment, project *models.Project, in completion) {
	if c.publisher == nil {
		return
	}

	evt := events.OrderPaid{
		PaymentID:        payment.ID,
		StudentID:        payment.StudentID,
		GatewayOrderID:   payment.GatewayOrderID,
		GatewayPaymentID: in.GatewayPaymentID,
		Amount:           payment.Amount,
		Currency:         payment.Currency,
		Source:           in.Source,
		PaidAt:           time.Now().UTC(),
	}
	if project != nil {
		id := project.ID
		evt.ProjectID = &id
		evt.Title = project.Title
	}

	if err := c.publisher.PublishOrderPaid(ctx, evt); err != nil {
		logger.L().Warn("order paid event not published",
			zap.String("gateway_order_id", payment.GatewayOrderID),
			zap.Error(err),
		)
	}
}
