package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/example/printdesk/internal/gateway"
	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/metrics"
	"github.com/example/printdesk/internal/models"
)

// OrderIntent is what the client needs to open the gateway checkout.
type OrderIntent struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	AmountMinorUnits int64  `json:"amount"`
	Currency         string `json:"currency"`
	GatewayPublicKey string `json:"gatewayPublicKey"`
}

// OrderIntentService opens checkouts. It never creates a project.
type OrderIntentService struct {
	ledger   *Ledger
	gateway  gateway.Gateway
	currency string
	timeout  time.Duration
}

func NewOrderIntentService(ledger *Ledger, gw gateway.Gateway, currency string, timeout time.Duration) *OrderIntentService {
	return &OrderIntentService{
		ledger:   ledger,
		gateway:  gw,
		currency: currency,
		timeout:  timeout,
	}
}

var hundred = decimal.NewFromInt(100)

// MaxAmount is the largest value the payments.amount numeric(12,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// MinorUnits converts a major-unit amount to an integer count of minor units, rounding half up.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func newReceipt(now time.Time) string {
	return fmt.Sprintf("receipt_%s_%d", strings.ReplaceAll(uuid.NewString(), "-", "")[:8], now.Unix())
}

// CreateOrder registers a gateway order and records the pending payment.
func (s *OrderIntentService) CreateOrder(ctx context.Context, studentID uuid.UUID, amount decimal.Decimal, meta models.OrderMetadata) (*OrderIntent, error) {
	m := metrics.GetMetrics()

	if studentID == uuid.Nil {
		return nil, ErrUnauthorized
	}
	if amount.Sign() <= 0 || amount.GreaterThan(MaxAmount) || MinorUnits(amount) <= 0 {
		m.OrderIntentTotal.WithLabelValues("invalid_amount").Inc()
		return nil, newPaymentError(InfoInvalidAmount, fmt.Errorf("amount %s", amount.String()))
	}
	if s.gateway == nil {
		m.OrderIntentTotal.WithLabelValues("gateway_unavailable").Inc()
		return nil, newPaymentError(InfoGatewayUnavailable, gateway.ErrNotConfigured)
	}

	now := time.Now()
	receipt := newReceipt(now)

	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	order, err := s.gateway.CreateOrder(gwCtx, gateway.OrderRequest{
		AmountMinorUnits: MinorUnits(amount),
		Currency:         s.currency,
		Receipt:          receipt,
		Notes: map[string]string{
			"studentId": studentID.String(),
			"title":     meta.Title,
		},
	})
	m.GatewayDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		m.OrderIntentTotal.WithLabelValues("gateway_unavailable").Inc()
		logger.L().Warn("gateway order creation failed",
			zap.String("student_id", studentID.String()),
			zap.String("receipt", receipt),
			zap.Error(err),
		)
		return nil, newPaymentError(InfoGatewayUnavailable, err)
	}

	snapshot, err := json.Marshal(meta)
	if err != nil {
		m.OrderIntentTotal.WithLabelValues("persistence_failure").Inc()
		return nil, newPaymentError(InfoPersistenceFailure, err)
	}

	payment := &models.Payment{
		StudentID:      studentID,
		Amount:         amount.Round(2),
		Currency:       s.currency,
		Status:         models.PaymentPending,
		GatewayOrderID: order.ID,
		Receipt:        receipt,
		Notes:          datatypes.JSON(snapshot),
	}
	if err := s.ledger.CreatePayment(ctx, payment); err != nil {
		m.OrderIntentTotal.WithLabelValues("persistence_failure").Inc()
		logger.L().Error("failed to record payment intent",
			zap.String("gateway_order_id", order.ID),
			zap.Error(err),
		)
		return nil, newPaymentError(InfoPersistenceFailure, err)
	}

	m.OrderIntentTotal.WithLabelValues("created").Inc()
	logger.L().Info("payment intent created",
		zap.String("gateway_order_id", order.ID),
		zap.String("student_id", studentID.String()),
		zap.String("amount", payment.Amount.String()),
	)

	return &OrderIntent{
		GatewayOrderID:   order.ID,
		AmountMinorUnits: MinorUnits(amount),
		Currency:         s.currency,
		GatewayPublicKey: s.gateway.PublicKey(),
	}, nil
}

// metadataSnapshot decodes the metadata stored with the payment at intent time.
func metadataSnapshot(payment *models.Payment) (*models.OrderMetadata, error) {
	if len(payment.Notes) == 0 {
		return nil, fmt.Errorf("payment %s has no order metadata", payment.GatewayOrderID)
	}
	var meta models.OrderMetadata
	if err := json.Unmarshal(payment.Notes, &meta); err != nil {
		return nil, fmt.Errorf("decode order metadata: %w", err)
	}
	return &meta, nil
}
