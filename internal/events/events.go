package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/printdesk/internal/logger"
)

// OrderPaid is emitted once per payment, by whichever path completed it.
type OrderPaid struct {
	PaymentID        uuid.UUID       `json:"payment_id"`
	StudentID        uuid.UUID       `json:"student_id"`
	ProjectID        *uuid.UUID      `json:"project_id,omitempty"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	Title            string          `json:"title,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Source           string          `json:"source"`
	PaidAt           time.Time       `json:"paid_at"`
}

// Publisher delivers order paid events to downstream systems.
type Publisher interface {
	PublishOrderPaid(ctx context.Context, evt OrderPaid) error
}

// Fanout delivers each event to every publisher in the background.
// Delivery failures are logged and never reach the caller.
type Fanout struct {
	publishers []Publisher
	timeout    time.Duration
}

// NewFanout skips nil publishers.
func NewFanout(timeout time.Duration, publishers ...Publisher) *Fanout {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	f := &Fanout{timeout: timeout}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

// Len returns the number of attached publishers.
func (f *Fanout) Len() int {
	return len(f.publishers)
}

// PublishOrderPaid schedules delivery and returns immediately.
func (f *Fanout) PublishOrderPaid(_ context.Context, evt OrderPaid) error {
	for _, p := range f.publishers {
		go func(p Publisher) {
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			if err := p.PublishOrderPaid(ctx, evt); err != nil {
				logger.L().Warn("order paid delivery failed",
					zap.String("gateway_order_id", evt.GatewayOrderID),
					zap.String("source", evt.Source),
					zap.Error(err),
				)
			}
		}(p)
	}
	return nil
}
