package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEventStatus tracks what the reconciler did with a delivery.
type WebhookEventStatus string

const (
	WebhookReceived  WebhookEventStatus = "received"
	WebhookProcessed WebhookEventStatus = "processed"
	WebhookIgnored   WebhookEventStatus = "ignored"
	WebhookDropped   WebhookEventStatus = "dropped"
	WebhookAnomalous WebhookEventStatus = "anomalous"
	WebhookFailed    WebhookEventStatus = "failed"
)

// WebhookEvent is the durable log of one gateway webhook delivery.
// Payload is only stored for verified deliveries that parse as JSON.
type WebhookEvent struct {
	BaseModel
	EventID        *string            `gorm:"size:64;index" json:"event_id"`
	EventType      string             `gorm:"size:64;index" json:"event_type"`
	GatewayOrderID string             `gorm:"size:64;index" json:"gateway_order_id"`
	Signature      string             `gorm:"size:128" json:"signature"`
	Payload        datatypes.JSON     `gorm:"not null;default:'{}'" json:"payload,omitempty"`
	Status         WebhookEventStatus `gorm:"size:20;index" json:"status"`
	Error          string             `json:"error,omitempty"`
	ProcessedAt    *time.Time         `json:"processed_at"`
}
