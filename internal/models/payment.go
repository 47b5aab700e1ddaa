package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus is the ledger state of a checkout attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether no further gateway event can move the payment.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentRefunded || s == PaymentCancelled
}

// Payment records one gateway order from intent creation to its terminal state.
// ProjectID stays nil until the project is materialized.
type Payment struct {
	BaseModel
	StudentID           uuid.UUID       `gorm:"type:uuid;index" json:"student_id"`
	ProjectID           *uuid.UUID      `gorm:"type:uuid;index" json:"project_id"`
	Amount              decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Currency            string          `gorm:"size:8" json:"currency"`
	Status              PaymentStatus   `gorm:"size:20;index" json:"status"`
	GatewayOrderID      string          `gorm:"size:64;uniqueIndex" json:"gateway_order_id"`
	GatewayPaymentID    *string         `gorm:"size:64" json:"gateway_payment_id"`
	GatewaySignature    *string         `gorm:"size:128" json:"-"`
	Receipt             string          `gorm:"size:64" json:"receipt"`
	Notes               datatypes.JSON  `gorm:"not null;default:'{}'" json:"notes,omitempty"`
	NeedsReconciliation bool            `gorm:"index" json:"needs_reconciliation"`
	LastError           string          `json:"last_error,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at"`
	Project             *Project        `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
}
