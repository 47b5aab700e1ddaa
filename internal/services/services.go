package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/example/printdesk/internal/events"
	"github.com/example/printdesk/internal/gateway"
)

// Options wires the payment services. Nil collaborators disable the matching feature.
type Options struct {
	Gateway        gateway.Gateway
	Currency       string
	GatewayTimeout time.Duration
	KeySecret      string
	WebhookSecret  string
	PendingTTL     time.Duration
	Artifacts      ArtifactStore
	Publisher      events.Publisher
}

// Services bundles everything handlers need.
type Services struct {
	Ledger   *Ledger
	Intents  *OrderIntentService
	Verifier *VerificationService
	Webhooks *WebhookReconciler
	Cleanup  *CleanupService
	Projects *ProjectService
}

func New(db *gorm.DB, opts Options) *Services {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 30 * time.Minute
	}

	ledger := NewLedger(db)
	completer := &completer{ledger: ledger, publisher: opts.Publisher}

	return &Services{
		Ledger:   ledger,
		Intents:  NewOrderIntentService(ledger, opts.Gateway, opts.Currency, opts.GatewayTimeout),
		Verifier: NewVerificationService(ledger, completer, opts.Artifacts, opts.KeySecret),
		Webhooks: NewWebhookReconciler(ledger, completer, opts.WebhookSecret),
		Cleanup:  NewCleanupService(ledger, opts.PendingTTL),
		Projects: NewProjectService(ledger),
	}
}
