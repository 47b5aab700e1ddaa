package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics groups the collectors for the payment reconciliation flow.
type PaymentMetrics struct {
	// intents
	OrderIntentTotal  *prometheus.CounterVec // result: created/invalid_amount/gateway_unavailable/persistence_failure
	GatewayDuration   prometheus.Histogram
	VerificationTotal *prometheus.CounterVec // result: committed/replayed/invalid_signature/not_found/failed

	// reconciliation
	TransitionTotal *prometheus.CounterVec // to, source
	WebhookTotal    *prometheus.CounterVec // event, outcome
	ProjectUpserts  *prometheus.CounterVec // action: created/updated/noop

	// background jobs
	CleanupDeletedTotal prometheus.Counter
	JobRunsTotal        *prometheus.CounterVec // job, result: ok/error/skipped
}

var (
	instance *PaymentMetrics
	once     sync.Once
)

// GetMetrics returns the process-wide collectors, registering them on first use.
func GetMetrics() *PaymentMetrics {
	once.Do(func() {
		instance = newPaymentMetrics()
	})
	return instance
}

func newPaymentMetrics() *PaymentMetrics {
	return &PaymentMetrics{
		OrderIntentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printdesk_order_intent_total",
				Help: "Checkout intents by result",
			},
			[]string{"result"},
		),
		GatewayDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "printdesk_gateway_create_order_duration_seconds",
				Help:    "Latency of gateway order creation",
				Buckets: prometheus.DefBuckets,
			},
		),
		VerificationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printdesk_payment_verification_total",
				Help: "Synchronous payment verifications by result",
			},
			[]string{"result"},
		),
		TransitionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printdesk_payment_transition_total",
				Help: "Payment status transitions won by a caller",
			},
			[]string{"to", "source"},
		),
		WebhookTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printdesk_webhook_events_total",
				Help: "Gateway webhook deliveries by event type and outcome",
			},
			[]string{"event", "outcome"},
		),
		ProjectUpserts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printdesk_project_upsert_total",
				Help: "Project materialization attempts by action",
			},
			[]string{"action"},
		),
		CleanupDeletedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "printdesk_cleanup_deleted_total",
				Help: "Expired pending payments removed",
			},
		),
		JobRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printdesk_job_runs_total",
				Help: "Scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		),
	}
}
