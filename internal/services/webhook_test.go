package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/printdesk/internal/gateway"
	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/models"
)

func capturedBody(event, orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"status":"captured"}}}}`,
		event, paymentID, orderID,
	))
}

func deliver(h *harness, body []byte, eventID string) WebhookOutcome {
	return h.svc.Webhooks.HandleWebhookEvent(context.Background(), body, gateway.Sign(body, testWebhookSecret), eventID)
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(nil) })
	return logs
}

func webhookEvents(t *testing.T, h *harness) []models.WebhookEvent {
	t.Helper()
	var rows []models.WebhookEvent
	require.NoError(t, h.db.Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestWebhookCapturedCompletesPayment(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)

	outcome := deliver(h, capturedBody(EventPaymentCaptured, "order_abc", "pay_123"), "evt_1")
	assert.Equal(t, WebhookOutcomeProcessed, outcome)

	p := h.payment(t, "order_abc")
	assert.Equal(t, models.PaymentCompleted, p.Status)
	require.NotNil(t, p.GatewayPaymentID)
	assert.Equal(t, "pay_123", *p.GatewayPaymentID)
	assert.Nil(t, p.ProjectID, "no project exists before verification")
	assert.Zero(t, h.projectCount(t, "order_abc"), "webhook never creates a project")

	published := h.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, sourceWebhook, published[0].Source)
	assert.Nil(t, published[0].ProjectID)

	rows := webhookEvents(t, h)
	require.Len(t, rows, 1)
	assert.Equal(t, models.WebhookProcessed, rows[0].Status)
	assert.Equal(t, EventPaymentCaptured, rows[0].EventType)
	assert.Equal(t, "order_abc", rows[0].GatewayOrderID)
}

func TestWebhookThenVerifyConverges(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_race", 590)

	require.Equal(t, WebhookOutcomeProcessed, deliver(h, capturedBody(EventPaymentCaptured, "order_race", "pay_1"), ""))

	res, err := h.svc.Verifier.VerifyAndCommit(context.Background(), h.student.ID, verifyRequest("order_race", "pay_1", nil))
	require.NoError(t, err)

	assert.Equal(t, int64(1), h.projectCount(t, "order_race"))
	p := h.payment(t, "order_race")
	assert.Equal(t, models.PaymentCompleted, p.Status)
	require.NotNil(t, p.ProjectID)
	assert.Equal(t, res.ProjectID, *p.ProjectID)

	var project models.Project
	require.NoError(t, h.db.First(&project, "id = ?", res.ProjectID).Error)
	assert.Equal(t, models.ProjectPaymentPaid, project.PaymentStatus)

	assert.Len(t, h.publisher.published(), 1, "completion is announced exactly once")

	again, err := h.svc.Verifier.VerifyAndCommit(context.Background(), h.student.ID, verifyRequest("order_race", "pay_1", nil))
	require.NoError(t, err)
	assert.Equal(t, res.ProjectID, again.ProjectID)
}

func TestVerifyThenWebhookIsNoop(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)

	res, err := h.svc.Verifier.VerifyAndCommit(context.Background(), h.student.ID, verifyRequest("order_abc", "pay_123", nil))
	require.NoError(t, err)
	before := h.payment(t, "order_abc")

	for _, event := range []string{EventPaymentCaptured, EventOrderPaid} {
		assert.Equal(t, WebhookOutcomeProcessed, deliver(h, capturedBody(event, "order_abc", "pay_123"), ""))
	}

	after := h.payment(t, "order_abc")
	assert.Equal(t, models.PaymentCompleted, after.Status)
	assert.Equal(t, before.CompletedAt.UnixNano(), after.CompletedAt.UnixNano())
	assert.Equal(t, res.ProjectID, *after.ProjectID)
	assert.Equal(t, int64(1), h.projectCount(t, "order_abc"))
	assert.Len(t, h.publisher.published(), 1)
}

func TestWebhookUpdatesUnpaidProject(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_legacy", 590)

	p := h.payment(t, "order_legacy")
	project := models.Project{
		StudentID:      p.StudentID,
		GatewayOrderID: "order_legacy",
		Title:          "Legacy draft",
		PaymentStatus:  models.ProjectPaymentPending,
		Status:         models.ProjectCreated,
	}
	require.NoError(t, h.db.Create(&project).Error)

	require.Equal(t, WebhookOutcomeProcessed, deliver(h, capturedBody(EventPaymentCaptured, "order_legacy", "pay_7"), ""))

	var reloaded models.Project
	require.NoError(t, h.db.First(&reloaded, "id = ?", project.ID).Error)
	assert.Equal(t, models.ProjectPaymentPaid, reloaded.PaymentStatus)
	assert.Equal(t, models.ProjectAccepted, reloaded.Status)

	linked := h.payment(t, "order_legacy")
	require.NotNil(t, linked.ProjectID)
	assert.Equal(t, project.ID, *linked.ProjectID)

	published := h.publisher.published()
	require.Len(t, published, 1)
	require.NotNil(t, published[0].ProjectID)
	assert.Equal(t, project.ID, *published[0].ProjectID)
}

func TestWebhookUnknownOrderIsAnomalous(t *testing.T) {
	h := newHarness(t)
	logs := observeLogs(t)

	outcome := deliver(h, capturedBody(EventPaymentCaptured, "order_unknown", "pay_x"), "")
	assert.Equal(t, WebhookOutcomeAnomalous, outcome)

	var payments int64
	require.NoError(t, h.db.Model(&models.Payment{}).Count(&payments).Error)
	assert.Zero(t, payments)
	assert.Zero(t, h.projectCount(t, "order_unknown"))

	anomalies := logs.FilterField(zap.String("event", "webhook.anomalous")).All()
	require.Len(t, anomalies, 1)
	assert.Equal(t, zapcore.WarnLevel, anomalies[0].Level)

	rows := webhookEvents(t, h)
	require.Len(t, rows, 1)
	assert.Equal(t, models.WebhookAnomalous, rows[0].Status)
}

func TestWebhookSignatureMismatchIsDropped(t *testing.T) {
	h := newHarness(t)
	logs := observeLogs(t)
	h.openIntent(t, "order_abc", 590)

	body := capturedBody(EventPaymentCaptured, "order_abc", "pay_123")
	outcome := h.svc.Webhooks.HandleWebhookEvent(context.Background(), body, gateway.Sign(body, testKeySecret), "")
	assert.Equal(t, WebhookOutcomeDropped, outcome)
	assert.Equal(t, models.PaymentPending, h.payment(t, "order_abc").Status)

	assert.Equal(t, 1, logs.FilterField(zap.String("event", "security.webhook_signature_mismatch")).Len())

	rows := webhookEvents(t, h)
	require.Len(t, rows, 1)
	assert.Equal(t, models.WebhookDropped, rows[0].Status)
	assert.NotContains(t, string(rows[0].Payload), "order_abc", "unverified payloads are not stored")
}

func TestWebhookInvalidJSONIsRecordedAsFailed(t *testing.T) {
	h := newHarness(t)

	outcome := deliver(h, []byte(`{"event":`), "")
	assert.Equal(t, WebhookOutcomeFailed, outcome)

	rows := webhookEvents(t, h)
	require.Len(t, rows, 1)
	assert.Equal(t, models.WebhookFailed, rows[0].Status)
	assert.Contains(t, rows[0].Error, "decode payload")
}

func TestWebhookDuplicateEventIDIgnored(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)
	body := capturedBody(EventPaymentCaptured, "order_abc", "pay_123")

	assert.Equal(t, WebhookOutcomeProcessed, deliver(h, body, "evt_same"))
	assert.Equal(t, WebhookOutcomeIgnored, deliver(h, body, "evt_same"))
	assert.Len(t, h.publisher.published(), 1)
}

func TestWebhookPaymentFailed(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)

	body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_abc","status":"failed","error_description":"card declined"}}}}`)
	assert.Equal(t, WebhookOutcomeProcessed, deliver(h, body, ""))

	p := h.payment(t, "order_abc")
	assert.Equal(t, models.PaymentFailed, p.Status)
	assert.Equal(t, "card declined", p.LastError)

	// A retry inside the same order can still capture.
	assert.Equal(t, WebhookOutcomeProcessed, deliver(h, capturedBody(EventPaymentCaptured, "order_abc", "pay_2"), ""))
	assert.Equal(t, models.PaymentCompleted, h.payment(t, "order_abc").Status)

	// A late failure never downgrades a completed payment.
	assert.Equal(t, WebhookOutcomeIgnored, deliver(h, body, ""))
	assert.Equal(t, models.PaymentCompleted, h.payment(t, "order_abc").Status)
}

func TestWebhookRefund(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)
	_, err := h.svc.Verifier.VerifyAndCommit(context.Background(), h.student.ID, verifyRequest("order_abc", "pay_123", nil))
	require.NoError(t, err)

	body := []byte(`{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_123"}}}}`)
	assert.Equal(t, WebhookOutcomeProcessed, deliver(h, body, ""))
	assert.Equal(t, models.PaymentRefunded, h.payment(t, "order_abc").Status)

	// Captured after refund is ignored.
	assert.Equal(t, WebhookOutcomeIgnored, deliver(h, capturedBody(EventPaymentCaptured, "order_abc", "pay_123"), ""))
	assert.Equal(t, models.PaymentRefunded, h.payment(t, "order_abc").Status)
}

func TestWebhookUnhandledEventIgnored(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)

	body := []byte(`{"event":"payment.dispute.created","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_abc"}}}}`)
	assert.Equal(t, WebhookOutcomeIgnored, deliver(h, body, ""))
	assert.Equal(t, models.PaymentPending, h.payment(t, "order_abc").Status)
}
