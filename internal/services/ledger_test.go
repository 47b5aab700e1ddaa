package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/printdesk/internal/models"
)

func TestUpsertOrderForIntentInsertsOnce(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)
	ctx := context.Background()
	meta := sampleMetadata()

	first, err := h.svc.Ledger.UpsertOrderForIntent(ctx, "order_abc", &meta)
	require.NoError(t, err)
	require.NotNil(t, first)

	meta.Title = "Changed title"
	second, err := h.svc.Ledger.UpsertOrderForIntent(ctx, "order_abc", &meta)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Final Year Project Report", second.Title, "existing project is not overwritten")
	assert.Equal(t, int64(1), h.projectCount(t, "order_abc"))
}

func TestUpsertOrderForIntentWithoutMetadata(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)

	project, err := h.svc.Ledger.UpsertOrderForIntent(context.Background(), "order_abc", nil)
	require.NoError(t, err)
	assert.Nil(t, project)
	assert.Zero(t, h.projectCount(t, "order_abc"))
}

func TestUpsertOrderForIntentDoesNotRegressStatus(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)
	ctx := context.Background()
	meta := sampleMetadata()

	project, err := h.svc.Ledger.UpsertOrderForIntent(ctx, "order_abc", &meta)
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&models.Project{}).Where("id = ?", project.ID).Update("status", models.ProjectPrinting).Error)

	again, err := h.svc.Ledger.UpsertOrderForIntent(ctx, "order_abc", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectPrinting, again.Status)
}

func TestUpsertOrderForIntentUnknownOrder(t *testing.T) {
	h := newHarness(t)
	meta := sampleMetadata()

	_, err := h.svc.Ledger.UpsertOrderForIntent(context.Background(), "order_missing", &meta)
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestTransitionPaymentSingleWinner(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)
	ctx := context.Background()

	wins := 0
	for i := 0; i < 5; i++ {
		won, err := h.svc.Ledger.TransitionPayment(ctx, "order_abc", completableFrom, models.PaymentCompleted,
			map[string]any{"gateway_payment_id": fmt.Sprintf("pay_%d", i)})
		require.NoError(t, err)
		if won {
			wins++
		}
	}

	assert.Equal(t, 1, wins)
	p := h.payment(t, "order_abc")
	require.NotNil(t, p.GatewayPaymentID)
	assert.Equal(t, "pay_0", *p.GatewayPaymentID)
}

func TestLinkProjectOnlyOnce(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)
	ctx := context.Background()
	meta := sampleMetadata()

	project, err := h.svc.Ledger.UpsertOrderForIntent(ctx, "order_abc", &meta)
	require.NoError(t, err)
	p := h.payment(t, "order_abc")

	linked, err := h.svc.Ledger.LinkProject(ctx, p.ID, project.ID)
	require.NoError(t, err)
	assert.True(t, linked)

	linked, err = h.svc.Ledger.LinkProject(ctx, p.ID, project.ID)
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestGatewayOrderIDIsUnique(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)

	err := h.db.Create(&models.Payment{StudentID: h.student.ID, GatewayOrderID: "order_abc", Status: models.PaymentPending}).Error
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestListStudentPayments(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.openIntent(t, fmt.Sprintf("order_%d", i), 100)
	}

	payments, total, err := h.svc.Ledger.ListStudentPayments(context.Background(), h.student.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, payments, 2)
}

func TestFlagReconciliationSkipsCompletedPayment(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)
	_, err := h.svc.Verifier.VerifyAndCommit(context.Background(), h.student.ID, verifyRequest("order_abc", "pay_123", nil))
	require.NoError(t, err)

	p := h.payment(t, "order_abc")
	require.NoError(t, h.svc.Ledger.FlagReconciliation(context.Background(), p.ID, errors.New("rename: no such file")))

	p = h.payment(t, "order_abc")
	assert.Equal(t, models.PaymentCompleted, p.Status)
	assert.False(t, p.NeedsReconciliation)
	assert.Empty(t, p.LastError)
}

func TestFlagReconciliationMarksPendingPayment(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "order_abc", 590)
	p := h.payment(t, "order_abc")

	require.NoError(t, h.svc.Ledger.FlagReconciliation(context.Background(), p.ID, errors.New("disk full")))

	p = h.payment(t, "order_abc")
	assert.True(t, p.NeedsReconciliation)
	assert.Equal(t, "disk full", p.LastError)
}
