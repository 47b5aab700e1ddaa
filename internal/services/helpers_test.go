package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/example/printdesk/internal/database"
	"github.com/example/printdesk/internal/events"
	"github.com/example/printdesk/internal/gateway"
	"github.com/example/printdesk/internal/models"
)

const (
	testKeySecret     = "key_secret_test"
	testWebhookSecret = "webhook_secret_test"
)

type fakeGateway struct {
	mu       sync.Mutex
	orderID  string
	err      error
	delay    time.Duration
	requests []gateway.OrderRequest
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	id := g.orderID
	if id == "" {
		id = "order_" + uuid.NewString()[:8]
	}
	return &gateway.Order{ID: id, Amount: req.AmountMinorUnits, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (g *fakeGateway) PublicKey() string { return "rzp_test_public" }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderPaid
}

func (p *recordingPublisher) PublishOrderPaid(_ context.Context, evt events.OrderPaid) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) published() []events.OrderPaid {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.OrderPaid(nil), p.events...)
}

type failingArtifacts struct{}

func (failingArtifacts) Commit(context.Context, CommitRequest) (string, error) {
	return "", errors.New("disk full")
}

type harness struct {
	db        *gorm.DB
	svc       *Services
	gateway   *fakeGateway
	publisher *recordingPublisher
	student   models.User
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), database.Config())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	db := newTestDB(t)

	h := &harness{
		db:        db,
		gateway:   &fakeGateway{},
		publisher: &recordingPublisher{},
		student: models.User{
			Name:    "Asha Rao",
			Email:   "asha@example.edu",
			College: "City Engineering College",
		},
	}
	require.NoError(t, db.Create(&h.student).Error)

	opts := Options{
		Gateway:        h.gateway,
		Currency:       "INR",
		GatewayTimeout: time.Second,
		KeySecret:      testKeySecret,
		WebhookSecret:  testWebhookSecret,
		PendingTTL:     30 * time.Minute,
		Publisher:      h.publisher,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.svc = New(db, opts)
	return h
}

func sampleMetadata() models.OrderMetadata {
	return models.OrderMetadata{
		Title:      "Final Year Project Report",
		Department: "CSE",
		Semester:   8,
		PrintSpecification: models.PrintSpecification{
			Pages:       120,
			Copies:      2,
			PrintType:   "color",
			BindingType: "spiral",
		},
	}
}

// openIntent creates a pending payment through the real intent path.
func (h *harness) openIntent(t *testing.T, orderID string, amount int64) *OrderIntent {
	t.Helper()
	h.gateway.orderID = orderID
	intent, err := h.svc.Intents.CreateOrder(context.Background(), h.student.ID, decimal.NewFromInt(amount), sampleMetadata())
	require.NoError(t, err)
	return intent
}

func (h *harness) payment(t *testing.T, orderID string) models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, h.db.Where("gateway_order_id = ?", orderID).First(&p).Error)
	return p
}

func (h *harness) projectCount(t *testing.T, orderID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.Project{}).Where("gateway_order_id = ?", orderID).Count(&n).Error)
	return n
}

func verifyRequest(orderID, paymentID string, meta *models.OrderMetadata) VerifyRequest {
	return VerifyRequest{
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
		Signature:        gateway.CheckoutSignature(orderID, paymentID, testKeySecret),
		Metadata:         meta,
	}
}
