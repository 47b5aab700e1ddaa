package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/example/printdesk/internal/middleware"
	"github.com/example/printdesk/internal/models"
	"github.com/example/printdesk/internal/services"
	"github.com/example/printdesk/internal/utils"
)

const (
	signatureHeader = "x-gateway-signature"
	eventIDHeader   = "x-gateway-event-id"
)

// PaymentsHandler exposes checkout, verification and webhook endpoints.
type PaymentsHandler struct {
	svc *services.Services
}

// NewPaymentsHandler constructs PaymentsHandler.
func NewPaymentsHandler(svc *services.Services) *PaymentsHandler {
	return &PaymentsHandler{svc: svc}
}

type createOrderRequest struct {
	Amount        decimal.Decimal      `json:"amount"`
	OrderMetadata models.OrderMetadata `json:"orderMetadata"`
}

// CreateOrder opens a gateway checkout for the authenticated student.
func (h *PaymentsHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return writePaymentError(c, services.ErrInvalidRequest)
	}

	intent, err := h.svc.Intents.CreateOrder(c.UserContext(), userID, req.Amount, req.OrderMetadata)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":          true,
		"gatewayOrderId":   intent.GatewayOrderID,
		"amount":           intent.AmountMinorUnits,
		"currency":         intent.Currency,
		"gatewayPublicKey": intent.GatewayPublicKey,
	})
}

// VerifyPayment confirms a checkout callback and materializes the project.
func (h *PaymentsHandler) VerifyPayment(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req services.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return fiber.NewError(fiber.StatusBadRequest, "gatewayOrderId, gatewayPaymentId and signature are required")
	}

	result, err := h.svc.Verifier.VerifyAndCommit(c.UserContext(), userID, req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"projectId": result.ProjectID,
		"replayed":  result.Replayed,
	})
}

// Webhook accepts gateway callbacks. Anything past the header check is answered 200
// so the gateway stops retrying; the outcome is logged and persisted instead.
func (h *PaymentsHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Get(signatureHeader)
	if signature == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing signature header")
	}

	// fiber reuses the request buffer once the handler returns
	raw := append([]byte(nil), c.Body()...)
	outcome := h.svc.Webhooks.HandleWebhookEvent(c.UserContext(), raw, signature, c.Get(eventIDHeader))

	return c.JSON(fiber.Map{
		"success": true,
		"status":  outcome,
	})
}

type cleanupRequest struct {
	MaxAgeMinutes int `json:"maxAgeMinutes"`
}

// CleanupExpired deletes abandoned pending checkouts on operator request.
func (h *PaymentsHandler) CleanupExpired(c *fiber.Ctx) error {
	var req cleanupRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	if req.MaxAgeMinutes < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "maxAgeMinutes must not be negative")
	}

	deleted, err := h.svc.Cleanup.CleanupExpired(c.UserContext(), time.Duration(req.MaxAgeMinutes)*time.Minute)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"deletedCount": deleted,
	})
}

// MyPayments lists the student's payments, newest first.
func (h *PaymentsHandler) MyPayments(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pagination := utils.ParsePagination(c)
	payments, total, err := h.svc.Ledger.ListStudentPayments(c.UserContext(), userID, pagination.Offset, pagination.Limit)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       payments,
		"pagination": pagination.Meta(total),
	})
}
