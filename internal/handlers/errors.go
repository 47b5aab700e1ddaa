package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/services"
)

// ErrorHandler renders every unhandled error as the JSON envelope used by the API.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if pe, ok := services.AsPaymentError(err); ok {
		return writePaymentError(c, pe)
	}

	code := fiber.StatusInternalServerError
	message := "internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	if code >= fiber.StatusInternalServerError {
		logger.L().Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func writePaymentError(c *fiber.Ctx, pe *services.PaymentError) error {
	if pe.Info.Status >= fiber.StatusInternalServerError {
		logger.L().Error("payment request failed",
			zap.String("kind", pe.Info.Name),
			zap.String("path", c.Path()),
			zap.Error(pe),
		)
	}
	return c.Status(pe.Info.Status).JSON(fiber.Map{
		"success": false,
		"error":   pe.Info.Name,
		"message": pe.Info.Message,
	})
}
