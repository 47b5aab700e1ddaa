package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/example/printdesk/internal/logger"
)

const (
	AdminKeyHeader  = "x-admin-key"
	VendorKeyHeader = "x-vendor-key"
)

// StaticKeyMiddleware guards operator routes with a shared key header.
// An empty key closes the route entirely.
func StaticKeyMiddleware(header, key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return fiber.NewError(fiber.StatusForbidden, "route disabled")
		}

		supplied := c.Get(header)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(key)) != 1 {
			logger.SW("event", "security.bad_static_key", "header", header, "ip", c.IP()).
				Warn("rejected operator request")
			return fiber.NewError(fiber.StatusUnauthorized, "invalid key")
		}
		return c.Next()
	}
}
