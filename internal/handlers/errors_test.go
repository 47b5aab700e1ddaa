package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/printdesk/internal/services"
)

func TestErrorHandler(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{"payment error", fmt.Errorf("wrapped: %w", services.ErrGatewayUnavailable), 503, "GatewayUnavailable", services.InfoGatewayUnavailable.Message},
		{"persistence hides cause", fmt.Errorf("x: %w", &services.PaymentError{Info: services.InfoPersistenceFailure, Err: errors.New("pq: deadlock")}), 500, "PersistenceFailure", services.InfoPersistenceFailure.Message},
		{"fiber error", fiber.NewError(fiber.StatusTeapot, "short and stout"), 418, "", "short and stout"},
		{"plain error", errors.New("boom"), 500, "", "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
			app.Get("/", func(*fiber.Ctx) error { return tc.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.message, body["message"])
			if tc.kind != "" {
				assert.Equal(t, tc.kind, body["error"])
			}
		})
	}
}
