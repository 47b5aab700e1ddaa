package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/example/printdesk/internal/config"
	"github.com/example/printdesk/internal/handlers"
	"github.com/example/printdesk/internal/middleware"
	"github.com/example/printdesk/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, svc *services.Services) {
	authHandler := handlers.NewAuthHandler(db, cfg)
	paymentsHandler := handlers.NewPaymentsHandler(svc)
	projectsHandler := handlers.NewProjectsHandler(svc.Ledger)
	vendorHandler := handlers.NewVendorHandler(db, svc.Projects)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// The gateway signs webhooks itself, so this route sits outside the JWT group.
	api.Post("/payments/webhook", paymentsHandler.Webhook)
	api.Post("/payments/cleanup-expired",
		middleware.StaticKeyMiddleware(middleware.AdminKeyHeader, cfg.AdminKey),
		paymentsHandler.CleanupExpired)

	vendor := api.Group("/vendor", middleware.StaticKeyMiddleware(middleware.VendorKeyHeader, cfg.VendorKey))
	vendor.Get("/pending-orders", vendorHandler.PendingOrders)
	vendor.Put("/update-status/:projectId", vendorHandler.UpdateStatus)
	vendor.Get("/stats", vendorHandler.Stats)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))

	protected.Post("/payments/create-order", paymentsHandler.CreateOrder)
	protected.Post("/payments/verify-payment", paymentsHandler.VerifyPayment)
	protected.Get("/payments/my-payments", paymentsHandler.MyPayments)

	protected.Get("/projects/my-projects", projectsHandler.MyProjects)
	protected.Get("/projects/:id", projectsHandler.GetProject)
}
