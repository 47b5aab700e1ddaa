package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/printdesk/internal/config"
	"github.com/example/printdesk/internal/database"
	"github.com/example/printdesk/internal/events"
	"github.com/example/printdesk/internal/gateway"
	"github.com/example/printdesk/internal/handlers"
	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/routes"
	"github.com/example/printdesk/internal/scheduler"
	"github.com/example/printdesk/internal/services"
)

const cleanupJobTimeout = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		_ = logger.Init("info")
		logger.L().Fatal("invalid configuration", zap.Error(err))
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}

	var gw gateway.Gateway
	if cfg.GatewayConfigured() {
		gw = gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout)
	} else {
		log.Warn("gateway credentials missing, checkout creation disabled")
	}

	var publishers []events.Publisher
	if cfg.TelegramBotToken != "" && cfg.TelegramVendorChat != "" {
		publishers = append(publishers, services.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramVendorChat))
	}
	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publishers = append(publishers, kafkaPublisher)
	}
	fanout := events.NewFanout(10*time.Second, publishers...)
	log.Info("order paid publishers ready", zap.Int("count", fanout.Len()))

	svc := services.New(db, services.Options{
		Gateway:        gw,
		Currency:       cfg.Currency,
		GatewayTimeout: cfg.GatewayTimeout,
		KeySecret:      cfg.GatewayKeySecret,
		WebhookSecret:  cfg.GatewayWebhookSecret,
		PendingTTL:     cfg.PendingTTL,
		Artifacts:      services.NewDiskArtifactStore(cfg.UploadStagingDir, cfg.UploadDir),
		Publisher:      fanout,
	})

	var locker scheduler.Locker
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis ping failed, jobs will retry the lock each run", zap.Error(err))
		}
		cancel()
		locker = scheduler.NewRedisLocker(redisClient)
	}

	jobs := scheduler.New(locker)
	if err := jobs.AddJob("cleanup-expired", cfg.CleanupCron, cleanupJobTimeout, func(ctx context.Context) error {
		_, err := svc.Cleanup.CleanupExpired(ctx, 0)
		return err
	}); err != nil {
		log.Fatal("scheduler setup failed", zap.Error(err))
	}
	jobs.Start()

	app := fiber.New(fiber.Config{
		AppName:      "PrintDesk Backend",
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    4 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, db, cfg, svc)

	go func() {
		log.Info("starting server", zap.String("port", cfg.AppPort))
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			log.Fatal("fiber.Listen error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	jobs.Stop(shutdownCtx)
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Warn("kafka close", zap.Error(err))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
