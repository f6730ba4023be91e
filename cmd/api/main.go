package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/purgeworks/deletion-engine/internal/alert"
	"github.com/purgeworks/deletion-engine/internal/cache"
	"github.com/purgeworks/deletion-engine/internal/config"
	"github.com/purgeworks/deletion-engine/internal/handler"
	"github.com/purgeworks/deletion-engine/internal/infra/postgresql"
	"github.com/purgeworks/deletion-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/purgeworks/deletion-engine/internal/infra/redis"
	"github.com/purgeworks/deletion-engine/internal/observability"
	"github.com/purgeworks/deletion-engine/internal/queue"
	"github.com/purgeworks/deletion-engine/internal/repository"
	"github.com/purgeworks/deletion-engine/internal/service"
	"github.com/purgeworks/deletion-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("deletion-engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL, cfg.QueuePartitions, cfg.DeliveryLimit)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close()

	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, logger)

	trackingRepo := repository.NewGormTrackingRepo(db)
	notificationRepo := repository.NewGormNotificationRepo(db)

	statusCache, err := cache.NewTrackingCache(
		rdb,
		time.Duration(cfg.StatusCacheTTLSeconds)*time.Second,
		logger,
	)
	if err != nil {
		return fmt.Errorf("status cache initialization failed: %w", err)
	}

	var alerter alert.Alerter
	if cfg.AlertWebhookURL != "" {
		alerter, err = alert.NewWebhookAlerter(cfg.AlertWebhookURL)
		if err != nil {
			return fmt.Errorf("alert webhook initialization failed: %w", err)
		}
	} else {
		alerter = alert.NewLogAlerter(logger)
	}

	metrics := observability.NewMetrics()

	requestService, err := service.NewRequestService(
		trackingRepo, notificationRepo, publisher, statusCache, broker.Partitions(), logger,
	)
	if err != nil {
		return fmt.Errorf("request service initialization failed: %w", err)
	}
	requestService.SetMetrics(metrics)

	workerService, err := service.NewWorkerService(
		trackingRepo, notificationRepo, consumer, statusCache,
		broker.Partitions(), cfg.HardDeleteMaxAttempts, logger,
	)
	if err != nil {
		return fmt.Errorf("worker service initialization failed: %w", err)
	}
	workerService.SetMetrics(metrics)

	dlqService, err := service.NewDLQService(
		trackingRepo, consumer, publisher, alerter, statusCache, broker.Partitions(), logger,
	)
	if err != nil {
		return fmt.Errorf("dlq service initialization failed: %w", err)
	}
	dlqService.SetMetrics(metrics)

	retention, err := service.NewRetentionSweeper(
		trackingRepo,
		time.Duration(cfg.RetentionDays)*24*time.Hour,
		0, 0,
		logger,
	)
	if err != nil {
		return fmt.Errorf("retention sweeper initialization failed: %w", err)
	}
	retention.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())

	if err := handler.RegisterDeletionRoutes(app, requestService, dlqService); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}
	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("deletion-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	g.Go(func() error {
		return workerService.Start(gctx)
	})

	g.Go(func() error {
		return dlqService.Start(gctx)
	})

	g.Go(func() error {
		return retention.Start(gctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("deletion-engine stopped")
	return nil
}
