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
	"github.com/kursadbilgin/journey-dispatch/internal/bootstrap"
	"github.com/kursadbilgin/journey-dispatch/internal/config"
	"github.com/kursadbilgin/journey-dispatch/internal/handler"
	"github.com/kursadbilgin/journey-dispatch/internal/observability"
	"github.com/kursadbilgin/journey-dispatch/internal/queue"
	"github.com/kursadbilgin/journey-dispatch/internal/service"
	"github.com/kursadbilgin/journey-dispatch/internal/transport"
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

	metrics := observability.NewMetrics()

	rt, err := bootstrap.Build(cfg, logger, metrics)
	if err != nil {
		logger.Fatal("dispatch pipeline initialization failed", zap.Error(err))
	}
	defer rt.Close() //nolint:errcheck

	if rt.Dispatcher == nil {
		logger.Fatal("worker requires complete backend and push configuration")
	}
	if rt.RabbitMQ == nil && cfg.SchedulerInterval() == 0 {
		logger.Fatal("worker has nothing to do: set RABBITMQ_URL or SCHEDULER_INTERVAL_SEC")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	if rt.RabbitMQ != nil {
		consumer := queue.NewRabbitMQConsumer(rt.RabbitMQ, cfg.WorkerConcurrency, logger)
		worker, err := service.NewTriggerWorker(rt.Dispatcher, consumer, cfg.WorkerConcurrency, logger)
		if err != nil {
			logger.Fatal("trigger worker initialization failed", zap.Error(err))
		}
		g.Go(func() error { return worker.Start(groupCtx) })
	}

	if interval := cfg.SchedulerInterval(); interval > 0 {
		scheduler, err := service.NewScheduler(rt.Dispatcher, interval, cfg.DefaultBatchSize, cfg.DefaultBatchSize, logger)
		if err != nil {
			logger.Fatal("scheduler initialization failed", zap.Error(err))
		}
		g.Go(func() error { return scheduler.Start(groupCtx) })
	}

	app := fiber.New(fiber.Config{
		AppName:               observability.ServiceName + "-worker",
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, rt.SQL, rt.Redis)

	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("worker probe server stopped: %w", err)
		}
		return nil
	})

	logger.Info("journey-dispatch worker started",
		zap.Bool("queue", rt.RabbitMQ != nil),
		zap.Duration("schedulerInterval", cfg.SchedulerInterval()),
	)
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
}
