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
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/journey-dispatch/internal/bootstrap"
	"github.com/kursadbilgin/journey-dispatch/internal/config"
	"github.com/kursadbilgin/journey-dispatch/internal/handler"
	"github.com/kursadbilgin/journey-dispatch/internal/observability"
	"github.com/kursadbilgin/journey-dispatch/internal/queue"
	"github.com/kursadbilgin/journey-dispatch/internal/service"
	"github.com/kursadbilgin/journey-dispatch/internal/transport"
	"go.uber.org/zap"
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

	var dispatcher service.DispatchRunner
	if rt.Dispatcher != nil {
		dispatcher = rt.Dispatcher
	}

	var triggers handler.TriggerQueue
	if rt.RabbitMQ != nil {
		publisher, err := service.NewTriggerPublisher(queue.NewRabbitMQPublisher(rt.RabbitMQ))
		if err != nil {
			logger.Fatal("trigger publisher initialization failed", zap.Error(err))
		}
		triggers = publisher
	}

	dispatchHandler, err := handler.NewDispatchHandler(dispatcher, triggers, handler.DispatchOptions{
		Secret:                cfg.DispatchJobSecret,
		MissingBackend:        cfg.MissingBackend(),
		MissingPush:           cfg.MissingPush(),
		ServiceRoleConfigured: cfg.ServiceRoleKey != "",
	})
	if err != nil {
		logger.Fatal("dispatch handler initialization failed", zap.Error(err))
	}

	var runs handler.RunReader
	if rt.Runs != nil {
		runs = rt.Runs
	}

	app := fiber.New(fiber.Config{
		AppName:      observability.ServiceName,
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, rt.SQL, rt.Redis)
	handler.RegisterRunRoutes(app, handler.NewRunHandler(runs, cfg.DispatchJobSecret))
	handler.RegisterDispatchRoutes(app, dispatchHandler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("journey-dispatch api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Error("api server stopped", zap.Error(err))
	}
}
