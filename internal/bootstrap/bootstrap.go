// Package bootstrap assembles the dispatch pipeline from configuration. Both
// the API and the worker binaries build the same graph through it.
package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/journey-dispatch/internal/config"
	"github.com/kursadbilgin/journey-dispatch/internal/credential"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/journey-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/journey-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/journey-dispatch/internal/observability"
	"github.com/kursadbilgin/journey-dispatch/internal/provider"
	"github.com/kursadbilgin/journey-dispatch/internal/queue"
	"github.com/kursadbilgin/journey-dispatch/internal/repository"
	"github.com/kursadbilgin/journey-dispatch/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Runtime holds the pipeline and the optional stores behind it. Any store
// field is nil when its URL is not configured.
type Runtime struct {
	Dispatcher *service.Dispatcher
	Runs       *repository.GormRunRepo
	SQL        *sql.DB
	Redis      *redis.Client
	RabbitMQ   *queue.RabbitMQ
}

// Build connects the configured stores and wires the dispatcher. When the
// backend or push settings are missing, the stores are still connected but
// Dispatcher stays nil so callers can report the config error per request.
func Build(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{}

	if err := rt.connectStores(cfg, logger); err != nil {
		_ = rt.Close()
		return nil, err
	}

	if cfg.MissingBackend() || cfg.MissingPush() {
		logger.Warn("dispatch configuration incomplete, triggers will be rejected",
			zap.Bool("missingBackend", cfg.MissingBackend()),
			zap.Bool("missingPush", cfg.MissingPush()),
		)
		return rt, nil
	}

	dispatcher, err := rt.buildDispatcher(cfg, logger, metrics)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Dispatcher = dispatcher

	return rt, nil
}

func (rt *Runtime) connectStores(cfg *config.Config, logger *zap.Logger) error {
	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		db, err := postgresql.NewPostgres(dsn)
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
		rt.SQL = sqlDB
		rt.Runs = repository.NewGormRunRepo(db)
		logger.Info("run history enabled")
	}

	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		rdb, err := infraredis.NewRedis(url)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		rt.Redis = rdb
	}

	if url := strings.TrimSpace(cfg.RabbitMQURL); url != "" {
		rabbit, err := queue.NewRabbitMQ(url)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		rt.RabbitMQ = rabbit
	}

	return nil
}

func (rt *Runtime) buildDispatcher(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*service.Dispatcher, error) {
	rpc, err := repository.NewRPCClient(cfg.BackendURL, cfg.BackendAnonKey)
	if err != nil {
		return nil, err
	}

	broker, err := rt.buildBroker(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	health := service.NewTokenHealthManager(rpc, cfg.ServiceRoleKey, logger)
	health.SetMetrics(metrics)

	push, err := provider.NewFCMProvider(cfg.FCMBaseURL, cfg.FCMProjectID, broker, health)
	if err != nil {
		return nil, err
	}

	audit, err := service.NewAuditLogger(rpc, cfg.ServiceRoleKey)
	if err != nil {
		return nil, err
	}

	dispatcher, err := service.NewDispatcher(rpc, push, audit, service.DispatcherConfig{
		ServiceRoleKey:   cfg.ServiceRoleKey,
		DefaultBatchSize: cfg.DefaultBatchSize,
		MaxBatchSize:     cfg.MaxBatchSize,
		Concurrency:      cfg.DeliveryConcurrency,
		Timeout:          cfg.DispatchTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}
	dispatcher.SetMetrics(metrics)

	if rt.Runs != nil {
		dispatcher.SetRunRepository(rt.Runs)
	}
	if cfg.RateLimitPerSec > 0 {
		if rt.Redis == nil {
			return nil, fmt.Errorf("%w: RATE_LIMIT_PER_SEC requires REDIS_URL", domain.ErrConfig)
		}
		limiter, err := infraredis.NewRedisRateLimiter(rt.Redis, cfg.RateLimitPerSec)
		if err != nil {
			return nil, err
		}
		dispatcher.SetRateLimiter(limiter)
	}

	return dispatcher, nil
}

func (rt *Runtime) buildBroker(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (credential.Broker, error) {
	source, err := credential.NewJWTBroker(credential.ServiceAccount{
		ClientEmail:   cfg.FCMClientEmail,
		PrivateKeyPEM: cfg.FCMPrivateKey,
		Scope:         cfg.FCMScope,
		TokenURL:      cfg.OAuthTokenURL,
	})
	if err != nil {
		return nil, err
	}

	var store credential.Store
	switch cfg.CredentialCache {
	case config.CredentialCacheNone:
		return source, nil
	case config.CredentialCacheRedis:
		if rt.Redis == nil {
			return nil, fmt.Errorf("%w: CREDENTIAL_CACHE=redis requires REDIS_URL", domain.ErrConfig)
		}
		store, err = infraredis.NewCredentialStore(rt.Redis, "")
		if err != nil {
			return nil, err
		}
	default:
		store = credential.NewMemoryStore()
	}

	cached, err := credential.NewCachedBroker(source, store, credential.DefaultRefreshSkew, logger)
	if err != nil {
		return nil, err
	}
	cached.SetMetrics(metrics)
	return cached, nil
}

// Close releases every connected store.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}

	var errs []error
	if rt.RabbitMQ != nil {
		errs = append(errs, rt.RabbitMQ.Close())
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.SQL != nil {
		errs = append(errs, rt.SQL.Close())
	}
	return errors.Join(errs...)
}
