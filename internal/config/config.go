package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	CredentialCacheMemory = "memory"
	CredentialCacheRedis  = "redis"
	CredentialCacheNone   = "none"
)

// Config is loaded once at startup. Backend and push settings are not
// required here: a missing value is reported per request with a named error.
type Config struct {
	BackendURL     string `env:"MATCH_BACKEND_URL"`
	BackendAnonKey string `env:"MATCH_BACKEND_ANON_KEY"`
	ServiceRoleKey string `env:"SERVICE_ROLE_KEY"`

	FCMProjectID   string `env:"FCM_PROJECT_ID"`
	FCMClientEmail string `env:"FCM_CLIENT_EMAIL"`
	FCMPrivateKey  string `env:"FCM_PRIVATE_KEY"`
	FCMBaseURL     string `env:"FCM_BASE_URL,default=https://fcm.googleapis.com"`
	OAuthTokenURL  string `env:"OAUTH_TOKEN_URL,default=https://oauth2.googleapis.com/token"`
	FCMScope       string `env:"FCM_SCOPE,default=https://www.googleapis.com/auth/firebase.messaging"`

	DispatchJobSecret   string `env:"DISPATCH_JOB_SECRET"`
	DefaultBatchSize    int    `env:"DEFAULT_BATCH_SIZE,default=10"`
	MaxBatchSize        int    `env:"MAX_BATCH_SIZE,default=100"`
	DispatchTimeoutSec  int    `env:"DISPATCH_TIMEOUT_SEC,default=0"`
	DeliveryConcurrency int    `env:"DELIVERY_CONCURRENCY,default=16"`

	CredentialCache string `env:"CREDENTIAL_CACHE,default=memory"`
	RedisURL        string `env:"REDIS_URL"`
	DatabaseDSN     string `env:"DATABASE_DSN"`
	RabbitMQURL     string `env:"RABBITMQ_URL"`

	RateLimitPerSec      int `env:"RATE_LIMIT_PER_SEC,default=0"`
	SchedulerIntervalSec int `env:"SCHEDULER_INTERVAL_SEC,default=0"`
	WorkerConcurrency    int `env:"WORKER_CONCURRENCY,default=4"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.CredentialCache = strings.ToLower(strings.TrimSpace(cfg.CredentialCache))
	switch cfg.CredentialCache {
	case CredentialCacheMemory, CredentialCacheRedis, CredentialCacheNone:
	case "":
		cfg.CredentialCache = CredentialCacheMemory
	default:
		return nil, fmt.Errorf("failed to load config: invalid CREDENTIAL_CACHE %q", cfg.CredentialCache)
	}
	if cfg.CredentialCache == CredentialCacheRedis && strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, fmt.Errorf("failed to load config: CREDENTIAL_CACHE=redis requires REDIS_URL")
	}

	return &cfg, nil
}

// MissingBackend reports whether the matching backend cannot be reached.
func (c *Config) MissingBackend() bool {
	return blank(c.BackendURL) || blank(c.BackendAnonKey)
}

// MissingPush reports whether push credentials are incomplete.
func (c *Config) MissingPush() bool {
	return blank(c.FCMProjectID) || blank(c.FCMClientEmail) || blank(c.FCMPrivateKey)
}

func (c *Config) DispatchTimeout() time.Duration {
	if c.DispatchTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.DispatchTimeoutSec) * time.Second
}

func (c *Config) SchedulerInterval() time.Duration {
	if c.SchedulerIntervalSec <= 0 {
		return 0
	}
	return time.Duration(c.SchedulerIntervalSec) * time.Second
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
