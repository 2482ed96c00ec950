package service

import (
	"context"
	"strings"

	"github.com/kursadbilgin/journey-dispatch/internal/observability"
	"github.com/kursadbilgin/journey-dispatch/internal/provider"
	"github.com/kursadbilgin/journey-dispatch/internal/repository"
	"go.uber.org/zap"
)

var _ provider.TokenRetirer = (*TokenHealthManager)(nil)

// TokenHealthManager retires device tokens the push gateway reported as
// permanently unregistered. Retirement is best-effort: a token that survives
// will fail again on a later batch and be retried then.
type TokenHealthManager struct {
	tokens      repository.DeviceTokenRepository
	serviceAuth string
	logger      *zap.Logger
	metrics     *observability.Metrics
}

func NewTokenHealthManager(tokens repository.DeviceTokenRepository, serviceRoleKey string, logger *zap.Logger) *TokenHealthManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenHealthManager{
		tokens:      tokens,
		serviceAuth: bearer(serviceRoleKey),
		logger:      logger,
	}
}

func (m *TokenHealthManager) SetMetrics(metrics *observability.Metrics) {
	if m == nil {
		return
	}
	m.metrics = metrics
}

func (m *TokenHealthManager) Retire(ctx context.Context, token string) {
	if m == nil {
		return
	}
	logger := observability.WithContextLogger(m.logger, ctx).
		With(zap.String("token", observability.TokenFingerprint(token)))

	if m.serviceAuth == "" || m.tokens == nil {
		logger.Warn("service role not configured, skipping token retirement")
		m.metrics.IncTokenRetired("skipped")
		return
	}

	if err := m.tokens.InvalidateDeviceToken(ctx, m.serviceAuth, token); err != nil {
		logger.Warn("failed to retire device token", zap.Error(err))
		m.metrics.IncTokenRetired("failed")
		return
	}

	logger.Info("retired unregistered device token")
	m.metrics.IncTokenRetired("retired")
}

// bearer formats an Authorization header value, or "" for an empty key.
func bearer(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return "Bearer " + key
}
