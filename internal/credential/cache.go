package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshSkew = 5 * time.Minute
	refreshKey         = "bearer"

	// refreshTimeout bounds a shared exchange detached from its callers.
	refreshTimeout = 15 * time.Second
)

// Store keeps the current bearer credential between deliveries.
type Store interface {
	Get(ctx context.Context) (domain.BearerCredential, bool, error)
	Set(ctx context.Context, cred domain.BearerCredential, ttl time.Duration) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	cred domain.BearerCredential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context) (domain.BearerCredential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred.Token == "" {
		return domain.BearerCredential{}, false, nil
	}
	return s.cred, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, cred domain.BearerCredential, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = cred
	return nil
}

// CachedBroker reuses a credential until it is within skew of expiry. Refresh
// runs through a single-flight group, so concurrent deliveries in one batch
// trigger at most one exchange and all observe the same credential.
type CachedBroker struct {
	source  Broker
	store   Store
	group   singleflight.Group
	skew    time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewCachedBroker(source Broker, store Store, skew time.Duration, logger *zap.Logger) (*CachedBroker, error) {
	if source == nil {
		return nil, fmt.Errorf("source broker is required")
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CachedBroker{
		source: source,
		store:  store,
		skew:   skew,
		now:    time.Now,
		logger: logger,
	}, nil
}

func (b *CachedBroker) SetMetrics(metrics *observability.Metrics) {
	if b == nil {
		return
	}
	b.metrics = metrics
}

func (b *CachedBroker) Token(ctx context.Context) (domain.BearerCredential, error) {
	if cred, ok := b.cached(ctx); ok {
		b.metrics.IncCredentialLookup("hit")
		return cred, nil
	}

	// The shared exchange must outlive any single caller's cancellation; each
	// caller still stops waiting when its own context ends.
	result := b.group.DoChan(refreshKey, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		// Another caller may have refreshed while this one waited.
		if cred, ok := b.cached(refreshCtx); ok {
			return cred, nil
		}

		cred, err := b.source.Token(refreshCtx)
		if err != nil {
			return nil, err
		}

		ttl := cred.ExpiresAt.Sub(b.now()) - b.skew
		if ttl > 0 {
			if err := b.store.Set(refreshCtx, cred, ttl); err != nil {
				b.logger.Warn("failed to cache bearer credential", zap.Error(err))
			}
		}
		return cred, nil
	})

	var value any
	select {
	case <-ctx.Done():
		b.metrics.IncCredentialLookup("error")
		return domain.BearerCredential{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			b.metrics.IncCredentialLookup("error")
			return domain.BearerCredential{}, res.Err
		}
		value = res.Val
	}

	b.metrics.IncCredentialLookup("refresh")
	return value.(domain.BearerCredential), nil
}

func (b *CachedBroker) cached(ctx context.Context) (domain.BearerCredential, bool) {
	cred, ok, err := b.store.Get(ctx)
	if err != nil {
		b.logger.Warn("failed to read cached bearer credential", zap.Error(err))
		return domain.BearerCredential{}, false
	}
	if !ok || !cred.UsableAt(b.now(), b.skew) {
		return domain.BearerCredential{}, false
	}
	return cred, true
}
