package ratelimit

import (
	"context"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
)

// DeliveryLimiter bounds push gateway throughput per notification kind.
type DeliveryLimiter interface {
	Allow(ctx context.Context, kind domain.Kind) (bool, error)
	Wait(ctx context.Context, kind domain.Kind) error
}
