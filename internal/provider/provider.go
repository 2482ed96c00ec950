package provider

import (
	"context"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
)

// Provider is the outbound push delivery port.
type Provider interface {
	Send(ctx context.Context, message domain.PushMessage) (*ProviderResponse, error)
}

// TokenRetirer is notified when the gateway reports a destination as
// permanently unregistered. Implementations must not fail the caller.
type TokenRetirer interface {
	Retire(ctx context.Context, token string)
}

// ProviderResponse stores gateway call metadata for audit and run history.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
