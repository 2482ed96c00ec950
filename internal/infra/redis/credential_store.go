package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/journey-dispatch/internal/credential"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const defaultCredentialKey = "credential:push:bearer"

var _ credential.Store = (*CredentialStore)(nil)

type storedCredential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CredentialStore shares the push bearer credential across instances. Entries
// expire before the credential does, so a read never returns a stale token.
type CredentialStore struct {
	client *goredis.Client
	key    string
}

func NewCredentialStore(client *goredis.Client, key string) (*CredentialStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		key = defaultCredentialKey
	}
	return &CredentialStore{client: client, key: key}, nil
}

func (s *CredentialStore) Get(ctx context.Context) (domain.BearerCredential, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.BearerCredential{}, false, nil
	}
	if err != nil {
		return domain.BearerCredential{}, false, fmt.Errorf("failed to read credential: %w", err)
	}

	var stored storedCredential
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.BearerCredential{}, false, fmt.Errorf("failed to decode credential: %w", err)
	}

	return domain.BearerCredential{Token: stored.Token, ExpiresAt: stored.ExpiresAt}, true, nil
}

func (s *CredentialStore) Set(ctx context.Context, cred domain.BearerCredential, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(storedCredential{Token: cred.Token, ExpiresAt: cred.ExpiresAt})
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}
