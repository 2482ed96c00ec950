package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/journey-dispatch/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTokenHealthManagerRetire(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		serviceRoleKey string
		invalidateErr  error
		wantCalls      int
		wantMessage    string
	}{
		{name: "retired", serviceRoleKey: testServiceRoleKey, wantCalls: 1, wantMessage: "retired unregistered device token"},
		{name: "backend failure is swallowed", serviceRoleKey: testServiceRoleKey, invalidateErr: errors.New("boom"), wantCalls: 1, wantMessage: "failed to retire device token"},
		{name: "no service role", wantCalls: 0, wantMessage: "service role not configured, skipping token retirement"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			tokens := &fakeTokenRepo{
				invalidateFn: func(ctx context.Context, token string) error { return tc.invalidateErr },
			}
			manager := NewTokenHealthManager(tokens, tc.serviceRoleKey, zap.New(core))

			ctx := observability.WithRequestID(context.Background(), "req-7")
			manager.Retire(ctx, "abcdefghijklmnop")

			if len(tokens.invalidated) != tc.wantCalls {
				t.Fatalf("invalidate calls = %d, want %d", len(tokens.invalidated), tc.wantCalls)
			}
			if tc.wantCalls > 0 && tokens.auths[0] != "Bearer "+testServiceRoleKey {
				t.Fatalf("invalidate auth = %q", tokens.auths[0])
			}

			entries := logs.FilterMessage(tc.wantMessage).All()
			if len(entries) != 1 {
				t.Fatalf("log %q count = %d, want 1", tc.wantMessage, len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["token"] != "abcdefgh…" {
				t.Fatalf("token field = %v, want fingerprint only", fields["token"])
			}
			if fields["requestId"] != "req-7" {
				t.Fatalf("requestId field = %v", fields["requestId"])
			}
		})
	}
}

func TestTokenHealthManagerNilSafe(t *testing.T) {
	t.Parallel()

	var manager *TokenHealthManager
	manager.Retire(context.Background(), "tok")

	NewTokenHealthManager(nil, testServiceRoleKey, nil).Retire(context.Background(), "tok")
}
