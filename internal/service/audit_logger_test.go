package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
)

func TestAuditLoggerRecord(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		serviceRoleKey string
		callerAuth     string
		wantAuth       string
		wantErr        error
	}{
		{name: "service role preferred", serviceRoleKey: testServiceRoleKey, callerAuth: "Bearer caller", wantAuth: "Bearer " + testServiceRoleKey},
		{name: "caller fallback", callerAuth: "Bearer caller", wantAuth: "Bearer caller"},
		{name: "no credential", wantErr: domain.ErrMissingAuth},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logs := &fakeLogRepo{}
			audit, err := NewAuditLogger(logs, tc.serviceRoleKey)
			if err != nil {
				t.Fatalf("NewAuditLogger() error = %v", err)
			}

			entry := domain.NotificationLogEntry{UserID: "u1", Title: "t", Route: "/inbox"}
			err = audit.Record(context.Background(), tc.callerAuth, entry)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Record() error = %v, want %v", err, tc.wantErr)
				}
				if len(logs.logged()) != 0 {
					t.Fatal("no write should be attempted without a credential")
				}
				return
			}
			if err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			logged := logs.logged()
			if len(logged) != 1 || logged[0].auth != tc.wantAuth || logged[0].entry.UserID != "u1" {
				t.Fatalf("logged = %+v", logged)
			}
		})
	}
}

func TestAuditLoggerWrapsBackendError(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("insert rejected")
	audit, err := NewAuditLogger(&fakeLogRepo{
		insertFn: func(ctx context.Context, entry domain.NotificationLogEntry) error { return backendErr },
	}, testServiceRoleKey)
	if err != nil {
		t.Fatalf("NewAuditLogger() error = %v", err)
	}

	if err := audit.Record(context.Background(), "", domain.NotificationLogEntry{}); !errors.Is(err, backendErr) {
		t.Fatalf("Record() error = %v, want wrapped backend error", err)
	}
}

func TestNewAuditLoggerRequiresRepository(t *testing.T) {
	t.Parallel()

	if _, err := NewAuditLogger(nil, ""); err == nil {
		t.Fatal("expected error for nil repository")
	}
}
