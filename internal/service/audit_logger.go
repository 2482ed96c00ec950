package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/repository"
)

// AuditLogger writes one notification log entry per delivery attempt. Unlike
// token retirement it fails loudly: a recipient without a log entry does not
// count as delivered.
type AuditLogger struct {
	logs        repository.NotificationLogRepository
	serviceAuth string
}

func NewAuditLogger(logs repository.NotificationLogRepository, serviceRoleKey string) (*AuditLogger, error) {
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}

	return &AuditLogger{
		logs:        logs,
		serviceAuth: bearer(serviceRoleKey),
	}, nil
}

// Record writes entry with the service role when configured, otherwise with
// the credential of the invocation that produced it.
func (a *AuditLogger) Record(ctx context.Context, callerAuth string, entry domain.NotificationLogEntry) error {
	auth := a.serviceAuth
	if auth == "" {
		auth = callerAuth
	}
	if auth == "" {
		return fmt.Errorf("audit log write: %w", domain.ErrMissingAuth)
	}

	if err := a.logs.InsertNotificationLog(ctx, auth, entry); err != nil {
		return fmt.Errorf("audit log write failed: %w", err)
	}
	return nil
}
