package repository

import (
	"time"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
)

// DispatchRunModel is the persistence model for the dispatch_runs table.
type DispatchRunModel struct {
	ID          string           `gorm:"type:uuid;primaryKey"`
	RequestID   string           `gorm:"type:varchar(64);not null;index"`
	Stage       domain.Kind      `gorm:"type:varchar(16);not null"`
	Trigger     string           `gorm:"type:varchar(16);not null"`
	Matched     int              `gorm:"not null;default:0"`
	PushTargets int              `gorm:"not null;default:0"`
	PushSuccess int              `gorm:"not null;default:0"`
	Status      domain.RunStatus `gorm:"type:varchar(20);not null"`
	Error       *string          `gorm:"type:text"`
	StartedAt   time.Time        `gorm:"type:timestamptz;not null"`
	FinishedAt  time.Time        `gorm:"type:timestamptz;not null"`
}

func (DispatchRunModel) TableName() string {
	return "dispatch_runs"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID          string                `gorm:"type:uuid;primaryKey"`
	RunID       string                `gorm:"type:uuid;not null"`
	RecipientID string                `gorm:"type:varchar(64);not null"`
	JourneyID   string                `gorm:"type:varchar(64);not null"`
	Kind        domain.Kind           `gorm:"type:varchar(16);not null"`
	Status      domain.DeliveryStatus `gorm:"type:varchar(10);not null"`
	Error       *string               `gorm:"type:text"`
	CreatedAt   time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func runModelFromDomain(r *domain.DispatchRun) *DispatchRunModel {
	if r == nil {
		return nil
	}

	return &DispatchRunModel{
		ID:          r.ID,
		RequestID:   r.RequestID,
		Stage:       r.Stage,
		Trigger:     r.Trigger,
		Matched:     r.Matched,
		PushTargets: r.PushTargets,
		PushSuccess: r.PushSuccess,
		Status:      r.Status,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
}

func runModelToDomain(m *DispatchRunModel) *domain.DispatchRun {
	if m == nil {
		return nil
	}

	return &domain.DispatchRun{
		ID:          m.ID,
		RequestID:   m.RequestID,
		Stage:       m.Stage,
		Trigger:     m.Trigger,
		Matched:     m.Matched,
		PushTargets: m.PushTargets,
		PushSuccess: m.PushSuccess,
		Status:      m.Status,
		Error:       m.Error,
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:          a.ID,
		RunID:       a.RunID,
		RecipientID: a.RecipientID,
		JourneyID:   a.JourneyID,
		Kind:        a.Kind,
		Status:      a.Status,
		Error:       a.Error,
		CreatedAt:   a.CreatedAt,
	}
}
