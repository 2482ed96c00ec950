package repository

import (
	"context"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"gorm.io/gorm"
)

type StatusSummary struct {
	Status domain.DeliveryStatus `gorm:"column:status"`
	Count  int                   `gorm:"column:count"`
}

// RunRepository is the optional ledger of dispatch runs.
type RunRepository interface {
	CreateWithAttempts(ctx context.Context, run *domain.DispatchRun, attempts []domain.DeliveryAttempt) error
	ListByRequestID(ctx context.Context, requestID string) ([]domain.DispatchRun, error)
	GetAttemptSummary(ctx context.Context, runID string) ([]domain.StatusCount, error)
}

type GormRunRepo struct {
	db *gorm.DB
}

func NewGormRunRepo(db *gorm.DB) *GormRunRepo {
	return &GormRunRepo{db: db}
}

// CreateWithAttempts stores a run and its attempts in one transaction.
func (r *GormRunRepo) CreateWithAttempts(ctx context.Context, run *domain.DispatchRun, attempts []domain.DeliveryAttempt) error {
	runModel := runModelFromDomain(run)
	if runModel == nil {
		return nil
	}

	attemptModels := make([]DeliveryAttemptModel, 0, len(attempts))
	for i := range attempts {
		model := attemptModelFromDomain(&attempts[i])
		model.RunID = runModel.ID
		attemptModels = append(attemptModels, *model)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(runModel).Error; err != nil {
			return err
		}
		if len(attemptModels) == 0 {
			return nil
		}
		return tx.CreateInBatches(&attemptModels, 100).Error
	})
}

// ListByRequestID returns the stages recorded for one trigger, oldest first.
func (r *GormRunRepo) ListByRequestID(ctx context.Context, requestID string) ([]domain.DispatchRun, error) {
	var models []DispatchRunModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("started_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, domain.ErrNotFound
	}

	runs := make([]domain.DispatchRun, 0, len(models))
	for i := range models {
		runs = append(runs, *runModelToDomain(&models[i]))
	}
	return runs, nil
}

func (r *GormRunRepo) GetAttemptSummary(ctx context.Context, runID string) ([]domain.StatusCount, error) {
	var summaries []StatusSummary
	err := r.db.WithContext(ctx).
		Model(&DeliveryAttemptModel{}).
		Select("status, COUNT(*) as count").
		Where("run_id = ?", runID).
		Group("status").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}

	counts := make([]domain.StatusCount, 0, len(summaries))
	for _, s := range summaries {
		counts = append(counts, domain.StatusCount{Status: s.Status, Count: s.Count})
	}
	return counts, nil
}
