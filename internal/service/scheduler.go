package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSchedulerInterval = time.Minute

// DispatchRunner runs one dispatch invocation.
type DispatchRunner interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchSummary, error)
}

// Scheduler triggers a batch sweep on a fixed interval, standing in for an
// external cron when none is available.
type Scheduler struct {
	dispatcher        DispatchRunner
	logger            *zap.Logger
	interval          time.Duration
	batchSize         int
	completeBatchSize int
}

func NewScheduler(
	dispatcher DispatchRunner,
	interval time.Duration,
	batchSize int,
	completeBatchSize int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		dispatcher:        dispatcher,
		logger:            logger,
		interval:          interval,
		batchSize:         batchSize,
		completeBatchSize: completeBatchSize,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) error {
	summary, err := s.dispatcher.Dispatch(ctx, DispatchRequest{
		RequestID:         uuid.NewString(),
		BatchSize:         s.batchSize,
		CompleteBatchSize: s.completeBatchSize,
		Trigger:           TriggerScheduler,
	})
	if err != nil {
		return fmt.Errorf("scheduled dispatch failed: %w", err)
	}

	if summary.Matched > 0 || summary.Completion.Notified > 0 {
		s.logger.Info("scheduled dispatch delivered",
			zap.Int("matched", summary.Matched),
			zap.Int("pushSuccess", summary.PushSuccess),
			zap.Int("completionNotified", summary.Completion.Notified),
		)
	}
	return nil
}
