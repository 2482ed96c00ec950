package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/observability"
	"github.com/kursadbilgin/journey-dispatch/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// TriggerWorker runs dispatches requested through the trigger queue.
type TriggerWorker struct {
	dispatcher  DispatchRunner
	consumer    queue.Consumer
	logger      *zap.Logger
	concurrency int
}

func NewTriggerWorker(dispatcher DispatchRunner, consumer queue.Consumer, concurrency int, logger *zap.Logger) (*TriggerWorker, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TriggerWorker{
		dispatcher:  dispatcher,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes the trigger queue until ctx is cancelled.
func (w *TriggerWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("trigger worker started", zap.Int("workerId", workerID))

			if err := w.consumer.Consume(groupCtx, queue.TriggerQueue, w.processMessage); err != nil {
				w.logger.Error("trigger worker stopped with error", zap.Int("workerId", workerID), zap.Error(err))
				return err
			}

			w.logger.Info("trigger worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *TriggerWorker) processMessage(ctx context.Context, msg queue.DispatchMessage) error {
	ctx = observability.WithRequestID(ctx, msg.RequestID)
	logger := observability.WithContextLogger(w.logger, ctx)

	_, err := w.dispatcher.Dispatch(ctx, DispatchRequest{
		RequestID:         msg.RequestID,
		JourneyID:         msg.JourneyID,
		BatchSize:         msg.BatchSize,
		CompleteBatchSize: msg.CompleteBatchSize,
		Trigger:           TriggerQueue,
	})
	if err == nil {
		return nil
	}

	if isPermanent(err) {
		logger.Error("queued dispatch rejected, dropping trigger", zap.Error(err))
		return nil
	}
	return err
}

// TriggerPublisher enqueues dispatches for the worker.
type TriggerPublisher struct {
	publisher queue.Publisher
}

func NewTriggerPublisher(publisher queue.Publisher) (*TriggerPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	return &TriggerPublisher{publisher: publisher}, nil
}

// Enqueue publishes req and returns the request id the run will be recorded
// under.
func (p *TriggerPublisher) Enqueue(ctx context.Context, req DispatchRequest) (string, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	msg := queue.DispatchMessage{
		RequestID:         requestID,
		JourneyID:         req.JourneyID,
		BatchSize:         req.BatchSize,
		CompleteBatchSize: req.CompleteBatchSize,
	}
	if err := p.publisher.Publish(ctx, queue.TriggerQueue, msg); err != nil {
		return "", fmt.Errorf("failed to enqueue dispatch: %w", err)
	}
	return requestID, nil
}

// isPermanent reports errors a retry of the same trigger cannot fix.
func isPermanent(err error) bool {
	return errorsIsAny(err, domain.ErrAuth, domain.ErrConfig, domain.ErrValidation)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
