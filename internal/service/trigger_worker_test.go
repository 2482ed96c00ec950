package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/queue"
)

func TestTriggerWorkerProcessMessage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		dispatchErr error
		wantErr     bool
	}{
		{name: "success", dispatchErr: nil},
		{name: "upstream failure is retried via dead letter", dispatchErr: fmt.Errorf("%w: 503", domain.ErrUpstream), wantErr: true},
		{name: "missing auth is dropped", dispatchErr: domain.ErrMissingAuth},
		{name: "config error is dropped", dispatchErr: fmt.Errorf("%w: bad url", domain.ErrConfig)},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runner := &fakeDispatchRunner{
				dispatchFn: func(ctx context.Context, req DispatchRequest) (DispatchSummary, error) {
					return DispatchSummary{}, tc.dispatchErr
				},
			}
			worker, err := NewTriggerWorker(runner, &fakeConsumer{}, 1, nil)
			if err != nil {
				t.Fatalf("NewTriggerWorker() error = %v", err)
			}

			err = worker.processMessage(context.Background(), queue.DispatchMessage{
				RequestID: "req-1",
				JourneyID: "J9",
				BatchSize: 5,
			})
			if (err != nil) != tc.wantErr {
				t.Fatalf("processMessage() error = %v, wantErr %v", err, tc.wantErr)
			}

			if len(runner.requests) != 1 {
				t.Fatalf("dispatch calls = %d, want 1", len(runner.requests))
			}
			req := runner.requests[0]
			if req.RequestID != "req-1" || req.JourneyID != "J9" || req.BatchSize != 5 || req.Trigger != TriggerQueue {
				t.Fatalf("dispatch request = %+v", req)
			}
			if req.Authorization != "" {
				t.Fatal("queued dispatches must not carry a caller credential")
			}
		})
	}
}

func TestTriggerWorkerStartConsumesTriggerQueue(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queues := make(chan string, 3)
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			queues <- queueName
			<-ctx.Done()
			return nil
		},
	}
	worker, err := NewTriggerWorker(&fakeDispatchRunner{}, consumer, 3, nil)
	if err != nil {
		t.Fatalf("NewTriggerWorker() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- worker.Start(ctx) }()

	for i := 0; i < 3; i++ {
		if got := <-queues; got != queue.TriggerQueue {
			t.Fatalf("queue = %q, want %q", got, queue.TriggerQueue)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestTriggerWorkerStartPropagatesConsumerError(t *testing.T) {
	t.Parallel()

	consumerErr := errors.New("channel closed")
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			return consumerErr
		},
	}
	worker, err := NewTriggerWorker(&fakeDispatchRunner{}, consumer, 2, nil)
	if err != nil {
		t.Fatalf("NewTriggerWorker() error = %v", err)
	}

	if err := worker.Start(context.Background()); !errors.Is(err, consumerErr) {
		t.Fatalf("Start() error = %v, want consumer error", err)
	}
}

func TestTriggerPublisherEnqueue(t *testing.T) {
	t.Parallel()

	var published queue.DispatchMessage
	var publishedQueue string
	publisher, err := NewTriggerPublisher(&fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DispatchMessage) error {
			publishedQueue = queueName
			published = msg
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewTriggerPublisher() error = %v", err)
	}

	requestID, err := publisher.Enqueue(context.Background(), DispatchRequest{JourneyID: "J1", BatchSize: 7})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if requestID == "" || published.RequestID != requestID {
		t.Fatalf("request id = %q, published = %q", requestID, published.RequestID)
	}
	if publishedQueue != queue.TriggerQueue || published.JourneyID != "J1" || published.BatchSize != 7 {
		t.Fatalf("published %q %+v", publishedQueue, published)
	}
}

func TestTriggerPublisherEnqueueFailure(t *testing.T) {
	t.Parallel()

	publishErr := errors.New("broker unreachable")
	publisher, err := NewTriggerPublisher(&fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DispatchMessage) error { return publishErr },
	})
	if err != nil {
		t.Fatalf("NewTriggerPublisher() error = %v", err)
	}

	if _, err := publisher.Enqueue(context.Background(), DispatchRequest{RequestID: "req-2"}); !errors.Is(err, publishErr) {
		t.Fatalf("Enqueue() error = %v, want publish error", err)
	}
}
