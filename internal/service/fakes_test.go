package service

import (
	"context"
	"sync"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/provider"
	"github.com/kursadbilgin/journey-dispatch/internal/queue"
)

type fakeCandidateRepo struct {
	mu    sync.Mutex
	auths []string

	matchJourneyFn func(ctx context.Context, journeyID string) ([]domain.Candidate, error)
	matchPendingFn func(ctx context.Context, batchSize int) ([]domain.Candidate, error)
	completeDueFn  func(ctx context.Context, batchSize int) ([]domain.Candidate, error)
}

func (f *fakeCandidateRepo) record(auth string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auths = append(f.auths, auth)
}

func (f *fakeCandidateRepo) MatchJourney(ctx context.Context, auth string, journeyID string) ([]domain.Candidate, error) {
	f.record(auth)
	if f.matchJourneyFn != nil {
		return f.matchJourneyFn(ctx, journeyID)
	}
	return nil, nil
}

func (f *fakeCandidateRepo) MatchPendingJourneys(ctx context.Context, auth string, batchSize int) ([]domain.Candidate, error) {
	f.record(auth)
	if f.matchPendingFn != nil {
		return f.matchPendingFn(ctx, batchSize)
	}
	return nil, nil
}

func (f *fakeCandidateRepo) CompleteDueJourneys(ctx context.Context, auth string, batchSize int) ([]domain.Candidate, error) {
	f.record(auth)
	if f.completeDueFn != nil {
		return f.completeDueFn(ctx, batchSize)
	}
	return nil, nil
}

type loggedEntry struct {
	auth  string
	entry domain.NotificationLogEntry
}

type fakeLogRepo struct {
	mu       sync.Mutex
	entries  []loggedEntry
	insertFn func(ctx context.Context, entry domain.NotificationLogEntry) error
}

func (f *fakeLogRepo) InsertNotificationLog(ctx context.Context, auth string, entry domain.NotificationLogEntry) error {
	f.mu.Lock()
	f.entries = append(f.entries, loggedEntry{auth: auth, entry: entry})
	f.mu.Unlock()

	if f.insertFn != nil {
		return f.insertFn(ctx, entry)
	}
	return nil
}

func (f *fakeLogRepo) logged() []loggedEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]loggedEntry(nil), f.entries...)
}

type fakeTokenRepo struct {
	mu           sync.Mutex
	invalidated  []string
	auths        []string
	invalidateFn func(ctx context.Context, token string) error
}

func (f *fakeTokenRepo) InvalidateDeviceToken(ctx context.Context, auth string, token string) error {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, token)
	f.auths = append(f.auths, auth)
	f.mu.Unlock()

	if f.invalidateFn != nil {
		return f.invalidateFn(ctx, token)
	}
	return nil
}

type fakeProvider struct {
	mu     sync.Mutex
	sent   []domain.PushMessage
	sendFn func(ctx context.Context, message domain.PushMessage) (*provider.ProviderResponse, error)
}

func (f *fakeProvider) Send(ctx context.Context, message domain.PushMessage) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, message)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, message)
	}
	return &provider.ProviderResponse{StatusCode: 200}, nil
}

func (f *fakeProvider) messages() []domain.PushMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PushMessage(nil), f.sent...)
}

type recordedRun struct {
	run      domain.DispatchRun
	attempts []domain.DeliveryAttempt
}

type fakeRunRepo struct {
	mu       sync.Mutex
	runs     []recordedRun
	createFn func(ctx context.Context, run *domain.DispatchRun) error
}

func (f *fakeRunRepo) CreateWithAttempts(ctx context.Context, run *domain.DispatchRun, attempts []domain.DeliveryAttempt) error {
	f.mu.Lock()
	f.runs = append(f.runs, recordedRun{run: *run, attempts: attempts})
	f.mu.Unlock()

	if f.createFn != nil {
		return f.createFn(ctx, run)
	}
	return nil
}

func (f *fakeRunRepo) ListByRequestID(ctx context.Context, requestID string) ([]domain.DispatchRun, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeRunRepo) GetAttemptSummary(ctx context.Context, runID string) ([]domain.StatusCount, error) {
	return nil, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, kind domain.Kind) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, kind domain.Kind) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, kind domain.Kind) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, kind)
	}
	return nil
}

type fakeDispatchRunner struct {
	mu         sync.Mutex
	requests   []DispatchRequest
	dispatchFn func(ctx context.Context, req DispatchRequest) (DispatchSummary, error)
}

func (f *fakeDispatchRunner) Dispatch(ctx context.Context, req DispatchRequest) (DispatchSummary, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, req)
	}
	return DispatchSummary{}, nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.DispatchMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DispatchMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}
