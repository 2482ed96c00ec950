package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/locale"
	"github.com/kursadbilgin/journey-dispatch/internal/observability"
	"github.com/kursadbilgin/journey-dispatch/internal/provider"
	"github.com/kursadbilgin/journey-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/journey-dispatch/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 10
	DefaultMaxBatch  = 100

	TriggerHTTP      = "http"
	TriggerQueue     = "queue"
	TriggerScheduler = "scheduler"

	fcmStatusSent   = "sent"
	fcmStatusFailed = "failed"
)

// DispatchRequest is one invocation of the pipeline.
type DispatchRequest struct {
	RequestID         string
	JourneyID         string
	BatchSize         int
	CompleteBatchSize int
	// Authorization is the caller's header value, forwarded to the matching RPC.
	Authorization string
	Trigger       string
}

type AssignedResult struct {
	Matched     int
	PushTargets int
	PushSuccess int
}

// DispatchSummary is the combined result of both stages.
type DispatchSummary struct {
	AssignedResult
	Completion CompletionResult
}

type DispatcherConfig struct {
	ServiceRoleKey   string
	DefaultBatchSize int
	MaxBatchSize     int
	// Concurrency caps in-flight deliveries per batch; 0 means unbounded.
	Concurrency int
	// Timeout bounds one invocation; 0 means the caller's deadline only.
	Timeout time.Duration
}

// Dispatcher fans one matching batch out to per-recipient deliveries and then
// runs the completion cascade.
type Dispatcher struct {
	candidates repository.CandidateRepository
	provider   provider.Provider
	audit      *AuditLogger
	limiter    ratelimit.DeliveryLimiter
	runs       repository.RunRepository
	cfg        DispatcherConfig
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewDispatcher(
	candidates repository.CandidateRepository,
	provider provider.Provider,
	audit *AuditLogger,
	cfg DispatcherConfig,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if candidates == nil {
		return nil, fmt.Errorf("candidate repository is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("push provider is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit logger is required")
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = DefaultBatchSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatch
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		candidates: candidates,
		provider:   provider,
		audit:      audit,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// SetRateLimiter enables throttling in front of the push gateway.
func (d *Dispatcher) SetRateLimiter(limiter ratelimit.DeliveryLimiter) {
	if d == nil {
		return
	}
	d.limiter = limiter
}

// SetRunRepository enables the run history ledger.
func (d *Dispatcher) SetRunRepository(runs repository.RunRepository) {
	if d == nil {
		return
	}
	d.runs = runs
}

// Dispatch runs the assignment stage and, unless it fails, the completion
// stage. Config, auth and upstream errors abort with no partial summary.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (DispatchSummary, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Trigger == "" {
		req.Trigger = TriggerHTTP
	}
	ctx = observability.WithRequestID(ctx, req.RequestID)

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	assigned, err := d.RunAssignedBatch(ctx, req)
	if err != nil {
		return DispatchSummary{}, err
	}

	completion := d.RunCompletionBatch(ctx, req)

	observability.WithContextLogger(d.logger, ctx).Info("dispatch finished",
		zap.String("trigger", req.Trigger),
		zap.Int("matched", assigned.Matched),
		zap.Int("pushTargets", assigned.PushTargets),
		zap.Int("pushSuccess", assigned.PushSuccess),
		zap.Bool("completionSkipped", completion.Skipped),
		zap.Int("completionNotified", completion.Notified),
	)

	return DispatchSummary{AssignedResult: assigned, Completion: completion}, nil
}

// RunAssignedBatch matches either one journey or a batch of pending ones and
// notifies every matched recipient with a usable device token.
func (d *Dispatcher) RunAssignedBatch(ctx context.Context, req DispatchRequest) (AssignedResult, error) {
	logger := observability.WithContextLogger(d.logger, ctx)
	startedAt := d.now().UTC()

	auth := strings.TrimSpace(req.Authorization)
	if auth == "" {
		auth = bearer(d.cfg.ServiceRoleKey)
	}
	if auth == "" {
		return AssignedResult{}, domain.ErrMissingAuth
	}

	var (
		candidates []domain.Candidate
		err        error
	)
	if journeyID := strings.TrimSpace(req.JourneyID); journeyID != "" {
		candidates, err = d.candidates.MatchJourney(ctx, auth, journeyID)
	} else {
		candidates, err = d.candidates.MatchPendingJourneys(ctx, auth, d.batchSize(req.BatchSize))
	}
	if err != nil {
		logger.Error("matching rpc failed", zap.Error(err))
		d.recordRun(ctx, req, domain.KindAssigned, startedAt, AssignedResult{}, domain.RunStatusFailed, err, nil)
		if errors.Is(err, domain.ErrUpstream) {
			return AssignedResult{}, err
		}
		return AssignedResult{}, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}

	targets := withDestination(candidates)
	outcomes := d.deliverAll(ctx, targets, auth)

	result := AssignedResult{
		Matched:     len(candidates),
		PushTargets: len(targets),
		PushSuccess: domain.CountSuccess(outcomes),
	}
	d.recordRun(ctx, req, domain.KindAssigned, startedAt, result, domain.RunStatusFor(result.PushTargets, result.PushSuccess), nil, outcomes)

	return result, nil
}

func (d *Dispatcher) batchSize(requested int) int {
	if requested <= 0 {
		return d.cfg.DefaultBatchSize
	}
	if requested > d.cfg.MaxBatchSize {
		return d.cfg.MaxBatchSize
	}
	return requested
}

func withDestination(candidates []domain.Candidate) []domain.Candidate {
	targets := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.HasDestination() {
			targets = append(targets, c)
		}
	}
	return targets
}

// deliverAll runs one delivery per target and waits for all of them. Each
// goroutine writes only its own slot, and none returns an error, so one
// failing recipient never cancels another.
func (d *Dispatcher) deliverAll(ctx context.Context, targets []domain.Candidate, auth string) []domain.DeliveryOutcome {
	outcomes := make([]domain.DeliveryOutcome, len(targets))
	if len(targets) == 0 {
		return outcomes
	}

	var g errgroup.Group
	if d.cfg.Concurrency > 0 {
		g.SetLimit(d.cfg.Concurrency)
	}
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			outcomes[i] = d.deliverOne(ctx, target, auth)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (d *Dispatcher) deliverOne(ctx context.Context, target domain.Candidate, auth string) domain.DeliveryOutcome {
	kind := target.Kind
	kindLabel := kind.String()
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("kind", kindLabel),
		zap.String("journeyId", target.JourneyID),
		zap.String("recipientId", target.RecipientID),
	)

	d.metrics.IncDeliveryInFlight(kindLabel)
	defer d.metrics.DecDeliveryInFlight(kindLabel)

	text := locale.Resolve(kind, target.LocaleTag)
	message := domain.PushMessage{
		Token:     target.DeviceToken,
		Title:     text.Title,
		Body:      text.Body,
		Route:     kind.Route(target.JourneyID),
		JourneyID: target.JourneyID,
		Kind:      kind,
	}

	outcome := domain.DeliveryOutcome{
		RecipientID: target.RecipientID,
		JourneyID:   target.JourneyID,
		Kind:        kind,
	}

	outcome.DeliveryErr = d.send(ctx, message)

	data := domain.LogData{
		Type:      kind.MessageType(),
		JourneyID: target.JourneyID,
		FCMStatus: fcmStatusSent,
	}
	if outcome.DeliveryErr != nil {
		data.FCMStatus = fcmStatusFailed
		data.FCMError = outcome.DeliveryErr.Error()
		logger.Warn("push delivery failed",
			zap.Bool("unregistered", provider.IsUnregistered(outcome.DeliveryErr)),
			zap.Bool("transient", provider.IsTransient(outcome.DeliveryErr)),
			zap.Error(outcome.DeliveryErr),
		)
	}

	outcome.AuditErr = d.audit.Record(ctx, auth, domain.NotificationLogEntry{
		UserID: target.RecipientID,
		Title:  message.Title,
		Body:   message.Body,
		Route:  message.Route,
		Data:   data,
	})
	if outcome.AuditErr != nil {
		logger.Error("notification log write failed", zap.Error(outcome.AuditErr))
	}

	if outcome.Status() == domain.DeliverySuccess {
		d.metrics.IncNotificationSent(kindLabel)
	} else {
		d.metrics.IncNotificationFailed(kindLabel, failureReason(outcome))
	}

	return outcome
}

// failureReason splits gateway failures a later sweep may clear from the
// rest, so throttling and outages are visible apart from dead tokens.
func failureReason(outcome domain.DeliveryOutcome) string {
	if outcome.DeliveryErr != nil && provider.IsTransient(outcome.DeliveryErr) {
		return "delivery_transient"
	}
	return outcome.FailureReason()
}

func (d *Dispatcher) send(ctx context.Context, message domain.PushMessage) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, message.Kind); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	sendStart := d.now()
	_, err := d.provider.Send(ctx, message)
	d.metrics.ObserveNotificationSendDuration(message.Kind.String(), d.now().Sub(sendStart))
	return err
}

// recordRun stores the stage in run history when enabled. Failures are logged
// and never change the dispatch result.
func (d *Dispatcher) recordRun(
	ctx context.Context,
	req DispatchRequest,
	stage domain.Kind,
	startedAt time.Time,
	result AssignedResult,
	status domain.RunStatus,
	runErr error,
	outcomes []domain.DeliveryOutcome,
) {
	d.metrics.IncDispatchRun(stage.String(), status.String())
	if d.runs == nil {
		return
	}

	run := &domain.DispatchRun{
		ID:          uuid.NewString(),
		RequestID:   req.RequestID,
		Stage:       stage,
		Trigger:     req.Trigger,
		Matched:     result.Matched,
		PushTargets: result.PushTargets,
		PushSuccess: result.PushSuccess,
		Status:      status,
		StartedAt:   startedAt,
		FinishedAt:  d.now().UTC(),
	}
	if runErr != nil {
		detail := runErr.Error()
		run.Error = &detail
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(outcomes))
	for _, o := range outcomes {
		attempt := domain.DeliveryAttempt{
			ID:          uuid.NewString(),
			RunID:       run.ID,
			RecipientID: o.RecipientID,
			JourneyID:   o.JourneyID,
			Kind:        o.Kind,
			Status:      o.Status(),
			CreatedAt:   run.FinishedAt,
		}
		if detail := o.ErrorDetail(); detail != "" {
			attempt.Error = &detail
		}
		attempts = append(attempts, attempt)
	}

	// Recording outlives the invocation deadline.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := d.runs.CreateWithAttempts(recordCtx, run, attempts); err != nil {
		observability.WithContextLogger(d.logger, ctx).Error("failed to record dispatch run",
			zap.String("stage", stage.String()),
			zap.Error(err),
		)
	}
}
