package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/observability"
	"github.com/kursadbilgin/journey-dispatch/internal/repository"
	"go.uber.org/zap"
)

const ReasonMissingServiceRole = "missing_service_role"

// CompletionResult reports the completion stage. Exactly one shape applies:
// skipped with a reason, failed with the RPC status, or succeeded with the
// notified count.
type CompletionResult struct {
	Skipped  bool
	Reason   string
	Success  bool
	Status   int
	Notified int
}

// RunCompletionBatch asks the oracle for journeys now due for completion and
// sends "result ready" notifications. It needs the service role and never
// fails the invocation.
func (d *Dispatcher) RunCompletionBatch(ctx context.Context, req DispatchRequest) CompletionResult {
	logger := observability.WithContextLogger(d.logger, ctx)
	startedAt := d.now().UTC()

	auth := bearer(d.cfg.ServiceRoleKey)
	if auth == "" {
		logger.Info("service role not configured, skipping completion stage")
		d.recordRun(ctx, req, domain.KindResult, startedAt, AssignedResult{}, domain.RunStatusSkipped, nil, nil)
		return CompletionResult{Skipped: true, Reason: ReasonMissingServiceRole}
	}

	candidates, err := d.candidates.CompleteDueJourneys(ctx, auth, d.batchSize(req.CompleteBatchSize))
	if err != nil {
		logger.Error("completion rpc failed", zap.Error(err))
		d.recordRun(ctx, req, domain.KindResult, startedAt, AssignedResult{}, domain.RunStatusFailed, err, nil)
		return CompletionResult{Success: false, Status: completionFailureStatus(err)}
	}

	if len(candidates) == 0 {
		d.recordRun(ctx, req, domain.KindResult, startedAt, AssignedResult{}, domain.RunStatusCompleted, nil, nil)
		return CompletionResult{Success: true, Notified: 0}
	}

	targets := withDestination(candidates)
	outcomes := d.deliverAll(ctx, targets, auth)
	notified := domain.CountSuccess(outcomes)

	result := AssignedResult{
		Matched:     len(candidates),
		PushTargets: len(targets),
		PushSuccess: notified,
	}
	d.recordRun(ctx, req, domain.KindResult, startedAt, result, domain.RunStatusFor(result.PushTargets, notified), nil, outcomes)

	return CompletionResult{Success: true, Notified: notified}
}

// completionFailureStatus is the backend's status, or 502 when the call never
// produced one.
func completionFailureStatus(err error) int {
	var rpcErr *repository.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.StatusCode
	}
	return http.StatusBadGateway
}
