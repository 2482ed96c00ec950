package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/repository"
	"github.com/kursadbilgin/journey-dispatch/internal/service"
	"github.com/kursadbilgin/journey-dispatch/internal/transport"
)

// SecretHeader carries the shared dispatch secret.
const SecretHeader = "x-dispatch-secret"

var (
	errMissingBackendConfig = transport.NewAPIError(fiber.StatusInternalServerError, "missing_backend_config")
	errMissingFCMConfig     = transport.NewAPIError(fiber.StatusInternalServerError, "missing_fcm_config")
	errConfig               = transport.NewAPIError(fiber.StatusInternalServerError, "config_error")
	errMethodNotAllowed     = transport.NewAPIError(fiber.StatusMethodNotAllowed, "method_not_allowed")
	errInvalidSecret        = transport.NewAPIError(fiber.StatusUnauthorized, "invalid_dispatch_secret")
	errMissingAuth          = transport.NewAPIError(fiber.StatusUnauthorized, "missing_auth")
	errMatchFailed          = transport.NewAPIError(fiber.StatusInternalServerError, "match_failed")
	errQueueUnavailable     = transport.NewAPIError(fiber.StatusServiceUnavailable, "queue_unavailable")
	errEnqueueFailed        = transport.NewAPIError(fiber.StatusServiceUnavailable, "enqueue_failed")
)

// TriggerQueue accepts dispatches for asynchronous execution.
type TriggerQueue interface {
	Enqueue(ctx context.Context, req service.DispatchRequest) (string, error)
}

// DispatchOptions is the request-time view of the service configuration.
type DispatchOptions struct {
	Secret                string
	MissingBackend        bool
	MissingPush           bool
	ServiceRoleConfigured bool
}

type DispatchHandler struct {
	dispatcher service.DispatchRunner
	queue      TriggerQueue
	opts       DispatchOptions
}

// NewDispatchHandler accepts a nil dispatcher only when the configuration is
// incomplete, in which case every trigger fails with a config error.
func NewDispatchHandler(dispatcher service.DispatchRunner, queue TriggerQueue, opts DispatchOptions) (*DispatchHandler, error) {
	if dispatcher == nil && !opts.MissingBackend && !opts.MissingPush {
		return nil, fmt.Errorf("dispatcher is required")
	}
	return &DispatchHandler{
		dispatcher: dispatcher,
		queue:      queue,
		opts:       opts,
	}, nil
}

func RegisterDispatchRoutes(router fiber.Router, h *DispatchHandler) {
	router.All("/", h.Dispatch)

	v1 := router.Group("/v1")
	v1.All("/dispatch", h.Dispatch)
	v1.All("/dispatch/async", h.DispatchAsync)
}

type dispatchResponse struct {
	Matched     int       `json:"matched"`
	PushTargets int       `json:"pushTargets"`
	PushSuccess int       `json:"pushSuccess"`
	Completion  fiber.Map `json:"completion"`
}

// Dispatch runs one invocation synchronously and reports both stages.
func (h *DispatchHandler) Dispatch(c *fiber.Ctx) error {
	if err := h.precheck(c); err != nil {
		return err
	}

	req := parseDispatchBody(c.Body())
	req.RequestID = requestID(c)
	req.Authorization = strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	req.Trigger = service.TriggerHTTP

	summary, err := h.dispatcher.Dispatch(c.UserContext(), req)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(dispatchResponse{
		Matched:     summary.Matched,
		PushTargets: summary.PushTargets,
		PushSuccess: summary.PushSuccess,
		Completion:  completionBody(summary.Completion),
	})
}

// DispatchAsync queues the invocation for the worker. Queued runs execute
// with the service role, so it must be configured.
func (h *DispatchHandler) DispatchAsync(c *fiber.Ctx) error {
	if err := h.precheck(c); err != nil {
		return err
	}

	req := parseDispatchBody(c.Body())
	req.RequestID = requestID(c)

	if !h.opts.ServiceRoleConfigured {
		return errMissingAuth
	}
	if h.queue == nil {
		return errQueueUnavailable
	}

	id, err := h.queue.Enqueue(c.UserContext(), req)
	if err != nil {
		return &transport.APIError{Status: errEnqueueFailed.Status, Code: errEnqueueFailed.Code, Cause: err}
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"requestId": id})
}

// precheck applies config, method and secret checks in that order.
func (h *DispatchHandler) precheck(c *fiber.Ctx) error {
	switch {
	case h.opts.MissingBackend:
		return errMissingBackendConfig
	case h.opts.MissingPush:
		return errMissingFCMConfig
	}
	if c.Method() != fiber.MethodPost {
		return errMethodNotAllowed
	}
	return checkSecret(c, h.opts.Secret)
}

func checkSecret(c *fiber.Ctx, secret string) error {
	if secret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(c.Get(SecretHeader)), []byte(secret)) != 1 {
		return errInvalidSecret
	}
	return nil
}

func completionBody(result service.CompletionResult) fiber.Map {
	switch {
	case result.Skipped:
		return fiber.Map{"skipped": true, "reason": result.Reason}
	case !result.Success:
		return fiber.Map{"skipped": false, "success": false, "status": result.Status}
	default:
		return fiber.Map{"skipped": false, "success": true, "notified": result.Notified}
	}
}

// parseDispatchBody never fails: an unreadable body is an empty one.
func parseDispatchBody(raw []byte) service.DispatchRequest {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = map[string]any{}
	}

	return service.DispatchRequest{
		JourneyID:         stringValue(firstPresent(body, "journey_id", "journeyId")),
		BatchSize:         intValue(firstPresent(body, "batch_size", "batchSize")),
		CompleteBatchSize: intValue(firstPresent(body, "complete_batch_size", "completeBatchSize")),
	}
}

func firstPresent(body map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := body[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// intValue accepts numbers and numeric strings; anything else is 0, which the
// dispatcher replaces with its default.
func intValue(value any) int {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	}
	return 0
}

func requestID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toHTTPError(err error) error {
	var rpcErr *repository.RPCError
	switch {
	case errors.Is(err, domain.ErrMissingAuth):
		return &transport.APIError{Status: errMissingAuth.Status, Code: errMissingAuth.Code, Cause: err}
	case errors.As(err, &rpcErr):
		apiErr := errMatchFailed.WithDetails(fiber.Map{"status": rpcErr.StatusCode, "body": rpcErr.Body})
		apiErr.Cause = err
		return apiErr
	case errors.Is(err, domain.ErrUpstream):
		apiErr := errMatchFailed.WithDetails(fiber.Map{"status": fiber.StatusBadGateway, "body": err.Error()})
		apiErr.Cause = err
		return apiErr
	case errors.Is(err, domain.ErrConfig):
		return &transport.APIError{Status: errConfig.Status, Code: errConfig.Code, Cause: err}
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
