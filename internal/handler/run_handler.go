package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/transport"
)

var (
	errRunNotFound        = transport.NewAPIError(fiber.StatusNotFound, "run_not_found")
	errRunHistoryDisabled = transport.NewAPIError(fiber.StatusServiceUnavailable, "run_history_disabled")
)

// RunReader reads the run history ledger.
type RunReader interface {
	ListByRequestID(ctx context.Context, requestID string) ([]domain.DispatchRun, error)
	GetAttemptSummary(ctx context.Context, runID string) ([]domain.StatusCount, error)
}

type RunHandler struct {
	runs   RunReader
	secret string
}

// NewRunHandler accepts a nil reader; lookups then report the ledger as
// disabled.
func NewRunHandler(runs RunReader, secret string) *RunHandler {
	return &RunHandler{runs: runs, secret: secret}
}

func RegisterRunRoutes(router fiber.Router, h *RunHandler) {
	router.Get("/v1/runs/:id", h.GetRuns)
}

type runsResponse struct {
	RequestID string        `json:"requestId"`
	Runs      []runResponse `json:"runs"`
}

type runResponse struct {
	ID          string           `json:"id"`
	Stage       string           `json:"stage"`
	Trigger     string           `json:"trigger"`
	Status      string           `json:"status"`
	Matched     int              `json:"matched"`
	PushTargets int              `json:"pushTargets"`
	PushSuccess int              `json:"pushSuccess"`
	Error       *string          `json:"error,omitempty"`
	StartedAt   time.Time        `json:"startedAt"`
	FinishedAt  time.Time        `json:"finishedAt"`
	Counts      []statusCountDTO `json:"counts"`
}

type statusCountDTO struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// GetRuns returns every stage recorded under a request id with per-status
// attempt counts.
func (h *RunHandler) GetRuns(c *fiber.Ctx) error {
	if err := checkSecret(c, h.secret); err != nil {
		return err
	}
	if h.runs == nil {
		return errRunHistoryDisabled
	}

	id := strings.TrimSpace(c.Params("id"))
	runs, err := h.runs.ListByRequestID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errRunNotFound
		}
		return err
	}

	items := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		counts, err := h.runs.GetAttemptSummary(c.UserContext(), run.ID)
		if err != nil {
			return err
		}

		dtos := make([]statusCountDTO, 0, len(counts))
		for _, count := range counts {
			dtos = append(dtos, statusCountDTO{Status: count.Status.String(), Count: count.Count})
		}

		items = append(items, runResponse{
			ID:          run.ID,
			Stage:       run.Stage.String(),
			Trigger:     run.Trigger,
			Status:      run.Status.String(),
			Matched:     run.Matched,
			PushTargets: run.PushTargets,
			PushSuccess: run.PushSuccess,
			Error:       run.Error,
			StartedAt:   run.StartedAt,
			FinishedAt:  run.FinishedAt,
			Counts:      dtos,
		})
	}

	return c.Status(fiber.StatusOK).JSON(runsResponse{RequestID: id, Runs: items})
}
