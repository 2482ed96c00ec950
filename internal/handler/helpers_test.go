package handler

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"github.com/kursadbilgin/journey-dispatch/internal/service"
	"github.com/kursadbilgin/journey-dispatch/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type stubDispatcher struct {
	mu         sync.Mutex
	requests   []service.DispatchRequest
	dispatchFn func(ctx context.Context, req service.DispatchRequest) (service.DispatchSummary, error)
}

func (s *stubDispatcher) Dispatch(ctx context.Context, req service.DispatchRequest) (service.DispatchSummary, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.dispatchFn != nil {
		return s.dispatchFn(ctx, req)
	}
	return service.DispatchSummary{Completion: service.CompletionResult{Success: true}}, nil
}

func (s *stubDispatcher) calls() []service.DispatchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.DispatchRequest(nil), s.requests...)
}

type stubTriggerQueue struct {
	enqueueFn func(ctx context.Context, req service.DispatchRequest) (string, error)
}

func (s *stubTriggerQueue) Enqueue(ctx context.Context, req service.DispatchRequest) (string, error) {
	if s.enqueueFn != nil {
		return s.enqueueFn(ctx, req)
	}
	return "req-queued", nil
}

type stubRunReader struct {
	listFn    func(ctx context.Context, requestID string) ([]domain.DispatchRun, error)
	summaryFn func(ctx context.Context, runID string) ([]domain.StatusCount, error)
}

func (s *stubRunReader) ListByRequestID(ctx context.Context, requestID string) ([]domain.DispatchRun, error) {
	if s.listFn != nil {
		return s.listFn(ctx, requestID)
	}
	return nil, domain.ErrNotFound
}

func (s *stubRunReader) GetAttemptSummary(ctx context.Context, runID string) ([]domain.StatusCount, error) {
	if s.summaryFn != nil {
		return s.summaryFn(ctx, runID)
	}
	return nil, nil
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") && h.pingErr != nil {
			cmd.SetErr(h.pingErr)
			return h.pingErr
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
