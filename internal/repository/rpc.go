package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
)

const defaultRPCTimeout = 15 * time.Second

// RPC names exposed by the matching backend.
const (
	RPCMatchJourney          = "match_journey"
	RPCMatchPendingJourneys  = "match_pending_journeys"
	RPCCompleteDueJourneys   = "complete_due_journeys"
	RPCInsertNotificationLog = "insert_notification_log"
	RPCInvalidateDeviceToken = "invalidate_device_token"
)

// CandidateRepository reads match and completion batches from the matching
// oracle. Both calls return every row, including rows without a token.
type CandidateRepository interface {
	MatchJourney(ctx context.Context, auth string, journeyID string) ([]domain.Candidate, error)
	MatchPendingJourneys(ctx context.Context, auth string, batchSize int) ([]domain.Candidate, error)
	CompleteDueJourneys(ctx context.Context, auth string, batchSize int) ([]domain.Candidate, error)
}

type NotificationLogRepository interface {
	InsertNotificationLog(ctx context.Context, auth string, entry domain.NotificationLogEntry) error
}

type DeviceTokenRepository interface {
	InvalidateDeviceToken(ctx context.Context, auth string, token string) error
}

// RPCError is a non-2xx answer from the backend. It matches domain.ErrUpstream.
type RPCError struct {
	Name       string
	StatusCode int
	Body       string
}

func (e *RPCError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Body == "" {
		return fmt.Sprintf("rpc %s failed: status=%d", e.Name, e.StatusCode)
	}
	return fmt.Sprintf("rpc %s failed: status=%d: %s", e.Name, e.StatusCode, e.Body)
}

func (e *RPCError) Unwrap() error {
	return domain.ErrUpstream
}

// RPCClient calls POST {base}/rest/v1/rpc/{name} with the project's anon key
// and a per-call Authorization header.
type RPCClient struct {
	client  *resty.Client
	baseURL string
	anonKey string
}

func NewRPCClient(baseURL string, anonKey string) (*RPCClient, error) {
	client := resty.New()
	client.SetTimeout(defaultRPCTimeout)
	client.SetRetryCount(0)

	return NewRPCClientWithClient(baseURL, anonKey, client)
}

func NewRPCClientWithClient(baseURL string, anonKey string, client *resty.Client) (*RPCClient, error) {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		return nil, fmt.Errorf("%w: backend url is required", domain.ErrConfig)
	}
	if _, err := url.ParseRequestURI(trimmedBase); err != nil {
		return nil, fmt.Errorf("%w: invalid backend url: %v", domain.ErrConfig, err)
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, fmt.Errorf("%w: backend anon key is required", domain.ErrConfig)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRPCTimeout)
	}
	client.SetRetryCount(0)

	return &RPCClient{
		client:  client,
		baseURL: trimmedBase,
		anonKey: anonKey,
	}, nil
}

// Call issues one RPC and returns the raw response body on 2xx.
func (c *RPCClient) Call(ctx context.Context, name string, auth string, payload any) ([]byte, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("rpc client is not initialized")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("apikey", c.anonKey).
		SetHeader("Authorization", auth).
		SetBody(payload).
		Post(c.baseURL + "/rest/v1/rpc/" + name)
	if err != nil {
		return nil, fmt.Errorf("rpc %s request failed: %w", name, err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &RPCError{
			Name:       name,
			StatusCode: statusCode,
			Body:       response.String(),
		}
	}

	return response.Body(), nil
}

func (c *RPCClient) MatchJourney(ctx context.Context, auth string, journeyID string) ([]domain.Candidate, error) {
	body, err := c.Call(ctx, RPCMatchJourney, auth, map[string]any{"target_journey_id": journeyID})
	if err != nil {
		return nil, err
	}
	return decodeCandidates(body, domain.KindAssigned), nil
}

func (c *RPCClient) MatchPendingJourneys(ctx context.Context, auth string, batchSize int) ([]domain.Candidate, error) {
	body, err := c.Call(ctx, RPCMatchPendingJourneys, auth, map[string]any{"batch_size": batchSize})
	if err != nil {
		return nil, err
	}
	return decodeCandidates(body, domain.KindAssigned), nil
}

func (c *RPCClient) CompleteDueJourneys(ctx context.Context, auth string, batchSize int) ([]domain.Candidate, error) {
	body, err := c.Call(ctx, RPCCompleteDueJourneys, auth, map[string]any{"batch_size": batchSize})
	if err != nil {
		return nil, err
	}
	return decodeCandidates(body, domain.KindResult), nil
}

type notificationLogRequest struct {
	UserID string         `json:"user_id"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Route  string         `json:"route"`
	Data   domain.LogData `json:"data"`
}

func (c *RPCClient) InsertNotificationLog(ctx context.Context, auth string, entry domain.NotificationLogEntry) error {
	_, err := c.Call(ctx, RPCInsertNotificationLog, auth, notificationLogRequest{
		UserID: entry.UserID,
		Title:  entry.Title,
		Body:   entry.Body,
		Route:  entry.Route,
		Data:   entry.Data,
	})
	return err
}

func (c *RPCClient) InvalidateDeviceToken(ctx context.Context, auth string, token string) error {
	_, err := c.Call(ctx, RPCInvalidateDeviceToken, auth, map[string]any{"token": token})
	return err
}

// decodeCandidates is tolerant: a body that is not a JSON array yields no
// rows, and a row that is not an object yields an empty candidate so the
// matched count still reflects it.
func decodeCandidates(body []byte, kind domain.Kind) []domain.Candidate {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return []domain.Candidate{}
	}

	candidates := make([]domain.Candidate, 0, len(rows))
	for _, raw := range rows {
		var row map[string]any
		_ = json.Unmarshal(raw, &row)

		recipient := stringField(row, "recipient_user_id")
		if recipient == "" {
			recipient = stringField(row, "user_id")
		}

		candidates = append(candidates, domain.Candidate{
			JourneyID:   stringField(row, "journey_id"),
			DeviceToken: stringField(row, "device_token"),
			LocaleTag:   stringField(row, "locale_tag"),
			RecipientID: recipient,
			Kind:        kind,
		})
	}
	return candidates
}

func stringField(row map[string]any, key string) string {
	value, ok := row[key].(string)
	if !ok {
		return ""
	}
	return value
}
