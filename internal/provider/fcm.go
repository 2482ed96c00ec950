package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/journey-dispatch/internal/credential"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
)

const (
	DefaultFCMBaseURL = "https://fcm.googleapis.com"
	defaultFCMTimeout = 10 * time.Second
)

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

// FCMProvider sends one message per call through the FCM HTTP v1 API.
type FCMProvider struct {
	client   *resty.Client
	broker   credential.Broker
	retirer  TokenRetirer
	endpoint string
}

func NewFCMProvider(baseURL string, projectID string, broker credential.Broker, retirer TokenRetirer) (*FCMProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultFCMTimeout)
	client.SetRetryCount(0)

	return NewFCMProviderWithClient(baseURL, projectID, broker, retirer, client)
}

func NewFCMProviderWithClient(baseURL string, projectID string, broker credential.Broker, retirer TokenRetirer, client *resty.Client) (*FCMProvider, error) {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		trimmedBase = DefaultFCMBaseURL
	}
	if _, err := url.ParseRequestURI(trimmedBase); err != nil {
		return nil, fmt.Errorf("%w: invalid push gateway url: %v", domain.ErrConfig, err)
	}
	trimmedProject := strings.TrimSpace(projectID)
	if trimmedProject == "" {
		return nil, fmt.Errorf("%w: push project id is required", domain.ErrConfig)
	}
	if broker == nil {
		return nil, fmt.Errorf("credential broker is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultFCMTimeout)
	}
	client.SetRetryCount(0)

	return &FCMProvider{
		client:   client,
		broker:   broker,
		retirer:  retirer,
		endpoint: fmt.Sprintf("%s/v1/projects/%s/messages:send", trimmedBase, url.PathEscape(trimmedProject)),
	}, nil
}

func (p *FCMProvider) Send(ctx context.Context, message domain.PushMessage) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := message.Validate(); err != nil {
		return nil, fmt.Errorf("invalid push message: %w", err)
	}

	cred, err := p.broker.Token(ctx)
	if err != nil {
		return nil, &DeliveryError{
			Message:   "credential unavailable",
			Transient: !credential.IsExchangeError(err) && !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	reqBody := fcmRequest{
		Message: fcmMessage{
			Token: message.Token,
			Notification: fcmNotification{
				Title: message.Title,
				Body:  message.Body,
			},
			Data: map[string]string{
				"route":      message.Route,
				"journey_id": message.JourneyID,
				"type":       message.Kind.MessageType(),
			},
		},
	}

	var payload fcmResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(cred.Token).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&payload).
		Post(p.endpoint)
	if err != nil {
		return nil, &DeliveryError{
			Message:   "push gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &ProviderResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  payload.Name,
		}, nil
	}

	deliveryErr := &DeliveryError{
		StatusCode:   statusCode,
		Body:         responseBody,
		Unregistered: isUnregisteredResponse(statusCode, responseBody),
		Transient:    isTransientHTTPStatus(statusCode),
	}
	if deliveryErr.Unregistered && p.retirer != nil {
		p.retirer.Retire(ctx, message.Token)
	}

	return nil, deliveryErr
}
