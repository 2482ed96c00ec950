package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/journey-dispatch/internal/credential"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
)

type stubBroker struct {
	tokenFn func(ctx context.Context) (domain.BearerCredential, error)
}

func (s stubBroker) Token(ctx context.Context) (domain.BearerCredential, error) {
	if s.tokenFn != nil {
		return s.tokenFn(ctx)
	}
	return domain.BearerCredential{Token: "bearer-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type recordingRetirer struct {
	mu     sync.Mutex
	tokens []string
}

func (r *recordingRetirer) Retire(ctx context.Context, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
}

func (r *recordingRetirer) retired() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

func assignedMessage(token string) domain.PushMessage {
	return domain.PushMessage{
		Token:     token,
		Title:     "You have a new journey!",
		Body:      "Write the next chapter.",
		Route:     domain.KindAssigned.Route("J1"),
		JourneyID: "J1",
		Kind:      domain.KindAssigned,
	}
}

func TestFCMProviderSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody fcmRequest
	var gotPath, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"projects/relay-app/messages/0:123"}`))
	}))
	defer server.Close()

	p, err := NewFCMProvider(server.URL, "relay-app", stubBroker{}, nil)
	if err != nil {
		t.Fatalf("NewFCMProvider() error = %v", err)
	}

	resp, err := p.Send(context.Background(), assignedMessage("device-1"))
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if resp.MessageID != "projects/relay-app/messages/0:123" {
		t.Fatalf("MessageID = %q", resp.MessageID)
	}
	if gotPath != "/v1/projects/relay-app/messages:send" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer bearer-1" {
		t.Fatalf("Authorization = %q, want Bearer bearer-1", gotAuth)
	}
	if gotBody.Message.Token != "device-1" {
		t.Fatalf("message.token = %q", gotBody.Message.Token)
	}
	if gotBody.Message.Notification.Title != "You have a new journey!" {
		t.Fatalf("notification.title = %q", gotBody.Message.Notification.Title)
	}
	wantData := map[string]string{"route": "/inbox", "journey_id": "J1", "type": "journey_assigned"}
	for key, want := range wantData {
		if got := gotBody.Message.Data[key]; got != want {
			t.Fatalf("data[%s] = %q, want %q", key, got, want)
		}
	}
}

func TestFCMProviderSendClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name             string
		statusCode       int
		body             string
		wantTransient    bool
		wantUnregistered bool
	}{
		{
			name:             "unregistered token",
			statusCode:       http.StatusNotFound,
			body:             `{"error":{"status":"NOT_FOUND","details":[{"errorCode":"UNREGISTERED"}]}}`,
			wantUnregistered: true,
		},
		{
			name:       "not found without marker",
			statusCode: http.StatusNotFound,
			body:       `{"error":{"status":"NOT_FOUND"}}`,
		},
		{
			name:       "invalid argument",
			statusCode: http.StatusBadRequest,
			body:       `{"error":{"status":"INVALID_ARGUMENT"}}`,
		},
		{name: "quota exceeded", statusCode: http.StatusTooManyRequests, body: "slow down", wantTransient: true},
		{name: "gateway unavailable", statusCode: http.StatusServiceUnavailable, body: "unavailable", wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			retirer := &recordingRetirer{}
			p, err := NewFCMProvider(server.URL, "relay-app", stubBroker{}, retirer)
			if err != nil {
				t.Fatalf("NewFCMProvider() error = %v", err)
			}

			_, err = p.Send(context.Background(), assignedMessage("device-dead"))
			var deliveryErr *DeliveryError
			if !errors.As(err, &deliveryErr) {
				t.Fatalf("expected DeliveryError, got %T (%v)", err, err)
			}
			if deliveryErr.StatusCode != tc.statusCode {
				t.Fatalf("StatusCode = %d, want %d", deliveryErr.StatusCode, tc.statusCode)
			}
			if deliveryErr.Body != tc.body {
				t.Fatalf("Body = %q, want %q", deliveryErr.Body, tc.body)
			}
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}
			if got := IsUnregistered(err); got != tc.wantUnregistered {
				t.Fatalf("IsUnregistered() = %v, want %v", got, tc.wantUnregistered)
			}

			retired := retirer.retired()
			if tc.wantUnregistered {
				if len(retired) != 1 || retired[0] != "device-dead" {
					t.Fatalf("retired = %v, want [device-dead]", retired)
				}
			} else if len(retired) != 0 {
				t.Fatalf("retired = %v, want none", retired)
			}
		})
	}
}

func TestFCMProviderCredentialFailure(t *testing.T) {
	t.Parallel()

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	exchangeErr := &credential.CredentialExchangeError{StatusCode: http.StatusUnauthorized, Body: "invalid_grant"}
	broker := stubBroker{tokenFn: func(ctx context.Context) (domain.BearerCredential, error) {
		return domain.BearerCredential{}, exchangeErr
	}}

	p, err := NewFCMProvider(server.URL, "relay-app", broker, nil)
	if err != nil {
		t.Fatalf("NewFCMProvider() error = %v", err)
	}

	_, err = p.Send(context.Background(), assignedMessage("device-1"))
	if !errors.Is(err, exchangeErr) {
		t.Fatalf("Send() error = %v, want wrapped exchange error", err)
	}
	if IsTransient(err) {
		t.Fatal("rejected credential exchange should not be transient")
	}
	if called {
		t.Fatal("gateway should not be called without a credential")
	}
}

func TestFCMProviderSendTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	p, err := NewFCMProviderWithClient(server.URL, "relay-app", stubBroker{}, nil, client)
	if err != nil {
		t.Fatalf("NewFCMProviderWithClient() error = %v", err)
	}

	_, err = p.Send(context.Background(), assignedMessage("device-1"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestFCMProviderRejectsInvalidMessage(t *testing.T) {
	t.Parallel()

	p, err := NewFCMProvider("http://127.0.0.1:1", "relay-app", stubBroker{}, nil)
	if err != nil {
		t.Fatalf("NewFCMProvider() error = %v", err)
	}

	message := assignedMessage("")
	if _, err := p.Send(context.Background(), message); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Send() error = %v, want ErrValidation", err)
	}
}

func TestNewFCMProviderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewFCMProvider("", "", stubBroker{}, nil); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("missing project error = %v, want ErrConfig", err)
	}
	if _, err := NewFCMProvider("not a url", "relay-app", stubBroker{}, nil); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("bad url error = %v, want ErrConfig", err)
	}
	if _, err := NewFCMProvider("", "relay-app", nil, nil); err == nil {
		t.Fatal("expected error for nil broker")
	}
}
