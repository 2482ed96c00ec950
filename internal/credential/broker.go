package credential

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kursadbilgin/journey-dispatch/internal/domain"
)

const (
	// JWTBearerGrantType is the OAuth2 grant used for the assertion exchange.
	JWTBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	DefaultScope    = "https://www.googleapis.com/auth/firebase.messaging"

	assertionLifetime      = time.Hour
	defaultExchangeTimeout = 10 * time.Second
)

// Broker hands out bearer credentials for the push gateway.
type Broker interface {
	Token(ctx context.Context) (domain.BearerCredential, error)
}

// ServiceAccount identifies the signer of the assertion.
type ServiceAccount struct {
	ClientEmail   string
	PrivateKeyPEM string
	Scope         string
	TokenURL      string
}

// CredentialExchangeError preserves the identity provider's rejection.
type CredentialExchangeError struct {
	StatusCode int
	Body       string
}

func (e *CredentialExchangeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Body == "" {
		return fmt.Sprintf("credential exchange failed: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("credential exchange failed: status=%d: %s", e.StatusCode, e.Body)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// JWTBroker signs an RS256 assertion and exchanges it on every call.
type JWTBroker struct {
	client   *resty.Client
	account  ServiceAccount
	key      *rsa.PrivateKey
	lifetime time.Duration
	now      func() time.Time
}

func NewJWTBroker(account ServiceAccount) (*JWTBroker, error) {
	client := resty.New()
	client.SetTimeout(defaultExchangeTimeout)
	client.SetRetryCount(0)

	return NewJWTBrokerWithClient(account, client)
}

func NewJWTBrokerWithClient(account ServiceAccount, client *resty.Client) (*JWTBroker, error) {
	if strings.TrimSpace(account.ClientEmail) == "" {
		return nil, fmt.Errorf("%w: service account client email is required", domain.ErrConfig)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if strings.TrimSpace(account.Scope) == "" {
		account.Scope = DefaultScope
	}
	if strings.TrimSpace(account.TokenURL) == "" {
		account.TokenURL = DefaultTokenURL
	}
	if _, err := url.ParseRequestURI(account.TokenURL); err != nil {
		return nil, fmt.Errorf("%w: invalid token url: %v", domain.ErrConfig, err)
	}

	key, err := ParsePrivateKey(account.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultExchangeTimeout)
	}
	client.SetRetryCount(0)

	return &JWTBroker{
		client:   client,
		account:  account,
		key:      key,
		lifetime: assertionLifetime,
		now:      time.Now,
	}, nil
}

// ParsePrivateKey accepts PKCS#8 or PKCS#1 PEM, including keys whose newlines
// were escaped as literal \n by the environment.
func ParsePrivateKey(pem string) (*rsa.PrivateKey, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(pem, `\n`, "\n"))
	if cleaned == "" {
		return nil, fmt.Errorf("%w: service account private key is required", domain.ErrConfig)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cleaned))
	if err != nil {
		return nil, fmt.Errorf("%w: parse service account private key: %v", domain.ErrConfig, err)
	}
	return key, nil
}

func (b *JWTBroker) Token(ctx context.Context) (domain.BearerCredential, error) {
	if b == nil || b.client == nil {
		return domain.BearerCredential{}, fmt.Errorf("credential broker is not initialized")
	}

	issuedAt := b.now().UTC()
	assertion, err := b.signAssertion(issuedAt)
	if err != nil {
		return domain.BearerCredential{}, err
	}

	var payload tokenResponse
	response, err := b.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type": JWTBearerGrantType,
			"assertion":  assertion,
		}).
		SetResult(&payload).
		Post(b.account.TokenURL)
	if err != nil {
		return domain.BearerCredential{}, fmt.Errorf("credential exchange request failed: %w", err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return domain.BearerCredential{}, &CredentialExchangeError{
			StatusCode: statusCode,
			Body:       strings.TrimSpace(response.String()),
		}
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return domain.BearerCredential{}, &CredentialExchangeError{
			StatusCode: statusCode,
			Body:       "response did not include an access_token",
		}
	}

	lifetime := b.lifetime
	if payload.ExpiresIn > 0 {
		lifetime = time.Duration(payload.ExpiresIn) * time.Second
	}

	return domain.BearerCredential{
		Token:     payload.AccessToken,
		ExpiresAt: issuedAt.Add(lifetime),
	}, nil
}

func (b *JWTBroker) signAssertion(issuedAt time.Time) (string, error) {
	// aud is a plain string; the token endpoint rejects array audiences.
	claims := jwt.MapClaims{
		"iss":   b.account.ClientEmail,
		"scope": b.account.Scope,
		"aud":   b.account.TokenURL,
		"iat":   issuedAt.Unix(),
		"exp":   issuedAt.Add(b.lifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(b.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

// IsExchangeError reports whether err came from the identity provider.
func IsExchangeError(err error) bool {
	var exchangeErr *CredentialExchangeError
	return errors.As(err, &exchangeErr)
}
