package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies which journey event a notification announces.
type Kind string

const (
	KindAssigned Kind = "assigned"
	KindResult   Kind = "result"
)

func (k Kind) String() string { return string(k) }

func (k Kind) IsValid() bool {
	switch k {
	case KindAssigned, KindResult:
		return true
	}
	return false
}

// MessageType is the value carried in the push data payload.
func (k Kind) MessageType() string {
	switch k {
	case KindAssigned:
		return "journey_assigned"
	case KindResult:
		return "journey_result"
	}
	return ""
}

// Route returns the in-app route a notification of this kind opens.
func (k Kind) Route(journeyID string) string {
	if k == KindResult {
		return "/results/" + journeyID
	}
	return "/inbox"
}

// Candidate is one row returned by the matching oracle. Match rows carry the
// recipient as recipient_user_id, completion rows as user_id; both end up in
// RecipientID.
type Candidate struct {
	JourneyID   string
	DeviceToken string
	LocaleTag   string
	RecipientID string
	Kind        Kind
}

// HasDestination reports whether the candidate can be addressed at all.
func (c Candidate) HasDestination() bool {
	return c.DeviceToken != ""
}

// PushMessage is a single notification addressed to one destination token.
type PushMessage struct {
	Token     string
	Title     string
	Body      string
	Route     string
	JourneyID string
	Kind      Kind
}

// Content limit for push title and body (in characters).
const MaxPushContent = 240

func (m *PushMessage) Validate() error {
	if m.Token == "" {
		return fmt.Errorf("%w: destination token is required", ErrValidation)
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("%w: invalid kind %q", ErrValidation, m.Kind)
	}
	if n := len([]rune(m.Body)); n > MaxPushContent {
		return fmt.Errorf("%w: push body exceeds %d characters (got %d)", ErrValidation, MaxPushContent, n)
	}
	return nil
}

// BearerCredential is a short-lived access token for the push gateway.
type BearerCredential struct {
	Token     string
	ExpiresAt time.Time
}

// UsableAt reports whether the credential is still valid at now with at least
// skew of lifetime left.
func (c BearerCredential) UsableAt(now time.Time, skew time.Duration) bool {
	if c.Token == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(skew).Before(c.ExpiresAt)
}
