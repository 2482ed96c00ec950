package domain

import "errors"

// DeliveryStatus is the terminal state of one recipient within a batch pass.
type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

// DeliveryOutcome combines the push result and the audit write result for one
// recipient. A recipient only counts as delivered when both channels succeed.
type DeliveryOutcome struct {
	RecipientID string
	JourneyID   string
	Kind        Kind
	DeliveryErr error
	AuditErr    error
}

func (o DeliveryOutcome) Status() DeliveryStatus {
	if o.DeliveryErr == nil && o.AuditErr == nil {
		return DeliverySuccess
	}
	return DeliveryFailed
}

// ErrorDetail returns the first failure in pipeline order, or "".
func (o DeliveryOutcome) ErrorDetail() string {
	switch {
	case o.DeliveryErr != nil:
		return o.DeliveryErr.Error()
	case o.AuditErr != nil:
		return o.AuditErr.Error()
	}
	return ""
}

// FailureReason is a short label for metrics.
func (o DeliveryOutcome) FailureReason() string {
	switch {
	case o.DeliveryErr != nil:
		if errors.Is(o.DeliveryErr, ErrValidation) {
			return "invalid_message"
		}
		return "delivery_failed"
	case o.AuditErr != nil:
		return "audit_failed"
	}
	return ""
}

// CountSuccess folds a batch of outcomes into the delivered-and-logged count.
func CountSuccess(outcomes []DeliveryOutcome) int {
	count := 0
	for _, o := range outcomes {
		if o.Status() == DeliverySuccess {
			count++
		}
	}
	return count
}

// LogData is the structured payload stored alongside each notification log.
type LogData struct {
	Type      string `json:"type"`
	JourneyID string `json:"journey_id"`
	FCMStatus string `json:"fcm_status"`
	FCMError  string `json:"fcm_error,omitempty"`
}

// NotificationLogEntry is one inbox/audit record written per delivery attempt.
type NotificationLogEntry struct {
	UserID string
	Title  string
	Body   string
	Route  string
	Data   LogData
}
