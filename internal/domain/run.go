package domain

import "time"

// RunStatus is the final state of one dispatch stage.
type RunStatus string

const (
	RunStatusCompleted      RunStatus = "COMPLETED"
	RunStatusPartialFailure RunStatus = "PARTIAL_FAILURE"
	RunStatusFailed         RunStatus = "FAILED"
	RunStatusSkipped        RunStatus = "SKIPPED"
)

func (s RunStatus) String() string { return string(s) }

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartialFailure, RunStatusFailed, RunStatusSkipped:
		return true
	}
	return false
}

// RunStatusFor derives the stage status from its target and success counts.
func RunStatusFor(targets, success int) RunStatus {
	if success < targets {
		return RunStatusPartialFailure
	}
	return RunStatusCompleted
}

// DispatchRun records one stage (assigned or result) of a dispatch invocation.
type DispatchRun struct {
	ID          string
	RequestID   string
	Stage       Kind
	Trigger     string
	Matched     int
	PushTargets int
	PushSuccess int
	Status      RunStatus
	Error       *string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// DeliveryAttempt records the outcome for one recipient inside a run.
type DeliveryAttempt struct {
	ID          string
	RunID       string
	RecipientID string
	JourneyID   string
	Kind        Kind
	Status      DeliveryStatus
	Error       *string
	CreatedAt   time.Time
}

// StatusCount is an aggregate of attempts per delivery status.
type StatusCount struct {
	Status DeliveryStatus
	Count  int
}
