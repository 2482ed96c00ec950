package queue

import (
	"fmt"
	"strings"
)

// DispatchMessage is the broker payload for one asynchronous dispatch.
type DispatchMessage struct {
	RequestID         string `json:"requestId"`
	JourneyID         string `json:"journeyId,omitempty"`
	BatchSize         int    `json:"batchSize,omitempty"`
	CompleteBatchSize int    `json:"completeBatchSize,omitempty"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return fmt.Errorf("requestId is required")
	}
	if m.BatchSize < 0 {
		return fmt.Errorf("batchSize must not be negative")
	}
	if m.CompleteBatchSize < 0 {
		return fmt.Errorf("completeBatchSize must not be negative")
	}
	return nil
}
