package queue

import (
	"context"
	"fmt"
)

// Publisher publishes dispatch triggers to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed dispatch trigger.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch triggers from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// TriggerQueue carries asynchronous dispatch requests.
	TriggerQueue = "dispatch.trigger"

	// queueMaxPriority is the RabbitMQ x-max-priority value for TriggerQueue.
	queueMaxPriority int32 = 2

	priorityBatch   uint8 = 1
	prioritySingle  uint8 = 2
	triggerRouteKey       = "dispatch.trigger"
)

// DLQName returns the dead-letter queue name, e.g. dlq.dispatch.trigger.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// PriorityValue lets single-journey triggers, sent right after a match, jump
// ahead of periodic batch sweeps.
func PriorityValue(msg DispatchMessage) uint8 {
	if msg.JourneyID != "" {
		return prioritySingle
	}
	return priorityBatch
}
