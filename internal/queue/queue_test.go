package queue

import (
	"encoding/json"
	"testing"
)

func TestDLQName(t *testing.T) {
	if got := DLQName(TriggerQueue); got != "dlq.dispatch.trigger" {
		t.Fatalf("DLQName = %s, want dlq.dispatch.trigger", got)
	}
}

func TestPriorityValue(t *testing.T) {
	tests := []struct {
		name string
		msg  DispatchMessage
		want uint8
	}{
		{name: "single journey", msg: DispatchMessage{RequestID: "r1", JourneyID: "J1"}, want: 2},
		{name: "batch sweep", msg: DispatchMessage{RequestID: "r2", BatchSize: 25}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PriorityValue(tt.msg); got != tt.want {
				t.Fatalf("PriorityValue() = %d, want %d", got, tt.want)
			}
			if int32(tt.want) > queueMaxPriority {
				t.Fatalf("priority %d exceeds queue max %d", tt.want, queueMaxPriority)
			}
		})
	}
}

func TestDispatchMessageValidate(t *testing.T) {
	msg := DispatchMessage{RequestID: "r1", JourneyID: "J1"}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.RequestID = " "
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty request id")
	}

	msg.RequestID = "r1"
	msg.BatchSize = -1
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for negative batch size")
	}

	msg.BatchSize = 0
	msg.CompleteBatchSize = -3
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for negative complete batch size")
	}
}

func TestDispatchMessageJSON(t *testing.T) {
	payload, err := json.Marshal(DispatchMessage{RequestID: "r1", BatchSize: 5})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if got := string(payload); got != `{"requestId":"r1","batchSize":5}` {
		t.Fatalf("payload = %s", got)
	}
}
