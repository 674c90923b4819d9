package sqs

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestDispatchMessage_Marshal(t *testing.T) {
	scheduledFor := int64(1735689600)
	msg := DispatchMessage{
		PostID:       uuid.New().String(),
		ScheduledFor: &scheduledFor,
		EnqueuedAt:   1234567890,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded DispatchMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if decoded.PostID != msg.PostID {
		t.Errorf("post id mismatch: got %s, want %s", decoded.PostID, msg.PostID)
	}
	if decoded.ScheduledFor == nil || *decoded.ScheduledFor != scheduledFor {
		t.Errorf("scheduled_for mismatch: got %v, want %d", decoded.ScheduledFor, scheduledFor)
	}
	if decoded.EnqueuedAt != msg.EnqueuedAt {
		t.Errorf("enqueued_at mismatch: got %d, want %d", decoded.EnqueuedAt, msg.EnqueuedAt)
	}
}

func TestDispatchMessage_OmitsEmptySchedule(t *testing.T) {
	msg := DispatchMessage{
		PostID:     uuid.New().String(),
		EnqueuedAt: 1234567890,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if _, ok := raw["scheduled_for"]; ok {
		t.Error("immediate dispatch should omit scheduled_for")
	}
	if _, ok := raw["post_id"]; !ok {
		t.Error("post_id should always be present")
	}
}
