package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	kinds  map[Kind]bool
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingNotifier) SupportsKind(kind Kind) bool {
	if r.kinds == nil {
		return true
	}
	return r.kinds[kind]
}

func TestMultiNotifierRouting(t *testing.T) {
	actionOnly := &recordingNotifier{kinds: map[Kind]bool{
		KindAccountExpired: true,
		KindPostFailed:     true,
	}}
	everything := &recordingNotifier{}

	multi := NewMultiNotifier(zap.NewNop(), actionOnly, everything)

	events := []Event{
		{Kind: KindPostPublished, PostID: "p1"},
		{Kind: KindAccountExpired, AccountID: "a1"},
	}
	for _, e := range events {
		if err := multi.Notify(context.Background(), e); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
	}

	if len(everything.events) != 2 {
		t.Errorf("catch-all notifier got %d events, want 2", len(everything.events))
	}
	if len(actionOnly.events) != 1 || actionOnly.events[0].Kind != KindAccountExpired {
		t.Errorf("action-only notifier got %+v", actionOnly.events)
	}
}

func TestMultiNotifierSwallowsFailures(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("smtp down")}
	healthy := &recordingNotifier{}

	multi := NewMultiNotifier(zap.NewNop(), failing, healthy)

	if err := multi.Notify(context.Background(), Event{Kind: KindPostFailed}); err != nil {
		t.Fatalf("multi notifier must not propagate failures: %v", err)
	}
	if len(healthy.events) != 1 {
		t.Error("healthy notifier should still receive the event")
	}
}

func TestMultiNotifierStampsOccurredAt(t *testing.T) {
	sink := &recordingNotifier{}
	multi := NewMultiNotifier(zap.NewNop(), sink)

	_ = multi.Notify(context.Background(), Event{Kind: KindPostPublished})

	if len(sink.events) != 1 || sink.events[0].OccurredAt.IsZero() {
		t.Error("expected occurred_at to be stamped")
	}
}

func TestWebhookNotifierDelivers(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Syndicate-Event"); got != string(KindPostPartiallyFailed) {
			t.Errorf("unexpected event header: %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, Timeout: 5 * time.Second}, zap.NewNop())

	event := Event{Kind: KindPostPartiallyFailed, PostID: "p9", Platform: "twitter", OccurredAt: time.Now()}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if received.PostID != "p9" {
		t.Errorf("webhook body mismatch: %+v", received)
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL}, zap.NewNop())
	if err := n.Notify(context.Background(), Event{Kind: KindPostFailed}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestActionRequiredKinds(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindAccountExpired, true},
		{KindAccountRevoked, true},
		{KindPostFailed, true},
		{KindPostPartiallyFailed, true},
		{KindPostPublished, false},
	}
	for _, tt := range tests {
		if got := actionRequired(tt.kind); got != tt.want {
			t.Errorf("actionRequired(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestLogNotifierSupportsEverything(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	for _, kind := range []Kind{KindAccountExpired, KindAccountRevoked, KindPostPublished, KindPostPartiallyFailed, KindPostFailed} {
		if !n.SupportsKind(kind) {
			t.Errorf("log notifier should support %s", kind)
		}
	}
	if err := n.Notify(context.Background(), Event{Kind: KindPostPublished}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
