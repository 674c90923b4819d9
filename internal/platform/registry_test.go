package platform

import (
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"
)

func TestRegistryGetUnconfigured(t *testing.T) {
	r := BuildRegistry(map[string]Credentials{
		Facebook: {ClientID: "id", ClientSecret: "secret"},
	}, "http://localhost:8080", zap.NewNop())

	if _, err := r.Get(Facebook); err != nil {
		t.Fatalf("facebook should be configured: %v", err)
	}

	_, err := r.Get(Twitter)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRegistryIgnoresUnknownPlatform(t *testing.T) {
	r := BuildRegistry(map[string]Credentials{
		"myspace": {ClientID: "id", ClientSecret: "secret"},
	}, "http://localhost:8080", zap.NewNop())

	if names := r.Names(); len(names) != 0 {
		t.Fatalf("expected empty registry, got %v", names)
	}
}

func TestRegistryBuildsAllKnownPlatforms(t *testing.T) {
	creds := map[string]Credentials{}
	for _, name := range []string{Facebook, Instagram, Twitter, LinkedIn, TikTok, YouTube} {
		creds[name] = Credentials{ClientID: "id", ClientSecret: "secret"}
	}

	r := BuildRegistry(creds, "http://localhost:8080", zap.NewNop())
	if got := len(r.Names()); got != 6 {
		t.Fatalf("expected 6 adapters, got %d: %v", got, r.Names())
	}

	for _, name := range r.Names() {
		adapter, err := r.Get(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if adapter.Name() != name {
			t.Errorf("adapter registered under %s reports name %s", name, adapter.Name())
		}
		if adapter.BodyLimit() <= 0 {
			t.Errorf("%s has no body limit", name)
		}
	}
}

func TestAPIErrorTransient(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"forbidden", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{Platform: Twitter, StatusCode: tt.status, Message: "x"}
			if got := IsTransient(err); got != tt.transient {
				t.Errorf("IsTransient(%d) = %v, want %v", tt.status, got, tt.transient)
			}
		})
	}
}

func TestIsTransientNonAPIError(t *testing.T) {
	if IsTransient(errors.New("some logic error")) {
		t.Error("plain errors must not be retried")
	}
}
