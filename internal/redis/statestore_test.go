package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupStateStore(t *testing.T) (*StateStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return NewStateStore(client, zap.NewNop()), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestStateStore_ConsumeOnce(t *testing.T) {
	store, _, cleanup := setupStateStore(t)
	defer cleanup()
	ctx := context.Background()

	env := OAuthState{
		State:     "abc123",
		UserID:    "user-1",
		Platform:  "facebook",
		CreatedAt: time.Now(),
	}
	if err := store.Put(ctx, env, 10*time.Minute); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := store.Consume(ctx, "abc123")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected envelope, got nil")
	}
	if got.UserID != "user-1" || got.Platform != "facebook" {
		t.Errorf("unexpected envelope: %+v", got)
	}

	// Second consume of the same state must find nothing.
	got, err = store.Consume(ctx, "abc123")
	if err != nil {
		t.Fatalf("second consume errored: %v", err)
	}
	if got != nil {
		t.Fatalf("state consumed twice: %+v", got)
	}
}

func TestStateStore_UnknownState(t *testing.T) {
	store, _, cleanup := setupStateStore(t)
	defer cleanup()

	got, err := store.Consume(context.Background(), "never-stored")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown state, got %+v", got)
	}
}

func TestStateStore_Expiry(t *testing.T) {
	store, mr, cleanup := setupStateStore(t)
	defer cleanup()
	ctx := context.Background()

	env := OAuthState{State: "expiring", UserID: "user-1", Platform: "twitter", CreatedAt: time.Now()}
	if err := store.Put(ctx, env, 10*time.Minute); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	mr.FastForward(11 * time.Minute)

	got, err := store.Consume(ctx, "expiring")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expired state should be gone, got %+v", got)
	}
}

func TestStateStore_Collision(t *testing.T) {
	store, _, cleanup := setupStateStore(t)
	defer cleanup()
	ctx := context.Background()

	env := OAuthState{State: "dup", UserID: "user-1", Platform: "linkedin", CreatedAt: time.Now()}
	if err := store.Put(ctx, env, time.Minute); err != nil {
		t.Fatalf("first put failed: %v", err)
	}

	if err := store.Put(ctx, env, time.Minute); err != ErrStateExists {
		t.Fatalf("expected ErrStateExists, got %v", err)
	}
}
