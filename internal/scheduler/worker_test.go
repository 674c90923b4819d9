package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumehq/syndicate/internal/db"
	"github.com/plumehq/syndicate/internal/platform"
	"github.com/plumehq/syndicate/internal/sqs"
)

func TestPollOnce_DispatchesDuePosts(t *testing.T) {
	store := newMemStore()
	twitter := &pubAdapter{name: platform.Twitter, publishFn: alwaysPublish("tw-1")}
	d := newTestDispatcher(store, nil, twitter)

	acctTarget := targetFor(store, platform.Twitter)
	due := time.Now().Add(-time.Minute)
	post := &db.ScheduledPost{
		ID:           uuid.New(),
		AuthorID:     uuid.New(),
		Body:         "due now",
		Targets:      []db.PostTarget{acctTarget},
		ScheduledFor: &due,
		Status:       db.PostScheduled,
	}
	if err := store.CreatePost(context.Background(), post); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	w := NewWorker(store, d, nil, WorkerConfig{}, zap.NewNop())
	w.pollOnce(context.Background())

	got, _ := store.GetPost(context.Background(), post.ID)
	if got.Status != db.PostPublished {
		t.Errorf("expected published, got %s", got.Status)
	}
	if atomic.LoadInt32(&twitter.calls) != 1 {
		t.Errorf("expected 1 publish call, got %d", twitter.calls)
	}
}

func TestPollOnce_SkipsFuturePosts(t *testing.T) {
	store := newMemStore()
	twitter := &pubAdapter{name: platform.Twitter, publishFn: alwaysPublish("tw-1")}
	d := newTestDispatcher(store, nil, twitter)

	acctTarget := targetFor(store, platform.Twitter)
	future := time.Now().Add(time.Hour)
	post := &db.ScheduledPost{
		ID:           uuid.New(),
		AuthorID:     uuid.New(),
		Body:         "not yet",
		Targets:      []db.PostTarget{acctTarget},
		ScheduledFor: &future,
		Status:       db.PostScheduled,
	}
	if err := store.CreatePost(context.Background(), post); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	w := NewWorker(store, d, nil, WorkerConfig{}, zap.NewNop())
	w.pollOnce(context.Background())

	got, _ := store.GetPost(context.Background(), post.ID)
	if got.Status != db.PostScheduled {
		t.Errorf("future post must stay scheduled, got %s", got.Status)
	}
	if atomic.LoadInt32(&twitter.calls) != 0 {
		t.Error("future post must not publish")
	}
}

func TestHandleMessage_ClaimIsDedupBarrier(t *testing.T) {
	store := newMemStore()
	twitter := &pubAdapter{name: platform.Twitter, publishFn: alwaysPublish("tw-1")}
	d := newTestDispatcher(store, nil, twitter)

	acctTarget := targetFor(store, platform.Twitter)
	due := time.Now().Add(-time.Minute)
	post := &db.ScheduledPost{
		ID:           uuid.New(),
		AuthorID:     uuid.New(),
		Body:         "once only",
		Targets:      []db.PostTarget{acctTarget},
		ScheduledFor: &due,
		Status:       db.PostScheduled,
	}
	if err := store.CreatePost(context.Background(), post); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	w := NewWorker(store, d, nil, WorkerConfig{}, zap.NewNop())
	msg := &sqs.DispatchMessage{PostID: post.ID.String()}

	w.handleMessage(context.Background(), msg)
	w.handleMessage(context.Background(), msg) // replayed delivery

	if got := atomic.LoadInt32(&twitter.calls); got != 1 {
		t.Errorf("a replayed message must not republish: %d calls", got)
	}
}

func TestHandleMessage_InvalidPostID(t *testing.T) {
	store := newMemStore()
	twitter := &pubAdapter{name: platform.Twitter}
	d := newTestDispatcher(store, nil, twitter)

	w := NewWorker(store, d, nil, WorkerConfig{}, zap.NewNop())
	w.handleMessage(context.Background(), &sqs.DispatchMessage{PostID: "not-a-uuid"})

	if atomic.LoadInt32(&twitter.calls) != 0 {
		t.Error("malformed message must not publish")
	}
}
