package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumehq/syndicate/internal/db"
	"github.com/plumehq/syndicate/internal/sqs"
)

// WorkerRepository is the slice of db.Repository the worker needs.
type WorkerRepository interface {
	ClaimDuePosts(ctx context.Context, limit int) ([]*db.ScheduledPost, error)
	ClaimPost(ctx context.Context, id uuid.UUID) (bool, error)
	GetPost(ctx context.Context, id uuid.UUID) (*db.ScheduledPost, error)
}

// Consumer receives dispatch messages. Implemented by sqs.Consumer.
type Consumer interface {
	ReceiveMessage(ctx context.Context) (*sqs.DispatchMessage, string, error)
	DeleteMessage(ctx context.Context, receiptHandle string) error
}

// WorkerConfig holds the poll loop knobs.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Worker claims due posts and dispatches them. The poller is the source
// of truth; the optional queue loop only shortens pickup latency.
type Worker struct {
	repo       WorkerRepository
	dispatcher *Dispatcher
	consumer   Consumer // nil disables the queue loop
	config     WorkerConfig
	logger     *zap.Logger
}

// NewWorker creates a worker.
func NewWorker(repo WorkerRepository, dispatcher *Dispatcher, consumer Consumer, cfg WorkerConfig, logger *zap.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	return &Worker{
		repo:       repo,
		dispatcher: dispatcher,
		consumer:   consumer,
		config:     cfg,
		logger:     logger,
	}
}

// Start runs the poll loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	if w.consumer != nil {
		go w.consumeLoop(ctx)
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("scheduler worker stopping")
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

// pollOnce claims a batch of due posts and dispatches each one.
func (w *Worker) pollOnce(ctx context.Context) {
	posts, err := w.repo.ClaimDuePosts(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to claim due posts", zap.Error(err))
		return
	}

	for _, post := range posts {
		if _, err := w.dispatcher.Dispatch(ctx, post); err != nil {
			w.logger.Error("dispatch failed",
				zap.String("post_id", post.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// consumeLoop long-polls the dispatch queue. Claiming the post is the
// dedup barrier: a message for a post the poller already took is a no-op.
func (w *Worker) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, receipt, err := w.consumer.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		if msg == nil {
			continue
		}

		w.handleMessage(ctx, msg)

		if err := w.consumer.DeleteMessage(ctx, receipt); err != nil {
			w.logger.Warn("queue delete failed", zap.Error(err))
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg *sqs.DispatchMessage) {
	postID, err := uuid.Parse(msg.PostID)
	if err != nil {
		w.logger.Error("queue message with invalid post id",
			zap.String("post_id", msg.PostID),
			zap.Error(err),
		)
		return
	}

	claimed, err := w.repo.ClaimPost(ctx, postID)
	if err != nil {
		w.logger.Error("failed to claim post", zap.Error(err),
			zap.String("post_id", postID.String()))
		return
	}
	if !claimed {
		return
	}

	post, err := w.repo.GetPost(ctx, postID)
	if err != nil {
		w.logger.Error("failed to load claimed post", zap.Error(err),
			zap.String("post_id", postID.String()))
		return
	}

	if _, err := w.dispatcher.Dispatch(ctx, post); err != nil {
		w.logger.Error("dispatch failed",
			zap.String("post_id", post.ID.String()),
			zap.Error(err),
		)
	}
}
