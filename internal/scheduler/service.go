// Package scheduler owns the post lifecycle: draft and scheduled posts,
// the fan-out dispatcher that publishes a post to its target platforms,
// and the worker that picks up due posts.
package scheduler

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumehq/syndicate/internal/db"
	"github.com/plumehq/syndicate/internal/format"
	"github.com/plumehq/syndicate/internal/platform"
)

// Repository is the slice of db.Repository the service needs.
type Repository interface {
	CreatePost(ctx context.Context, post *db.ScheduledPost) error
	GetPost(ctx context.Context, id uuid.UUID) (*db.ScheduledPost, error)
	ListPostsByAuthor(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]*db.ScheduledPost, error)
	ListAttempts(ctx context.Context, postID uuid.UUID) ([]*db.PublishAttempt, error)
	MarkPostScheduled(ctx context.Context, id uuid.UUID, scheduledFor *time.Time) (bool, error)
	CancelPost(ctx context.Context, id uuid.UUID) (bool, error)
	ClaimPost(ctx context.Context, id uuid.UUID) (bool, error)
}

// Producer enqueues dispatch requests so an immediate post doesn't wait
// for the next poller tick.
type Producer interface {
	EnqueueDispatch(ctx context.Context, post *db.ScheduledPost) (string, error)
}

// ScheduleRequest is the validated input for creating a post.
type ScheduleRequest struct {
	AuthorID     uuid.UUID
	Body         string
	MediaURLs    []string
	Targets      []db.PostTarget
	ScheduledFor *time.Time
	Draft        bool
}

// PostDetail is a post together with its per-platform attempt outcomes.
type PostDetail struct {
	Post     *db.ScheduledPost    `json:"post"`
	Attempts []*db.PublishAttempt `json:"attempts"`
}

// Service coordinates post creation, scheduling, cancellation, and
// hand-off to the dispatcher.
type Service struct {
	repo       Repository
	registry   *platform.Registry
	dispatcher *Dispatcher
	producer   Producer // nil when no queue is configured
	logger     *zap.Logger
}

// NewService creates a scheduler service.
func NewService(repo Repository, registry *platform.Registry, dispatcher *Dispatcher, producer Producer, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		registry:   registry,
		dispatcher: dispatcher,
		producer:   producer,
		logger:     logger,
	}
}

// Schedule validates the request and creates the post with one pending
// attempt per target. Validation fails fast: nothing is persisted when
// any target can't accept the post.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*db.ScheduledPost, error) {
	if len(req.Targets) == 0 {
		return nil, ErrNoTargets
	}

	bodyLen := utf8.RuneCountInString(req.Body)
	for _, target := range req.Targets {
		if _, err := s.registry.Get(target.Platform); err != nil {
			return nil, err
		}
		if limit, ok := format.BodyLimit(target.Platform); ok && bodyLen > limit {
			return nil, fmt.Errorf("%s allows %d characters, body has %d: %w",
				target.Platform, limit, bodyLen, ErrBodyTooLong)
		}
	}

	post := &db.ScheduledPost{
		ID:        uuid.New(),
		AuthorID:  req.AuthorID,
		Body:      req.Body,
		MediaURLs: req.MediaURLs,
		Targets:   req.Targets,
		Status:    db.PostScheduled,
	}
	if req.Draft {
		post.Status = db.PostDraft
		post.ScheduledFor = req.ScheduledFor
	} else {
		at := time.Now()
		if req.ScheduledFor != nil && req.ScheduledFor.After(at) {
			at = *req.ScheduledFor
		}
		post.ScheduledFor = &at
	}

	if err := s.repo.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	if post.Status == db.PostScheduled {
		s.enqueue(ctx, post)
	}

	return post, nil
}

// ScheduleDraft moves a draft onto the schedule. A past or missing time
// means publish as soon as possible.
func (s *Service) ScheduleDraft(ctx context.Context, id uuid.UUID, scheduledFor *time.Time) (*db.ScheduledPost, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status != db.PostDraft {
		return nil, fmt.Errorf("post is %s: %w", post.Status, ErrInvalidTransition)
	}

	at := time.Now()
	if scheduledFor != nil && scheduledFor.After(at) {
		at = *scheduledFor
	}

	ok, err := s.repo.MarkPostScheduled(ctx, id, &at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("post is no longer a draft: %w", ErrInvalidTransition)
	}

	post.Status = db.PostScheduled
	post.ScheduledFor = &at
	s.enqueue(ctx, post)

	return post, nil
}

// Cancel withdraws a draft or scheduled post. Once dispatch has begun
// the platforms may already hold the content, so cancellation is refused.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.repo.CancelPost(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("post is %s: %w", post.Status, ErrInvalidTransition)
	}

	return nil
}

// Publish claims the post and dispatches it. The claim is atomic, so a
// post the poller already picked up is left alone.
func (s *Service) Publish(ctx context.Context, id uuid.UUID) error {
	claimed, err := s.repo.ClaimPost(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		post, err := s.repo.GetPost(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("post is %s: %w", post.Status, ErrInvalidTransition)
	}

	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.dispatcher.Dispatch(ctx, post)
	return err
}

// Get returns the post with its attempts.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PostDetail, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	attempts, err := s.repo.ListAttempts(ctx, id)
	if err != nil {
		return nil, err
	}

	return &PostDetail{Post: post, Attempts: attempts}, nil
}

// List returns the author's posts, newest first.
func (s *Service) List(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]*db.ScheduledPost, error) {
	return s.repo.ListPostsByAuthor(ctx, authorID, limit, offset)
}

// enqueue hands a due post to the queue for low-latency pickup. Failures
// are logged only; the poller is the fallback path.
func (s *Service) enqueue(ctx context.Context, post *db.ScheduledPost) {
	if s.producer == nil {
		return
	}
	if post.ScheduledFor != nil && time.Until(*post.ScheduledFor) > time.Second {
		return
	}

	if _, err := s.producer.EnqueueDispatch(ctx, post); err != nil {
		s.logger.Warn("dispatch enqueue failed, poller will pick the post up",
			zap.String("post_id", post.ID.String()),
			zap.Error(err),
		)
	}
}
