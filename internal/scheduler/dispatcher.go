package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumehq/syndicate/internal/alerts"
	"github.com/plumehq/syndicate/internal/circuitbreaker"
	"github.com/plumehq/syndicate/internal/db"
	"github.com/plumehq/syndicate/internal/format"
	"github.com/plumehq/syndicate/internal/metrics"
	"github.com/plumehq/syndicate/internal/platform"
)

// TokenSource hands out valid access tokens. Implemented by
// oauth.Connector; publish paths never read stored tokens directly.
type TokenSource interface {
	EnsureValidToken(ctx context.Context, accountID uuid.UUID) (string, error)
}

// DispatchRepository is the slice of db.Repository the dispatcher needs.
type DispatchRepository interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*db.SocialAccount, error)
	PendingAttempts(ctx context.Context, postID uuid.UUID) ([]*db.PublishAttempt, error)
	UpdateAttemptProgress(ctx context.Context, id uuid.UUID, attemptCount int, lastError *string) error
	MarkAttemptPublished(ctx context.Context, id uuid.UUID, attemptCount int, externalPostID string) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, attemptCount int, lastError string) error
	RecomputePostStatus(ctx context.Context, postID uuid.UUID) (string, error)
}

// DispatchConfig holds the retry knobs.
type DispatchConfig struct {
	MaxAttempts int           // publish attempts per target, including the first
	RetryBase   time.Duration // first retry delay; doubles per attempt
}

// Dispatcher fans one claimed post out to its target platforms. Attempts
// are independent: one platform's failure never aborts another's publish.
type Dispatcher struct {
	repo     DispatchRepository
	tokens   TokenSource
	registry *platform.Registry
	breakers *circuitbreaker.Breakers
	notifier alerts.Notifier // nil disables alerting
	config   DispatchConfig
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(repo DispatchRepository, tokens TokenSource, registry *platform.Registry, breakers *circuitbreaker.Breakers, notifier alerts.Notifier, cfg DispatchConfig, logger *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}

	return &Dispatcher{
		repo:     repo,
		tokens:   tokens,
		registry: registry,
		breakers: breakers,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
	}
}

// Dispatch publishes every pending attempt of a claimed post, one
// goroutine per attempt, and returns the post's resulting status.
func (d *Dispatcher) Dispatch(ctx context.Context, post *db.ScheduledPost) (string, error) {
	metrics.DispatchStarted()
	defer metrics.DispatchFinished()

	attempts, err := d.repo.PendingAttempts(ctx, post.ID)
	if err != nil {
		return "", err
	}

	var wg sync.WaitGroup
	for _, att := range attempts {
		wg.Add(1)
		go func(att *db.PublishAttempt) {
			defer wg.Done()
			d.publishAttempt(ctx, post, att)
		}(att)
	}
	wg.Wait()

	status, err := d.repo.RecomputePostStatus(ctx, post.ID)
	if err != nil {
		return "", err
	}

	d.reportTerminal(ctx, post, status)
	return status, nil
}

// publishAttempt drives one attempt to a terminal state: publish with
// retries on transient failures, fail fast on permanent ones.
func (d *Dispatcher) publishAttempt(ctx context.Context, post *db.ScheduledPost, att *db.PublishAttempt) {
	start := time.Now()

	adapter, err := d.registry.Get(att.Platform)
	if err != nil {
		d.failAttempt(ctx, att, att.AttemptCount, err)
		return
	}

	acct, err := d.repo.GetAccount(ctx, att.AccountID)
	if err != nil {
		d.failAttempt(ctx, att, att.AttemptCount, err)
		return
	}

	rendered := format.For(att.Platform, post.Body, post.MediaURLs)

	attemptCount := att.AttemptCount
	for {
		attemptCount++

		externalID, err := d.tryPublish(ctx, adapter, acct, att, rendered)
		if err == nil {
			if dbErr := d.repo.MarkAttemptPublished(ctx, att.ID, attemptCount, externalID); dbErr != nil {
				d.logger.Error("failed to record published attempt", zap.Error(dbErr),
					zap.String("attempt_id", att.ID.String()))
			}
			metrics.RecordPublishAttempt(att.Platform, db.AttemptPublished)
			metrics.RecordPublishLatency(att.Platform, time.Since(start))
			d.logger.Info("attempt published",
				zap.String("post_id", att.PostID.String()),
				zap.String("platform", att.Platform),
				zap.String("external_post_id", externalID),
				zap.Int("attempt_count", attemptCount),
			)
			return
		}

		if !d.transient(err) || attemptCount >= d.config.MaxAttempts {
			d.failAttempt(ctx, att, attemptCount, err)
			return
		}

		errMsg := err.Error()
		if dbErr := d.repo.UpdateAttemptProgress(ctx, att.ID, attemptCount, &errMsg); dbErr != nil {
			d.logger.Error("failed to record attempt progress", zap.Error(dbErr),
				zap.String("attempt_id", att.ID.String()))
		}
		metrics.RecordPublishRetry(att.Platform)
		d.logger.Warn("attempt will retry",
			zap.String("post_id", att.PostID.String()),
			zap.String("platform", att.Platform),
			zap.Int("attempt_count", attemptCount),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff(d.config.RetryBase, attemptCount))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tryPublish performs one publish call behind the platform's circuit
// breaker. Only transient platform failures trip the breaker; token and
// account problems are this account's alone.
func (d *Dispatcher) tryPublish(ctx context.Context, adapter platform.Adapter, acct *db.SocialAccount, att *db.PublishAttempt, post platform.Post) (string, error) {
	breaker := d.breakers.For(att.Platform)
	if !breaker.Allow() {
		return "", circuitbreaker.ErrCircuitOpen
	}

	token, err := d.tokens.EnsureValidToken(ctx, att.AccountID)
	if err != nil {
		return "", err
	}

	externalID, err := adapter.Publish(ctx, token, acct.PlatformUserID, post)
	if err != nil {
		if platform.IsTransient(err) {
			breaker.RecordFailure()
		}
		return "", err
	}

	breaker.RecordSuccess()
	return externalID, nil
}

func (d *Dispatcher) failAttempt(ctx context.Context, att *db.PublishAttempt, attemptCount int, cause error) {
	if err := d.repo.MarkAttemptFailed(ctx, att.ID, attemptCount, cause.Error()); err != nil {
		d.logger.Error("failed to record failed attempt", zap.Error(err),
			zap.String("attempt_id", att.ID.String()))
	}
	metrics.RecordPublishAttempt(att.Platform, db.AttemptFailed)
	d.logger.Warn("attempt failed",
		zap.String("post_id", att.PostID.String()),
		zap.String("platform", att.Platform),
		zap.Int("attempt_count", attemptCount),
		zap.Error(cause),
	)
}

// reportTerminal records the terminal status and alerts the author. A
// post still publishing (another dispatcher holds attempts) is skipped.
func (d *Dispatcher) reportTerminal(ctx context.Context, post *db.ScheduledPost, status string) {
	var kind alerts.Kind
	switch status {
	case db.PostPublished:
		kind = alerts.KindPostPublished
	case db.PostPartiallyFailed:
		kind = alerts.KindPostPartiallyFailed
	case db.PostFailed:
		kind = alerts.KindPostFailed
	default:
		return
	}

	metrics.RecordPostTerminal(status)

	if d.notifier == nil {
		return
	}
	event := alerts.Event{
		Kind:   kind,
		UserID: post.AuthorID.String(),
		PostID: post.ID.String(),
		Detail: "post reached status " + status,
	}
	if err := d.notifier.Notify(ctx, event); err != nil {
		d.logger.Warn("alert delivery failed", zap.Error(err), zap.String("kind", string(kind)))
	}
}

// transient reports whether the failure is worth a retry. An open
// breaker counts: the platform may recover within the backoff window.
func (d *Dispatcher) transient(err error) bool {
	return platform.IsTransient(err) || errors.Is(err, circuitbreaker.ErrCircuitOpen)
}

// backoff returns base*2^(n-1) with +/-20% jitter so retries from a burst
// of attempts don't land on the platform at the same instant.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt-1)
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
