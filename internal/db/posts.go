package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CreatePost inserts a scheduled post together with one pending publish
// attempt per target, all in a single transaction.
func (r *Repository) CreatePost(ctx context.Context, post *ScheduledPost) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertPost := `
		INSERT INTO scheduled_posts (
			id, author_id, body, media_urls, targets, scheduled_for, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, insertPost,
		post.ID,
		post.AuthorID,
		post.Body,
		post.MediaURLs,
		post.Targets,
		post.ScheduledFor,
		post.Status,
	).Scan(&post.CreatedAt, &post.UpdatedAt)

	if err != nil {
		return fmt.Errorf("insert scheduled post: %w", err)
	}

	insertAttempt := `
		INSERT INTO publish_attempts (id, post_id, account_id, platform, status, attempt_count)
		VALUES ($1, $2, $3, $4, $5, 0)
	`

	for _, target := range post.Targets {
		_, err := tx.Exec(ctx, insertAttempt, uuid.New(), post.ID, target.AccountID, target.Platform, AttemptPending)
		if err != nil {
			return fmt.Errorf("insert publish attempt: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("scheduled post created",
		zap.String("post_id", post.ID.String()),
		zap.String("author_id", post.AuthorID.String()),
		zap.String("status", post.Status),
		zap.Int("targets", len(post.Targets)),
	)

	return nil
}

// GetPost retrieves a scheduled post by ID
func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*ScheduledPost, error) {
	query := `
		SELECT
			id, author_id, body, media_urls, targets, scheduled_for,
			status, created_at, updated_at
		FROM scheduled_posts
		WHERE id = $1
	`

	var post ScheduledPost
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&post.ID,
		&post.AuthorID,
		&post.Body,
		&post.MediaURLs,
		&post.Targets,
		&post.ScheduledFor,
		&post.Status,
		&post.CreatedAt,
		&post.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scheduled post %s: %w", id, ErrNotFound)
	}

	if err != nil {
		r.logger.Error("failed to get scheduled post",
			zap.Error(err),
			zap.String("post_id", id.String()),
		)
		return nil, fmt.Errorf("query scheduled post: %w", err)
	}

	return &post, nil
}

// ListPostsByAuthor retrieves posts for an author with pagination
func (r *Repository) ListPostsByAuthor(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]*ScheduledPost, error) {
	query := `
		SELECT
			id, author_id, body, media_urls, targets, scheduled_for,
			status, created_at, updated_at
		FROM scheduled_posts
		WHERE author_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, authorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query scheduled posts: %w", err)
	}
	defer rows.Close()

	var posts []*ScheduledPost
	for rows.Next() {
		var post ScheduledPost
		err := rows.Scan(
			&post.ID,
			&post.AuthorID,
			&post.Body,
			&post.MediaURLs,
			&post.Targets,
			&post.ScheduledFor,
			&post.Status,
			&post.CreatedAt,
			&post.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled post: %w", err)
		}
		posts = append(posts, &post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return posts, nil
}

// MarkPostScheduled transitions a draft to scheduled. Returns false when the
// post is missing or no longer a draft.
func (r *Repository) MarkPostScheduled(ctx context.Context, id uuid.UUID, scheduledFor *time.Time) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, scheduled_for = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, PostScheduled, scheduledFor, id, PostDraft)
	if err != nil {
		return false, fmt.Errorf("schedule post: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// CancelPost transitions a draft or scheduled post to cancelled. Returns
// false when the post is missing or dispatch already began.
func (r *Repository) CancelPost(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4)
	`

	result, err := r.db.Pool().Exec(ctx, query, PostCancelled, id, PostDraft, PostScheduled)
	if err != nil {
		return false, fmt.Errorf("cancel post: %w", err)
	}

	cancelled := result.RowsAffected() == 1
	if cancelled {
		r.logger.Info("scheduled post cancelled", zap.String("post_id", id.String()))
	}

	return cancelled, nil
}

// ClaimDuePosts atomically moves due scheduled posts to publishing and
// returns them. SKIP LOCKED keeps concurrent pollers from double-claiming.
func (r *Repository) ClaimDuePosts(ctx context.Context, limit int) ([]*ScheduledPost, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM scheduled_posts
			WHERE status = $2 AND (scheduled_for IS NULL OR scheduled_for <= NOW())
			ORDER BY scheduled_for ASC NULLS FIRST
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, author_id, body, media_urls, targets, scheduled_for,
		          status, created_at, updated_at
	`

	rows, err := r.db.Pool().Query(ctx, query, PostPublishing, PostScheduled, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due posts: %w", err)
	}
	defer rows.Close()

	var posts []*ScheduledPost
	for rows.Next() {
		var post ScheduledPost
		err := rows.Scan(
			&post.ID,
			&post.AuthorID,
			&post.Body,
			&post.MediaURLs,
			&post.Targets,
			&post.ScheduledFor,
			&post.Status,
			&post.CreatedAt,
			&post.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan claimed post: %w", err)
		}
		posts = append(posts, &post)
	}

	return posts, rows.Err()
}

// ClaimPost moves a single scheduled post to publishing. Used by the queue
// consumer; returns false when the poller already claimed it.
func (r *Repository) ClaimPost(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, PostPublishing, id, PostScheduled)
	if err != nil {
		return false, fmt.Errorf("claim post: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// ListAttempts retrieves all publish attempts for a post
func (r *Repository) ListAttempts(ctx context.Context, postID uuid.UUID) ([]*PublishAttempt, error) {
	query := `
		SELECT
			id, post_id, account_id, platform, status, attempt_count,
			last_error, external_post_id, published_at, created_at, updated_at
		FROM publish_attempts
		WHERE post_id = $1
		ORDER BY platform, created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("query publish attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*PublishAttempt
	for rows.Next() {
		var att PublishAttempt
		err := rows.Scan(
			&att.ID,
			&att.PostID,
			&att.AccountID,
			&att.Platform,
			&att.Status,
			&att.AttemptCount,
			&att.LastError,
			&att.ExternalPostID,
			&att.PublishedAt,
			&att.CreatedAt,
			&att.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan publish attempt: %w", err)
		}
		attempts = append(attempts, &att)
	}

	return attempts, rows.Err()
}

// PendingAttempts retrieves the attempts for a post that have not reached a
// terminal state yet.
func (r *Repository) PendingAttempts(ctx context.Context, postID uuid.UUID) ([]*PublishAttempt, error) {
	query := `
		SELECT
			id, post_id, account_id, platform, status, attempt_count,
			last_error, external_post_id, published_at, created_at, updated_at
		FROM publish_attempts
		WHERE post_id = $1 AND status = $2
	`

	rows, err := r.db.Pool().Query(ctx, query, postID, AttemptPending)
	if err != nil {
		return nil, fmt.Errorf("query pending attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*PublishAttempt
	for rows.Next() {
		var att PublishAttempt
		err := rows.Scan(
			&att.ID,
			&att.PostID,
			&att.AccountID,
			&att.Platform,
			&att.Status,
			&att.AttemptCount,
			&att.LastError,
			&att.ExternalPostID,
			&att.PublishedAt,
			&att.CreatedAt,
			&att.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pending attempt: %w", err)
		}
		attempts = append(attempts, &att)
	}

	return attempts, rows.Err()
}

// UpdateAttemptProgress records a retry in flight: bumps the attempt count
// and keeps the error that caused the retry.
func (r *Repository) UpdateAttemptProgress(ctx context.Context, id uuid.UUID, attemptCount int, lastError *string) error {
	query := `
		UPDATE publish_attempts
		SET attempt_count = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`

	_, err := r.db.Pool().Exec(ctx, query, attemptCount, lastError, id)
	if err != nil {
		return fmt.Errorf("update attempt progress: %w", err)
	}

	return nil
}

// MarkAttemptPublished finalizes a successful attempt
func (r *Repository) MarkAttemptPublished(ctx context.Context, id uuid.UUID, attemptCount int, externalPostID string) error {
	query := `
		UPDATE publish_attempts
		SET status = $1, attempt_count = $2, external_post_id = $3,
		    last_error = NULL, published_at = NOW(), updated_at = NOW()
		WHERE id = $4
	`

	_, err := r.db.Pool().Exec(ctx, query, AttemptPublished, attemptCount, externalPostID, id)
	if err != nil {
		return fmt.Errorf("mark attempt published: %w", err)
	}

	return nil
}

// MarkAttemptFailed finalizes a failed attempt
func (r *Repository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, attemptCount int, lastError string) error {
	query := `
		UPDATE publish_attempts
		SET status = $1, attempt_count = $2, last_error = $3, updated_at = NOW()
		WHERE id = $4
	`

	_, err := r.db.Pool().Exec(ctx, query, AttemptFailed, attemptCount, lastError, id)
	if err != nil {
		return fmt.Errorf("mark attempt failed: %w", err)
	}

	return nil
}

// RecomputePostStatus derives the parent post's status from its attempts.
// The post row is locked for the duration so near-simultaneous attempt
// completions cannot interleave their reads and lose an update. Once every
// attempt is terminal the post becomes published, partially_failed, or
// failed; until then it stays publishing.
func (r *Repository) RecomputePostStatus(ctx context.Context, postID uuid.UUID) (string, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM scheduled_posts WHERE id = $1 FOR UPDATE`, postID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("scheduled post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lock post row: %w", err)
	}

	// Only a publishing post can move to a terminal state; a cancelled or
	// already-terminal post keeps its status.
	if current != PostPublishing {
		return current, tx.Commit(ctx)
	}

	var total, published, failed int
	err = tx.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM publish_attempts
		WHERE post_id = $1
	`, postID, AttemptPublished, AttemptFailed).Scan(&total, &published, &failed)
	if err != nil {
		return "", fmt.Errorf("count attempts: %w", err)
	}

	status := PostPublishing
	if published+failed == total {
		switch {
		case failed == 0:
			status = PostPublished
		case published == 0:
			status = PostFailed
		default:
			status = PostPartiallyFailed
		}
	}

	if status != current {
		_, err = tx.Exec(ctx, `UPDATE scheduled_posts SET status = $1, updated_at = NOW() WHERE id = $2`, status, postID)
		if err != nil {
			return "", fmt.Errorf("update post status: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	if status != current {
		r.logger.Info("post status recomputed",
			zap.String("post_id", postID.String()),
			zap.String("status", status),
			zap.Int("published", published),
			zap.Int("failed", failed),
			zap.Int("total", total),
		)
	}

	return status, nil
}
