package db

import (
	"time"

	"github.com/google/uuid"
)

// SocialAccount is one linked platform identity for one user.
// Token fields are deliberately excluded from JSON: they leave this
// process only inside outbound platform requests.
type SocialAccount struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	OrgID          *uuid.UUID `json:"org_id,omitempty"`
	Platform       string     `json:"platform"`
	PlatformUserID string     `json:"platform_user_id"`
	DisplayName    string     `json:"display_name"`
	AccessToken    string     `json:"-"`
	RefreshToken   *string    `json:"-"`
	TokenExpiry    *time.Time `json:"token_expiry,omitempty"`
	Scopes         []string   `json:"scopes"`
	Status         string     `json:"status"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Account status constants
const (
	AccountActive  = "active"
	AccountExpired = "expired" // refresh failed; user must reconnect
	AccountRevoked = "revoked" // disconnected here or by the platform
	AccountError   = "error"   // platform-side anomaly, needs investigation
)

// PostTarget names one account a post fans out to.
type PostTarget struct {
	AccountID uuid.UUID `json:"account_id"`
	Platform  string    `json:"platform"`
}

// ScheduledPost is one authored content unit targeted at N accounts.
type ScheduledPost struct {
	ID           uuid.UUID    `json:"id"`
	AuthorID     uuid.UUID    `json:"author_id"`
	Body         string       `json:"body"`
	MediaURLs    []string     `json:"media_urls,omitempty"`
	Targets      []PostTarget `json:"targets"`
	ScheduledFor *time.Time   `json:"scheduled_for,omitempty"`
	Status       string       `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Post status constants
const (
	PostDraft           = "draft"
	PostScheduled       = "scheduled"
	PostPublishing      = "publishing"
	PostPublished       = "published"        // every attempt succeeded
	PostPartiallyFailed = "partially_failed" // some succeeded, some failed
	PostFailed          = "failed"           // every attempt failed
	PostCancelled       = "cancelled"
)

// PublishAttempt is the outcome of dispatching one post to one account.
type PublishAttempt struct {
	ID             uuid.UUID  `json:"id"`
	PostID         uuid.UUID  `json:"post_id"`
	AccountID      uuid.UUID  `json:"account_id"`
	Platform       string     `json:"platform"`
	Status         string     `json:"status"`
	AttemptCount   int        `json:"attempt_count"`
	LastError      *string    `json:"last_error,omitempty"`
	ExternalPostID *string    `json:"external_post_id,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Attempt status constants
const (
	AttemptPending   = "pending"
	AttemptPublished = "published"
	AttemptFailed    = "failed"
)
