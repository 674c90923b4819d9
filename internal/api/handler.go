package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumehq/syndicate/internal/db"
	"github.com/plumehq/syndicate/internal/metrics"
	"github.com/plumehq/syndicate/internal/oauth"
	"github.com/plumehq/syndicate/internal/platform"
	"github.com/plumehq/syndicate/internal/redis"
	"github.com/plumehq/syndicate/internal/scheduler"
)

// Connector is the slice of oauth.Connector the handlers need.
type Connector interface {
	InitiateConnect(ctx context.Context, userID uuid.UUID, platformName string, orgID *uuid.UUID) (authURL, state string, err error)
	HandleCallback(ctx context.Context, platformName, code, state string) (*db.SocialAccount, error)
	RefreshAccount(ctx context.Context, accountID uuid.UUID) (*db.SocialAccount, error)
	Disconnect(ctx context.Context, accountID uuid.UUID) error
}

// Scheduler is the slice of scheduler.Service the handlers need.
type Scheduler interface {
	Schedule(ctx context.Context, req scheduler.ScheduleRequest) (*db.ScheduledPost, error)
	ScheduleDraft(ctx context.Context, id uuid.UUID, scheduledFor *time.Time) (*db.ScheduledPost, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*scheduler.PostDetail, error)
	List(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]*db.ScheduledPost, error)
}

// AccountLister reads connected accounts for a user.
type AccountLister interface {
	ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*db.SocialAccount, error)
}

// PostRequest represents the incoming post creation body.
type PostRequest struct {
	AuthorID     string       `json:"author_id"`
	Body         string       `json:"body"`
	MediaURLs    []string     `json:"media_urls,omitempty"`
	Targets      []PostTarget `json:"targets"`
	ScheduledFor *time.Time   `json:"scheduled_for,omitempty"`
	Draft        bool         `json:"draft,omitempty"`
}

// PostTarget names one account a post fans out to.
type PostTarget struct {
	AccountID string `json:"account_id"`
	Platform  string `json:"platform"`
}

// ConnectResponse is returned when the connect flow starts.
type ConnectResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	connector   Connector
	scheduler   Scheduler
	accounts    AccountLister
	idempotency *redis.IdempotencyService // nil if Redis not configured
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, connector Connector, sched Scheduler, accounts AccountLister, idempotency *redis.IdempotencyService) *Handler {
	return &Handler{
		logger:      logger,
		connector:   connector,
		scheduler:   sched,
		accounts:    accounts,
		idempotency: idempotency,
	}
}

// InitiateConnect handles GET /v1/connect/{platform}
func (h *Handler) InitiateConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	platformName := chi.URLParam(r, "platform")

	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id query parameter must be a valid UUID")
		return
	}

	var orgID *uuid.UUID
	if raw := r.URL.Query().Get("org_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid org_id", "org_id must be a valid UUID")
			return
		}
		orgID = &parsed
	}

	authURL, state, err := h.connector.InitiateConnect(ctx, userID, platformName, orgID)
	if err != nil {
		h.writeMappedError(w, err, "Failed to start connect flow")
		return
	}

	h.writeJSON(w, http.StatusOK, ConnectResponse{AuthURL: authURL, State: state})
}

// HandleCallback handles GET /v1/connect/{platform}/callback
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	platformName := chi.URLParam(r, "platform")
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" || state == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing callback parameters", "code and state query parameters are required")
		return
	}

	acct, err := h.connector.HandleCallback(ctx, platformName, code, state)
	if err != nil {
		h.logger.Warn("oauth callback rejected",
			zap.String("platform", platformName),
			zap.Error(err),
		)
		h.writeMappedError(w, err, "Failed to complete connect flow")
		return
	}

	h.writeJSON(w, http.StatusOK, acct)
}

// ListAccounts handles GET /v1/accounts?user_id=xxx
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id query parameter must be a valid UUID")
		return
	}

	accounts, err := h.accounts.ListAccountsByUser(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list accounts", zap.Error(err), zap.String("user_id", userID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list accounts", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  accounts,
		"count": len(accounts),
	})
}

// RefreshAccount handles POST /v1/accounts/{id}/refresh
func (h *Handler) RefreshAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid account ID", "ID must be a valid UUID")
		return
	}

	acct, err := h.connector.RefreshAccount(ctx, accountID)
	if err != nil {
		h.writeMappedError(w, err, "Failed to refresh account")
		return
	}

	h.writeJSON(w, http.StatusOK, acct)
}

// DisconnectAccount handles DELETE /v1/accounts/{id}
func (h *Handler) DisconnectAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid account ID", "ID must be a valid UUID")
		return
	}

	if err := h.connector.Disconnect(ctx, accountID); err != nil {
		h.writeMappedError(w, err, "Failed to disconnect account")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":     accountID.String(),
		"status": db.AccountRevoked,
	})
}

// CreatePost handles POST /v1/posts.
// Supports idempotency via the Idempotency-Key header, scoped per author.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.AuthorID == "" || req.Body == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "author_id and body are required")
		return
	}

	authorID, err := uuid.Parse(req.AuthorID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid author_id", "author_id must be a valid UUID")
		return
	}

	targets := make([]db.PostTarget, 0, len(req.Targets))
	for _, target := range req.Targets {
		accountID, err := uuid.Parse(target.AccountID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid target account_id", "every target account_id must be a valid UUID")
			return
		}
		targets = append(targets, db.PostTarget{AccountID: accountID, Platform: target.Platform})
	}

	// Check idempotency if key provided
	if idempotencyKey != "" && h.idempotency != nil {
		cachedResult, err := h.idempotency.CheckOrReserve(ctx, req.AuthorID, idempotencyKey)

		if err != nil {
			if errors.Is(err, redis.ErrDuplicateRequest) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cachedResult != nil {
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cachedResult.StatusCode)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": cachedResult.PostID})
			return
		}
	}

	post, err := h.scheduler.Schedule(ctx, scheduler.ScheduleRequest{
		AuthorID:     authorID,
		Body:         req.Body,
		MediaURLs:    req.MediaURLs,
		Targets:      targets,
		ScheduledFor: req.ScheduledFor,
		Draft:        req.Draft,
	})
	if err != nil {
		h.writeMappedError(w, err, "Failed to create post")
		return
	}

	h.logger.Info("post created",
		zap.String("id", post.ID.String()),
		zap.String("author_id", req.AuthorID),
		zap.String("status", post.Status),
		zap.Int("targets", len(post.Targets)),
	)

	// Store idempotency result
	if idempotencyKey != "" && h.idempotency != nil {
		result := &redis.IdempotencyResult{
			PostID:     post.ID.String(),
			StatusCode: http.StatusCreated,
		}
		if err := h.idempotency.Store(ctx, req.AuthorID, idempotencyKey, result, redis.IdempotencyTTL); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	h.writeJSON(w, http.StatusCreated, post)
}

// SchedulePost handles POST /v1/posts/{id}/schedule
func (h *Handler) SchedulePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	postID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid post ID", "ID must be a valid UUID")
		return
	}

	var req struct {
		ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
			return
		}
	}

	post, err := h.scheduler.ScheduleDraft(ctx, postID, req.ScheduledFor)
	if err != nil {
		h.writeMappedError(w, err, "Failed to schedule post")
		return
	}

	h.writeJSON(w, http.StatusOK, post)
}

// CancelPost handles DELETE /v1/posts/{id}
func (h *Handler) CancelPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	postID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid post ID", "ID must be a valid UUID")
		return
	}

	if err := h.scheduler.Cancel(ctx, postID); err != nil {
		h.writeMappedError(w, err, "Failed to cancel post")
		return
	}

	h.logger.Info("post cancelled", zap.String("id", postID.String()))

	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":     postID.String(),
		"status": db.PostCancelled,
	})
}

// GetPost handles GET /v1/posts/{id}
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	postID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid post ID", "ID must be a valid UUID")
		return
	}

	detail, err := h.scheduler.Get(ctx, postID)
	if err != nil {
		h.writeMappedError(w, err, "Failed to get post")
		return
	}

	h.writeJSON(w, http.StatusOK, detail)
}

// ListPosts handles GET /v1/posts?author_id=xxx&limit=20&offset=0
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authorID, err := uuid.Parse(r.URL.Query().Get("author_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid author_id", "author_id query parameter must be a valid UUID")
		return
	}

	// Parse pagination parameters with defaults
	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	posts, err := h.scheduler.List(ctx, authorID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list posts",
			zap.Error(err),
			zap.String("author_id", authorID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list posts", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   posts,
		"limit":  limit,
		"offset": offset,
		"count":  len(posts),
	})
}

// writeMappedError translates domain sentinels into problem+json responses.
func (h *Handler) writeMappedError(w http.ResponseWriter, err error, title string) {
	switch {
	case errors.Is(err, platform.ErrNotConfigured):
		h.writeError(w, http.StatusUnprocessableEntity, "platform_not_configured", title, err.Error())
	case errors.Is(err, oauth.ErrInvalidState):
		h.writeError(w, http.StatusConflict, "invalid_state", title, "state is unknown, expired, or already used")
	case errors.Is(err, oauth.ErrTokenExchange):
		h.writeError(w, http.StatusBadGateway, "token_exchange_failed", title, err.Error())
	case errors.Is(err, oauth.ErrNotRefreshable):
		h.writeError(w, http.StatusConflict, "not_refreshable", title, err.Error())
	case errors.Is(err, oauth.ErrRefreshFailed):
		h.writeError(w, http.StatusConflict, "refresh_failed", title, err.Error())
	case errors.Is(err, oauth.ErrAccountRevoked):
		h.writeError(w, http.StatusConflict, "account_revoked", title, err.Error())
	case errors.Is(err, scheduler.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, "invalid_transition", title, err.Error())
	case errors.Is(err, scheduler.ErrNoTargets), errors.Is(err, scheduler.ErrBodyTooLong):
		h.writeError(w, http.StatusBadRequest, "invalid_request", title, err.Error())
	case errors.Is(err, db.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", title, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", title, "")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
