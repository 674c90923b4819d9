// Package oauth mediates the authorization-code flow for every platform
// and owns the token lifecycle: exchange, storage, refresh, revocation.
// All token mutation funnels through this package; nothing else writes
// SocialAccount token fields.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/plumehq/syndicate/internal/alerts"
	"github.com/plumehq/syndicate/internal/db"
	"github.com/plumehq/syndicate/internal/metrics"
	"github.com/plumehq/syndicate/internal/platform"
	"github.com/plumehq/syndicate/internal/redis"
)

// Repository is the slice of db.Repository the connector needs.
type Repository interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*db.SocialAccount, error)
	UpsertAccount(ctx context.Context, acct *db.SocialAccount) error
	UpdateAccountTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiry *time.Time) error
	UpdateAccountStatus(ctx context.Context, id uuid.UUID, status string) error
}

// StateStore holds single-use CSRF state envelopes.
type StateStore interface {
	Put(ctx context.Context, env redis.OAuthState, ttl time.Duration) error
	Consume(ctx context.Context, state string) (*redis.OAuthState, error)
}

// Config holds the connector's timing knobs.
type Config struct {
	StateTTL      time.Duration // CSRF state lifetime
	RefreshMargin time.Duration // refresh tokens expiring within this window
}

// Connector implements the authorization flow and the token choke point.
type Connector struct {
	repo     Repository
	states   StateStore
	registry *platform.Registry
	notifier alerts.Notifier // nil disables alerting
	config   Config
	logger   *zap.Logger

	// refreshGroup coalesces concurrent refreshes for the same account
	// into one platform call.
	refreshGroup singleflight.Group
}

// New creates a connector.
func New(repo Repository, states StateStore, registry *platform.Registry, notifier alerts.Notifier, cfg Config, logger *zap.Logger) *Connector {
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.RefreshMargin == 0 {
		cfg.RefreshMargin = 5 * time.Minute
	}

	return &Connector{
		repo:     repo,
		states:   states,
		registry: registry,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
	}
}

// newState returns 16 bytes of hex-encoded randomness.
func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// InitiateConnect starts the connect flow: it persists a fresh CSRF state
// and returns the platform authorization URL embedding it.
func (c *Connector) InitiateConnect(ctx context.Context, userID uuid.UUID, platformName string, orgID *uuid.UUID) (authURL, state string, err error) {
	adapter, err := c.registry.Get(platformName)
	if err != nil {
		return "", "", err
	}

	state, err = newState()
	if err != nil {
		return "", "", err
	}

	env := redis.OAuthState{
		State:     state,
		UserID:    userID.String(),
		Platform:  platformName,
		CreatedAt: time.Now(),
	}
	if orgID != nil {
		env.OrgID = orgID.String()
	}

	if err := c.states.Put(ctx, env, c.config.StateTTL); err != nil {
		return "", "", fmt.Errorf("store oauth state: %w", err)
	}

	c.logger.Info("connect flow initiated",
		zap.String("user_id", userID.String()),
		zap.String("platform", platformName),
	)

	return adapter.AuthCodeURL(state), state, nil
}

// HandleCallback validates and consumes the CSRF state, exchanges the
// authorization code, fetches the platform profile, and upserts the
// SocialAccount. A previously revoked or expired row for the same
// platform identity is reactivated in place.
func (c *Connector) HandleCallback(ctx context.Context, platformName, code, returnedState string) (*db.SocialAccount, error) {
	env, err := c.states.Consume(ctx, returnedState)
	if err != nil {
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}
	if env == nil {
		metrics.RecordStateFailure()
		return nil, ErrInvalidState
	}

	// The envelope was fetched by state value; compare it back in
	// constant time and pin the platform so a callback for one platform
	// cannot consume another's state.
	if subtle.ConstantTimeCompare([]byte(env.State), []byte(returnedState)) != 1 || env.Platform != platformName {
		metrics.RecordStateFailure()
		return nil, ErrInvalidState
	}

	adapter, err := c.registry.Get(platformName)
	if err != nil {
		return nil, err
	}

	token, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		c.logger.Warn("code exchange failed",
			zap.String("platform", platformName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	profile, err := adapter.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch profile: %v", ErrTokenExchange, err)
	}

	userID, err := uuid.Parse(env.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse state user id: %w", err)
	}

	acct := &db.SocialAccount{
		ID:             uuid.New(),
		UserID:         userID,
		Platform:       platformName,
		PlatformUserID: profile.ID,
		DisplayName:    profile.DisplayName,
		AccessToken:    token.AccessToken,
		Scopes:         token.Scopes,
		Status:         db.AccountActive,
	}
	if env.OrgID != "" {
		orgID, err := uuid.Parse(env.OrgID)
		if err == nil {
			acct.OrgID = &orgID
		}
	}
	if token.RefreshToken != "" {
		rt := token.RefreshToken
		acct.RefreshToken = &rt
	}
	if !token.Expiry.IsZero() {
		exp := token.Expiry
		acct.TokenExpiry = &exp
	}

	if err := c.repo.UpsertAccount(ctx, acct); err != nil {
		return nil, err
	}

	metrics.RecordConnect(platformName)
	c.logger.Info("social account connected",
		zap.String("account_id", acct.ID.String()),
		zap.String("platform", platformName),
		zap.String("platform_user_id", profile.ID),
	)

	return acct, nil
}

// RefreshAccount exchanges the stored refresh token for a fresh access
// token. On platform rejection the account transitions to expired and the
// user gets an action-required alert.
func (c *Connector) RefreshAccount(ctx context.Context, accountID uuid.UUID) (*db.SocialAccount, error) {
	acct, err := c.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if acct.RefreshToken == nil || *acct.RefreshToken == "" {
		return nil, fmt.Errorf("account %s (%s): %w", accountID, acct.Platform, ErrNotRefreshable)
	}

	adapter, err := c.registry.Get(acct.Platform)
	if err != nil {
		return nil, err
	}

	token, err := adapter.Refresh(ctx, *acct.RefreshToken)
	if err != nil {
		metrics.RecordRefresh(acct.Platform, "failure")

		if statusErr := c.repo.UpdateAccountStatus(ctx, accountID, db.AccountExpired); statusErr != nil {
			c.logger.Error("failed to mark account expired", zap.Error(statusErr),
				zap.String("account_id", accountID.String()))
		}
		c.notify(ctx, alerts.Event{
			Kind:      alerts.KindAccountExpired,
			UserID:    acct.UserID.String(),
			AccountID: accountID.String(),
			Platform:  acct.Platform,
			Detail:    "token refresh rejected; user must reconnect",
		})

		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	// Some platforms rotate the refresh token, others omit it from the
	// refresh response; keep the old one in that case.
	refreshToken := acct.RefreshToken
	if token.RefreshToken != "" {
		rt := token.RefreshToken
		refreshToken = &rt
	}
	var expiry *time.Time
	if !token.Expiry.IsZero() {
		exp := token.Expiry
		expiry = &exp
	}

	if err := c.repo.UpdateAccountTokens(ctx, accountID, token.AccessToken, refreshToken, expiry); err != nil {
		return nil, err
	}

	metrics.RecordRefresh(acct.Platform, "success")

	acct.AccessToken = token.AccessToken
	acct.RefreshToken = refreshToken
	acct.TokenExpiry = expiry
	acct.Status = db.AccountActive
	return acct, nil
}

// EnsureValidToken is the single choke point publish paths obtain tokens
// through. It refreshes tokens that are expired or inside the safety
// margin; concurrent callers for the same account share one refresh.
func (c *Connector) EnsureValidToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	acct, err := c.repo.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}

	switch acct.Status {
	case db.AccountRevoked:
		return "", fmt.Errorf("account %s: %w", accountID, ErrAccountRevoked)
	case db.AccountExpired:
		// A previous refresh failed; only a successful refresh below can
		// bring the account back.
	}

	needsRefresh := acct.Status == db.AccountExpired ||
		(acct.TokenExpiry != nil && time.Until(*acct.TokenExpiry) < c.config.RefreshMargin)

	if !needsRefresh {
		return acct.AccessToken, nil
	}

	result, err, _ := c.refreshGroup.Do(accountID.String(), func() (any, error) {
		refreshed, err := c.RefreshAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return refreshed.AccessToken, nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

// Disconnect revokes the token platform-side on a best-effort basis and
// always marks the account revoked locally: the user's intent to stop
// using the account is honored even when the remote call fails.
func (c *Connector) Disconnect(ctx context.Context, accountID uuid.UUID) error {
	acct, err := c.repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if adapter, err := c.registry.Get(acct.Platform); err == nil {
		if err := adapter.Revoke(ctx, acct.AccessToken); err != nil {
			c.logger.Warn("platform revoke failed, revoking locally anyway",
				zap.String("account_id", accountID.String()),
				zap.String("platform", acct.Platform),
				zap.Error(err),
			)
		}
	}

	if err := c.repo.UpdateAccountStatus(ctx, accountID, db.AccountRevoked); err != nil {
		return err
	}

	c.notify(ctx, alerts.Event{
		Kind:      alerts.KindAccountRevoked,
		UserID:    acct.UserID.String(),
		AccountID: accountID.String(),
		Platform:  acct.Platform,
		Detail:    "account disconnected",
	})

	c.logger.Info("social account disconnected",
		zap.String("account_id", accountID.String()),
		zap.String("platform", acct.Platform),
	)

	return nil
}

func (c *Connector) notify(ctx context.Context, event alerts.Event) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, event); err != nil {
		c.logger.Warn("alert delivery failed", zap.Error(err), zap.String("kind", string(event.Kind)))
	}
}
