package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OAuthState is the CSRF envelope round-tripped through an OAuth redirect.
// The Redis TTL doubles as the expiry sweep: an expired state simply no
// longer exists.
type OAuthState struct {
	State     string    `json:"state"`
	UserID    string    `json:"user_id"`
	Platform  string    `json:"platform"`
	OrgID     string    `json:"org_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrStateExists is returned when a state value collides with a live one.
// With 128-bit random states this indicates a caller bug, not bad luck.
var ErrStateExists = errors.New("oauth state already exists")

// StateStore keeps short-lived, single-use OAuth state envelopes in Redis.
type StateStore struct {
	client *Client
	logger *zap.Logger
}

// NewStateStore creates a state store backed by the shared Redis client.
func NewStateStore(client *Client, logger *zap.Logger) *StateStore {
	return &StateStore{client: client, logger: logger}
}

func stateKey(state string) string {
	return "oauth:state:" + state
}

// Put stores a fresh state envelope with the given TTL.
func (s *StateStore) Put(ctx context.Context, env OAuthState, ttl time.Duration) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal oauth state: %w", err)
	}

	set, err := s.client.rdb.SetNX(ctx, stateKey(env.State), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !set {
		return ErrStateExists
	}

	s.logger.Debug("oauth state stored",
		zap.String("platform", env.Platform),
		zap.String("user_id", env.UserID),
		zap.Duration("ttl", ttl),
	)

	return nil
}

// Consume atomically retrieves and deletes a state envelope. Returns
// (nil, nil) when the state is unknown, already consumed, or expired —
// GetDel makes the single-use guarantee hold across concurrent callbacks.
func (s *StateStore) Consume(ctx context.Context, state string) (*OAuthState, error) {
	raw, err := s.client.rdb.GetDel(ctx, stateKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis getdel failed: %w", err)
	}

	var env OAuthState
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal oauth state: %w", err)
	}

	return &env, nil
}
