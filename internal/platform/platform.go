// Package platform contains the per-network adapters. Each adapter speaks
// one social platform's OAuth and publish APIs behind a common capability
// interface, so the connector and dispatcher never depend on a concrete
// platform.
package platform

import (
	"context"
	"time"
)

// Platform name constants, used as registry keys and db values.
const (
	Facebook  = "facebook"
	Instagram = "instagram"
	Twitter   = "twitter"
	LinkedIn  = "linkedin"
	TikTok    = "tiktok"
	YouTube   = "youtube"
)

// Credentials holds one platform's OAuth app credentials.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Token is the result of a code exchange or refresh. RefreshToken and
// Expiry are empty for platforms that don't issue them.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scopes       []string
}

// Profile identifies the platform-side user the token belongs to.
type Profile struct {
	ID          string
	DisplayName string
}

// Post is the content handed to Publish after formatting.
type Post struct {
	Body      string
	MediaURLs []string
}

// Adapter is the capability set every platform implements.
type Adapter interface {
	Name() string

	// AuthCodeURL builds the authorization URL the user is redirected to.
	AuthCodeURL(state string) string

	// ExchangeCode trades a single-use authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*Token, error)

	// Refresh trades a refresh token for a fresh access token.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)

	// Revoke invalidates the access token platform-side. Best effort.
	Revoke(ctx context.Context, accessToken string) error

	// FetchProfile returns the identity behind the token.
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)

	// Publish creates the post on the platform and returns its external id.
	Publish(ctx context.Context, accessToken, platformUserID string, post Post) (string, error)

	// BodyLimit is the platform's documented post length in runes.
	BodyLimit() int
}
