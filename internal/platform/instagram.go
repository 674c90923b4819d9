package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// instagramAdapter speaks the Instagram basic/graph APIs. Instagram's
// long-lived token is its own refresh credential: ExchangeCode stores the
// long-lived token in both slots, and Refresh rolls it forward via
// ig_refresh_token.
type instagramAdapter struct {
	creds       Credentials
	redirectURI string
	client      *client

	authBase  string // https://api.instagram.com
	graphBase string // https://graph.instagram.com
}

func NewInstagram(creds Credentials, redirectURI string) Adapter {
	return &instagramAdapter{
		creds:       creds,
		redirectURI: redirectURI,
		client:      newClient(Instagram),
		authBase:    "https://api.instagram.com",
		graphBase:   "https://graph.instagram.com",
	}
}

func (i *instagramAdapter) Name() string { return Instagram }

func (i *instagramAdapter) BodyLimit() int { return 2200 }

func (i *instagramAdapter) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", i.creds.ClientID)
	q.Set("redirect_uri", i.redirectURI)
	q.Set("scope", "instagram_business_basic,instagram_business_content_publish")
	q.Set("response_type", "code")
	q.Set("state", state)
	return i.authBase + "/oauth/authorize?" + q.Encode()
}

func (i *instagramAdapter) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", i.creds.ClientID)
	form.Set("client_secret", i.creds.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", i.redirectURI)
	form.Set("code", code)

	var short struct {
		AccessToken string `json:"access_token"`
		UserID      int64  `json:"user_id"`
	}
	if err := i.client.postForm(ctx, i.authBase+"/oauth/access_token", form, &short); err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	// Trade for the 60-day long-lived token.
	q := url.Values{}
	q.Set("grant_type", "ig_exchange_token")
	q.Set("client_secret", i.creds.ClientSecret)
	q.Set("access_token", short.AccessToken)

	var long struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := i.client.getJSON(ctx, i.graphBase+"/access_token?"+q.Encode(), nil, &long); err != nil {
		return nil, fmt.Errorf("exchange long-lived token: %w", err)
	}

	token := &Token{
		AccessToken:  long.AccessToken,
		RefreshToken: long.AccessToken,
	}
	if long.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(long.ExpiresIn) * time.Second)
	}
	return token, nil
}

func (i *instagramAdapter) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", refreshToken)

	var refreshed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := i.client.getJSON(ctx, i.graphBase+"/refresh_access_token?"+q.Encode(), nil, &refreshed); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	token := &Token{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.AccessToken,
	}
	if refreshed.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(refreshed.ExpiresIn) * time.Second)
	}
	return token, nil
}

// Revoke has no Instagram endpoint; the token simply ages out once we stop
// refreshing it.
func (i *instagramAdapter) Revoke(ctx context.Context, accessToken string) error {
	return nil
}

func (i *instagramAdapter) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	q := url.Values{}
	q.Set("fields", "id,username")
	q.Set("access_token", accessToken)

	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := i.client.getJSON(ctx, i.graphBase+"/me?"+q.Encode(), nil, &me); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	return &Profile{ID: me.ID, DisplayName: me.Username}, nil
}

// Publish runs the two-phase container flow: create a media container
// pulling from the first media URL, then publish it. Instagram has no
// text-only posts.
func (i *instagramAdapter) Publish(ctx context.Context, accessToken, platformUserID string, post Post) (string, error) {
	if len(post.MediaURLs) == 0 {
		return "", &APIError{
			Platform:   Instagram,
			StatusCode: 400,
			Code:       "media_required",
			Message:    "instagram posts require at least one media url",
		}
	}

	form := url.Values{}
	form.Set("image_url", post.MediaURLs[0])
	form.Set("caption", post.Body)
	form.Set("access_token", accessToken)

	var container struct {
		ID string `json:"id"`
	}
	containerURL := fmt.Sprintf("%s/%s/media", i.graphBase, platformUserID)
	if err := i.client.postForm(ctx, containerURL, form, &container); err != nil {
		return "", fmt.Errorf("create media container: %w", err)
	}

	form = url.Values{}
	form.Set("creation_id", container.ID)
	form.Set("access_token", accessToken)

	var published struct {
		ID string `json:"id"`
	}
	publishURL := fmt.Sprintf("%s/%s/media_publish", i.graphBase, platformUserID)
	if err := i.client.postForm(ctx, publishURL, form, &published); err != nil {
		return "", fmt.Errorf("publish media container: %w", err)
	}

	return published.ID, nil
}
