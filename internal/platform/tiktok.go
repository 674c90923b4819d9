package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// tiktokAdapter speaks the TikTok open API. TikTok renames client_id to
// client_key throughout, so the flow is hand-built rather than x/oauth2.
type tiktokAdapter struct {
	creds       Credentials
	redirectURI string
	client      *client

	authBase string // https://www.tiktok.com
	apiBase  string // https://open.tiktokapis.com
}

func NewTikTok(creds Credentials, redirectURI string) Adapter {
	return &tiktokAdapter{
		creds:       creds,
		redirectURI: redirectURI,
		client:      newClient(TikTok),
		authBase:    "https://www.tiktok.com",
		apiBase:     "https://open.tiktokapis.com",
	}
}

func (t *tiktokAdapter) Name() string { return TikTok }

func (t *tiktokAdapter) BodyLimit() int { return 2200 }

func (t *tiktokAdapter) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_key", t.creds.ClientID)
	q.Set("redirect_uri", t.redirectURI)
	q.Set("scope", "user.info.basic,video.publish")
	q.Set("response_type", "code")
	q.Set("state", state)
	return t.authBase + "/v2/auth/authorize/?" + q.Encode()
}

type tiktokTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	OpenID       string `json:"open_id"`
	Scope        string `json:"scope"`
}

func (t *tiktokAdapter) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("client_key", t.creds.ClientID)
	form.Set("client_secret", t.creds.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", t.redirectURI)

	var resp tiktokTokenResponse
	if err := t.client.postForm(ctx, t.apiBase+"/v2/oauth/token/", form, &resp); err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return t.toToken(resp), nil
}

func (t *tiktokAdapter) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("client_key", t.creds.ClientID)
	form.Set("client_secret", t.creds.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var resp tiktokTokenResponse
	if err := t.client.postForm(ctx, t.apiBase+"/v2/oauth/token/", form, &resp); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return t.toToken(resp), nil
}

func (t *tiktokAdapter) toToken(resp tiktokTokenResponse) *Token {
	token := &Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.Scope != "" {
		token.Scopes = strings.Split(resp.Scope, ",")
	}
	return token
}

func (t *tiktokAdapter) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{}
	form.Set("client_key", t.creds.ClientID)
	form.Set("client_secret", t.creds.ClientSecret)
	form.Set("token", accessToken)
	return t.client.postForm(ctx, t.apiBase+"/v2/oauth/revoke/", form, nil)
}

func (t *tiktokAdapter) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var resp struct {
		Data struct {
			User struct {
				OpenID      string `json:"open_id"`
				DisplayName string `json:"display_name"`
			} `json:"user"`
		} `json:"data"`
	}
	endpoint := t.apiBase + "/v2/user/info/?fields=open_id,display_name"
	if err := t.client.getJSON(ctx, endpoint, headers, &resp); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	return &Profile{ID: resp.Data.User.OpenID, DisplayName: resp.Data.User.DisplayName}, nil
}

// Publish starts a PULL_FROM_URL video upload; TikTok fetches the media
// itself and finishes the post asynchronously. The returned publish id is
// the external reference.
func (t *tiktokAdapter) Publish(ctx context.Context, accessToken, platformUserID string, post Post) (string, error) {
	if len(post.MediaURLs) == 0 {
		return "", &APIError{
			Platform:   TikTok,
			StatusCode: 400,
			Code:       "media_required",
			Message:    "tiktok posts require a video url",
		}
	}

	payload := map[string]any{
		"post_info": map[string]any{
			"title":         post.Body,
			"privacy_level": "PUBLIC_TO_EVERYONE",
		},
		"source_info": map[string]any{
			"source":    "PULL_FROM_URL",
			"video_url": post.MediaURLs[0],
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var resp struct {
		Data struct {
			PublishID string `json:"publish_id"`
		} `json:"data"`
	}
	if err := t.client.postJSON(ctx, t.apiBase+"/v2/post/publish/video/init/", payload, headers, &resp); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	return resp.Data.PublishID, nil
}
