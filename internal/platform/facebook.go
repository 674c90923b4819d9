package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

const facebookScopes = "pages_show_list,pages_read_engagement,pages_manage_posts,public_profile"

// facebookAdapter speaks the Facebook Graph API (v19.0). The code exchange
// is two-step: the short-lived user token from the code is immediately
// traded for a long-lived one. Facebook issues no refresh token; when the
// long-lived token lapses the user reconnects.
type facebookAdapter struct {
	creds       Credentials
	redirectURI string
	client      *client

	dialogBase string // https://www.facebook.com/v19.0
	graphBase  string // https://graph.facebook.com/v19.0
}

func NewFacebook(creds Credentials, redirectURI string) Adapter {
	return &facebookAdapter{
		creds:       creds,
		redirectURI: redirectURI,
		client:      newClient(Facebook),
		dialogBase:  "https://www.facebook.com/v19.0",
		graphBase:   "https://graph.facebook.com/v19.0",
	}
}

func (f *facebookAdapter) Name() string { return Facebook }

func (f *facebookAdapter) BodyLimit() int { return 63206 }

func (f *facebookAdapter) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", f.creds.ClientID)
	q.Set("redirect_uri", f.redirectURI)
	q.Set("state", state)
	q.Set("scope", facebookScopes)
	q.Set("response_type", "code")
	return f.dialogBase + "/dialog/oauth?" + q.Encode()
}

type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (f *facebookAdapter) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	// Step 1: code -> short-lived user token.
	q := url.Values{}
	q.Set("client_id", f.creds.ClientID)
	q.Set("client_secret", f.creds.ClientSecret)
	q.Set("redirect_uri", f.redirectURI)
	q.Set("code", code)

	var short facebookTokenResponse
	if err := f.client.getJSON(ctx, f.graphBase+"/oauth/access_token?"+q.Encode(), nil, &short); err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	// Step 2: short-lived -> long-lived token (~60 days).
	q = url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", f.creds.ClientID)
	q.Set("client_secret", f.creds.ClientSecret)
	q.Set("fb_exchange_token", short.AccessToken)

	var long facebookTokenResponse
	if err := f.client.getJSON(ctx, f.graphBase+"/oauth/access_token?"+q.Encode(), nil, &long); err != nil {
		return nil, fmt.Errorf("exchange long-lived token: %w", err)
	}

	token := &Token{AccessToken: long.AccessToken}
	if long.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(long.ExpiresIn) * time.Second)
	}
	return token, nil
}

func (f *facebookAdapter) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return nil, &APIError{
		Platform:   Facebook,
		StatusCode: 400,
		Code:       "unsupported_grant",
		Message:    "facebook does not issue refresh tokens",
	}
}

func (f *facebookAdapter) Revoke(ctx context.Context, accessToken string) error {
	q := url.Values{}
	q.Set("access_token", accessToken)
	return f.client.delete(ctx, f.graphBase+"/me/permissions?"+q.Encode(), nil)
}

func (f *facebookAdapter) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	q := url.Values{}
	q.Set("fields", "id,name")
	q.Set("access_token", accessToken)

	var me struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := f.client.getJSON(ctx, f.graphBase+"/me?"+q.Encode(), nil, &me); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	return &Profile{ID: me.ID, DisplayName: me.Name}, nil
}

// Publish creates a feed post (or a photo post when the content carries
// media) on the page identified by platformUserID.
func (f *facebookAdapter) Publish(ctx context.Context, accessToken, platformUserID string, post Post) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/feed", f.graphBase, platformUserID)

	form := url.Values{}
	form.Set("message", post.Body)
	form.Set("access_token", accessToken)

	if len(post.MediaURLs) > 0 {
		endpoint = fmt.Sprintf("%s/%s/photos", f.graphBase, platformUserID)
		form.Set("url", post.MediaURLs[0])
		form.Set("caption", post.Body)
		form.Del("message")
	}

	var created struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := f.client.postForm(ctx, endpoint, form, &created); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	if created.PostID != "" {
		return created.PostID, nil
	}
	return created.ID, nil
}
