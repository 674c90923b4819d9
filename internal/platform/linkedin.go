package platform

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
)

// linkedinAdapter uses x/oauth2 for the token lifecycle and hand-rolled
// JSON calls for the REST surface (userinfo + ugcPosts).
type linkedinAdapter struct {
	oauth     *oauth2.Config
	creds     Credentials
	client    *client
	apiBase   string // https://api.linkedin.com
	revokeURL string
}

func NewLinkedIn(creds Credentials, redirectURI string) Adapter {
	return &linkedinAdapter{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "profile", "w_member_social"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
				TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		creds:     creds,
		client:    newClient(LinkedIn),
		apiBase:   "https://api.linkedin.com",
		revokeURL: "https://www.linkedin.com/oauth/v2/revoke",
	}
}

func (l *linkedinAdapter) Name() string { return LinkedIn }

func (l *linkedinAdapter) BodyLimit() int { return 3000 }

func (l *linkedinAdapter) AuthCodeURL(state string) string {
	return l.oauth.AuthCodeURL(state)
}

func (l *linkedinAdapter) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	tok, err := l.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

func (l *linkedinAdapter) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	tok, err := l.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

func (l *linkedinAdapter) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{}
	form.Set("client_id", l.creds.ClientID)
	form.Set("client_secret", l.creds.ClientSecret)
	form.Set("token", accessToken)
	return l.client.postForm(ctx, l.revokeURL, form, nil)
}

func (l *linkedinAdapter) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var me struct {
		Sub  string `json:"sub"`
		Name string `json:"name"`
	}
	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	if err := l.client.getJSON(ctx, l.apiBase+"/v2/userinfo", headers, &me); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &Profile{ID: me.Sub, DisplayName: me.Name}, nil
}

// Publish creates a member ugcPost. Media URLs ride along as ARTICLE
// attachments so links unfurl in the feed.
func (l *linkedinAdapter) Publish(ctx context.Context, accessToken, platformUserID string, post Post) (string, error) {
	shareContent := map[string]any{
		"shareCommentary":    map[string]string{"text": post.Body},
		"shareMediaCategory": "NONE",
	}
	if len(post.MediaURLs) > 0 {
		media := make([]map[string]any, 0, len(post.MediaURLs))
		for _, u := range post.MediaURLs {
			media = append(media, map[string]any{
				"status":      "READY",
				"originalUrl": u,
			})
		}
		shareContent["shareMediaCategory"] = "ARTICLE"
		shareContent["media"] = media
	}

	payload := map[string]any{
		"author":         "urn:li:person:" + platformUserID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	headers := map[string]string{
		"Authorization":             "Bearer " + accessToken,
		"X-Restli-Protocol-Version": "2.0.0",
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := l.client.postJSON(ctx, l.apiBase+"/v2/ugcPosts", payload, headers, &created); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	return created.ID, nil
}
