package platform

import (
	"context"
	"fmt"
	"net/url"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/tweet/managetweet"
	mtypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"github.com/michimani/gotwi/user/userlookup"
	utypes "github.com/michimani/gotwi/user/userlookup/types"
	"golang.org/x/oauth2"
)

// pkceChallenge is the static plain-method challenge sent on every
// authorization request. The app is a confidential client (the secret
// never leaves the server) and CSRF is covered by the state parameter;
// the challenge only satisfies Twitter's mandatory PKCE handshake.
const pkceChallenge = "syndicate-code-verifier"

// twitterAdapter runs the OAuth 2.0 user-context flow via x/oauth2 and
// publishes through gotwi.
type twitterAdapter struct {
	oauth      *oauth2.Config
	creds      Credentials
	client     *client
	revokeURL  string
	newGotwi   func(accessToken string) (*gotwi.Client, error)
}

func NewTwitter(creds Credentials, redirectURI string) Adapter {
	return &twitterAdapter{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://twitter.com/i/oauth2/authorize",
				TokenURL:  "https://api.twitter.com/2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		creds:     creds,
		client:    newClient(Twitter),
		revokeURL: "https://api.twitter.com/2/oauth2/revoke",
		newGotwi: func(accessToken string) (*gotwi.Client, error) {
			return gotwi.NewClientWithAccessToken(&gotwi.NewClientWithAccessTokenInput{
				AccessToken: accessToken,
			})
		},
	}
}

func (t *twitterAdapter) Name() string { return Twitter }

func (t *twitterAdapter) BodyLimit() int { return 280 }

func (t *twitterAdapter) AuthCodeURL(state string) string {
	return t.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkceChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "plain"),
	)
}

func (t *twitterAdapter) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	tok, err := t.oauth.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", pkceChallenge),
	)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

func (t *twitterAdapter) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	tok, err := t.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

func (t *twitterAdapter) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{}
	form.Set("token", accessToken)
	form.Set("token_type_hint", "access_token")
	form.Set("client_id", t.creds.ClientID)
	form.Set("client_secret", t.creds.ClientSecret)
	return t.client.postForm(ctx, t.revokeURL, form, nil)
}

func (t *twitterAdapter) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	c, err := t.newGotwi(accessToken)
	if err != nil {
		return nil, fmt.Errorf("create twitter client: %w", err)
	}

	me, err := userlookup.GetMe(ctx, c, &utypes.GetMeInput{})
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	profile := &Profile{
		ID:          gotwi.StringValue(me.Data.ID),
		DisplayName: gotwi.StringValue(me.Data.Name),
	}
	if profile.DisplayName == "" {
		profile.DisplayName = gotwi.StringValue(me.Data.Username)
	}
	return profile, nil
}

func (t *twitterAdapter) Publish(ctx context.Context, accessToken, platformUserID string, post Post) (string, error) {
	c, err := t.newGotwi(accessToken)
	if err != nil {
		return "", fmt.Errorf("create twitter client: %w", err)
	}

	created, err := managetweet.Create(ctx, c, &mtypes.CreateInput{
		Text: gotwi.String(post.Body),
	})
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	return gotwi.StringValue(created.Data.ID), nil
}

// fromOAuth2Token converts an x/oauth2 token to the adapter token shape.
func fromOAuth2Token(tok *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		out.Expiry = tok.Expiry
	}
	return out
}
