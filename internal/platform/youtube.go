package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// youtubeAdapter uses Google's OAuth endpoints via x/oauth2 and the
// youtube/v3 client for the data API. A post maps to a video upload:
// first media URL is the video, the body becomes title + description.
type youtubeAdapter struct {
	oauth     *oauth2.Config
	client    *client
	logger    *zap.Logger
	revokeURL string

	// newService is swapped in tests for a fake-backed service.
	newService func(ctx context.Context, accessToken string) (*youtube.Service, error)
}

func NewYouTube(creds Credentials, redirectURI string, logger *zap.Logger) Adapter {
	return &youtubeAdapter{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  redirectURI,
			Scopes: []string{
				youtube.YoutubeUploadScope,
				youtube.YoutubeReadonlyScope,
			},
			Endpoint: google.Endpoint,
		},
		client:    newClient(YouTube),
		logger:    logger,
		revokeURL: "https://oauth2.googleapis.com/revoke",
		newService: func(ctx context.Context, accessToken string) (*youtube.Service, error) {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
			return youtube.NewService(ctx, option.WithTokenSource(ts))
		},
	}
}

func (y *youtubeAdapter) Name() string { return YouTube }

func (y *youtubeAdapter) BodyLimit() int { return 5000 }

func (y *youtubeAdapter) AuthCodeURL(state string) string {
	// offline + force re-consent so Google returns a refresh token on
	// every reconnect, not only the first one.
	return y.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (y *youtubeAdapter) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	tok, err := y.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

func (y *youtubeAdapter) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	tok, err := y.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	out := fromOAuth2Token(tok)
	// Google omits the refresh token from refresh responses; keep using
	// the one we already have.
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

func (y *youtubeAdapter) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{}
	form.Set("token", accessToken)
	return y.client.postForm(ctx, y.revokeURL, form, nil)
}

func (y *youtubeAdapter) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch channel: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, &APIError{
			Platform:   YouTube,
			StatusCode: 404,
			Code:       "channel_not_found",
			Message:    "account has no youtube channel",
		}
	}

	ch := resp.Items[0]
	return &Profile{ID: ch.Id, DisplayName: ch.Snippet.Title}, nil
}

func (y *youtubeAdapter) Publish(ctx context.Context, accessToken, platformUserID string, post Post) (string, error) {
	if len(post.MediaURLs) == 0 {
		return "", &APIError{
			Platform:   YouTube,
			StatusCode: 400,
			Code:       "media_required",
			Message:    "youtube posts require a video url",
		}
	}

	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return "", fmt.Errorf("create youtube service: %w", err)
	}

	media, err := y.fetchMedia(ctx, post.MediaURLs[0])
	if err != nil {
		return "", err
	}
	defer media.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       titleFromBody(post.Body),
			Description: post.Body,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: "public"},
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(media).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	y.logger.Info("youtube video uploaded",
		zap.String("video_id", uploaded.Id),
		zap.String("channel_id", platformUserID),
	)

	return uploaded.Id, nil
}

// fetchMedia streams the video bytes from the authored media URL.
func (y *youtubeAdapter) fetchMedia(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create media request: %w", err)
	}

	// Uploads can be large; no client timeout, the context bounds it.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{
			Platform:   YouTube,
			StatusCode: 400,
			Code:       "media_unreachable",
			Message:    fmt.Sprintf("media url returned status %d", resp.StatusCode),
		}
	}
	return resp.Body, nil
}

// titleFromBody takes the first line of the body, bounded to YouTube's
// 100-character title limit.
func titleFromBody(body string) string {
	title := body
	for i, r := range body {
		if r == '\n' {
			title = body[:i]
			break
		}
	}
	runes := []rune(title)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	if len(runes) == 0 {
		return "Untitled " + time.Now().Format("2006-01-02")
	}
	return string(runes)
}
