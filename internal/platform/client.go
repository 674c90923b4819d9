package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20 // 1 MiB is plenty for any platform response

// client is a thin JSON-over-HTTP helper shared by the hand-rolled
// adapters. It normalizes non-2xx responses into *APIError.
type client struct {
	platform   string
	httpClient *http.Client
}

func newClient(platform string) *client {
	return &client{
		platform:   platform,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) getJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	return c.do(ctx, http.MethodGet, rawURL, "", nil, headers, out)
}

func (c *client) postForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	body := strings.NewReader(form.Encode())
	return c.do(ctx, http.MethodPost, rawURL, "application/x-www-form-urlencoded", body, nil, out)
}

func (c *client) postJSON(ctx context.Context, rawURL string, payload any, headers map[string]string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, rawURL, "application/json", bytes.NewReader(body), headers, out)
}

func (c *client) delete(ctx context.Context, rawURL string, headers map[string]string) error {
	return c.do(ctx, http.MethodDelete, rawURL, "", nil, headers, nil)
}

func (c *client) do(ctx context.Context, method, rawURL, contentType string, body io.Reader, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.platform, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse %s response: %w", c.platform, err)
		}
	}

	return nil
}

// apiError extracts a code/message pair from the two error envelope shapes
// the platforms use: Graph-style {"error":{"message","code"}} and OAuth
// style {"error","error_description"}.
func (c *client) apiError(status int, body []byte) error {
	apiErr := &APIError{
		Platform:   c.platform,
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}

	var graph struct {
		Error struct {
			Message string          `json:"message"`
			Code    json.RawMessage `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &graph); err == nil && graph.Error.Message != "" {
		apiErr.Message = graph.Error.Message
		apiErr.Code = strings.Trim(string(graph.Error.Code), `"`)
		return apiErr
	}

	var oauth struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauth); err == nil && oauth.Error != "" {
		apiErr.Code = oauth.Error
		if oauth.Description != "" {
			apiErr.Message = oauth.Description
		} else {
			apiErr.Message = oauth.Error
		}
	}

	return apiErr
}
