package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noxrp/stream-notifier/telemetry"
)

// Client issues authenticated GET requests against a platform REST API.
// On 401/403 it refreshes the app token once and retries the request once;
// any other failure is returned to the caller untouched so that retry policy
// stays with the health tracker.
type Client struct {
	Service    string
	BaseURL    string
	Tokens     *TokenSource
	HTTPClient *http.Client
	// Decorate adds platform specific headers (e.g. Twitch Client-Id).
	Decorate func(*http.Request)
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// GetJSON fetches BaseURL+path with query and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	tok, err := c.Tokens.Get(ctx)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, path, query, tok)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		drain(resp)
		slog.Debug("platform token rejected; refreshing", slog.String("service", c.Service), slog.String("path", path), slog.Int("status", resp.StatusCode))
		c.Tokens.Invalidate()
		tok, err = c.Tokens.Get(ctx)
		if err != nil {
			return err
		}
		resp, err = c.do(ctx, path, query, tok)
		if err != nil {
			return err
		}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return NewAPIError(c.Service, path, resp, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", c.Service, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values, token string) (*http.Response, error) {
	u := strings.TrimRight(c.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if c.Decorate != nil {
		c.Decorate(req)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		telemetry.ObservePlatformRequest(c.Service, path, "error")
		return nil, err
	}
	telemetry.ObservePlatformRequest(c.Service, path, strconv.Itoa(resp.StatusCode))
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
