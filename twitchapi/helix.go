// Package twitchapi contains minimal helpers to query live streams on Twitch
// Helix, using an app access token.
package twitchapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noxrp/stream-notifier/platform"
)

const (
	DefaultBaseURL  = "https://api.twitch.tv/helix"
	DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

	// MaxLoginsPerRequest is the user_login batch limit of /streams.
	MaxLoginsPerRequest = 100
)

// HelixClient provides the stream lookups needed by the poller.
type HelixClient struct {
	api *platform.Client
}

// NewHelixClient returns a client against production Helix.
func NewHelixClient(clientID, clientSecret string, hc *http.Client) *HelixClient {
	return NewHelixClientWithURLs(clientID, clientSecret, DefaultBaseURL, DefaultTokenURL, hc)
}

// NewHelixClientWithURLs is NewHelixClient with explicit endpoints.
func NewHelixClientWithURLs(clientID, clientSecret, baseURL, tokenURL string, hc *http.Client) *HelixClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	ts := &platform.TokenSource{
		Service:      string(platform.Twitch),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		HTTPClient:   hc,
	}
	return &HelixClient{api: &platform.Client{
		Service:    string(platform.Twitch),
		BaseURL:    baseURL,
		Tokens:     ts,
		HTTPClient: hc,
		Decorate:   func(r *http.Request) { r.Header.Set("Client-Id", clientID) },
	}}
}

// Enabled reports whether client credentials are configured.
func (hc *HelixClient) Enabled() bool { return hc != nil && hc.api.Tokens.Enabled() }

// Tokens exposes the app token source.
func (hc *HelixClient) Tokens() *platform.TokenSource { return hc.api.Tokens }

type stream struct {
	ID        string `json:"id"`
	UserLogin string `json:"user_login"`
	GameID    string `json:"game_id"`
	GameName  string `json:"game_name"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	StartedAt string `json:"started_at"`
}

type streamsResponse struct {
	Data       []stream `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

func (s stream) record() platform.LiveRecord {
	return platform.LiveRecord{
		Handle:       platform.NormalizeHandle(s.UserLogin),
		Live:         s.Type == "" || s.Type == "live",
		StreamID:     s.ID,
		StartedAt:    s.StartedAt,
		Title:        s.Title,
		CategoryID:   s.GameID,
		CategoryName: s.GameName,
	}
}

// StreamsByLogins returns the live streams among up to 100 logins. Offline
// channels are simply absent from the result. A non-empty gameID narrows the
// query to that game.
func (hc *HelixClient) StreamsByLogins(ctx context.Context, logins []string, gameID string) ([]platform.LiveRecord, error) {
	q := url.Values{}
	for _, l := range logins {
		if v := strings.TrimSpace(l); v != "" {
			q.Add("user_login", v)
		}
		if len(q["user_login"]) == MaxLoginsPerRequest {
			break
		}
	}
	if len(q) == 0 {
		return nil, nil
	}
	if gameID != "" {
		q.Set("game_id", gameID)
	}
	q.Set("first", strconv.Itoa(MaxLoginsPerRequest))
	var body streamsResponse
	if err := hc.api.GetJSON(ctx, "/streams", q, &body); err != nil {
		return nil, err
	}
	out := make([]platform.LiveRecord, 0, len(body.Data))
	for _, s := range body.Data {
		out = append(out, s.record())
	}
	return out, nil
}

// StreamsByGame lists one page of live streams for a game. The returned
// cursor is empty on the last page.
func (hc *HelixClient) StreamsByGame(ctx context.Context, gameID string, first int, after string) ([]platform.LiveRecord, string, error) {
	if first <= 0 || first > 100 {
		first = 100
	}
	q := url.Values{}
	q.Set("game_id", gameID)
	q.Set("first", strconv.Itoa(first))
	if after != "" {
		q.Set("after", after)
	}
	var body streamsResponse
	if err := hc.api.GetJSON(ctx, "/streams", q, &body); err != nil {
		return nil, "", err
	}
	out := make([]platform.LiveRecord, 0, len(body.Data))
	for _, s := range body.Data {
		out = append(out, s.record())
	}
	return out, body.Pagination.Cursor, nil
}
