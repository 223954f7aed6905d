// Package kickapi is a minimal client for the Kick public API using an app
// access token (client credentials).
package kickapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noxrp/stream-notifier/platform"
)

const (
	DefaultBaseURL  = "https://api.kick.com/public/v1"
	DefaultTokenURL = "https://id.kick.com/oauth/token"

	// MaxSlugsPerRequest is the /channels batch limit.
	MaxSlugsPerRequest = 50
	// MaxLivestreamLimit is the platform cap for /livestreams.
	MaxLivestreamLimit = 100
)

// Client talks to the Kick public API.
type Client struct {
	api *platform.Client
}

// New returns a Kick client. Empty URLs select the production endpoints.
func New(clientID, clientSecret string, hc *http.Client) *Client {
	return NewWithURLs(clientID, clientSecret, DefaultBaseURL, DefaultTokenURL, hc)
}

// NewWithURLs is New with explicit endpoints, used by tests.
func NewWithURLs(clientID, clientSecret, baseURL, tokenURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	ts := &platform.TokenSource{
		Service:      string(platform.Kick),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		HTTPClient:   hc,
	}
	return &Client{api: &platform.Client{Service: string(platform.Kick), BaseURL: baseURL, Tokens: ts, HTTPClient: hc}}
}

// Enabled reports whether client credentials are configured.
func (c *Client) Enabled() bool { return c != nil && c.api.Tokens.Enabled() }

// Tokens exposes the app token source (startup probe).
func (c *Client) Tokens() *platform.TokenSource { return c.api.Tokens }

type category struct {
	ID   platform.ID `json:"id"`
	Name string      `json:"name"`
}

type channel struct {
	Slug        string `json:"slug"`
	StreamTitle string `json:"stream_title"`
	Stream      *struct {
		IsLive    bool   `json:"is_live"`
		StartTime string `json:"start_time"`
	} `json:"stream"`
	Category *category `json:"category"`
}

type livestream struct {
	Slug        string    `json:"slug"`
	StreamTitle string    `json:"stream_title"`
	StartedAt   string    `json:"started_at"`
	Category    *category `json:"category"`
}

func (ch channel) record() platform.LiveRecord {
	rec := platform.LiveRecord{
		Handle: platform.NormalizeHandle(ch.Slug),
		Title:  ch.StreamTitle,
	}
	if ch.Stream != nil {
		rec.Live = ch.Stream.IsLive
		rec.StartedAt = ch.Stream.StartTime
	}
	if ch.Category != nil {
		rec.CategoryID = ch.Category.ID.String()
		rec.CategoryName = ch.Category.Name
	}
	return rec
}

func (ls livestream) record() platform.LiveRecord {
	rec := platform.LiveRecord{
		Handle:    platform.NormalizeHandle(ls.Slug),
		Live:      true,
		StartedAt: ls.StartedAt,
		Title:     ls.StreamTitle,
	}
	if ls.Category != nil {
		rec.CategoryID = ls.Category.ID.String()
		rec.CategoryName = ls.Category.Name
	}
	return rec
}

// ChannelsBySlugs fetches channel state for up to 50 slugs
// (GET /channels?slug=a&slug=b). Slugs past the limit are ignored.
func (c *Client) ChannelsBySlugs(ctx context.Context, slugs []string) ([]platform.LiveRecord, error) {
	q := url.Values{}
	for _, s := range slugs {
		if v := strings.TrimSpace(s); v != "" {
			q.Add("slug", v)
		}
		if len(q["slug"]) == MaxSlugsPerRequest {
			break
		}
	}
	if len(q) == 0 {
		return nil, nil
	}
	var body struct {
		Data []channel `json:"data"`
	}
	if err := c.api.GetJSON(ctx, "/channels", q, &body); err != nil {
		return nil, err
	}
	out := make([]platform.LiveRecord, 0, len(body.Data))
	for _, ch := range body.Data {
		out = append(out, ch.record())
	}
	return out, nil
}

// Category is a Kick category search hit.
type Category struct {
	ID   string
	Name string
}

// SearchCategories runs GET /categories?q=&page=.
func (c *Client) SearchCategories(ctx context.Context, query string, page int) ([]Category, error) {
	if page <= 0 {
		page = 1
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("page", strconv.Itoa(page))
	var body struct {
		Data []category `json:"data"`
	}
	if err := c.api.GetJSON(ctx, "/categories", q, &body); err != nil {
		return nil, err
	}
	out := make([]Category, 0, len(body.Data))
	for _, cat := range body.Data {
		out = append(out, Category{ID: cat.ID.String(), Name: cat.Name})
	}
	return out, nil
}

// FindCategoryID resolves a category name to its id: an exact
// case-insensitive name match wins, otherwise the first search hit.
func (c *Client) FindCategoryID(ctx context.Context, name string) (string, error) {
	results, err := c.SearchCategories(ctx, name, 1)
	if err != nil {
		return "", err
	}
	target := strings.ToLower(strings.TrimSpace(name))
	for _, cat := range results {
		if cat.ID != "" && strings.ToLower(strings.TrimSpace(cat.Name)) == target {
			return cat.ID, nil
		}
	}
	if len(results) > 0 && results[0].ID != "" {
		return results[0].ID, nil
	}
	return "", fmt.Errorf("kick category %q: %w", name, platform.ErrCategoryNotFound)
}

// LivestreamsByCategory lists live streams in a category
// (GET /livestreams?category_id=&limit=&sort=). limit is capped at 100.
func (c *Client) LivestreamsByCategory(ctx context.Context, categoryID string, limit int, sort string) ([]platform.LiveRecord, error) {
	if limit <= 0 || limit > MaxLivestreamLimit {
		limit = MaxLivestreamLimit
	}
	q := url.Values{}
	q.Set("category_id", categoryID)
	q.Set("limit", strconv.Itoa(limit))
	if sort != "" {
		q.Set("sort", sort)
	}
	var body struct {
		Data []livestream `json:"data"`
	}
	if err := c.api.GetJSON(ctx, "/livestreams", q, &body); err != nil {
		return nil, err
	}
	out := make([]platform.LiveRecord, 0, len(body.Data))
	for _, ls := range body.Data {
		out = append(out, ls.record())
	}
	return out, nil
}
