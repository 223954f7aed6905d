package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// tokenEarlyExpiry is how long before the reported expiry a cached token is
	// treated as stale.
	tokenEarlyExpiry = 30 * time.Second
	// minTokenLifetime floors expires_in for endpoints that omit or understate it.
	minTokenLifetime = 60 * time.Second
)

// TokenSource fetches and caches an app access token using the OAuth client
// credentials grant. It is safe for concurrent use.
type TokenSource struct {
	Service      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	HTTPClient   *http.Client

	// now is overridable in tests.
	now func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Enabled reports whether credentials are configured.
func (ts *TokenSource) Enabled() bool {
	return ts != nil && ts.ClientID != "" && ts.ClientSecret != ""
}

func (ts *TokenSource) clock() time.Time {
	if ts.now != nil {
		return ts.now()
	}
	return time.Now()
}

func (ts *TokenSource) fresh() bool {
	return ts.token != "" && ts.clock().Before(ts.expiresAt.Add(-tokenEarlyExpiry))
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.fresh() {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

// Invalidate drops the cached token so the next Get fetches a new one.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expiresAt = time.Time{}
	ts.mu.Unlock()
}

// SetToken seeds the cache, mainly for tests.
func (ts *TokenSource) SetToken(token string, expiresAt time.Time) {
	ts.mu.Lock()
	ts.token = token
	ts.expiresAt = expiresAt
	ts.mu.Unlock()
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.fresh() {
		return ts.token, nil
	}
	if !ts.Enabled() {
		return "", fmt.Errorf("%s app token: %w", ts.Service, ErrNotConfigured)
	}

	cc := clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     ts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			apiErr := NewAPIError(ts.Service, "token", re.Response, string(re.Body))
			apiErr.Err = err
			return "", apiErr
		}
		return "", fmt.Errorf("%s app token: %w", ts.Service, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%s app token: empty access_token", ts.Service)
	}

	now := ts.clock()
	expiresAt := tok.Expiry
	if expiresAt.IsZero() || expiresAt.Before(now.Add(minTokenLifetime)) {
		expiresAt = now.Add(minTokenLifetime)
	}
	ts.token = tok.AccessToken
	ts.expiresAt = expiresAt
	return ts.token, nil
}
