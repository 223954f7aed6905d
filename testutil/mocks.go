package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// MockPlatformServer is a test server mocking a platform REST API. Handlers
// are keyed by URL path; Hits counts requests per path.
type MockPlatformServer struct {
	*httptest.Server
	mu       sync.Mutex
	Handlers map[string]http.HandlerFunc
	hits     map[string]int
}

func newMockServer(t *testing.T) *MockPlatformServer {
	t.Helper()
	m := &MockPlatformServer{
		Handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.hits[r.URL.Path]++
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers a handler under the server lock.
func (m *MockPlatformServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// Hits returns how many requests hit path.
func (m *MockPlatformServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockStatus makes path answer with status and an optional Retry-After.
func (m *MockPlatformServer) MockStatus(path string, status, retryAfterSeconds int) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		if retryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		}
		w.WriteHeader(status)
	})
}

// MockOAuthTokenResponse adds a client-credentials token endpoint at path.
func (m *MockPlatformServer) MockOAuthTokenResponse(path, accessToken string, expiresIn int) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	})
}

// Twitch

const (
	TwitchTokenPath   = "/oauth2/token"
	TwitchStreamsPath = "/helix/streams"
)

// NewMockTwitchServer creates a mock Helix server with a token endpoint.
// Point a client at URL+"/helix" and URL+TwitchTokenPath.
func NewMockTwitchServer(t *testing.T) *MockPlatformServer {
	t.Helper()
	m := newMockServer(t)
	m.MockOAuthTokenResponse(TwitchTokenPath, "test-token", 3600)
	return m
}

// TwitchStream builds one /helix/streams entry.
func TwitchStream(id, login, gameID, title string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"user_login": login,
		"game_id":    gameID,
		"game_name":  "Grand Theft Auto V",
		"type":       "live",
		"title":      title,
		"started_at": "2024-05-01T10:00:00Z",
	}
}

// MockStreamsResponse answers /helix/streams. Streams are filtered by the
// requested user_login values when present, like Helix does.
func (m *MockPlatformServer) MockStreamsResponse(streams []map[string]interface{}, cursor string) {
	m.Handle(TwitchStreamsPath, func(w http.ResponseWriter, r *http.Request) {
		logins := r.URL.Query()["user_login"]
		data := streams
		if len(logins) > 0 {
			want := make(map[string]bool, len(logins))
			for _, l := range logins {
				want[l] = true
			}
			data = nil
			for _, s := range streams {
				if login, _ := s["user_login"].(string); want[login] {
					data = append(data, s)
				}
			}
		}
		if data == nil {
			data = []map[string]interface{}{}
		}
		resp := map[string]interface{}{"data": data, "pagination": map[string]string{}}
		if cursor != "" && len(logins) == 0 {
			resp["pagination"] = map[string]string{"cursor": cursor}
		}
		writeJSON(w, resp)
	})
}

// Kick

const (
	KickTokenPath       = "/oauth/token"
	KickChannelsPath    = "/public/v1/channels"
	KickCategoriesPath  = "/public/v1/categories"
	KickLivestreamsPath = "/public/v1/livestreams"
)

// NewMockKickServer creates a mock Kick public API with a token endpoint.
func NewMockKickServer(t *testing.T) *MockPlatformServer {
	t.Helper()
	m := newMockServer(t)
	m.MockOAuthTokenResponse(KickTokenPath, "test-token", 3600)
	return m
}

// KickChannel builds one /channels entry.
func KickChannel(slug string, live bool, startTime, title string, categoryID int) map[string]interface{} {
	return map[string]interface{}{
		"slug":         slug,
		"stream_title": title,
		"stream":       map[string]interface{}{"is_live": live, "start_time": startTime},
		"category":     map[string]interface{}{"id": categoryID, "name": "Grand Theft Auto V"},
	}
}

// MockKickChannels answers /channels with the entries whose slug was asked for.
func (m *MockPlatformServer) MockKickChannels(channels []map[string]interface{}) {
	m.Handle(KickChannelsPath, func(w http.ResponseWriter, r *http.Request) {
		want := map[string]bool{}
		for _, s := range r.URL.Query()["slug"] {
			want[s] = true
		}
		data := []map[string]interface{}{}
		for _, ch := range channels {
			if slug, _ := ch["slug"].(string); want[slug] {
				data = append(data, ch)
			}
		}
		writeJSON(w, map[string]interface{}{"data": data})
	})
}

// MockKickCategories answers /categories with a single category.
func (m *MockPlatformServer) MockKickCategories(id int, name string) {
	m.Handle(KickCategoriesPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"data": []map[string]interface{}{{"id": id, "name": name}}})
	})
}

// MockKickLivestreams answers /livestreams.
func (m *MockPlatformServer) MockKickLivestreams(streams []map[string]interface{}) {
	m.Handle(KickLivestreamsPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"data": streams})
	})
}

// KickLivestream builds one /livestreams entry.
func KickLivestream(slug, startedAt, title string, categoryID int) map[string]interface{} {
	return map[string]interface{}{
		"slug":         slug,
		"stream_title": title,
		"started_at":   startedAt,
		"category":     map[string]interface{}{"id": categoryID, "name": "Grand Theft Auto V"},
	}
}
