package kickapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/noxrp/stream-notifier/platform"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "test-token", "expires_in": 3600})
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewWithURLs("cid", "secret", server.URL+"/public/v1", server.URL+"/oauth/token", nil)
}

func TestChannelsBySlugs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/v1/channels" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query()["slug"]; len(got) != 2 {
			t.Errorf("slug = %v", got)
		}
		_, _ = w.Write([]byte(`{"data":[
			{"slug":"Foo","stream_title":"NoxRP | day 1","stream":{"is_live":true,"start_time":"2024-05-01T10:00:00Z"},"category":{"id":15,"name":"Grand Theft Auto V"}},
			{"slug":"bar","stream_title":"","stream":{"is_live":false,"start_time":"0001-01-01T00:00:00Z"},"category":null}
		]}`))
	})

	recs, err := c.ChannelsBySlugs(context.Background(), []string{"foo", "bar"})
	if err != nil {
		t.Fatalf("ChannelsBySlugs() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	want := platform.LiveRecord{
		Handle:       "foo",
		Live:         true,
		StartedAt:    "2024-05-01T10:00:00Z",
		Title:        "NoxRP | day 1",
		CategoryID:   "15",
		CategoryName: "Grand Theft Auto V",
	}
	if recs[0] != want {
		t.Errorf("record[0] = %+v, want %+v", recs[0], want)
	}
	if recs[1].Live || recs[1].CategoryID != "" {
		t.Errorf("record[1] = %+v, want offline without category", recs[1])
	}
}

func TestChannelsBySlugs_EmptyInputNoRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})
	recs, err := c.ChannelsBySlugs(context.Background(), nil)
	if err != nil || recs != nil {
		t.Errorf("ChannelsBySlugs(nil) = %v, %v", recs, err)
	}
}

func TestChannelsBySlugs_BatchLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := len(r.URL.Query()["slug"]); got != MaxSlugsPerRequest {
			t.Errorf("slug count = %d, want %d", got, MaxSlugsPerRequest)
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	slugs := make([]string, 70)
	for i := range slugs {
		slugs[i] = "s" + strconv.Itoa(i)
	}
	if _, err := c.ChannelsBySlugs(context.Background(), slugs); err != nil {
		t.Fatalf("ChannelsBySlugs() error = %v", err)
	}
}

func TestFindCategoryID(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{
			name: "exact match wins",
			body: `{"data":[{"id":1,"name":"Grand Theft Auto IV"},{"id":"15","name":"grand theft auto v"}]}`,
			want: "15",
		},
		{
			name: "first result fallback",
			body: `{"data":[{"id":7,"name":"GTA RP"},{"id":8,"name":"Other"}]}`,
			want: "7",
		},
		{
			name:    "no results",
			body:    `{"data":[]}`,
			wantErr: platform.ErrCategoryNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/public/v1/categories" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if r.URL.Query().Get("q") != "Grand Theft Auto V" || r.URL.Query().Get("page") != "1" {
					t.Errorf("query = %s", r.URL.RawQuery)
				}
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := c.FindCategoryID(context.Background(), "Grand Theft Auto V")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FindCategoryID() error = %v, want %v", err, tt.wantErr)
				}
				if platform.IsRetryable(err) {
					t.Error("category miss must not be retryable")
				}
				return
			}
			if err != nil {
				t.Fatalf("FindCategoryID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FindCategoryID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLivestreamsByCategory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/public/v1/livestreams" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if q.Get("category_id") != "15" || q.Get("limit") != "100" || q.Get("sort") != "started_at" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"data":[{"slug":"Baz","stream_title":"nox rp","started_at":"2024-05-01T12:00:00Z","category":{"id":15,"name":"Grand Theft Auto V"}}]}`))
	})

	recs, err := c.LivestreamsByCategory(context.Background(), "15", 500, "started_at")
	if err != nil {
		t.Fatalf("LivestreamsByCategory() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	if r := recs[0]; r.Handle != "baz" || !r.Live || r.StartedAt != "2024-05-01T12:00:00Z" || r.CategoryID != "15" {
		t.Errorf("record = %+v", r)
	}
}

func TestChannelsBySlugs_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.ChannelsBySlugs(context.Background(), []string{"foo"})
	if platform.StatusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("StatusCode = %d, err = %v", platform.StatusCode(err), err)
	}
}
