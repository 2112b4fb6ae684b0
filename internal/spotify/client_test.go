package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franz/crate-digger/internal/util"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(&Config{
		BaseURL:           srv.URL,
		HTTPClient:        srv.Client(),
		RequestsPerSecond: 1000,
		Burst:             10,
		Retry:             &util.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond},
		BreakerFailures:   3,
		BreakerTimeout:    time.Minute,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(&Config{}); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestPlaylistEntries_Pagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlists/pl1/tracks" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("offset") == "" {
			fmt.Fprintf(w, `{
				"items": [
					{"added_at": "2023-01-01T00:00:00Z", "is_local": false, "track": {"id": "t1"}},
					{"added_at": "2023-01-02T00:00:00Z", "is_local": true, "track": {"id": ""}},
					{"added_at": "2023-01-03T00:00:00Z", "is_local": false, "track": null}
				],
				"next": "%s/playlists/pl1/tracks?offset=100&limit=100"
			}`, srv.URL)
			return
		}
		fmt.Fprint(w, `{
			"items": [
				{"added_at": "2023-02-01T10:00:00Z", "is_local": false, "track": {"id": "t2"}},
				{"added_at": null, "is_local": false, "track": {"id": "t3"}}
			],
			"next": null
		}`)
	}))
	defer srv.Close()

	entries, err := testClient(t, srv).PlaylistEntries(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("PlaylistEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].TrackID != "t1" || entries[1].TrackID != "t2" {
		t.Errorf("unexpected order: %+v", entries)
	}
	want := time.Date(2023, 2, 1, 10, 0, 0, 0, time.UTC)
	if !entries[1].AddedAt.Equal(want) {
		t.Errorf("AddedAt = %v, want %v", entries[1].AddedAt, want)
	}
}

func TestArtworkURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tracks/three":
			fmt.Fprint(w, `{"id":"three","album":{"images":[{"url":"https://i/640"},{"url":"https://i/300"},{"url":"https://i/64"}]}}`)
		case "/tracks/one":
			fmt.Fprint(w, `{"id":"one","album":{"images":[{"url":"https://i/only"}]}}`)
		case "/tracks/none":
			fmt.Fprint(w, `{"id":"none","album":{"images":[]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := testClient(t, srv)

	tests := []struct {
		id       string
		want     string
		notFound bool
	}{
		{"three", "https://i/300", false},
		{"one", "https://i/only", false},
		{"none", "", true},
		{"missing", "", true},
	}
	for _, tt := range tests {
		got, err := c.ArtworkURL(context.Background(), tt.id)
		if tt.notFound {
			if !errors.Is(err, util.ErrNotFound) {
				t.Errorf("%s: expected ErrNotFound, got %v", tt.id, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s: got %q, %v; want %q", tt.id, got, err, tt.want)
		}
	}
}

func TestGet_StatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tracks/unauthorized":
			w.WriteHeader(http.StatusUnauthorized)
		case "/tracks/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/tracks/teapot":
			w.WriteHeader(http.StatusTeapot)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := testClient(t, srv)

	for _, id := range []string{"unauthorized", "forbidden"} {
		if _, err := c.ArtworkURL(context.Background(), id); !errors.Is(err, util.ErrUnauthorized) {
			t.Errorf("%s: expected ErrUnauthorized, got %v", id, err)
		}
	}
	_, err := c.ArtworkURL(context.Background(), "teapot")
	if err == nil || !strings.Contains(err.Error(), "418") {
		t.Errorf("expected unexpected-status error, got %v", err)
	}
}

func TestGet_RetriesWithRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":"t","album":{"images":[{"url":"https://i/a"}]}}`)
	}))
	defer srv.Close()

	got, err := testClient(t, srv).ArtworkURL(context.Background(), "t")
	if err != nil {
		t.Fatalf("ArtworkURL failed: %v", err)
	}
	if got != "https://i/a" {
		t.Errorf("got %q", got)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGet_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := testClient(t, srv)

	// 3 attempts trip the breaker (threshold 3)
	if _, err := c.ArtworkURL(context.Background(), "t"); err == nil {
		t.Fatal("expected error")
	}
	if c.BreakerState() != "open" {
		t.Fatalf("breaker state = %s, want open", c.BreakerState())
	}

	before := calls.Load()
	if _, err := c.ArtworkURL(context.Background(), "t"); err == nil {
		t.Fatal("expected error while breaker is open")
	}
	if calls.Load() != before {
		t.Error("open breaker should not reach the server")
	}
}

func TestGet_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	c := testClient(t, srv)

	for i := 0; i < 5; i++ {
		c.ArtworkURL(context.Background(), "gone")
	}
	if c.BreakerState() != "closed" {
		t.Errorf("breaker state = %s, want closed", c.BreakerState())
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		min    time.Duration
		max    time.Duration
	}{
		{"", 0, 0},
		{"3", 3 * time.Second, 3 * time.Second},
		{"-1", 0, 0},
		{"soon", 0, 0},
		{time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat), 8 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		resp := &http.Response{Header: http.Header{}}
		if tt.header != "" {
			resp.Header.Set("Retry-After", tt.header)
		}
		got := parseRetryAfter(resp)
		if got < tt.min || got > tt.max {
			t.Errorf("parseRetryAfter(%q) = %v, want between %v and %v", tt.header, got, tt.min, tt.max)
		}
	}
}
