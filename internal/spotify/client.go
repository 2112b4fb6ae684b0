// Package spotify reads playlists and track artwork from the Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/franz/crate-digger/internal/profile"
	"github.com/franz/crate-digger/internal/util"
)

const (
	// BaseURL is the Spotify Web API base URL
	BaseURL = "https://api.spotify.com/v1"

	// TokenURL is the client-credentials token endpoint
	TokenURL = "https://accounts.spotify.com/api/token"

	UserAgent = "crate-digger/0.3 (https://github.com/franz/crate-digger)"

	pageSize = 100
)

// ErrMissingCredentials is returned when no client id/secret are configured
var ErrMissingCredentials = errors.New("spotify client id and secret are required")

// Config holds client configuration
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string // BaseURL when empty
	TokenURL     string // TokenURL when empty

	// HTTPClient, when set, is used as-is and no OAuth2 token is fetched.
	HTTPClient *http.Client

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Retry             *util.RetryConfig

	BreakerFailures uint32        // consecutive failures before the breaker opens
	BreakerTimeout  time.Duration // how long the breaker stays open
}

// Client calls the Spotify Web API with rate limiting, retries and a
// circuit breaker. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	retry      *util.RetryConfig
}

var _ profile.PlaylistProvider = (*Client)(nil)

// NewClient creates a new Spotify client
func NewClient(cfg *Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, ErrMissingCredentials
		}
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = TokenURL
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
		}
		base := &http.Client{Timeout: timeout}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
		httpClient.Timeout = timeout
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openFor := cfg.BreakerTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	retry := cfg.Retry
	if retry == nil {
		retry = util.DefaultRetryConfig()
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "spotify",
		Timeout: openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// a missing track or playlist says nothing about API health
			return err == nil || errors.Is(err, util.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			util.WarnLog("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    breaker,
		retry:      retry,
	}, nil
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open")
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

type playlistPage struct {
	Items []struct {
		AddedAt *time.Time `json:"added_at"`
		IsLocal bool       `json:"is_local"`
		Track   *struct {
			ID string `json:"id"`
		} `json:"track"`
	} `json:"items"`
	Next *string `json:"next"`
}

// PlaylistEntries implements profile.PlaylistProvider. Pages are followed
// through "next". Local files, removed tracks and items without an
// added_at timestamp are skipped.
func (c *Client) PlaylistEntries(ctx context.Context, playlistID string) ([]profile.Entry, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("playlist id cannot be empty: %w", util.ErrNotFound)
	}

	next := fmt.Sprintf("%s/playlists/%s/tracks?limit=%d&fields=%s",
		c.baseURL, url.PathEscape(playlistID), pageSize,
		url.QueryEscape("items(added_at,is_local,track(id)),next"))

	var entries []profile.Entry
	skipped := 0
	for next != "" {
		var page playlistPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("playlist %s: %w", playlistID, err)
		}

		for _, item := range page.Items {
			if item.IsLocal || item.Track == nil || item.Track.ID == "" || item.AddedAt == nil {
				skipped++
				continue
			}
			entries = append(entries, profile.Entry{TrackID: item.Track.ID, AddedAt: *item.AddedAt})
		}

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}

	util.DebugLog("Spotify: playlist %s has %d entries (%d skipped)", playlistID, len(entries), skipped)
	return entries, nil
}

type trackResponse struct {
	ID    string `json:"id"`
	Album struct {
		Images []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"images"`
	} `json:"album"`
}

// ArtworkURL returns the album artwork of a track: the second image
// (medium size) when there is one, otherwise the first.
func (c *Client) ArtworkURL(ctx context.Context, trackID string) (string, error) {
	if trackID == "" {
		return "", fmt.Errorf("track id cannot be empty: %w", util.ErrNotFound)
	}

	var tr trackResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/tracks/%s", c.baseURL, url.PathEscape(trackID)), &tr); err != nil {
		return "", fmt.Errorf("track %s: %w", trackID, err)
	}

	images := tr.Album.Images
	switch {
	case len(images) > 1:
		return images[1].URL, nil
	case len(images) == 1:
		return images[0].URL, nil
	default:
		return "", fmt.Errorf("track %s has no artwork: %w", trackID, util.ErrNotFound)
	}
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	body, err := util.RetryWithBackoff(ctx, c.retry, func() ([]byte, error) {
		return c.breaker.Execute(func() ([]byte, error) {
			return c.get(ctx, rawURL)
		})
	}, "spotify GET")
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &util.RetryableError{Err: fmt.Errorf("failed to read response: %w", err)}
		}
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("spotify status %d: %w", resp.StatusCode, util.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("spotify status 404: %w", util.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return nil, &util.RetryableError{
			Err:   fmt.Errorf("spotify status %d", resp.StatusCode),
			After: parseRetryAfter(resp),
		}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date
func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}
	return 0
}
