package spotify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franz/crate-digger/internal/util"
)

// ArtworkSource resolves artwork URLs (the Client, or a test double)
type ArtworkSource interface {
	ArtworkURL(ctx context.Context, trackID string) (string, error)
}

// ArtworkCache keeps artwork lookups in SQLite so repeated recommendations
// do not hit the API for the same tracks. Not-found results are cached too.
type ArtworkCache struct {
	db     *sql.DB
	source ArtworkSource
	ttl    time.Duration
}

// NewArtworkCache creates a cache in front of source. A zero ttl never expires.
func NewArtworkCache(db *sql.DB, source ArtworkSource, ttl time.Duration) *ArtworkCache {
	return &ArtworkCache{
		db:     db,
		source: source,
		ttl:    ttl,
	}
}

// EnsureSchema creates the cache table if it doesn't exist
func (c *ArtworkCache) EnsureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artwork_cache (
		track_id TEXT PRIMARY KEY,
		url TEXT NOT NULL, -- empty when the track has no artwork
		cached_at INTEGER NOT NULL,
		hit_count INTEGER DEFAULT 0
	);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create artwork_cache table: %w", err)
	}
	return nil
}

// ArtworkURL returns the cached URL or asks the source. Provider errors other
// than not-found are never cached.
func (c *ArtworkCache) ArtworkURL(ctx context.Context, trackID string) (string, error) {
	url, ok, err := c.get(ctx, trackID)
	if err != nil {
		util.WarnLog("Artwork cache read failed for %s: %v", trackID, err)
	} else if ok {
		util.DebugLog("Artwork cache hit: %s", trackID)
		c.hit(ctx, trackID)
		if url == "" {
			return "", fmt.Errorf("track %s has no artwork: %w", trackID, util.ErrNotFound)
		}
		return url, nil
	}

	url, err = c.source.ArtworkURL(ctx, trackID)
	if err != nil && !errors.Is(err, util.ErrNotFound) {
		return "", err
	}

	if storeErr := c.put(ctx, trackID, url); storeErr != nil {
		util.WarnLog("Failed to cache artwork for %s: %v", trackID, storeErr)
	}
	return url, err
}

func (c *ArtworkCache) get(ctx context.Context, trackID string) (string, bool, error) {
	var url string
	var cachedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT url, cached_at FROM artwork_cache WHERE track_id = ?`, trackID,
	).Scan(&url, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if c.ttl > 0 && time.Since(time.Unix(cachedAt, 0)) > c.ttl {
		return "", false, nil
	}
	return url, true, nil
}

func (c *ArtworkCache) put(ctx context.Context, trackID, url string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO artwork_cache (track_id, url, cached_at, hit_count)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(track_id) DO UPDATE SET url = excluded.url, cached_at = excluded.cached_at
	`, trackID, url, time.Now().Unix())
	return err
}

func (c *ArtworkCache) hit(ctx context.Context, trackID string) {
	if _, err := c.db.ExecContext(ctx,
		`UPDATE artwork_cache SET hit_count = hit_count + 1 WHERE track_id = ?`, trackID,
	); err != nil {
		util.DebugLog("Failed to bump artwork cache hit count: %v", err)
	}
}

// Stats returns the number of cached tracks and total cache hits
func (c *ArtworkCache) Stats(ctx context.Context) (entries int, hits int, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM artwork_cache`,
	).Scan(&entries, &hits)
	return entries, hits, err
}
