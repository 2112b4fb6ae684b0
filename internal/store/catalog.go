package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/franz/crate-digger/internal/catalog"
)

var _ catalog.Source = (*Store)(nil)

// ImportResult summarizes an import
type ImportResult struct {
	Tracks int
	Genres int
}

// ImportCatalog replaces the stored catalog tables with raw. Rows are stored
// unparsed; the normalizer runs when the catalog is loaded.
func (s *Store) ImportCatalog(ctx context.Context, raw *catalog.RawCatalog) (*ImportResult, error) {
	result := &ImportResult{}

	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_tracks"); err != nil {
			return fmt.Errorf("failed to clear catalog_tracks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM artist_genres"); err != nil {
			return fmt.Errorf("failed to clear artist_genres: %w", err)
		}

		trackStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO catalog_tracks (row_num, track_id, name, artists, release_date, popularity, attributes_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare track insert: %w", err)
		}
		defer trackStmt.Close()

		for i, t := range raw.Tracks {
			attrs, err := json.Marshal(t.Attributes)
			if err != nil {
				return fmt.Errorf("failed to encode attributes of row %d: %w", t.Row, err)
			}
			if _, err := trackStmt.ExecContext(ctx, i+1, t.ID, t.Name, t.Artists, t.ReleaseDate, t.Popularity, string(attrs)); err != nil {
				return fmt.Errorf("failed to insert track row %d: %w", t.Row, err)
			}
			result.Tracks++
		}

		genreStmt, err := tx.PrepareContext(ctx, `INSERT INTO artist_genres (row_num, artist, genres) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare genre insert: %w", err)
		}
		defer genreStmt.Close()

		for i, g := range raw.Genres {
			if _, err := genreStmt.ExecContext(ctx, i+1, g.Artist, g.Genres); err != nil {
				return fmt.Errorf("failed to insert genre row %d: %w", g.Row, err)
			}
			result.Genres++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Name implements catalog.Source
func (s *Store) Name() string {
	return "sqlite:" + s.path
}

// Load implements catalog.Source. Rows come back in import order.
func (s *Store) Load(ctx context.Context) (*catalog.RawCatalog, error) {
	raw := &catalog.RawCatalog{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT row_num, track_id, name, artists, release_date, popularity, attributes_json
		FROM catalog_tracks
		ORDER BY row_num
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog_tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t catalog.RawTrack
		var attrs string
		if err := rows.Scan(&t.Row, &t.ID, &t.Name, &t.Artists, &t.ReleaseDate, &t.Popularity, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &t.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes of row %d: %w", t.Row, err)
		}
		raw.Tracks = append(raw.Tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	genreRows, err := s.db.QueryContext(ctx, `SELECT row_num, artist, genres FROM artist_genres ORDER BY row_num`)
	if err != nil {
		return nil, fmt.Errorf("failed to query artist_genres: %w", err)
	}
	defer genreRows.Close()

	for genreRows.Next() {
		var g catalog.RawGenre
		if err := genreRows.Scan(&g.Row, &g.Artist, &g.Genres); err != nil {
			return nil, fmt.Errorf("failed to scan genre row: %w", err)
		}
		raw.Genres = append(raw.Genres, g)
	}
	if err := genreRows.Err(); err != nil {
		return nil, err
	}

	return raw, nil
}

// CatalogCounts returns the number of stored track and genre rows
func (s *Store) CatalogCounts(ctx context.Context) (tracks, genres int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM catalog_tracks), (SELECT COUNT(*) FROM artist_genres)
	`).Scan(&tracks, &genres)
	return tracks, genres, err
}
