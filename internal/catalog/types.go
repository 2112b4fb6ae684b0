// Package catalog reads raw track and genre tables and normalizes them into
// deduplicated, genre-enriched tracks.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedRecord marks a catalog or genre row that could not be parsed.
var ErrMalformedRecord = errors.New("malformed record")

// Table names used in record errors and events
const (
	TableTracks = "tracks"
	TableGenres = "genres"
)

// DefaultAttributes are the continuous audio attributes read from the
// catalog table when none are configured.
var DefaultAttributes = []string{
	"acousticness",
	"danceability",
	"energy",
	"instrumentalness",
	"liveness",
	"loudness",
	"speechiness",
	"tempo",
	"valence",
}

// RawTrack is a catalog row exactly as read from the source table.
type RawTrack struct {
	Row         int // 1-based data row, for diagnostics
	ID          string
	Name        string
	Artists     string // encoded list, e.g. "['A', 'B']"
	ReleaseDate string
	Popularity  string
	Attributes  map[string]string
}

// RawGenre is a genre table row: one artist and its encoded tag list.
type RawGenre struct {
	Row    int
	Artist string
	Genres string
}

// RawCatalog holds both input tables of one catalog snapshot.
type RawCatalog struct {
	Tracks []RawTrack
	Genres []RawGenre
}

// Source provides raw catalog snapshots (CSV files, the SQLite store, ...).
type Source interface {
	Load(ctx context.Context) (*RawCatalog, error)
	Name() string
}

// Track is a normalized catalog track. Tracks are never modified after
// normalization.
type Track struct {
	ID          string
	Name        string
	Artists     []string
	ReleaseDate time.Time
	Year        int
	Popularity  int
	Attributes  map[string]float64
	Genres      []string // sorted, deduplicated
}

// PrimaryArtist returns the first listed artist
func (t *Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// PopularityBucket returns floor(popularity / 5)
func (t *Track) PopularityBucket() int {
	return t.Popularity / 5
}

// DedupKey is the concatenation of the first artist and the title
func (t *Track) DedupKey() string {
	return t.PrimaryArtist() + t.Name
}

// RecordError describes a rejected row.
type RecordError struct {
	Table  string
	Row    int
	ID     string
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s row %d (%s): %s: %s", e.Table, e.Row, e.ID, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s row %d: %s: %s", e.Table, e.Row, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedRecord) match
func (e *RecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// Report aggregates what happened during one normalization pass.
type Report struct {
	TrackRows           int
	GenreRows           int
	Rejected            int // track rows rejected as malformed
	GenreRejected       int // genre rows rejected as malformed
	Duplicates          int // rows collapsed by (first artist, title)
	DuplicateIDs        int // survivors dropped because their id was already taken
	Tracks              int
	TracksWithoutGenres int
	Errors              []*RecordError
}

// Summary renders the report on one line for logs
func (r *Report) Summary() string {
	return fmt.Sprintf("%d tracks from %d rows (%d rejected, %d duplicates, %d duplicate ids); %d genre rows (%d rejected); %d tracks without genres",
		r.Tracks, r.TrackRows, r.Rejected, r.Duplicates, r.DuplicateIDs, r.GenreRows, r.GenreRejected, r.TracksWithoutGenres)
}

// Err joins all record errors, or returns nil when every row parsed
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Catalog is the output of the normalizer.
type Catalog struct {
	Tracks []Track
	Report Report
}
