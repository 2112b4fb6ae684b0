package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/franz/crate-digger/internal/recommend"
	"github.com/franz/crate-digger/internal/util"
)

// maxStoredErrors caps the record errors kept per load
const maxStoredErrors = 100

var _ recommend.LoadRecorder = (*Store)(nil)

// Load is one recorded catalog load
type Load struct {
	ID            int64
	Source        string
	SpaceID       string
	TrackRows     int
	GenreRows     int
	Tracks        int
	Rejected      int
	GenreRejected int
	Duplicates    int
	DuplicateIDs  int
	WithoutGenres int
	Dimension     int
	Duration      time.Duration
	Errors        []string
	LoadedAt      time.Time
}

// RecordLoad implements recommend.LoadRecorder
func (s *Store) RecordLoad(ctx context.Context, snap *recommend.Snapshot) error {
	rep := snap.Report

	msgs := make([]string, 0, min(len(rep.Errors), maxStoredErrors))
	for i, e := range rep.Errors {
		if i == maxStoredErrors {
			break
		}
		msgs = append(msgs, e.Error())
	}
	errorsJSON, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to encode load errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO catalog_loads (
			source, space_id, track_rows, genre_rows, tracks, rejected, genre_rejected,
			duplicates, duplicate_ids, without_genres, dimension, duration_ms, errors_json, loaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.Source, snap.Matrix.Space().ID(), rep.TrackRows, rep.GenreRows, rep.Tracks,
		rep.Rejected, rep.GenreRejected, rep.Duplicates, rep.DuplicateIDs, rep.TracksWithoutGenres,
		snap.Matrix.Space().Dim(), snap.Duration.Milliseconds(), string(errorsJSON), snap.LoadedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert catalog load: %w", err)
	}
	return nil
}

const loadColumns = `
	id, source, space_id, track_rows, genre_rows, tracks, rejected, genre_rejected,
	duplicates, duplicate_ids, without_genres, dimension, duration_ms, errors_json, loaded_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanLoad(row scanner) (*Load, error) {
	var l Load
	var durationMs, loadedAt int64
	var errorsJSON sql.NullString
	err := row.Scan(
		&l.ID, &l.Source, &l.SpaceID, &l.TrackRows, &l.GenreRows, &l.Tracks, &l.Rejected, &l.GenreRejected,
		&l.Duplicates, &l.DuplicateIDs, &l.WithoutGenres, &l.Dimension, &durationMs, &errorsJSON, &loadedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Duration = time.Duration(durationMs) * time.Millisecond
	l.LoadedAt = time.Unix(loadedAt, 0)
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &l.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors of load %d: %w", l.ID, err)
		}
	}
	return &l, nil
}

// ListLoads returns the most recent loads, newest first
func (s *Store) ListLoads(ctx context.Context, limit int) ([]*Load, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+loadColumns+` FROM catalog_loads ORDER BY loaded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog_loads: %w", err)
	}
	defer rows.Close()

	var loads []*Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog load: %w", err)
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

// LatestLoad returns the newest load, or util.ErrNotFound
func (s *Store) LatestLoad(ctx context.Context) (*Load, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+loadColumns+` FROM catalog_loads ORDER BY loaded_at DESC, id DESC LIMIT 1`)
	l, err := scanLoad(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no catalog loads recorded: %w", util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest load: %w", err)
	}
	return l, nil
}
