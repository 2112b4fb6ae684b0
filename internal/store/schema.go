package store

type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in order; append only
var migrations = []migration{
	{1, "catalog tables and load history", schemaV1},
	{2, "lookup indexes", schemaV2},
}

var currentSchemaVersion = migrations[len(migrations)-1].version

// Schema v1 - catalog tables and load history
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Raw catalog rows, kept exactly as imported. Normalization happens on load,
-- so ids are not unique here.
CREATE TABLE IF NOT EXISTS catalog_tracks (
  row_num INTEGER PRIMARY KEY,
  track_id TEXT NOT NULL,
  name TEXT NOT NULL,
  artists TEXT NOT NULL,
  release_date TEXT NOT NULL,
  popularity TEXT NOT NULL,
  attributes_json TEXT NOT NULL
);

-- Raw genre table rows (artist -> encoded tag list)
CREATE TABLE IF NOT EXISTS artist_genres (
  row_num INTEGER PRIMARY KEY,
  artist TEXT NOT NULL,
  genres TEXT NOT NULL
);

-- One row per catalog load (normalize + fit)
CREATE TABLE IF NOT EXISTS catalog_loads (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  space_id TEXT NOT NULL,
  track_rows INTEGER NOT NULL,
  genre_rows INTEGER NOT NULL,
  tracks INTEGER NOT NULL,
  rejected INTEGER NOT NULL,
  genre_rejected INTEGER NOT NULL,
  duplicates INTEGER NOT NULL,
  duplicate_ids INTEGER NOT NULL,
  without_genres INTEGER NOT NULL,
  dimension INTEGER NOT NULL,
  duration_ms INTEGER NOT NULL,
  errors_json TEXT,
  loaded_at INTEGER NOT NULL
);
`

// Schema v2 - lookup indexes
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_catalog_tracks_track_id ON catalog_tracks(track_id);
CREATE INDEX IF NOT EXISTS idx_artist_genres_artist ON artist_genres(artist);
CREATE INDEX IF NOT EXISTS idx_catalog_loads_loaded_at ON catalog_loads(loaded_at);
`
