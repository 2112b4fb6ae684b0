package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/franz/crate-digger/internal/util"
)

// FileProvider reads playlists from <Dir>/<playlistID>.json
type FileProvider struct {
	Dir string
}

type fileEntry struct {
	TrackID string    `json:"track_id"`
	AddedAt time.Time `json:"added_at"`
}

// PlaylistEntries implements PlaylistProvider
func (f *FileProvider) PlaylistEntries(ctx context.Context, playlistID string) ([]Entry, error) {
	if playlistID == "" || strings.ContainsAny(playlistID, `/\`) || playlistID == "." || playlistID == ".." {
		return nil, fmt.Errorf("invalid playlist id %q: %w", playlistID, util.ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(f.Dir, playlistID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("playlist %s: %w", playlistID, util.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read playlist %s: %w", playlistID, err)
	}

	var raw []fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode playlist %s: %w", playlistID, err)
	}

	entries := make([]Entry, len(raw))
	for i, e := range raw {
		entries[i] = Entry{TrackID: e.TrackID, AddedAt: e.AddedAt}
	}
	return entries, nil
}

// WritePlaylist stores entries in the FileProvider layout
func (f *FileProvider) WritePlaylist(playlistID string, entries []Entry) error {
	raw := make([]fileEntry, len(entries))
	for i, e := range entries {
		raw[i] = fileEntry{TrackID: e.TrackID, AddedAt: e.AddedAt.UTC()}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode playlist %s: %w", playlistID, err)
	}
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create playlist directory: %w", err)
	}
	return os.WriteFile(filepath.Join(f.Dir, playlistID+".json"), data, 0644)
}
