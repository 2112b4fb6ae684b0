package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/crate-digger/internal/profile"
	"github.com/franz/crate-digger/internal/util"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <playlist-id>...",
	Short: "Download Spotify playlists into the playlist directory",
	Long: `Download the entries of Spotify playlists and store them in the playlist
directory, so they can be used offline with the file provider.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	client, err := newSpotifyClient(cfg)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("%w: spotify.client_id and spotify.client_secret are required", util.ErrInvalidConfig)
	}

	dest := &profile.FileProvider{Dir: cfg.Playlists.Dir}
	failed := 0
	for _, id := range args {
		entries, err := client.PlaylistEntries(cmd.Context(), id)
		if err != nil {
			util.ErrorLog("Playlist %s: %v", id, err)
			failed++
			continue
		}
		if err := dest.WritePlaylist(id, entries); err != nil {
			return err
		}
		util.SuccessLog("Playlist %s: %d entries", id, len(entries))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d playlists could not be fetched", failed, len(args))
	}
	return nil
}
