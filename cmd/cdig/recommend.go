package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/franz/crate-digger/internal/recommend"
	"github.com/franz/crate-digger/internal/util"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <playlist-id>...",
	Short: "Recommend catalog tracks for one or more playlists",
	Long: `Recommend catalog tracks for one or more playlists.

The catalog is loaded once from the database; all playlists are scored
against the same feature space in parallel and printed in argument order.
A playlist that fails does not affect the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().IntP("limit", "n", 10, "number of tracks per playlist")
	recommendCmd.Flags().Bool("exclude-playlist", false, "never recommend tracks already in the playlist")
	recommendCmd.Flags().Bool("artwork", false, "look up album artwork for each result")
	recommendCmd.Flags().Int("concurrency", 4, "playlists processed in parallel")
	recommendCmd.Flags().Bool("json", false, "print results as JSON")
}

// playlistResult is the outcome for one playlist argument
type playlistResult struct {
	PlaylistID string              `json:"playlistId"`
	Response   *recommend.Response `json:"response,omitempty"`
	Error      string              `json:"error,omitempty"`
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	exclude, _ := cmd.Flags().GetBool("exclude-playlist")
	artwork, _ := cmd.Flags().GetBool("artwork")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	snap, err := a.svc.Reload(ctx, a.db)
	if err != nil {
		return fmt.Errorf("failed to load catalog (run cdig import first): %w", err)
	}
	util.DebugLog("Catalog: %s tracks, D=%d", util.FormatCount(snap.Matrix.Len()), snap.Matrix.Space().Dim())

	if artwork && a.client == nil {
		util.WarnLog("Artwork requested but no spotify credentials configured; skipping")
	}

	results := recommendAll(ctx, a.svc, args, concurrency, func(id string) recommend.Request {
		return recommend.Request{PlaylistID: id, TopN: limit, ExcludePlaylist: exclude, WithArtwork: artwork}
	})

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
	} else {
		for _, r := range results {
			printResult(r)
		}
	}

	if a.client != nil {
		if state := a.client.BreakerState(); state != "closed" {
			util.WarnLog("Spotify circuit breaker is %s; further calls are short-circuited", state)
		}
	}

	if failed == len(results) {
		return fmt.Errorf("all %d playlists failed", failed)
	}
	if failed > 0 {
		util.WarnLog("%d of %d playlists failed", failed, len(results))
	}
	return nil
}

// recommendAll runs one request per playlist on a bounded pool. Results keep
// the order of ids.
func recommendAll(ctx context.Context, svc *recommend.Service, ids []string, concurrency int, request func(string) recommend.Request) []playlistResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]playlistResult, len(ids))

	p := pool.New().WithMaxGoroutines(concurrency)
	for i, id := range ids {
		p.Go(func() {
			results[i].PlaylistID = id
			resp, err := svc.Recommend(ctx, request(id))
			if err != nil {
				results[i].Error = err.Error()
				return
			}
			results[i].Response = resp
		})
	}
	p.Wait()

	return results
}

func printResult(r playlistResult) {
	fmt.Printf("\nPlaylist %s\n", r.PlaylistID)
	if r.Error != "" {
		util.ErrorLog("%s: %s", r.PlaylistID, r.Error)
		return
	}

	resp := r.Response
	withArtwork := false
	for _, item := range resp.Items {
		if item.Artwork != nil {
			withArtwork = true
			break
		}
	}

	headers := []string{"#", "Track", "Artist", "Score", "Track ID"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}
	if withArtwork {
		headers = append(headers, "Artwork")
	}

	rows := make([][]string, len(resp.Items))
	for i, item := range resp.Items {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			item.Name,
			item.Artist,
			strconv.FormatFloat(item.Score, 'f', 4, 64),
			item.TrackID,
		}
		if withArtwork {
			rows[i] = append(rows[i], artworkCell(item.Artwork))
		}
	}
	fmt.Println(renderTable(headers, rows, aligns))

	if resp.Dropped > 0 {
		util.InfoLog("%d of %d playlist entries are not in the catalog", resp.Dropped, resp.Resolved+resp.Dropped)
	}
}

func artworkCell(l *recommend.Lookup) string {
	switch {
	case l == nil:
		return ""
	case l.Status == recommend.LookupFound:
		return l.URL
	default:
		return "(" + l.Status.String() + ")"
	}
}
