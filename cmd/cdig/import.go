package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/crate-digger/internal/store"
	"github.com/franz/crate-digger/internal/util"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the catalog and genre CSV files into the database",
	Long: `Import the track catalog (data.csv layout) and the artist genre table
(data_w_genres.csv layout) into the catalog database.

Rows are stored as read; parsing, deduplication and genre consolidation
happen every time the catalog is loaded, so the load report always reflects
the current normalizer. Importing replaces any previously imported catalog.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("tracks", "", "catalog CSV file")
	importCmd.Flags().String("genres", "", "artist genre CSV file")
	importCmd.Flags().Bool("verify", true, "load the imported catalog and print the normalization report")

	viper.BindPFlag("catalog.tracks", importCmd.Flags().Lookup("tracks"))
	viper.BindPFlag("catalog.genres", importCmd.Flags().Lookup("genres"))
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	if cfg.Catalog.Tracks == "" || cfg.Catalog.Genres == "" {
		return fmt.Errorf("%w: both --tracks and --genres are required (or catalog.tracks/catalog.genres in config)", util.ErrInvalidConfig)
	}

	util.InfoLog("=== Catalog Import ===")
	util.InfoLog("Tracks: %s", cfg.Catalog.Tracks)
	util.InfoLog("Genres: %s", cfg.Catalog.Genres)
	util.InfoLog("Database: %s", cfg.DB)

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	start := time.Now()
	result, err := importCSV(ctx, cfg, a.db, cfg.Catalog.Tracks, cfg.Catalog.Genres)
	if err != nil {
		return err
	}
	util.SuccessLog("Imported %s track rows and %s genre rows in %v",
		util.FormatCount(result.Tracks), util.FormatCount(result.Genres), time.Since(start).Round(time.Millisecond))

	if verify, _ := cmd.Flags().GetBool("verify"); !verify {
		return nil
	}

	snap, err := a.svc.Reload(ctx, a.db)
	if err != nil {
		return fmt.Errorf("imported catalog failed to load: %w", err)
	}

	rep := snap.Report
	util.InfoLog("")
	util.InfoLog("Normalization report:")
	util.InfoLog("  Tracks: %s (from %s rows)", util.FormatCount(rep.Tracks), util.FormatCount(rep.TrackRows))
	util.InfoLog("  Duplicates collapsed: %s", util.FormatCount(rep.Duplicates+rep.DuplicateIDs))
	util.InfoLog("  Without genres: %s", util.FormatCount(rep.TracksWithoutGenres))
	util.InfoLog("  Feature dimension: %d", snap.Matrix.Space().Dim())
	if rep.Rejected > 0 || rep.GenreRejected > 0 {
		util.WarnLog("  Malformed rows: %d tracks, %d genres (see cdig report)", rep.Rejected, rep.GenreRejected)
	}
	return nil
}

// importCSV reads both CSV files and replaces the stored catalog
func importCSV(ctx context.Context, cfg *Config, db *store.Store, tracks, genres string) (*store.ImportResult, error) {
	raw, err := csvSource(cfg, tracks, genres).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	result, err := db.ImportCatalog(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to import catalog: %w", err)
	}
	return result, nil
}
