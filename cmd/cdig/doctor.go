package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/crate-digger/internal/spotify"
	"github.com/franz/crate-digger/internal/store"
	"github.com/franz/crate-digger/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure cdig can operate correctly.

This command checks:
- Configuration validity
- SQLite version compatibility
- Database accessibility, integrity and the imported catalog
- Catalog CSV files (when configured)
- Playlist directory or Spotify credentials

Use this command to troubleshoot issues before serving recommendations.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== cdig Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	cfg, err := currentConfig()
	results = append(results, checkConfig(err))
	results = append(results, checkSQLite())

	if cfg != nil {
		results = append(results, checkDatabase(cmd.Context(), cfg.DB))
		if cfg.Catalog.Tracks != "" {
			results = append(results, checkCatalogFile("Catalog tracks", cfg.Catalog.Tracks))
		}
		if cfg.Catalog.Genres != "" {
			results = append(results, checkCatalogFile("Catalog genres", cfg.Catalog.Genres))
		}
		results = append(results, checkPlaylists(cfg))
		if cfg.Playlists.Provider == providerSpotify || cfg.Spotify.HasCredentials() {
			results = append(results, checkArtworkCache(cmd.Context(), cfg))
		}
	}

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before running cdig.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed!")
	}

	return nil
}

// checkConfig reports the outcome of loading the configuration
func checkConfig(err error) checkResult {
	if err != nil {
		return checkResult{name: "Configuration", error: true, message: err.Error()}
	}
	return checkResult{name: "Configuration", message: "valid"}
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite is compiled in; just verify we can get the version
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility and the imported catalog
func checkDatabase(ctx context.Context, dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				warning: true,
				message: fmt.Sprintf("%s does not exist (run cdig import)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(ctx); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	tracks, genres, err := db.CatalogCounts(ctx)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot count catalog rows: %v", err),
		}
	}
	if tracks == 0 {
		return checkResult{
			name:    "Database",
			warning: true,
			message: fmt.Sprintf("%s has no catalog (run cdig import)", dbPath),
		}
	}

	msg := fmt.Sprintf("%s (%s track rows, %s genre rows)", dbPath, util.FormatCount(tracks), util.FormatCount(genres))
	if mount, err := util.DetectMount(dbPath); err == nil && mount.IsNetwork {
		msg += fmt.Sprintf(", on %s network storage", mount.FSType)
	}
	if latest, err := db.LatestLoad(ctx); err == nil {
		msg += fmt.Sprintf(", last loaded %s", latest.LoadedAt.Format(time.RFC3339))
	}
	return checkResult{name: "Database", message: msg}
}

// checkCatalogFile verifies a configured CSV file is readable
func checkCatalogFile(name, path string) checkResult {
	f, err := os.Open(path)
	if err != nil {
		return checkResult{name: name, error: true, message: fmt.Sprintf("cannot open %s: %v", path, err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return checkResult{name: name, error: true, message: fmt.Sprintf("cannot stat %s: %v", path, err)}
	}
	if info.IsDir() {
		return checkResult{name: name, error: true, message: fmt.Sprintf("%s is a directory", path)}
	}
	return checkResult{name: name, message: fmt.Sprintf("%s (%s bytes)", path, util.FormatCount(int(info.Size())))}
}

// checkPlaylists verifies the configured playlist provider can work
func checkPlaylists(cfg *Config) checkResult {
	if cfg.Playlists.Provider == providerSpotify {
		if !cfg.Spotify.HasCredentials() {
			return checkResult{name: "Playlists (spotify)", error: true, message: "client id and secret are not set"}
		}
		return checkResult{name: "Playlists (spotify)", message: "credentials configured"}
	}

	entries, err := os.ReadDir(cfg.Playlists.Dir)
	if err != nil {
		return checkResult{
			name:    "Playlists (file)",
			warning: true,
			message: fmt.Sprintf("cannot read %s: %v", cfg.Playlists.Dir, err),
		}
	}
	return checkResult{name: "Playlists (file)", message: fmt.Sprintf("%s (%d entries)", cfg.Playlists.Dir, len(entries))}
}

// checkArtworkCache reports how many artwork lookups are cached
func checkArtworkCache(ctx context.Context, cfg *Config) checkResult {
	if _, err := os.Stat(cfg.DB); err != nil {
		return checkResult{name: "Artwork cache", warning: true, message: "no database yet"}
	}
	db, err := store.Open(cfg.DB)
	if err != nil {
		return checkResult{name: "Artwork cache", error: true, message: err.Error()}
	}
	defer db.Close()

	cache := spotify.NewArtworkCache(db.DB(), nil, cfg.Spotify.ArtworkTTL)
	if err := cache.EnsureSchema(); err != nil {
		return checkResult{name: "Artwork cache", error: true, message: err.Error()}
	}
	entries, hits, err := cache.Stats(ctx)
	if err != nil {
		return checkResult{name: "Artwork cache", error: true, message: err.Error()}
	}
	return checkResult{
		name:    "Artwork cache",
		message: fmt.Sprintf("%s entries, %s hits", util.FormatCount(entries), util.FormatCount(hits)),
	}
}
