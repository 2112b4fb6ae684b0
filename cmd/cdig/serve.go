package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/crate-digger/internal/server"
	"github.com/franz/crate-digger/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP",
	Long: `Serve recommendations over HTTP.

Endpoints:
  GET  /healthz
  GET  /api/v1/catalog
  POST /api/v1/catalog/reload
  GET  /api/v1/playlists/{id}/recommendations?limit=&exclude_playlist=&artwork=
  GET  /metrics

With --watch, the catalog CSV files are watched; once they stop changing they
are re-imported and the catalog is swapped in without dropping requests.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	serveCmd.Flags().Bool("watch", false, "re-import the catalog CSV files when they change")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("server.watch", serveCmd.Flags().Lookup("watch"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.svc.Reload(ctx, a.db); err != nil {
		// the server still starts; /healthz reports loading until a reload succeeds
		util.WarnLog("Initial catalog load failed: %v", err)
	}

	if cfg.Server.Watch {
		if cfg.Catalog.Tracks == "" || cfg.Catalog.Genres == "" {
			return fmt.Errorf("%w: --watch needs catalog.tracks and catalog.genres", util.ErrInvalidConfig)
		}
		go func() {
			paths := []string{cfg.Catalog.Tracks, cfg.Catalog.Genres}
			err := watchFiles(ctx, paths, cfg.Server.ReloadDebounce, func() {
				reimport(ctx, a)
			})
			if err != nil {
				util.ErrorLog("Catalog watcher stopped: %v", err)
				a.logger.LogError("watch", err)
			}
		}()
		util.InfoLog("Watching %s and %s for changes", cfg.Catalog.Tracks, cfg.Catalog.Genres)
	}

	srv := server.New(&server.Config{
		Service:        a.svc,
		Source:         a.db,
		Gatherer:       a.registry,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reimportRetry covers catalog files that are still being written when the
// watcher fires
var reimportRetry = &util.RetryConfig{MaxAttempts: 3, InitialWait: time.Second, MaxWait: 4 * time.Second}

// reimport loads the CSV files into the store and swaps in the new catalog.
// Failures keep the current snapshot.
func reimport(ctx context.Context, a *app) {
	start := time.Now()
	util.InfoLog("Catalog files changed, re-importing")

	if err := importWithRetry(ctx, a, reimportRetry); err != nil {
		util.ErrorLog("Re-import failed, keeping current catalog: %v", err)
		a.logger.LogError("import", err)
		return
	}
	snap, err := a.svc.Reload(ctx, a.db)
	if err != nil {
		util.ErrorLog("Reload failed, keeping current catalog: %v", err)
		return
	}
	util.SuccessLog("Catalog reloaded: %s tracks in %v", util.FormatCount(snap.Matrix.Len()), time.Since(start).Round(time.Millisecond))
}

// importWithRetry re-reads the configured CSV files. Any read or import
// failure is retried since a partially written file parses badly.
func importWithRetry(ctx context.Context, a *app, retry *util.RetryConfig) error {
	return util.Retry(ctx, retry, func() error {
		_, err := importCSV(ctx, a.cfg, a.db, a.cfg.Catalog.Tracks, a.cfg.Catalog.Genres)
		if err != nil && ctx.Err() == nil {
			return &util.RetryableError{Err: err}
		}
		return err
	}, "catalog re-import")
}
