package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/schollz/progressbar/v3"

	"github.com/franz/crate-digger/internal/catalog"
	"github.com/franz/crate-digger/internal/profile"
	"github.com/franz/crate-digger/internal/recommend"
	"github.com/franz/crate-digger/internal/report"
	"github.com/franz/crate-digger/internal/spotify"
	"github.com/franz/crate-digger/internal/store"
	"github.com/franz/crate-digger/internal/util"
)

// app holds everything a command needs to serve recommendations
type app struct {
	cfg      *Config
	db       *store.Store
	logger   *report.EventLogger
	registry *prometheus.Registry
	client   *spotify.Client // nil unless spotify credentials are configured
	svc      *recommend.Service
}

// newEventLogger opens the JSONL event log, or returns a no-op logger
func newEventLogger(cfg *Config) *report.EventLogger {
	if cfg.EventsDir == "" {
		return report.NullLogger()
	}
	logger, err := report.NewEventLogger(cfg.EventsDir, report.ParseLevel(cfg.Verbose, cfg.Quiet))
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.DebugLog("Event log: %s", logger.Path())
	return logger
}

// newSpotifyClient returns nil when no credentials are configured
func newSpotifyClient(cfg *Config) (*spotify.Client, error) {
	if !cfg.Spotify.HasCredentials() {
		return nil, nil
	}
	return spotify.NewClient(&spotify.Config{
		ClientID:          cfg.Spotify.ClientID,
		ClientSecret:      cfg.Spotify.ClientSecret,
		BaseURL:           cfg.Spotify.BaseURL,
		TokenURL:          cfg.Spotify.TokenURL,
		Timeout:           cfg.Spotify.Timeout,
		RequestsPerSecond: cfg.Spotify.RequestsPerSecond,
		Burst:             cfg.Spotify.Burst,
	})
}

// openStore opens the catalog database, tuning SQLite for network storage
// when the database lives on an NFS/SMB mount
func openStore(path string) (*store.Store, error) {
	network := util.IsNetworkPath(path)
	if network {
		util.InfoLog("Database is on network storage, using network-optimized SQLite settings")
	}
	db, err := store.OpenWithOptions(path, &store.OpenOptions{NetworkOptimized: network})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openApp opens the store and wires the service. Call close when done.
func openApp(cfg *Config) (*app, error) {
	db, err := openStore(cfg.DB)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		logger:   newEventLogger(cfg),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.client, err = newSpotifyClient(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create spotify client: %w", err)
	}

	var provider profile.PlaylistProvider = &profile.FileProvider{Dir: cfg.Playlists.Dir}
	if cfg.Playlists.Provider == providerSpotify {
		provider = a.client
	}

	var display recommend.DisplayProvider
	if a.client != nil {
		cache := spotify.NewArtworkCache(db.DB(), a.client, cfg.Spotify.ArtworkTTL)
		if err := cache.EnsureSchema(); err != nil {
			a.close()
			return nil, err
		}
		display = cache
	}

	a.svc = recommend.New(&recommend.Config{
		Attributes:  cfg.Catalog.Attributes,
		Provider:    provider,
		Display:     display,
		Recorder:    db,
		DecayBase:   cfg.Profile.DecayBase,
		DecayPeriod: cfg.Profile.DecayPeriod,
		Metrics:     recommend.NewMetrics(a.registry),
		Logger:      a.logger,
	})
	return a, nil
}

func (a *app) close() {
	a.logger.Close()
	a.db.Close()
}

// csvSource builds the CSV catalog source, drawing progress bars on a TTY
func csvSource(cfg *Config, tracks, genres string) *catalog.CSVSource {
	src := &catalog.CSVSource{
		TracksPath: tracks,
		GenresPath: genres,
		Attributes: cfg.Catalog.Attributes,
	}
	if util.ShowProgress() {
		src.WrapReader = progressReader
	}
	return src
}

// progressReader advances a byte progress bar as r is consumed
func progressReader(r io.Reader, size int64, label string) io.Reader {
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetDescription("Reading "+label),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return io.TeeReader(r, bar)
}
