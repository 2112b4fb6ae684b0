// Package recommend owns the live catalog snapshot and serves playlist
// recommendations from it.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"

	"github.com/franz/crate-digger/internal/catalog"
	"github.com/franz/crate-digger/internal/features"
	"github.com/franz/crate-digger/internal/profile"
	"github.com/franz/crate-digger/internal/rank"
	"github.com/franz/crate-digger/internal/report"
	"github.com/franz/crate-digger/internal/util"
)

var (
	// ErrEmptyProfile is returned when no playlist entry resolves against the catalog
	ErrEmptyProfile = errors.New("no resolvable tracks in playlist")

	// ErrCatalogNotLoaded is returned before the first successful reload
	ErrCatalogNotLoaded = errors.New("catalog not loaded")

	ErrProviderUnavailable = profile.ErrProviderUnavailable
	ErrInvalidTopN         = rank.ErrInvalidTopN
)

const artworkWorkers = 4

// Snapshot is one loaded catalog: the fitted matrix and the load report.
// Snapshots are never modified; a reload replaces the whole value.
type Snapshot struct {
	Matrix   *features.Matrix
	Report   catalog.Report
	Source   string
	LoadedAt time.Time
	Duration time.Duration
}

// LoadRecorder persists the outcome of catalog loads
type LoadRecorder interface {
	RecordLoad(ctx context.Context, snap *Snapshot) error
}

// Service serves recommendations from the current snapshot
type Service struct {
	normalizer *catalog.Normalizer
	engineer   *features.Engineer
	builder    *profile.Builder
	display    DisplayProvider
	recorder   LoadRecorder
	metrics    *Metrics
	logger     *report.EventLogger

	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
}

// Config holds service configuration
type Config struct {
	Attributes  []string
	Provider    profile.PlaylistProvider
	Display     DisplayProvider // optional
	Recorder    LoadRecorder    // optional
	DecayBase   float64
	DecayPeriod time.Duration
	Metrics     *Metrics
	Logger      *report.EventLogger
}

// New creates a new Service. It holds no catalog until Reload succeeds.
func New(cfg *Config) *Service {
	return &Service{
		normalizer: catalog.New(&catalog.Config{Attributes: cfg.Attributes, Logger: cfg.Logger}),
		engineer:   features.New(&features.Config{Attributes: cfg.Attributes, Logger: cfg.Logger}),
		builder: profile.New(&profile.Config{
			Provider:    cfg.Provider,
			DecayBase:   cfg.DecayBase,
			DecayPeriod: cfg.DecayPeriod,
		}),
		display:  cfg.Display,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Snapshot returns the live snapshot, or nil before the first load
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload reads, normalizes and fits a new catalog, then swaps it in.
// On any failure the previous snapshot stays live. Concurrent reloads are
// serialized; recommendations never wait for them.
func (s *Service) Reload(ctx context.Context, src catalog.Source) (*Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	snap, err := s.build(ctx, src)
	if err != nil {
		s.metrics.reload(nil, err)
		s.logger.LogReload("", time.Since(start), err)
		return nil, err
	}
	snap.Duration = time.Since(start)

	s.current.Store(snap)
	s.metrics.reload(snap, nil)
	s.logger.LogReload(snap.Matrix.Space().ID(), snap.Duration, nil)
	util.InfoLog("Loaded catalog from %s: %s tracks, D=%d (%s)",
		snap.Source, util.FormatCount(snap.Matrix.Len()), snap.Matrix.Space().Dim(), snap.Duration.Round(time.Millisecond))

	if s.recorder != nil {
		if err := s.recorder.RecordLoad(ctx, snap); err != nil {
			util.WarnLog("Failed to record catalog load: %v", err)
		}
	}
	return snap, nil
}

func (s *Service) build(ctx context.Context, src catalog.Source) (*Snapshot, error) {
	raw, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog from %s: %w", src.Name(), err)
	}

	cat, err := s.normalizer.Normalize(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize catalog: %w", err)
	}
	if cat.Report.Rejected+cat.Report.GenreRejected > 0 {
		util.WarnLog("Catalog %s: %s", src.Name(), cat.Report.Summary())
	}

	m, err := s.engineer.Fit(cat.Tracks)
	if err != nil {
		return nil, fmt.Errorf("failed to fit features: %w", err)
	}

	return &Snapshot{
		Matrix:   m,
		Report:   cat.Report,
		Source:   src.Name(),
		LoadedAt: time.Now(),
	}, nil
}

// Request is one recommendation request
type Request struct {
	PlaylistID      string
	TopN            int
	ExcludePlaylist bool
	WithArtwork     bool
}

// Item is one recommended track
type Item struct {
	TrackID string
	Name    string
	Artist  string
	Score   float64
	Artwork *Lookup // set when artwork was requested
}

// Response is the result of a recommendation request
type Response struct {
	RequestID  string
	PlaylistID string
	SpaceID    string
	Resolved   int
	Dropped    int
	Items      []Item
	Duration   time.Duration
}

// Recommend builds the playlist profile against the current snapshot and
// ranks the catalog. The snapshot is captured once, so a concurrent reload
// does not affect a request in flight.
func (s *Service) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp := &Response{RequestID: uuid.NewString(), PlaylistID: req.PlaylistID}

	err := s.recommend(ctx, req, resp)
	resp.Duration = time.Since(start)

	s.metrics.request(outcome(err))
	s.logger.LogRecommend(resp.RequestID, req.PlaylistID, len(resp.Items), resp.Duration, err)
	if err != nil {
		util.DebugLog("Request %s for playlist %s failed: %v", resp.RequestID, req.PlaylistID, err)
		return nil, err
	}
	return resp, nil
}

func (s *Service) recommend(ctx context.Context, req Request, resp *Response) error {
	snap := s.current.Load()
	if snap == nil {
		return ErrCatalogNotLoaded
	}
	if req.TopN <= 0 {
		return ErrInvalidTopN
	}
	resp.SpaceID = snap.Matrix.Space().ID()

	p, err := s.builder.BuildForPlaylist(ctx, snap.Matrix, req.PlaylistID)
	if err != nil {
		s.logger.LogProvider(resp.RequestID, "playlist", err)
		return err
	}
	resp.Resolved = p.Resolved
	resp.Dropped = p.Dropped
	s.metrics.unresolved(p.Dropped)
	s.logger.LogUnresolved(resp.RequestID, req.PlaylistID, p.Dropped)

	if p.IsEmpty() {
		return fmt.Errorf("playlist %s: %w", req.PlaylistID, ErrEmptyProfile)
	}

	rankStart := time.Now()
	results, err := rank.Rank(snap.Matrix, p, rank.Options{TopN: req.TopN, ExcludePlaylist: req.ExcludePlaylist})
	if err != nil {
		return err
	}
	s.metrics.ranked(time.Since(rankStart))

	resp.Items = make([]Item, len(results))
	for i, r := range results {
		resp.Items[i] = Item{
			TrackID: r.Track.ID,
			Name:    r.Track.Name,
			Artist:  r.Track.PrimaryArtist(),
			Score:   r.Score,
		}
	}

	if req.WithArtwork && s.display != nil {
		s.enrich(ctx, resp)
	}
	return nil
}

// enrich looks up artwork for every item after ranking. Lookup failures are
// recorded per item and never fail the request.
func (s *Service) enrich(ctx context.Context, resp *Response) {
	mapper := iter.Mapper[Item, Lookup]{MaxGoroutines: artworkWorkers}
	lookups := mapper.Map(resp.Items, func(item *Item) Lookup {
		return LookupArtwork(ctx, s.display, item.TrackID)
	})

	for i := range resp.Items {
		l := lookups[i]
		resp.Items[i].Artwork = &l
		s.metrics.artwork(l.Status)
		if l.Status == LookupProviderError {
			s.logger.LogProvider(resp.RequestID, "artwork", l.Err)
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrEmptyProfile):
		return OutcomeEmptyProfile
	case errors.Is(err, ErrProviderUnavailable):
		return OutcomeProviderUnavailable
	case errors.Is(err, ErrInvalidTopN):
		return OutcomeInvalid
	case errors.Is(err, ErrCatalogNotLoaded):
		return OutcomeNotLoaded
	default:
		return OutcomeError
	}
}
