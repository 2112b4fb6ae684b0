package recommend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes
const (
	OutcomeOK                  = "ok"
	OutcomeEmptyProfile        = "empty_profile"
	OutcomeProviderUnavailable = "provider_unavailable"
	OutcomeInvalid             = "invalid"
	OutcomeNotLoaded           = "not_loaded"
	OutcomeError               = "error"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	Requests       *prometheus.CounterVec
	Unresolved     prometheus.Counter
	Reloads        *prometheus.CounterVec
	CatalogTracks  prometheus.Gauge
	FeatureDim     prometheus.Gauge
	RankDuration   prometheus.Histogram
	ArtworkLookups *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdig_recommend_requests_total",
				Help: "Recommendation requests by outcome",
			},
			[]string{"outcome"},
		),
		Unresolved: f.NewCounter(
			prometheus.CounterOpts{
				Name: "cdig_unresolved_playlist_entries_total",
				Help: "Playlist entries dropped because their track is not in the catalog",
			},
		),
		Reloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdig_catalog_reloads_total",
				Help: "Catalog reloads by outcome",
			},
			[]string{"outcome"},
		),
		CatalogTracks: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdig_catalog_tracks",
				Help: "Tracks in the live catalog snapshot",
			},
		),
		FeatureDim: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdig_feature_dimension",
				Help: "Dimension of the live feature space",
			},
		),
		RankDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cdig_rank_duration_seconds",
				Help:    "Time spent building the profile and ranking the catalog",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		ArtworkLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdig_artwork_lookups_total",
				Help: "Artwork lookups by result",
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) request(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) unresolved(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Unresolved.Add(float64(n))
}

func (m *Metrics) reload(snap *Snapshot, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Reloads.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.Reloads.WithLabelValues(OutcomeOK).Inc()
	m.CatalogTracks.Set(float64(snap.Matrix.Len()))
	m.FeatureDim.Set(float64(snap.Matrix.Space().Dim()))
}

func (m *Metrics) ranked(d time.Duration) {
	if m == nil {
		return
	}
	m.RankDuration.Observe(d.Seconds())
}

func (m *Metrics) artwork(status LookupStatus) {
	if m == nil {
		return
	}
	m.ArtworkLookups.WithLabelValues(status.String()).Inc()
}
