package features

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/franz/crate-digger/internal/catalog"
	"github.com/franz/crate-digger/internal/report"
	"github.com/franz/crate-digger/internal/util"
)

// ErrEmptyCatalog is returned when fitting a catalog with no tracks
var ErrEmptyCatalog = errors.New("cannot fit feature space on an empty catalog")

// Engineer fits feature spaces
type Engineer struct {
	attributes []string
	logger     *report.EventLogger
}

// Config holds engineer configuration
type Config struct {
	Attributes []string // continuous attributes, catalog.DefaultAttributes when empty
	Logger     *report.EventLogger
}

// New creates a new Engineer
func New(cfg *Config) *Engineer {
	attrs := cfg.Attributes
	if len(attrs) == 0 {
		attrs = catalog.DefaultAttributes
	}
	return &Engineer{
		attributes: append([]string(nil), attrs...),
		logger:     cfg.Logger,
	}
}

// Fit learns a Space over the whole catalog and vectorizes every track
// against it. The input slice is copied, never modified.
func (e *Engineer) Fit(tracks []catalog.Track) (*Matrix, error) {
	if len(tracks) == 0 {
		return nil, ErrEmptyCatalog
	}
	start := time.Now()

	docs := make([][]string, len(tracks))
	years := make([]int, len(tracks))
	buckets := make([]int, len(tracks))
	for i := range tracks {
		docs[i] = Tokenize(tracks[i].Genres)
		years[i] = tracks[i].Year
		buckets[i] = tracks[i].PopularityBucket()
	}

	space := &Space{
		id:      uuid.NewString(),
		text:    fitText(docs),
		years:   fitOneHot(years),
		buckets: fitOneHot(buckets),
		scaler:  fitMinMax(e.attributes, tracks),
	}
	space.layout.Text = 0
	space.layout.Year = space.text.width()
	space.layout.Popularity = space.layout.Year + len(space.years.values)
	space.layout.Continuous = space.layout.Popularity + len(space.buckets.values)
	space.layout.Dim = space.layout.Continuous + len(e.attributes)

	m := &Matrix{
		space:   space,
		tracks:  append([]catalog.Track(nil), tracks...),
		vectors: make([][]float64, len(tracks)),
		index:   make(map[string]int, len(tracks)),
	}
	for i := range m.tracks {
		m.vectors[i] = space.Transform(&m.tracks[i])
		if _, ok := m.index[m.tracks[i].ID]; !ok {
			m.index[m.tracks[i].ID] = i
		}
	}

	util.DebugLog("Fitted feature space %s: D=%d (text %d, years %d, buckets %d, continuous %d) in %s",
		space.id, space.layout.Dim, space.layout.Year, len(space.years.values),
		len(space.buckets.values), len(e.attributes), time.Since(start))
	e.logger.LogFit(space.id, space.layout.Dim, len(tracks))

	return m, nil
}

// Matrix is the catalog feature matrix: tracks with their vectors, all in
// one Space. Read-only after Fit.
type Matrix struct {
	space   *Space
	tracks  []catalog.Track
	vectors [][]float64
	index   map[string]int
}

// Space returns the space every row was built in
func (m *Matrix) Space() *Space {
	return m.space
}

// Len returns the number of tracks
func (m *Matrix) Len() int {
	return len(m.tracks)
}

// Track returns the track at row i
func (m *Matrix) Track(i int) *catalog.Track {
	return &m.tracks[i]
}

// Vector returns the vector at row i. Callers must not modify it.
func (m *Matrix) Vector(i int) []float64 {
	return m.vectors[i]
}

// Lookup finds the row of a track id
func (m *Matrix) Lookup(id string) (int, bool) {
	i, ok := m.index[id]
	return i, ok
}
