// Package rank scores the catalog against a playlist profile.
package rank

import (
	"errors"
	"math"
	"sort"

	"github.com/franz/crate-digger/internal/catalog"
	"github.com/franz/crate-digger/internal/features"
	"github.com/franz/crate-digger/internal/profile"
)

var (
	// ErrInvalidTopN is returned for a non-positive result count
	ErrInvalidTopN = errors.New("top_n must be positive")

	// ErrFeatureSpaceStale is returned when the profile and the matrix were
	// built in different feature spaces
	ErrFeatureSpaceStale = errors.New("profile built against a stale feature space")
)

// Options controls a ranking
type Options struct {
	TopN int

	// ExcludePlaylist drops the profile's member tracks before selection
	ExcludePlaylist bool
}

// Result is one ranked track
type Result struct {
	Track *catalog.Track
	Score float64
}

// Cosine returns dot(a, b) / (|a| |b|), or 0 when either norm is 0
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores every catalog track against the profile and returns up to
// TopN results by descending score. Equal scores keep catalog order.
func Rank(m *features.Matrix, p *profile.Profile, opts Options) ([]Result, error) {
	if opts.TopN <= 0 {
		return nil, ErrInvalidTopN
	}
	if p.Space != m.Space() || len(p.Vector) != m.Space().Dim() {
		return nil, ErrFeatureSpaceStale
	}

	var exclude map[string]struct{}
	if opts.ExcludePlaylist {
		exclude = p.MemberSet()
	}

	results := make([]Result, 0, m.Len())
	for i := 0; i < m.Len(); i++ {
		t := m.Track(i)
		if _, skip := exclude[t.ID]; skip {
			continue
		}
		results = append(results, Result{Track: t, Score: Cosine(m.Vector(i), p.Vector)})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if len(results) > opts.TopN {
		results = results[:opts.TopN]
	}
	return results, nil
}
