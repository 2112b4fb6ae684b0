// Package profile aggregates a playlist into one weighted vector in the
// catalog's feature space.
package profile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/franz/crate-digger/internal/features"
)

// ErrProviderUnavailable wraps any playlist provider failure
var ErrProviderUnavailable = errors.New("playlist unavailable")

// Default weighting parameters
const (
	DefaultDecayBase   = 1.09
	DefaultDecayPeriod = 30 * 24 * time.Hour
)

// Entry is one playlist item as reported by a provider
type Entry struct {
	TrackID string
	AddedAt time.Time
}

// PlaylistProvider fetches the ordered entries of a playlist
type PlaylistProvider interface {
	PlaylistEntries(ctx context.Context, playlistID string) ([]Entry, error)
}

// Profile is the aggregate vector of a playlist. It is only comparable with
// vectors from Space.
type Profile struct {
	Vector   []float64
	Space    *features.Space
	Resolved int
	Dropped  int
	Members  []string  // resolved track ids, playlist order
	Weights  []float64 // weight of each member
}

// IsEmpty reports whether no entry resolved
func (p *Profile) IsEmpty() bool {
	return p.Resolved == 0
}

// MemberSet returns the resolved track ids as a set
func (p *Profile) MemberSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Members))
	for _, id := range p.Members {
		set[id] = struct{}{}
	}
	return set
}

// Builder turns playlists into profiles
type Builder struct {
	provider PlaylistProvider
	base     float64
	period   time.Duration
}

// Config holds builder configuration
type Config struct {
	Provider    PlaylistProvider
	DecayBase   float64       // DefaultDecayBase when zero
	DecayPeriod time.Duration // DefaultDecayPeriod when zero
}

// New creates a new Builder
func New(cfg *Config) *Builder {
	b := &Builder{
		provider: cfg.Provider,
		base:     cfg.DecayBase,
		period:   cfg.DecayPeriod,
	}
	if b.base == 0 {
		b.base = DefaultDecayBase
	}
	if b.period <= 0 {
		b.period = DefaultDecayPeriod
	}
	return b
}

// Weight returns base^floor(age/period). Older entries get the larger
// weight; age is measured back from the newest resolved entry.
func (b *Builder) Weight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Pow(b.base, float64(age/b.period))
}

// Build resolves entries against the matrix and sums their weighted vectors.
// Unresolved entries are dropped and counted. With nothing resolved the
// profile vector is all zeros.
func (b *Builder) Build(m *features.Matrix, entries []Entry) *Profile {
	p := &Profile{
		Vector: make([]float64, m.Space().Dim()),
		Space:  m.Space(),
	}

	rows := make([]int, 0, len(entries))
	resolved := make([]Entry, 0, len(entries))
	for _, e := range entries {
		i, ok := m.Lookup(e.TrackID)
		if !ok {
			p.Dropped++
			continue
		}
		rows = append(rows, i)
		resolved = append(resolved, e)
	}
	if len(resolved) == 0 {
		return p
	}

	newest := resolved[0].AddedAt
	for _, e := range resolved[1:] {
		if e.AddedAt.After(newest) {
			newest = e.AddedAt
		}
	}

	p.Resolved = len(resolved)
	p.Members = make([]string, len(resolved))
	p.Weights = make([]float64, len(resolved))
	for k, e := range resolved {
		w := b.Weight(newest.Sub(e.AddedAt))
		p.Members[k] = e.TrackID
		p.Weights[k] = w
		for j, x := range m.Vector(rows[k]) {
			p.Vector[j] += w * x
		}
	}
	return p
}

// BuildForPlaylist fetches the playlist from the provider and builds its
// profile. Provider errors wrap ErrProviderUnavailable.
func (b *Builder) BuildForPlaylist(ctx context.Context, m *features.Matrix, playlistID string) (*Profile, error) {
	if b.provider == nil {
		return nil, fmt.Errorf("%w: no playlist provider configured", ErrProviderUnavailable)
	}
	entries, err := b.provider.PlaylistEntries(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, playlistID, err)
	}
	return b.Build(m, entries), nil
}
