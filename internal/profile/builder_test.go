package profile

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/franz/crate-digger/internal/catalog"
	"github.com/franz/crate-digger/internal/features"
	"github.com/franz/crate-digger/internal/util"
)

const day = 24 * time.Hour

type fakeProvider struct {
	entries map[string][]Entry
	err     error
	calls   int
}

func (f *fakeProvider) PlaylistEntries(ctx context.Context, id string) ([]Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.entries[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return e, nil
}

func testMatrix(t *testing.T) *features.Matrix {
	t.Helper()
	mk := func(id string, genres []string, pop int, energy float64) catalog.Track {
		return catalog.Track{
			ID:         id,
			Name:       id,
			Artists:    []string{"X"},
			Year:       2000,
			Popularity: pop,
			Attributes: map[string]float64{"energy": energy},
			Genres:     genres,
		}
	}
	m, err := features.New(&features.Config{Attributes: []string{"energy"}}).Fit([]catalog.Track{
		mk("a", []string{"pop"}, 10, 0),
		mk("b", []string{"rock"}, 50, 1),
		mk("c", []string{"pop", "rock"}, 90, 0.5),
	})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	return m
}

func approxEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestWeight(t *testing.T) {
	b := New(&Config{})

	tests := []struct {
		age  time.Duration
		want float64
	}{
		{0, 1},
		{29 * day, 1},
		{30 * day, 1.09},
		{59 * day, 1.09},
		{60 * day, 1.09 * 1.09},
		{365 * day, math.Pow(1.09, 12)},
		{-5 * day, 1},
	}
	for _, tt := range tests {
		if got := b.Weight(tt.age); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Weight(%v) = %v, want %v", tt.age, got, tt.want)
		}
	}
}

func TestWeight_Configurable(t *testing.T) {
	b := New(&Config{DecayBase: 2, DecayPeriod: 7 * day})
	if got := b.Weight(21 * day); got != 8 {
		t.Errorf("Weight = %v, want 8", got)
	}
}

func TestBuild_SameDateIsPlainSum(t *testing.T) {
	m := testMatrix(t)
	added := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	p := New(&Config{}).Build(m, []Entry{
		{TrackID: "a", AddedAt: added},
		{TrackID: "c", AddedAt: added},
	})

	ia, _ := m.Lookup("a")
	ic, _ := m.Lookup("c")
	want := make([]float64, m.Space().Dim())
	for j := range want {
		want[j] = m.Vector(ia)[j] + m.Vector(ic)[j]
	}
	if !approxEqual(p.Vector, want) {
		t.Errorf("profile = %v, want %v", p.Vector, want)
	}
	if p.Resolved != 2 || p.Dropped != 0 {
		t.Errorf("Resolved/Dropped = %d/%d, want 2/0", p.Resolved, p.Dropped)
	}
	for _, w := range p.Weights {
		if w != 1 {
			t.Errorf("expected weight 1 for same-date entries, got %v", w)
		}
	}
}

func TestBuild_OlderEntriesWeighMore(t *testing.T) {
	m := testMatrix(t)
	newest := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	p := New(&Config{}).Build(m, []Entry{
		{TrackID: "a", AddedAt: newest.Add(-90 * day)},
		{TrackID: "a", AddedAt: newest.Add(-30 * day)},
		{TrackID: "b", AddedAt: newest},
	})

	if len(p.Weights) != 3 {
		t.Fatalf("expected 3 weights, got %d", len(p.Weights))
	}
	if !(p.Weights[0] > p.Weights[1] && p.Weights[1] > p.Weights[2]) {
		t.Errorf("weights should grow with age: %v", p.Weights)
	}
	if p.Weights[2] != 1 {
		t.Errorf("newest entry weight = %v, want 1", p.Weights[2])
	}

	// duplicate entries contribute individually
	ia, _ := m.Lookup("a")
	ib, _ := m.Lookup("b")
	wa := p.Weights[0] + p.Weights[1]
	for j := range p.Vector {
		want := wa*m.Vector(ia)[j] + m.Vector(ib)[j]
		if math.Abs(p.Vector[j]-want) > 1e-9 {
			t.Errorf("dim %d = %v, want %v", j, p.Vector[j], want)
		}
	}
}

func TestBuild_DropsUnresolved(t *testing.T) {
	m := testMatrix(t)
	now := time.Now()

	p := New(&Config{}).Build(m, []Entry{
		{TrackID: "missing", AddedAt: now.Add(1000 * day)},
		{TrackID: "b", AddedAt: now},
		{TrackID: "gone", AddedAt: now},
	})

	if p.Dropped != 2 || p.Resolved != 1 {
		t.Errorf("Resolved/Dropped = %d/%d, want 1/2", p.Resolved, p.Dropped)
	}
	// tMax only considers resolved entries
	if p.Weights[0] != 1 {
		t.Errorf("weight = %v, want 1", p.Weights[0])
	}
	if len(p.Members) != 1 || p.Members[0] != "b" {
		t.Errorf("Members = %v, want [b]", p.Members)
	}
}

func TestBuild_EmptyIsZeroVector(t *testing.T) {
	m := testMatrix(t)

	for _, entries := range [][]Entry{nil, {{TrackID: "nope", AddedAt: time.Now()}}} {
		p := New(&Config{}).Build(m, entries)
		if !p.IsEmpty() {
			t.Error("expected empty profile")
		}
		if len(p.Vector) != m.Space().Dim() {
			t.Errorf("vector length %d, want %d", len(p.Vector), m.Space().Dim())
		}
		for _, v := range p.Vector {
			if v != 0 {
				t.Errorf("expected zero vector, got %v", p.Vector)
				break
			}
		}
	}
}

func TestBuildForPlaylist(t *testing.T) {
	m := testMatrix(t)
	now := time.Now()
	provider := &fakeProvider{entries: map[string][]Entry{
		"pl": {{TrackID: "a", AddedAt: now}},
	}}
	b := New(&Config{Provider: provider})

	p, err := b.BuildForPlaylist(context.Background(), m, "pl")
	if err != nil {
		t.Fatalf("BuildForPlaylist failed: %v", err)
	}
	if p.Space != m.Space() {
		t.Error("profile should carry the matrix space")
	}
	if p.Resolved != 1 {
		t.Errorf("Resolved = %d, want 1", p.Resolved)
	}

	_, err = b.BuildForPlaylist(context.Background(), m, "unknown")
	if !errors.Is(err, ErrProviderUnavailable) || !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrProviderUnavailable wrapping ErrNotFound, got %v", err)
	}
}

func TestBuildForPlaylist_ProviderError(t *testing.T) {
	m := testMatrix(t)
	boom := errors.New("auth failed")
	b := New(&Config{Provider: &fakeProvider{err: boom}})

	_, err := b.BuildForPlaylist(context.Background(), m, "pl")
	if !errors.Is(err, ErrProviderUnavailable) || !errors.Is(err, boom) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}

	if _, err := New(&Config{}).BuildForPlaylist(context.Background(), m, "pl"); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("missing provider should be unavailable, got %v", err)
	}
}
