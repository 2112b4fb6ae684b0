// Package features fits the feature space (TF-IDF genre vocabulary, year and
// popularity-bucket one-hot domains, min-max scaling bounds) and turns
// catalog tracks into fixed-width vectors.
package features

import (
	"fmt"
	"sort"

	"github.com/franz/crate-digger/internal/catalog"
)

// Layout gives the offset of each block inside a vector. Blocks are always
// concatenated in the order text, year, popularity bucket, continuous.
type Layout struct {
	Text       int
	Year       int
	Popularity int
	Continuous int
	Dim        int
}

// oneHot is a sorted categorical domain observed at fit time
type oneHot struct {
	values []int
	index  map[int]int
}

func fitOneHot(observed []int) *oneHot {
	set := make(map[int]struct{}, len(observed))
	for _, v := range observed {
		set[v] = struct{}{}
	}
	values := make([]int, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Ints(values)

	h := &oneHot{values: values, index: make(map[int]int, len(values))}
	for i, v := range values {
		h.index[v] = i
	}
	return h
}

// transform sets the matching slot; unseen values leave dst untouched
func (h *oneHot) transform(v int, dst []float64) {
	if i, ok := h.index[v]; ok {
		dst[i] = 1
	}
}

// minMax holds per-attribute scaling bounds
type minMax struct {
	names []string
	min   []float64
	max   []float64
}

func fitMinMax(names []string, tracks []catalog.Track) *minMax {
	s := &minMax{
		names: names,
		min:   make([]float64, len(names)),
		max:   make([]float64, len(names)),
	}
	for j, name := range names {
		for i := range tracks {
			v := tracks[i].Attributes[name]
			if i == 0 || v < s.min[j] {
				s.min[j] = v
			}
			if i == 0 || v > s.max[j] {
				s.max[j] = v
			}
		}
	}
	return s
}

// transform rescales to [0, 1] and clips values outside the fitted range.
// A zero-width range uses a unit denominator.
func (s *minMax) transform(attrs map[string]float64, dst []float64) {
	for j, name := range s.names {
		den := s.max[j] - s.min[j]
		if den == 0 {
			den = 1
		}
		v := (attrs[name] - s.min[j]) / den
		switch {
		case v < 0:
			v = 0
		case v > 1:
			v = 1
		}
		dst[j] = v
	}
}

// Bounds is the fitted range of one continuous attribute
type Bounds struct {
	Name string
	Min  float64
	Max  float64
}

// Space is a fitted feature space. It is immutable; every vector that is
// compared against another must come from the same Space.
type Space struct {
	id      string
	text    *textModel
	years   *oneHot
	buckets *oneHot
	scaler  *minMax
	layout  Layout
}

// ID uniquely identifies this fit
func (s *Space) ID() string {
	return s.id
}

// Dim is the vector dimension D
func (s *Space) Dim() int {
	return s.layout.Dim
}

// Layout returns the block offsets
func (s *Space) Layout() Layout {
	return s.layout
}

// Vocabulary returns the sorted TF-IDF vocabulary
func (s *Space) Vocabulary() []string {
	return append([]string(nil), s.text.vocab...)
}

// Years returns the sorted year domain
func (s *Space) Years() []int {
	return append([]int(nil), s.years.values...)
}

// PopularityBuckets returns the sorted bucket domain
func (s *Space) PopularityBuckets() []int {
	return append([]int(nil), s.buckets.values...)
}

// Bounds returns the scaling bounds of every continuous attribute
func (s *Space) Bounds() []Bounds {
	out := make([]Bounds, len(s.scaler.names))
	for i, name := range s.scaler.names {
		out[i] = Bounds{Name: name, Min: s.scaler.min[i], Max: s.scaler.max[i]}
	}
	return out
}

// Transform builds the vector of a track in this space
func (s *Space) Transform(t *catalog.Track) []float64 {
	v := make([]float64, s.layout.Dim)
	l := s.layout
	s.text.transform(Tokenize(t.Genres), v[l.Text:l.Year])
	s.years.transform(t.Year, v[l.Year:l.Popularity])
	s.buckets.transform(t.PopularityBucket(), v[l.Popularity:l.Continuous])
	s.scaler.transform(t.Attributes, v[l.Continuous:l.Dim])
	return v
}

// FeatureNames names every dimension, in vector order
func (s *Space) FeatureNames() []string {
	names := make([]string, 0, s.layout.Dim)
	for _, tok := range s.text.vocab {
		names = append(names, "genre_"+tok)
	}
	for _, y := range s.years.values {
		names = append(names, fmt.Sprintf("year_%d", y))
	}
	for _, b := range s.buckets.values {
		names = append(names, fmt.Sprintf("popularity_%d", b))
	}
	names = append(names, s.scaler.names...)
	return names
}
