package catalog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/franz/crate-digger/internal/report"
	"github.com/franz/crate-digger/internal/util"
)

// Normalizer turns raw catalog tables into deduplicated, genre-enriched tracks
type Normalizer struct {
	attributes []string
	logger     *report.EventLogger
}

// Config holds normalizer configuration
type Config struct {
	Attributes []string // continuous attribute columns, DefaultAttributes when empty
	Logger     *report.EventLogger
}

// New creates a new Normalizer
func New(cfg *Config) *Normalizer {
	attrs := cfg.Attributes
	if len(attrs) == 0 {
		attrs = DefaultAttributes
	}
	return &Normalizer{
		attributes: attrs,
		logger:     cfg.Logger,
	}
}

// Attributes returns the continuous attributes this normalizer parses
func (n *Normalizer) Attributes() []string {
	return n.attributes
}

// candidate is a parsed track row waiting for deduplication
type candidate struct {
	track Track
	order int
}

// Normalize parses, deduplicates and genre-enriches a raw catalog.
// Malformed rows are skipped and collected in the report; only context
// cancellation is returned as an error.
func (n *Normalizer) Normalize(ctx context.Context, raw *RawCatalog) (*Catalog, error) {
	start := time.Now()
	out := &Catalog{}
	rep := &out.Report
	rep.TrackRows = len(raw.Tracks)
	rep.GenreRows = len(raw.Genres)

	genres, err := n.genreTable(ctx, raw.Genres, rep)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(raw.Tracks))
	for i := range raw.Tracks {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		track, recErr := n.parseTrack(&raw.Tracks[i])
		if recErr != nil {
			n.reject(rep, recErr)
			continue
		}
		candidates = append(candidates, candidate{track: track, order: i})
	}

	survivors := n.dedup(candidates, rep)

	seen := make(map[string]struct{}, len(survivors))
	out.Tracks = make([]Track, 0, len(survivors))
	for _, c := range survivors {
		if _, dup := seen[c.track.ID]; dup {
			rep.DuplicateIDs++
			util.DebugLog("Dropping track %s: id already taken", c.track.ID)
			continue
		}
		seen[c.track.ID] = struct{}{}

		c.track.Genres = consolidate(c.track.Artists, genres)
		if len(c.track.Genres) == 0 {
			rep.TracksWithoutGenres++
		}
		out.Tracks = append(out.Tracks, c.track)
	}
	rep.Tracks = len(out.Tracks)

	if rep.Rejected+rep.GenreRejected > 0 {
		util.WarnLog("Skipped %d malformed track rows and %d malformed genre rows", rep.Rejected, rep.GenreRejected)
	}
	util.DebugLog("Normalized catalog: %s", rep.Summary())
	n.logger.LogLoad("normalize", rep.Tracks, rep.Rejected+rep.GenreRejected, rep.Duplicates+rep.DuplicateIDs, time.Since(start))

	return out, nil
}

func (n *Normalizer) reject(rep *Report, e *RecordError) {
	if e.Table == TableGenres {
		rep.GenreRejected++
	} else {
		rep.Rejected++
	}
	rep.Errors = append(rep.Errors, e)
	util.DebugLog("Rejected %s", e)
	n.logger.LogReject(e.Table, e.Row, e.Field, e.Reason)
}

func (n *Normalizer) parseTrack(raw *RawTrack) (Track, *RecordError) {
	fail := func(field, reason string) (Track, *RecordError) {
		return Track{}, &RecordError{Table: TableTracks, Row: raw.Row, ID: raw.ID, Field: field, Reason: reason}
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return fail("id", "empty id")
	}

	artists := ParseList(raw.Artists)
	if len(artists) == 0 {
		return fail("artists", "no artist names found")
	}

	released, err := ParseReleaseDate(raw.ReleaseDate)
	if err != nil {
		return fail("release_date", err.Error())
	}

	popularity, err := ParsePopularity(raw.Popularity)
	if err != nil {
		return fail("popularity", err.Error())
	}

	attrs := make(map[string]float64, len(n.attributes))
	for _, name := range n.attributes {
		value, ok := raw.Attributes[name]
		if !ok {
			return fail(name, "missing attribute")
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fail(name, fmt.Sprintf("not a number: %q", value))
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fail(name, fmt.Sprintf("not a finite number: %q", value))
		}
		attrs[name] = f
	}

	return Track{
		ID:          id,
		Name:        CleanString(raw.Name),
		Artists:     artists,
		ReleaseDate: released,
		Year:        released.Year(),
		Popularity:  popularity,
		Attributes:  attrs,
	}, nil
}

// genreTable builds artist -> tag set. Rows for the same artist are merged.
func (n *Normalizer) genreTable(ctx context.Context, rows []RawGenre, rep *Report) (map[string]map[string]struct{}, error) {
	table := make(map[string]map[string]struct{}, len(rows))
	for i := range rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := &rows[i]
		artist := CleanString(row.Artist)
		if artist == "" {
			n.reject(rep, &RecordError{Table: TableGenres, Row: row.Row, Field: "artists", Reason: "empty artist name"})
			continue
		}

		tags := table[artist]
		if tags == nil {
			tags = make(map[string]struct{})
			table[artist] = tags
		}
		for _, tag := range ParseList(row.Genres) {
			tags[tag] = struct{}{}
		}
	}
	return table, nil
}

// dedup keeps the latest release per (first artist, title). Equal dates keep
// the row that came first. Survivors come back in input order.
func (n *Normalizer) dedup(candidates []candidate, rep *Report) []candidate {
	winners := make(map[string]int, len(candidates)) // key -> index into candidates
	collapsed := make(map[string]int)

	for i := range candidates {
		key := candidates[i].track.DedupKey()
		j, ok := winners[key]
		if !ok {
			winners[key] = i
			continue
		}
		collapsed[key]++
		rep.Duplicates++
		if candidates[i].track.ReleaseDate.After(candidates[j].track.ReleaseDate) {
			winners[key] = i
		}
	}

	survivors := make([]candidate, 0, len(winners))
	for _, i := range winners {
		survivors = append(survivors, candidates[i])
	}
	sort.Slice(survivors, func(a, b int) bool {
		return survivors[a].order < survivors[b].order
	})

	for key, count := range collapsed {
		w := candidates[winners[key]]
		n.logger.LogDuplicate(w.track.ID, key, count)
	}
	return survivors
}

// consolidate unions the tags of every listed artist
func consolidate(artists []string, table map[string]map[string]struct{}) []string {
	set := make(map[string]struct{})
	for _, artist := range artists {
		for tag := range table[artist] {
			set[tag] = struct{}{}
		}
	}
	genres := make([]string, 0, len(set))
	for tag := range set {
		genres = append(genres, tag)
	}
	sort.Strings(genres)
	return genres
}
