package catalog

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

var testAttrs = []string{"energy", "tempo"}

func rawTrack(row int, id, name, artists, date, popularity string) RawTrack {
	return RawTrack{
		Row:         row,
		ID:          id,
		Name:        name,
		Artists:     artists,
		ReleaseDate: date,
		Popularity:  popularity,
		Attributes:  map[string]string{"energy": "0.5", "tempo": "120"},
	}
}

func normalize(t *testing.T, raw *RawCatalog) *Catalog {
	t.Helper()
	c, err := New(&Config{Attributes: testAttrs}).Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return c
}

func ids(tracks []Track) []string {
	out := make([]string, len(tracks))
	for i, tr := range tracks {
		out[i] = tr.ID
	}
	return out
}

func TestNormalize_DedupKeepsLatestRelease(t *testing.T) {
	raw := &RawCatalog{Tracks: []RawTrack{
		rawTrack(1, "old", "Song", "['Artist']", "1990-01-01", "10"),
		rawTrack(2, "other", "Other", "['Artist']", "1995", "10"),
		rawTrack(3, "new", "Song", "['Artist', 'Guest']", "2001-05", "20"),
		rawTrack(4, "mid", "Song", "['Artist']", "1999", "30"),
	}}

	c := normalize(t, raw)

	if got, want := ids(c.Tracks), []string{"other", "new"}; !reflect.DeepEqual(got, want) {
		t.Errorf("survivors = %v, want %v", got, want)
	}
	if c.Report.Duplicates != 2 {
		t.Errorf("Duplicates = %d, want 2", c.Report.Duplicates)
	}
}

func TestNormalize_DedupTieKeepsFirst(t *testing.T) {
	raw := &RawCatalog{Tracks: []RawTrack{
		rawTrack(1, "a", "Song", "['Artist']", "2000", "10"),
		rawTrack(2, "b", "Song", "['Artist']", "2000", "90"),
	}}

	c := normalize(t, raw)
	if got := ids(c.Tracks); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("survivors = %v, want [a]", got)
	}
}

func TestNormalize_DedupUsesFirstArtistOnly(t *testing.T) {
	raw := &RawCatalog{Tracks: []RawTrack{
		rawTrack(1, "a", "Song", "['Artist', 'X']", "2000", "10"),
		rawTrack(2, "b", "Song", "['Other', 'Artist']", "2001", "10"),
	}}

	c := normalize(t, raw)
	if len(c.Tracks) != 2 {
		t.Errorf("expected 2 tracks with different first artists, got %v", ids(c.Tracks))
	}
}

func TestNormalize_GenreConsolidation(t *testing.T) {
	raw := &RawCatalog{
		Tracks: []RawTrack{
			rawTrack(1, "t1", "Duet", "['Alpha', 'Beta', 'Unknown']", "2010", "50"),
			rawTrack(2, "t2", "Solo", "['Gamma']", "2011", "50"),
		},
		Genres: []RawGenre{
			{Row: 1, Artist: "Alpha", Genres: "['pop', 'dance pop']"},
			{Row: 2, Artist: "Beta", Genres: "['rock', 'pop']"},
			{Row: 3, Artist: "Alpha", Genres: "['electropop']"},
			{Row: 4, Artist: "Gamma", Genres: "[]"},
		},
	}

	c := normalize(t, raw)

	want := []string{"dance pop", "electropop", "pop", "rock"}
	if !reflect.DeepEqual(c.Tracks[0].Genres, want) {
		t.Errorf("genres = %v, want %v", c.Tracks[0].Genres, want)
	}
	if len(c.Tracks[1].Genres) != 0 {
		t.Errorf("expected no genres for t2, got %v", c.Tracks[1].Genres)
	}
	if c.Report.TracksWithoutGenres != 1 {
		t.Errorf("TracksWithoutGenres = %d, want 1", c.Report.TracksWithoutGenres)
	}
}

func TestNormalize_MalformedRecords(t *testing.T) {
	bad := rawTrack(6, "t6", "Bad Attr", "['X']", "2000", "1")
	bad.Attributes["tempo"] = "fast"

	raw := &RawCatalog{
		Tracks: []RawTrack{
			rawTrack(1, "t1", "Fine", "['X']", "2000", "1"),
			rawTrack(2, "t2", "No Artist", "[]", "2000", "1"),
			rawTrack(3, "", "No ID", "['X']", "2000", "1"),
			rawTrack(4, "t4", "Bad Date", "['X']", "someday", "1"),
			rawTrack(5, "t5", "Bad Pop", "['X']", "2000", "250"),
			bad,
		},
		Genres: []RawGenre{
			{Row: 1, Artist: "", Genres: "['pop']"},
		},
	}

	c := normalize(t, raw)

	if got := ids(c.Tracks); !reflect.DeepEqual(got, []string{"t1"}) {
		t.Errorf("survivors = %v, want [t1]", got)
	}
	if c.Report.Rejected != 5 {
		t.Errorf("Rejected = %d, want 5", c.Report.Rejected)
	}
	if c.Report.GenreRejected != 1 {
		t.Errorf("GenreRejected = %d, want 1", c.Report.GenreRejected)
	}
	if len(c.Report.Errors) != 6 {
		t.Fatalf("expected 6 record errors, got %d", len(c.Report.Errors))
	}

	fields := []string{"artists", "id", "release_date", "popularity", "tempo"}
	for i, want := range fields {
		if got := c.Report.Errors[i+1].Field; got != want {
			t.Errorf("error %d field = %q, want %q", i+1, got, want)
		}
	}

	err := c.Report.Err()
	if !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("Report.Err() should match ErrMalformedRecord, got %v", err)
	}
	var recErr *RecordError
	if !errors.As(err, &recErr) || recErr.Table != TableGenres {
		t.Errorf("expected first record error from genre table, got %v", recErr)
	}
}

func TestNormalize_DuplicateIDs(t *testing.T) {
	raw := &RawCatalog{Tracks: []RawTrack{
		rawTrack(1, "same", "One", "['A']", "2000", "1"),
		rawTrack(2, "same", "Two", "['B']", "2000", "1"),
	}}

	c := normalize(t, raw)
	if len(c.Tracks) != 1 || c.Tracks[0].Name != "One" {
		t.Errorf("expected first occurrence kept, got %+v", c.Tracks)
	}
	if c.Report.DuplicateIDs != 1 {
		t.Errorf("DuplicateIDs = %d, want 1", c.Report.DuplicateIDs)
	}
}

func TestNormalize_ParsedFields(t *testing.T) {
	raw := &RawCatalog{Tracks: []RawTrack{
		rawTrack(1, "t1", " Song ", `["Guns N' Roses"]`, "1987-07-21", "77"),
	}}

	c := normalize(t, raw)
	tr := c.Tracks[0]
	if tr.Name != "Song" || tr.PrimaryArtist() != "Guns N' Roses" {
		t.Errorf("unexpected name/artist: %q / %q", tr.Name, tr.PrimaryArtist())
	}
	if tr.Year != 1987 {
		t.Errorf("Year = %d, want 1987", tr.Year)
	}
	if tr.PopularityBucket() != 15 {
		t.Errorf("PopularityBucket = %d, want 15", tr.PopularityBucket())
	}
	if tr.Attributes["tempo"] != 120 || tr.Attributes["energy"] != 0.5 {
		t.Errorf("unexpected attributes: %v", tr.Attributes)
	}
}

func TestNormalize_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	raw := &RawCatalog{Tracks: []RawTrack{rawTrack(1, "t1", "Song", "['A']", "2000", "1")}}
	_, err := New(&Config{Attributes: testAttrs}).Normalize(ctx, raw)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNormalize_NonFiniteAttributes(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"nan", "NaN"},
		{"inf", "Inf"},
		{"negative inf", "-Inf"},
		{"overflow", "1e400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := rawTrack(2, "t2", "Broken Energy", "['Y']", "2000", "1")
			bad.Attributes["energy"] = tt.value

			c := normalize(t, &RawCatalog{Tracks: []RawTrack{
				rawTrack(1, "t1", "Fine", "['X']", "2000", "1"),
				bad,
			}})

			if got := ids(c.Tracks); !reflect.DeepEqual(got, []string{"t1"}) {
				t.Errorf("survivors = %v, want [t1]", got)
			}
			if c.Report.Rejected != 1 || len(c.Report.Errors) != 1 {
				t.Fatalf("expected one rejection, got %+v", c.Report)
			}
			if f := c.Report.Errors[0].Field; f != "energy" {
				t.Errorf("rejected field = %q, want energy", f)
			}
			if got := c.Tracks[0].Attributes["energy"]; got != 0.5 {
				t.Errorf("surviving energy = %v, want 0.5", got)
			}
		})
	}
}
