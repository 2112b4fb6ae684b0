package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/crate-digger/internal/catalog"
	"github.com/franz/crate-digger/internal/profile"
	"github.com/franz/crate-digger/internal/recommend"
	"github.com/franz/crate-digger/internal/store"
)

// testApp imports a three-track catalog into a temp database and writes two
// playlists next to it
func testApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()

	v := newViper()
	v.Set("db", filepath.Join(dir, "cdig.db"))
	v.Set("events_dir", "")
	v.Set("playlists.dir", filepath.Join(dir, "playlists"))
	v.Set("catalog.attributes", []string{"energy"})
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	db, err := store.Open(cfg.DB)
	if err != nil {
		t.Fatal(err)
	}
	raw := &catalog.RawCatalog{}
	for i, r := range [][4]string{
		{"A", "Alpha", "Ann", "['pop']"},
		{"B", "Beta", "Bob", "['rock']"},
		{"C", "Gamma", "Cid", "['pop', 'rock']"},
	} {
		raw.Tracks = append(raw.Tracks, catalog.RawTrack{
			Row: i + 1, ID: r[0], Name: r[1], Artists: "['" + r[2] + "']",
			ReleaseDate: "2020-01-01", Popularity: "60",
			Attributes: map[string]string{"energy": "0.7"},
		})
		raw.Genres = append(raw.Genres, catalog.RawGenre{Row: i + 1, Artist: r[2], Genres: r[3]})
	}
	if _, err := db.ImportCatalog(context.Background(), raw); err != nil {
		t.Fatal(err)
	}
	db.Close()

	fp := &profile.FileProvider{Dir: cfg.Playlists.Dir}
	added := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := fp.WritePlaylist("ac", []profile.Entry{{TrackID: "A", AddedAt: added}, {TrackID: "C", AddedAt: added}}); err != nil {
		t.Fatal(err)
	}
	if err := fp.WritePlaylist("b", []profile.Entry{{TrackID: "B", AddedAt: added}}); err != nil {
		t.Fatal(err)
	}

	a, err := openApp(cfg)
	if err != nil {
		t.Fatalf("openApp failed: %v", err)
	}
	t.Cleanup(a.close)

	if _, err := a.svc.Reload(context.Background(), a.db); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	return a
}

func TestRecommendAll_KeepsArgumentOrder(t *testing.T) {
	a := testApp(t)

	ids := []string{"b", "missing", "ac", "b"}
	results := recommendAll(context.Background(), a.svc, ids, 2, func(id string) recommend.Request {
		return recommend.Request{PlaylistID: id, TopN: 2}
	})

	if len(results) != len(ids) {
		t.Fatalf("got %d results, want %d", len(results), len(ids))
	}
	for i, r := range results {
		if r.PlaylistID != ids[i] {
			t.Errorf("result %d is for %q, want %q", i, r.PlaylistID, ids[i])
		}
	}

	if results[1].Error == "" || results[1].Response != nil {
		t.Errorf("missing playlist should fail on its own: %+v", results[1])
	}

	ac := results[2].Response
	if ac == nil || len(ac.Items) != 2 || ac.Items[0].TrackID != "C" || ac.Items[1].TrackID != "A" {
		t.Fatalf("expected [C A] for ac, got %+v", results[2])
	}
	if results[0].Response.Items[0].TrackID != "B" {
		t.Errorf("playlist b should rank B first, got %+v", results[0].Response.Items)
	}
}

func TestOpenApp_RecordsLoads(t *testing.T) {
	a := testApp(t)

	latest, err := a.db.LatestLoad(context.Background())
	if err != nil {
		t.Fatalf("LatestLoad failed: %v", err)
	}
	if latest.Tracks != 3 {
		t.Errorf("recorded %d tracks, want 3", latest.Tracks)
	}

	summary, err := buildSummary(context.Background(), a.db, 5, "")
	if err != nil {
		t.Fatalf("buildSummary failed: %v", err)
	}
	if len(summary.Loads) != 1 || summary.Loads[0].Tracks != 3 || summary.Events != nil {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestArtworkCell(t *testing.T) {
	tests := []struct {
		lookup *recommend.Lookup
		want   string
	}{
		{nil, ""},
		{&recommend.Lookup{Status: recommend.LookupFound, URL: "https://img/x.jpg"}, "https://img/x.jpg"},
		{&recommend.Lookup{Status: recommend.LookupNotFound}, "(not_found)"},
		{&recommend.Lookup{Status: recommend.LookupProviderError}, "(provider_error)"},
	}
	for _, tt := range tests {
		if got := artworkCell(tt.lookup); got != tt.want {
			t.Errorf("artworkCell(%+v) = %q, want %q", tt.lookup, got, tt.want)
		}
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"#", "Track"},
		[][]string{{"1", "Gamma"}, {"2"}},
		[]columnAlignment{alignRight, alignLeft},
	)
	// rounded style upper-cases headers; cells are left as is
	for _, want := range []string{"TRACK", "Gamma", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "GAMMA") {
		t.Errorf("cell text should not be upper-cased:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("no headers should render nothing")
	}
}
