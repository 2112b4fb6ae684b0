package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMissingColumn is returned when a required header is absent from a table
var ErrMissingColumn = errors.New("missing column")

// CSVSource loads the catalog from a track table (data.csv layout) and a
// genre table (data_w_genres.csv layout). Columns are addressed by header.
type CSVSource struct {
	TracksPath string
	GenresPath string
	Attributes []string

	// WrapReader, when set, wraps each opened file (progress bars).
	WrapReader func(r io.Reader, size int64, label string) io.Reader
}

// Name implements Source
func (s *CSVSource) Name() string {
	return s.TracksPath
}

// Load implements Source
func (s *CSVSource) Load(ctx context.Context) (*RawCatalog, error) {
	attrs := s.Attributes
	if len(attrs) == 0 {
		attrs = DefaultAttributes
	}

	raw := &RawCatalog{}
	err := s.readTable(ctx, s.TracksPath, "tracks", append([]string{"id", "name", "artists", "release_date", "popularity"}, attrs...),
		func(row int, get func(string) string) {
			values := make(map[string]string, len(attrs))
			for _, a := range attrs {
				values[a] = get(a)
			}
			raw.Tracks = append(raw.Tracks, RawTrack{
				Row:         row,
				ID:          get("id"),
				Name:        get("name"),
				Artists:     get("artists"),
				ReleaseDate: get("release_date"),
				Popularity:  get("popularity"),
				Attributes:  values,
			})
		})
	if err != nil {
		return nil, err
	}

	if s.GenresPath == "" {
		return raw, nil
	}

	err = s.readTable(ctx, s.GenresPath, "genres", []string{"artists", "genres"},
		func(row int, get func(string) string) {
			raw.Genres = append(raw.Genres, RawGenre{
				Row:    row,
				Artist: get("artists"),
				Genres: get("genres"),
			})
		})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *CSVSource) readTable(ctx context.Context, path, label string, required []string, emit func(int, func(string) string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s table: %w", label, err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.WrapReader != nil {
		if info, err := f.Stat(); err == nil {
			r = s.WrapReader(f, info.Size(), label)
		}
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("failed to read %s header: %w", label, err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, ok := columns[h]; !ok {
			columns[h] = i
		}
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return fmt.Errorf("%s table %s: %w %q", label, path, ErrMissingColumn, name)
		}
	}

	var record []string
	get := func(name string) string {
		i := columns[name]
		if i >= len(record) {
			return ""
		}
		return record[i]
	}

	for row := 1; ; row++ {
		if row%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		record, err = cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s row %d: %w", label, row, err)
		}
		emit(row, get)
	}
}
