package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/franz/crate-digger/internal/recommend"
	"github.com/franz/crate-digger/internal/util"
)

// errorResponse is the body of every non-2xx response
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type catalogResponse struct {
	Source    string     `json:"source"`
	SpaceID   string     `json:"spaceId"`
	LoadedAt  time.Time  `json:"loadedAt"`
	LoadMs    int64      `json:"loadMs"`
	Tracks    int        `json:"tracks"`
	Dimension int        `json:"dimension"`
	Layout    layoutJSON `json:"layout"`
	Report    reportJSON `json:"report"`
}

type layoutJSON struct {
	Text       int `json:"text"`
	Year       int `json:"year"`
	Popularity int `json:"popularity"`
	Continuous int `json:"continuous"`
}

type reportJSON struct {
	TrackRows     int `json:"trackRows"`
	GenreRows     int `json:"genreRows"`
	Rejected      int `json:"rejected"`
	GenreRejected int `json:"genreRejected"`
	Duplicates    int `json:"duplicates"`
	DuplicateIDs  int `json:"duplicateIds"`
	WithoutGenres int `json:"withoutGenres"`
}

type recommendationsResponse struct {
	RequestID  string     `json:"requestId"`
	PlaylistID string     `json:"playlistId"`
	SpaceID    string     `json:"spaceId"`
	Resolved   int        `json:"resolved"`
	Dropped    int        `json:"dropped"`
	Items      []itemJSON `json:"items"`
	DurationMs int64      `json:"durationMs"`
}

type itemJSON struct {
	TrackID string       `json:"trackId"`
	Name    string       `json:"name"`
	Artist  string       `json:"artist"`
	Score   float64      `json:"score"`
	Artwork *artworkJSON `json:"artwork,omitempty"`
}

type artworkJSON struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

// recommendationQuery holds the validated query parameters
type recommendationQuery struct {
	PlaylistID      string `validate:"required,max=256"`
	Limit           int    `validate:"gte=1,lte=500"`
	ExcludePlaylist bool
	Artwork         bool
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		util.ErrorLog("Failed to marshal JSON response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		util.DebugLog("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// errorStatus maps service errors onto HTTP statuses
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, recommend.ErrCatalogNotLoaded):
		return http.StatusServiceUnavailable, "CATALOG_NOT_LOADED"
	case errors.Is(err, recommend.ErrEmptyProfile):
		return http.StatusUnprocessableEntity, "EMPTY_PROFILE"
	case errors.Is(err, recommend.ErrInvalidTopN):
		return http.StatusBadRequest, "INVALID_LIMIT"
	case errors.Is(err, recommend.ErrProviderUnavailable) && errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound, "PLAYLIST_NOT_FOUND"
	case errors.Is(err, recommend.ErrProviderUnavailable):
		return http.StatusBadGateway, "PROVIDER_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.svc.Snapshot() == nil {
		status = "loading"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Snapshot()
	if snap == nil {
		status, code := errorStatus(recommend.ErrCatalogNotLoaded)
		writeError(w, status, code, recommend.ErrCatalogNotLoaded)
		return
	}
	writeJSON(w, http.StatusOK, newCatalogResponse(snap))
}

func newCatalogResponse(snap *recommend.Snapshot) catalogResponse {
	space := snap.Matrix.Space()
	layout := space.Layout()
	rep := snap.Report
	return catalogResponse{
		Source:    snap.Source,
		SpaceID:   space.ID(),
		LoadedAt:  snap.LoadedAt,
		LoadMs:    snap.Duration.Milliseconds(),
		Tracks:    snap.Matrix.Len(),
		Dimension: space.Dim(),
		Layout: layoutJSON{
			Text:       layout.Text,
			Year:       layout.Year,
			Popularity: layout.Popularity,
			Continuous: layout.Continuous,
		},
		Report: reportJSON{
			TrackRows:     rep.TrackRows,
			GenreRows:     rep.GenreRows,
			Rejected:      rep.Rejected,
			GenreRejected: rep.GenreRejected,
			Duplicates:    rep.Duplicates,
			DuplicateIDs:  rep.DuplicateIDs,
			WithoutGenres: rep.TracksWithoutGenres,
		},
	}
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_SOURCE", errors.New("no catalog source configured"))
		return
	}

	snap, err := s.svc.Reload(r.Context(), s.source)
	if err != nil {
		util.WarnLog("Catalog reload failed: %v", err)
		writeError(w, http.StatusInternalServerError, "RELOAD_FAILED", err)
		return
	}
	writeJSON(w, http.StatusOK, newCatalogResponse(snap))
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	resp, err := s.svc.Recommend(ctx, recommend.Request{
		PlaylistID:      q.PlaylistID,
		TopN:            q.Limit,
		ExcludePlaylist: q.ExcludePlaylist,
		WithArtwork:     q.Artwork,
	})
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err)
		return
	}

	out := recommendationsResponse{
		RequestID:  resp.RequestID,
		PlaylistID: resp.PlaylistID,
		SpaceID:    resp.SpaceID,
		Resolved:   resp.Resolved,
		Dropped:    resp.Dropped,
		Items:      make([]itemJSON, len(resp.Items)),
		DurationMs: resp.Duration.Milliseconds(),
	}
	for i, item := range resp.Items {
		out.Items[i] = itemJSON{
			TrackID: item.TrackID,
			Name:    item.Name,
			Artist:  item.Artist,
			Score:   item.Score,
		}
		if a := item.Artwork; a != nil {
			art := &artworkJSON{Status: a.Status.String(), URL: a.URL}
			if a.Err != nil {
				art.Error = a.Err.Error()
			}
			out.Items[i].Artwork = art
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) parseQuery(r *http.Request) (*recommendationQuery, error) {
	values := r.URL.Query()
	q := &recommendationQuery{
		PlaylistID: chi.URLParam(r, "id"),
		Limit:      DefaultLimit,
	}

	var err error
	if v := values.Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			return nil, errors.New("limit must be an integer")
		}
	}
	if v := values.Get("exclude_playlist"); v != "" {
		if q.ExcludePlaylist, err = strconv.ParseBool(v); err != nil {
			return nil, errors.New("exclude_playlist must be a boolean")
		}
	}
	if v := values.Get("artwork"); v != "" {
		if q.Artwork, err = strconv.ParseBool(v); err != nil {
			return nil, errors.New("artwork must be a boolean")
		}
	}

	if err := s.validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, &fieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
		}
		return nil, err
	}
	return q, nil
}

// fieldError reports the first failed validation
type fieldError struct {
	Field string
	Tag   string
	Param string
}

func (e *fieldError) Error() string {
	switch e.Tag {
	case "required":
		return e.Field + " is required"
	case "gte":
		return e.Field + " must be at least " + e.Param
	case "lte", "max":
		return e.Field + " must be at most " + e.Param
	default:
		return e.Field + " failed " + e.Tag + " validation"
	}
}
