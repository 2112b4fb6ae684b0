package recommend

import (
	"context"
	"errors"

	"github.com/franz/crate-digger/internal/util"
)

// DisplayProvider resolves artwork for a track
type DisplayProvider interface {
	ArtworkURL(ctx context.Context, trackID string) (string, error)
}

// LookupStatus distinguishes why an artwork lookup did or did not produce a URL
type LookupStatus int

const (
	LookupFound LookupStatus = iota
	LookupNotFound
	LookupProviderError
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupNotFound:
		return "not_found"
	case LookupProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

// Lookup is the typed outcome of one artwork lookup
type Lookup struct {
	Status LookupStatus
	URL    string
	Err    error
}

// LookupArtwork asks the provider for a track's artwork. An empty URL or a
// util.ErrNotFound error map to LookupNotFound; any other error is a
// LookupProviderError.
func LookupArtwork(ctx context.Context, d DisplayProvider, trackID string) Lookup {
	url, err := d.ArtworkURL(ctx, trackID)
	switch {
	case err == nil && url != "":
		return Lookup{Status: LookupFound, URL: url}
	case err == nil, errors.Is(err, util.ErrNotFound):
		return Lookup{Status: LookupNotFound}
	default:
		return Lookup{Status: LookupProviderError, Err: err}
	}
}
